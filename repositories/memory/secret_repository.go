// Package memory holds process-local repositories for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/repositories"
)

type secretKey struct {
	name    string
	creator string
	global  bool
}

func keyFor(name string, creatorID *string) secretKey {
	if creatorID == nil {
		return secretKey{name: name, global: true}
	}
	return secretKey{name: name, creator: *creatorID}
}

// SecretRepository is a map-backed repositories.SecretRepository
type SecretRepository struct {
	mu      sync.RWMutex
	records map[secretKey]*models.Secret
}

// NewSecretRepository creates an empty in-memory secret repository
func NewSecretRepository() *SecretRepository {
	return &SecretRepository{
		records: make(map[secretKey]*models.Secret),
	}
}

var _ repositories.SecretRepository = (*SecretRepository)(nil)

// FindByName retrieves the record for (name, creatorID)
func (r *SecretRepository) FindByName(ctx context.Context, name string, creatorID *string) (*models.Secret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.records[keyFor(name, creatorID)]; ok {
		return cloneSecret(s), nil
	}
	return nil, nil
}

// List retrieves all records sorted by name, optionally for one tenant
func (r *SecretRepository) List(ctx context.Context, creatorID *string) ([]*models.Secret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Secret, 0, len(r.records))
	for _, s := range r.records {
		if creatorID != nil && (s.CreatorID == nil || *s.CreatorID != *creatorID) {
			continue
		}
		out = append(out, cloneSecret(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Insert creates a record, failing if (name, creator) is taken
func (r *SecretRepository) Insert(ctx context.Context, secret *models.Secret) (*models.Secret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := keyFor(secret.Name, secret.CreatorID)
	if _, exists := r.records[key]; exists {
		return nil, fmt.Errorf("duplicate secret %q", secret.Name)
	}

	now := time.Now().UTC()
	stored := cloneSecret(secret)
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.CreatedAt = &now
	stored.UpdatedAt = &now
	r.records[key] = stored

	return cloneSecret(stored), nil
}

// Update rewrites value and description in place
func (r *SecretRepository) Update(ctx context.Context, id, value string, description *string) (*models.Secret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.records {
		if s.ID != id {
			continue
		}
		now := time.Now().UTC()
		s.Value = value
		s.Description = copyString(description)
		s.UpdatedAt = &now
		return cloneSecret(s), nil
	}
	return nil, fmt.Errorf("secret not found: %s", id)
}

// DeleteByName removes the record for (name, creatorID), if present
func (r *SecretRepository) DeleteByName(ctx context.Context, name string, creatorID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, keyFor(name, creatorID))
	return nil
}

// Ping always succeeds
func (r *SecretRepository) Ping(ctx context.Context) error {
	return nil
}

func cloneSecret(s *models.Secret) *models.Secret {
	c := *s
	c.CreatorID = copyString(s.CreatorID)
	c.Description = copyString(s.Description)
	return &c
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

package repositories

import (
	"context"

	"github.com/upb/mcp-auth-gateway/models"
)

// SecretRepository is the raw secret store: records hold ciphertext and
// encryption lives one layer up in services/secrets.
//
// creatorID nil addresses the global scope (creator_id IS NULL) for the
// keyed operations. List with nil returns every record.
type SecretRepository interface {
	// FindByName returns the record for (name, creatorID), or nil when absent
	FindByName(ctx context.Context, name string, creatorID *string) (*models.Secret, error)

	// List retrieves all records, optionally restricted to one tenant
	List(ctx context.Context, creatorID *string) ([]*models.Secret, error)

	// Insert creates a record and returns it as stored
	Insert(ctx context.Context, secret *models.Secret) (*models.Secret, error)

	// Update rewrites value and description of an existing record in place
	Update(ctx context.Context, id, value string, description *string) (*models.Secret, error)

	// DeleteByName removes matching records. Removing nothing is not an error.
	DeleteByName(ctx context.Context, name string, creatorID *string) error

	// Ping checks the backend is reachable
	Ping(ctx context.Context) error
}

// AuditRepository persists auth audit events
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error

	// ListRecent retrieves the newest entries, newest first
	ListRecent(ctx context.Context, limit int) ([]*models.AuditLog, error)
}


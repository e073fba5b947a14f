package memory

import (
	"context"
	"sync"

	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/repositories"
)

// DefaultAuditCapacity bounds the in-memory audit trail
const DefaultAuditCapacity = 1000

// AuditRepository keeps the newest audit entries in a slice, newest last.
// Once capacity is reached the oldest entry is dropped.
type AuditRepository struct {
	mu       sync.Mutex
	logs     []*models.AuditLog
	capacity int
}

// NewAuditRepository creates an empty in-memory audit repository
func NewAuditRepository(capacity int) *AuditRepository {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AuditRepository{capacity: capacity}
}

var _ repositories.AuditRepository = (*AuditRepository)(nil)

// Insert appends an entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.logs) == r.capacity {
		copy(r.logs, r.logs[1:])
		r.logs = r.logs[:len(r.logs)-1]
	}
	r.logs = append(r.logs, log)
	return nil
}

// ListRecent returns up to limit entries, newest first
func (r *AuditRepository) ListRecent(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > len(r.logs) {
		limit = len(r.logs)
	}
	out := make([]*models.AuditLog, 0, limit)
	for i := len(r.logs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.logs[i])
	}
	return out, nil
}

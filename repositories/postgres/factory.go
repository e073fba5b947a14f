package postgres

import (
	"github.com/upb/mcp-auth-gateway/config"
	"go.uber.org/zap"
)

// RepositoryFactory opens the database once and hands out repositories bound to it
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory creates a new repository factory
func NewRepositoryFactory(cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	return &RepositoryFactory{db: db, logger: logger}, nil
}

// Secrets returns a secret repository over table
func (f *RepositoryFactory) Secrets(table string) *SecretRepository {
	return NewSecretRepository(f.db, table, f.logger).(*SecretRepository)
}

// AuditLogs returns the auth_events repository
func (f *RepositoryFactory) AuditLogs() *AuditRepository {
	return NewAuditRepository(f.db, f.logger).(*AuditRepository)
}

// GetDB returns the database connection
func (f *RepositoryFactory) GetDB() *DB {
	return f.db
}

// Close closes the database connection
func (f *RepositoryFactory) Close() error {
	return f.db.Close()
}

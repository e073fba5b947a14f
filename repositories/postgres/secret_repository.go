package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/repositories"
	"go.uber.org/zap"
)

const secretColumns = "id, name, value, creator_id, description, created_at, updated_at"

// SecretRepository implements repositories.SecretRepository against a PostgreSQL table
type SecretRepository struct {
	db     *DB
	table  string
	logger *zap.Logger
}

// NewSecretRepository creates a new secret repository over table
func NewSecretRepository(db *DB, table string, logger *zap.Logger) repositories.SecretRepository {
	return &SecretRepository{
		db:     db,
		table:  pq.QuoteIdentifier(table),
		logger: logger,
	}
}

// FindByName retrieves the record for (name, creatorID)
func (r *SecretRepository) FindByName(ctx context.Context, name string, creatorID *string) (*models.Secret, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE name = $1 AND creator_id IS NOT DISTINCT FROM $2::text
		LIMIT 1
	`, secretColumns, r.table)

	secret, err := scanSecret(r.db.QueryRowContext(ctx, query, name, creatorID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get secret: %w", err)
	}

	return secret, nil
}

// List retrieves all records, or one tenant's records when creatorID is set
func (r *SecretRepository) List(ctx context.Context, creatorID *string) ([]*models.Secret, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE $1::text IS NULL OR creator_id = $1::text
		ORDER BY name
	`, secretColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}
	defer rows.Close()

	var secrets []*models.Secret
	for rows.Next() {
		secret, err := scanSecret(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan secret: %w", err)
		}
		secrets = append(secrets, secret)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating secrets: %w", err)
	}

	return secrets, nil
}

// Insert creates a new record
func (r *SecretRepository) Insert(ctx context.Context, secret *models.Secret) (*models.Secret, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, value, creator_id, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING %s
	`, r.table, secretColumns)

	id := secret.ID
	if id == "" {
		id = uuid.New().String()
	}

	stored, err := scanSecret(r.db.QueryRowContext(ctx, query,
		id,
		secret.Name,
		secret.Value,
		secret.CreatorID,
		secret.Description,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert secret: %w", err)
	}

	r.logger.Debug("secret inserted", zap.String("id", stored.ID), zap.String("name", stored.Name))
	return stored, nil
}

// Update rewrites value and description in place, keeping the id
func (r *SecretRepository) Update(ctx context.Context, id, value string, description *string) (*models.Secret, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET value = $2, description = $3, updated_at = now()
		WHERE id = $1
		RETURNING %s
	`, r.table, secretColumns)

	stored, err := scanSecret(r.db.QueryRowContext(ctx, query, id, value, description))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("secret not found: %s", id)
		}
		return nil, fmt.Errorf("failed to update secret: %w", err)
	}

	r.logger.Debug("secret updated", zap.String("id", stored.ID), zap.String("name", stored.Name))
	return stored, nil
}

// DeleteByName removes the record for (name, creatorID), if any
func (r *SecretRepository) DeleteByName(ctx context.Context, name string, creatorID *string) error {
	query := fmt.Sprintf(`
		DELETE FROM %s
		WHERE name = $1 AND creator_id IS NOT DISTINCT FROM $2::text
	`, r.table)

	result, err := r.db.ExecContext(ctx, query, name, creatorID)
	if err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	rows, _ := result.RowsAffected()
	r.logger.Debug("secret delete executed", zap.String("name", name), zap.Int64("rows", rows))
	return nil
}

// Ping checks database reachability
func (r *SecretRepository) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSecret(row rowScanner) (*models.Secret, error) {
	var (
		secret      models.Secret
		creatorID   sql.NullString
		description sql.NullString
		createdAt   sql.NullTime
		updatedAt   sql.NullTime
	)

	if err := row.Scan(
		&secret.ID,
		&secret.Name,
		&secret.Value,
		&creatorID,
		&description,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}

	if creatorID.Valid {
		secret.CreatorID = &creatorID.String
	}
	if description.Valid {
		secret.Description = &description.String
	}
	secret.CreatedAt = nullTimePtr(createdAt)
	secret.UpdatedAt = nullTimePtr(updatedAt)

	return &secret, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

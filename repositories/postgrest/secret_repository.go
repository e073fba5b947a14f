// Package postgrest is a SecretRepository speaking the PostgREST dialect
// exposed by Supabase at /rest/v1/<table>.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/repositories"
	"go.uber.org/zap"
)

const maxErrorBody = 4 << 10

// Config configures the PostgREST client
type Config struct {
	BaseURL    string // project URL, without /rest/v1
	ServiceKey string
	Table      string
	Timeout    time.Duration
}

// APIError is a non-2xx answer from PostgREST. Body is kept for logs only.
type APIError struct {
	Method     string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("postgrest %s returned status %d", e.Method, e.StatusCode)
}

// SecretRepository implements repositories.SecretRepository over HTTP
type SecretRepository struct {
	config     Config
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSecretRepository creates a PostgREST-backed secret repository
func NewSecretRepository(cfg Config, logger *zap.Logger) repositories.SecretRepository {
	if cfg.Table == "" {
		cfg.Table = "secrets"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &SecretRepository{
		config:   cfg,
		endpoint: cfg.BaseURL + "/rest/v1/" + cfg.Table,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// wireSecret is the row shape returned by PostgREST
type wireSecret struct {
	ID          json.RawMessage `json:"id"`
	Name        string          `json:"name"`
	Value       string          `json:"value"`
	CreatorID   *string         `json:"creator_id"`
	Description *string         `json:"description"`
	CreatedAt   *string         `json:"created_at"`
	UpdatedAt   *string         `json:"updated_at"`
}

func (w *wireSecret) toModel() *models.Secret {
	return &models.Secret{
		ID:          rawID(w.ID),
		Name:        w.Name,
		Value:       w.Value,
		CreatorID:   w.CreatorID,
		Description: w.Description,
		CreatedAt:   parseTimestamp(w.CreatedAt),
		UpdatedAt:   parseTimestamp(w.UpdatedAt),
	}
}

// FindByName retrieves the record for (name, creatorID)
func (r *SecretRepository) FindByName(ctx context.Context, name string, creatorID *string) (*models.Secret, error) {
	params := url.Values{}
	params.Set("name", "eq."+name)
	params.Set("creator_id", tenantFilter(creatorID))
	params.Set("limit", "1")

	rows, err := r.do(ctx, http.MethodGet, params, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].toModel(), nil
}

// List retrieves all records, or one tenant's records when creatorID is set
func (r *SecretRepository) List(ctx context.Context, creatorID *string) ([]*models.Secret, error) {
	params := url.Values{}
	if creatorID != nil {
		params.Set("creator_id", "eq."+*creatorID)
	}
	params.Set("order", "name.asc")

	rows, err := r.do(ctx, http.MethodGet, params, nil)
	if err != nil {
		return nil, err
	}

	secrets := make([]*models.Secret, 0, len(rows))
	for i := range rows {
		secrets = append(secrets, rows[i].toModel())
	}
	return secrets, nil
}

// Insert creates a new record
func (r *SecretRepository) Insert(ctx context.Context, secret *models.Secret) (*models.Secret, error) {
	body := map[string]interface{}{
		"name":        secret.Name,
		"value":       secret.Value,
		"creator_id":  secret.CreatorID,
		"description": secret.Description,
	}

	rows, err := r.do(ctx, http.MethodPost, nil, body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("postgrest insert returned no representation")
	}

	stored := rows[0].toModel()
	r.logger.Debug("secret inserted", zap.String("id", stored.ID), zap.String("name", stored.Name))
	return stored, nil
}

// Update rewrites value and description in place, keeping the id
func (r *SecretRepository) Update(ctx context.Context, id, value string, description *string) (*models.Secret, error) {
	params := url.Values{}
	params.Set("id", "eq."+id)

	body := map[string]interface{}{
		"value":       value,
		"description": description,
		"updated_at":  time.Now().UTC().Format(time.RFC3339Nano),
	}

	rows, err := r.do(ctx, http.MethodPatch, params, body)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("secret not found: %s", id)
	}

	stored := rows[0].toModel()
	r.logger.Debug("secret updated", zap.String("id", stored.ID), zap.String("name", stored.Name))
	return stored, nil
}

// DeleteByName removes the record for (name, creatorID), if any
func (r *SecretRepository) DeleteByName(ctx context.Context, name string, creatorID *string) error {
	params := url.Values{}
	params.Set("name", "eq."+name)
	params.Set("creator_id", tenantFilter(creatorID))

	_, err := r.do(ctx, http.MethodDelete, params, nil)
	return err
}

// Ping issues a one-row read to confirm the endpoint and key are usable
func (r *SecretRepository) Ping(ctx context.Context) error {
	params := url.Values{}
	params.Set("select", "id")
	params.Set("limit", "1")

	_, err := r.do(ctx, http.MethodGet, params, nil)
	return err
}

func (r *SecretRepository) do(ctx context.Context, method string, params url.Values, body interface{}) ([]wireSecret, error) {
	target := r.endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("apikey", r.config.ServiceKey)
	req.Header.Set("Authorization", "Bearer "+r.config.ServiceKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if method == http.MethodPost || method == http.MethodPatch {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("postgrest %s failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Method: method, StatusCode: resp.StatusCode, Body: truncate(respBody)}
		r.logger.Error("postgrest request failed",
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
			zap.String("body", apiErr.Body))
		return nil, apiErr
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return nil, nil
	}

	var rows []wireSecret
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode postgrest response: %w", err)
	}
	return rows, nil
}

// tenantFilter addresses the global scope with IS NULL
func tenantFilter(creatorID *string) string {
	if creatorID == nil {
		return "is.null"
	}
	return "eq." + *creatorID
}

// rawID accepts both string and numeric primary keys
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999-07",
	"2006-01-02 15:04:05.999999",
}

// parseTimestamp accepts timestamptz and timestamp renderings; unparsable values become nil
func parseTimestamp(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			return &t
		}
	}
	return nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}

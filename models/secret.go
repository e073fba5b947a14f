package models

import "time"

// Secret is a named, optionally tenant-scoped value held in the secret store.
// CreatorID nil means global scope. Value is plaintext once it leaves the secrets service.
type Secret struct {
	ID          string     `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Value       string     `json:"value" db:"value"`
	CreatorID   *string    `json:"creator_id" db:"creator_id"`
	Description *string    `json:"description" db:"description"`
	CreatedAt   *time.Time `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// TableName returns the default table name for the Secret model
func (Secret) TableName() string {
	return "secrets"
}

// Summary drops the value for listing surfaces
func (s *Secret) Summary() SecretSummary {
	return SecretSummary{
		ID:          s.ID,
		Name:        s.Name,
		CreatorID:   s.CreatorID,
		Description: s.Description,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// SecretSummary is a Secret without its value
type SecretSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	CreatorID   *string    `json:"creator_id"`
	Description *string    `json:"description"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// StringPtr returns nil for the empty string, otherwise a pointer to s
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringValue dereferences p, returning "" for nil
func StringValue(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

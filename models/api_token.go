package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// APITokenPrefix namespaces API token records inside the secret store
const APITokenPrefix = "api_token:"

// APITokenSecretName returns the secret name under which a token's record lives
func APITokenSecretName(token string) string {
	return APITokenPrefix + token
}

// IsAPITokenSecretName reports whether name holds an API token record
func IsAPITokenSecretName(name string) bool {
	return strings.HasPrefix(name, APITokenPrefix)
}

// APITokenRecord is the JSON document stored as the value of an api_token secret.
// Timestamps are Unix seconds. ExpiresAt is checked by readers; the store never evicts.
type APITokenRecord struct {
	ID        string   `json:"id"`
	Username  *string  `json:"username"`
	Email     *string  `json:"email"`
	Role      *string  `json:"role"`
	Scopes    []string `json:"scopes"`
	CreatedAt float64  `json:"created_at"`
	ExpiresAt *float64 `json:"expires_at,omitempty"`
}

// NewAPITokenRecord builds a record for principal p, expiring after expiresIn when non-nil
func NewAPITokenRecord(p *Principal, now time.Time, expiresIn *time.Duration) *APITokenRecord {
	scopes := p.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	rec := &APITokenRecord{
		ID:        p.ID,
		Username:  StringPtr(p.Username),
		Email:     StringPtr(p.Email),
		Role:      StringPtr(p.Role),
		Scopes:    scopes,
		CreatedAt: unixSeconds(now),
	}
	if expiresIn != nil {
		exp := unixSeconds(now.Add(*expiresIn))
		rec.ExpiresAt = &exp
	}
	return rec
}

// ParseAPITokenRecord decodes a stored record
func ParseAPITokenRecord(data string) (*APITokenRecord, error) {
	var rec APITokenRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("invalid API token data format: %w", err)
	}
	if rec.Scopes == nil {
		rec.Scopes = []string{}
	}
	return &rec, nil
}

// Encode serialises the record for storage
func (r *APITokenRecord) Encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Expired reports whether now is past the record's expiry
func (r *APITokenRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && unixSeconds(now) > *r.ExpiresAt
}

// ExpiresTime returns the expiry as a time, or the zero time when the record never expires
func (r *APITokenRecord) ExpiresTime() time.Time {
	if r.ExpiresAt == nil {
		return time.Time{}
	}
	return fromUnixSeconds(*r.ExpiresAt)
}

// Principal maps the record to a Principal. Records without an id map to "unknown".
func (r *APITokenRecord) Principal() *Principal {
	id := r.ID
	if id == "" {
		id = "unknown"
	}
	return NewPrincipal(id, StringValue(r.Username), StringValue(r.Email), StringValue(r.Role), r.Scopes)
}

func unixSeconds(t time.Time) float64 {
	return float64(t.Unix()) + float64(t.Nanosecond())/float64(time.Second)
}

func fromUnixSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*float64(time.Second)))
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of auth event being audited
type AuditAction string

const (
	AuditActionAuthSucceeded AuditAction = "auth_succeeded"
	AuditActionAuthFailed    AuditAction = "auth_failed"
	AuditActionTokenIssued   AuditAction = "token_issued"
	AuditActionTokenRevoked  AuditAction = "token_revoked"
	AuditActionJWTIssued     AuditAction = "jwt_issued"
	AuditActionSessionOpened AuditAction = "session_opened"
	AuditActionSessionClosed AuditAction = "session_closed"
	AuditActionSecretSet     AuditAction = "secret_set"
	AuditActionSecretDeleted AuditAction = "secret_deleted"
)

// AuditLog represents one entry of the auth audit trail.
// Never carries token or secret values.
type AuditLog struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	Action      AuditAction     `json:"action" db:"action"`
	PrincipalID *string         `json:"principal_id,omitempty" db:"principal_id"`
	Method      string          `json:"method" db:"method"` // api_token, jwt, privy, bypass, cli
	Resource    *string         `json:"resource,omitempty" db:"resource"`
	Success     bool            `json:"success" db:"success"`
	Reason      *string         `json:"reason,omitempty" db:"reason"`
	Details     json.RawMessage `json:"details,omitempty" db:"details"`
	RequestID   string          `json:"request_id" db:"request_id"`
	Timestamp   time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "auth_events"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(action AuditAction, method string, success bool) *AuditLog {
	return &AuditLog{
		ID:        uuid.New(),
		Action:    action,
		Method:    method,
		Success:   success,
		Timestamp: time.Now().UTC(),
	}
}

// WithPrincipal sets the principal the event is about
func (a *AuditLog) WithPrincipal(id string) *AuditLog {
	a.PrincipalID = StringPtr(id)
	return a
}

// WithResource sets the affected resource name
func (a *AuditLog) WithResource(resource string) *AuditLog {
	a.Resource = StringPtr(resource)
	return a
}

// WithReason records why the event failed
func (a *AuditLog) WithReason(reason string) *AuditLog {
	a.Reason = StringPtr(reason)
	return a
}

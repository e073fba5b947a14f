package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeUnauthorized  ErrorType = "unauthorized"
	ErrorTypeForbidden     ErrorType = "forbidden"
	ErrorTypeStore         ErrorType = "store"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeExternal      ErrorType = "external"
	ErrorTypeInternal      ErrorType = "internal"
)

// DomainError represents a structured error with additional context.
// Code optionally narrows a sentinel within its Type so errors.Is can tell
// "token expired" apart from other credential failures.
type DomainError struct {
	Type    ErrorType
	Code    string
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is. A target without a Code matches every error of its Type.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

func newCodedError(errType ErrorType, code, message string) *DomainError {
	e := NewDomainError(errType, message, nil)
	e.Code = code
	return e
}

// Domain error variables

var (
	// Configuration Errors
	ErrNotConfigured      = NewDomainError(ErrorTypeConfiguration, "authentication not configured", nil)
	ErrJWTSecretMissing   = newCodedError(ErrorTypeConfiguration, "jwt_secret_missing", "JWT secret not configured")
	ErrEncryptionKeyValue = newCodedError(ErrorTypeConfiguration, "encryption_key_invalid", "invalid encryption key")

	// Authentication Errors
	ErrUnauthorized       = NewDomainError(ErrorTypeUnauthorized, "authentication failed: no valid credential", nil)
	ErrInvalidAPIToken    = newCodedError(ErrorTypeUnauthorized, "invalid_api_token", "invalid API token")
	ErrAPITokenExpired    = newCodedError(ErrorTypeUnauthorized, "api_token_expired", "API token has expired")
	ErrInvalidToken       = newCodedError(ErrorTypeUnauthorized, "invalid_token", "invalid JWT token")
	ErrTokenExpired       = newCodedError(ErrorTypeUnauthorized, "token_expired", "JWT token has expired")
	ErrInvalidRefresh     = newCodedError(ErrorTypeUnauthorized, "invalid_refresh_token", "invalid refresh token")
	ErrRefreshExpired     = newCodedError(ErrorTypeUnauthorized, "refresh_token_expired", "refresh token has expired")
	ErrRefreshScopeAbsent = newCodedError(ErrorTypeUnauthorized, "refresh_scope_missing", "invalid refresh token: missing required scope")

	// Permission Errors
	ErrForbidden               = NewDomainError(ErrorTypeForbidden, "access forbidden", nil)
	ErrInsufficientPermissions = newCodedError(ErrorTypeForbidden, "missing_scope", "insufficient permissions")

	// Store Errors
	ErrStoreUnavailable = NewDomainError(ErrorTypeStore, "secret store unavailable", nil)

	// Not Found Errors
	ErrSecretNotFound = NewDomainError(ErrorTypeNotFound, "secret not found", nil)
	ErrToolNotFound   = newCodedError(ErrorTypeNotFound, "tool_not_found", "tool not found")

	// Validation Errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)

	// External Provider Errors
	ErrProviderUnavailable = NewDomainError(ErrorTypeExternal, "auth provider unavailable", nil)

	// Internal Errors
	ErrInternal = NewDomainError(ErrorTypeInternal, "internal server error", nil)
)

// NewMissingScopeError builds the forbidden error naming the first scope the caller lacks
func NewMissingScopeError(scope string) *DomainError {
	e := newCodedError(ErrorTypeForbidden, ErrInsufficientPermissions.Code, ErrInsufficientPermissions.Message+": missing scope "+scope)
	return e.WithDetail("scope", scope)
}

// NewUnauthorizedError builds a credential failure carrying its cause
func NewUnauthorizedError(code, message string, err error) *DomainError {
	e := NewDomainError(ErrorTypeUnauthorized, message, err)
	e.Code = code
	return e
}

// Error type checking helper functions

func hasType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsConfigurationError checks if an error is a configuration error
func IsConfigurationError(err error) bool { return hasType(err, ErrorTypeConfiguration) }

// IsUnauthorizedError checks if an error is a credential failure
func IsUnauthorizedError(err error) bool { return hasType(err, ErrorTypeUnauthorized) }

// IsForbiddenError checks if an error is a scope/permission failure
func IsForbiddenError(err error) bool { return hasType(err, ErrorTypeForbidden) }

// IsStoreError checks if an error came from the secret store transport
func IsStoreError(err error) bool { return hasType(err, ErrorTypeStore) }

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool { return hasType(err, ErrorTypeNotFound) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return hasType(err, ErrorTypeValidation) }

// IsExternalError checks if an error is an external provider error
func IsExternalError(err error) bool { return hasType(err, ErrorTypeExternal) }

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool { return hasType(err, ErrorTypeInternal) }

// MissingScope returns the scope named by a forbidden error, if any
func MissingScope(err error) (string, bool) {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Type != ErrorTypeForbidden {
		return "", false
	}
	scope, ok := domainErr.Details["scope"].(string)
	return scope, ok
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// PublicMessage returns the caller-safe message of err. Wrapped causes are never included.
func PublicMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ErrInternal.Message
}

// WrapStore wraps a backend failure as a store error
func WrapStore(message string, err error) error {
	return NewDomainError(ErrorTypeStore, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapExternal wraps an error as an external provider error
func WrapExternal(message string, err error) error {
	return NewDomainError(ErrorTypeExternal, message, err)
}

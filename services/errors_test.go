package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeStore, "store unreachable", baseErr)

	assert.Equal(t, ErrorTypeStore, domainErr.Type)
	assert.Equal(t, "store unreachable", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeStore,
				Message: "lookup failed",
				Err:     errors.New("connection refused"),
			},
			wantMsg: "store: lookup failed (connection refused)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeUnauthorized,
				Message: "JWT token has expired",
			},
			wantMsg: "unauthorized: JWT token has expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"same type, uncoded target", ErrTokenExpired, ErrUnauthorized, true},
		{"same code", NewUnauthorizedError("token_expired", "JWT token has expired", nil), ErrTokenExpired, true},
		{"same type, different code", ErrInvalidToken, ErrTokenExpired, false},
		{"different type", ErrStoreUnavailable, ErrUnauthorized, false},
		{"wrapped", fmt.Errorf("ctx: %w", ErrTokenExpired), ErrTokenExpired, true},
		{"not a domain error", ErrTokenExpired, errors.New("regular error"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestNewMissingScopeError(t *testing.T) {
	err := NewMissingScopeError("admin:secrets")

	assert.True(t, IsForbiddenError(err))
	assert.True(t, errors.Is(err, ErrInsufficientPermissions))
	assert.Equal(t, "insufficient permissions: missing scope admin:secrets", err.Message)

	scope, ok := MissingScope(fmt.Errorf("wrapped: %w", err))
	require.True(t, ok)
	assert.Equal(t, "admin:secrets", scope)

	_, ok = MissingScope(ErrTokenExpired)
	assert.False(t, ok)
}

func TestTypeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		check func(error) bool
		yes   error
		no    error
	}{
		{"configuration", IsConfigurationError, ErrJWTSecretMissing, ErrUnauthorized},
		{"unauthorized", IsUnauthorizedError, ErrInvalidRefresh, ErrForbidden},
		{"forbidden", IsForbiddenError, ErrInsufficientPermissions, ErrUnauthorized},
		{"store", IsStoreError, WrapStore("get failed", errors.New("timeout")), ErrSecretNotFound},
		{"not found", IsNotFoundError, ErrSecretNotFound, ErrStoreUnavailable},
		{"validation", IsValidationError, ErrInvalidInput, ErrInternal},
		{"external", IsExternalError, WrapExternal("privy", errors.New("502")), ErrInternal},
		{"internal", IsInternalError, WrapInternal("boom", nil), ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.yes))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", tt.yes)))
			assert.False(t, tt.check(tt.no))
			assert.False(t, tt.check(errors.New("regular")))
			assert.False(t, tt.check(nil))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeStore, GetErrorType(ErrStoreUnavailable))
	assert.Equal(t, ErrorTypeForbidden, GetErrorType(NewMissingScopeError("x")))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("regular")))
}

func TestGetErrorDetails(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "validation error", nil)
	err.WithDetail("field", "name").WithDetail("reason", "required")

	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "name", details["field"])
	assert.Equal(t, "required", details["reason"])

	assert.Nil(t, GetErrorDetails(errors.New("regular error")))
}

func TestPublicMessage(t *testing.T) {
	wrapped := WrapStore("secret store request failed", errors.New("pq: password authentication failed"))

	assert.Equal(t, "secret store request failed", PublicMessage(wrapped))
	assert.Equal(t, "internal server error", PublicMessage(errors.New("raw body")))
}

func TestWrapExternal(t *testing.T) {
	baseErr := errors.New("base error")
	wrapped := WrapExternal("wrapped message", baseErr)

	var domainErr *DomainError
	require.True(t, errors.As(wrapped, &domainErr))
	assert.Equal(t, ErrorTypeExternal, domainErr.Type)
	assert.Equal(t, "wrapped message", domainErr.Message)
	assert.Equal(t, baseErr, errors.Unwrap(wrapped))
}

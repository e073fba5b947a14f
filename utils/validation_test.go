package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type secretRequest struct {
	Name   string   `json:"name" validate:"required,secretname"`
	Value  string   `json:"value" validate:"required"`
	Scopes []string `json:"scopes" validate:"dive,scope"`
	TTL    int      `json:"ttl,omitempty" validate:"omitempty,gt=0"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name        string
		input       secretRequest
		expectError bool
		field       string
	}{
		{
			name:  "valid",
			input: secretRequest{Name: "OPENAI_API_KEY", Value: "v", Scopes: []string{"mcp:access", "*"}},
		},
		{
			name:        "missing name",
			input:       secretRequest{Value: "v"},
			expectError: true,
			field:       "name",
		},
		{
			name:        "bad name",
			input:       secretRequest{Name: "has space", Value: "v"},
			expectError: true,
			field:       "name",
		},
		{
			name:        "bad scope",
			input:       secretRequest{Name: "k", Value: "v", Scopes: []string{"Not A Scope"}},
			expectError: true,
			field:       "scopes[0]",
		},
		{
			name:        "negative ttl",
			input:       secretRequest{Name: "k", Value: "v", TTL: -1},
			expectError: true,
			field:       "ttl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(tt.input)
			if !tt.expectError {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			fields := GetValidationFields(err)
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "Validation failed"}
	assert.Equal(t, "Validation failed", err.Error())
}

func TestIsValidationError(t *testing.T) {
	assert.True(t, IsValidationError(&ValidationError{}))
	assert.False(t, IsValidationError(errors.New("other")))
	assert.Nil(t, GetValidationFields(errors.New("other")))
}

func TestValidateSecretName(t *testing.T) {
	for _, name := range []string{"PRIVY_API_KEY", "api_token:AbC-_123", "a.b"} {
		assert.NoError(t, ValidateSecretName(name), name)
	}
	for _, name := range []string{"", "with space", "slash/inside"} {
		assert.Error(t, ValidateSecretName(name), name)
	}
}

func TestParseScopes(t *testing.T) {
	scopes, err := ParseScopes(" mcp:access, admin:secrets ,,*")
	require.NoError(t, err)
	assert.Equal(t, []string{"mcp:access", "admin:secrets", "*"}, scopes)

	scopes, err = ParseScopes("")
	require.NoError(t, err)
	assert.Equal(t, []string{}, scopes)

	_, err = ParseScopes("mcp:access,BAD SCOPE")
	assert.Error(t, err)
}

package utils

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is the singleton validator instance
	validate *validator.Validate

	// secretNameRegex matches store keys such as OPENAI_API_KEY or api_token:abc-_
	secretNameRegex = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,255}$`)

	// scopeRegex matches scope tags such as mcp:access or the wildcard
	scopeRegex = regexp.MustCompile(`^(\*|[a-z0-9_\-]+(:[a-z0-9_\-*]+)*)$`)
)

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = validate.RegisterValidation("secretname", func(fl validator.FieldLevel) bool {
		return secretNameRegex.MatchString(fl.Field().String())
	})
	_ = validate.RegisterValidation("scope", func(fl validator.FieldLevel) bool {
		return scopeRegex.MatchString(fl.Field().String())
	})
}

// ValidateStruct validates a struct using go-playground/validator
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError wraps validation errors with structured details
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError from validator.ValidationErrors
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string)
	for _, err := range errs {
		field := err.Field()

		switch err.Tag() {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "secretname":
			fields[field] = fmt.Sprintf("%s must be 1-255 letters, digits or _ . : -", field)
		case "scope":
			fields[field] = fmt.Sprintf("%s must be a scope like mcp:access", field)
		case "email":
			fields[field] = fmt.Sprintf("%s must be a valid email", field)
		case "min":
			fields[field] = fmt.Sprintf("%s must be at least %s", field, err.Param())
		case "max":
			fields[field] = fmt.Sprintf("%s must be at most %s", field, err.Param())
		case "gt":
			fields[field] = fmt.Sprintf("%s must be greater than %s", field, err.Param())
		case "oneof":
			fields[field] = fmt.Sprintf("%s must be one of: %s", field, err.Param())
		default:
			fields[field] = fmt.Sprintf("%s validation failed on '%s' tag", field, err.Tag())
		}
	}

	return &ValidationError{
		Message: "Validation failed",
		Fields:  fields,
	}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// GetValidationFields extracts field errors from a ValidationError
func GetValidationFields(err error) map[string]string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Fields
	}
	return nil
}

// ValidateSecretName checks a secret name taken from a path or flag
func ValidateSecretName(name string) error {
	if !secretNameRegex.MatchString(name) {
		return fmt.Errorf("invalid secret name: %q", name)
	}
	return nil
}

// ParseScopes splits a comma-separated scope list, dropping blanks and rejecting malformed entries
func ParseScopes(raw string) ([]string, error) {
	scopes := make([]string, 0)
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !scopeRegex.MatchString(s) {
			return nil, fmt.Errorf("invalid scope: %q", s)
		}
		scopes = append(scopes, s)
	}
	return scopes, nil
}

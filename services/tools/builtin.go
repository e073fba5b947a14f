package tools

import (
	"context"
	"encoding/json"

	"github.com/upb/mcp-auth-gateway/middleware"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services"
	"github.com/upb/mcp-auth-gateway/utils"
)

// SecretGetter reads a decrypted secret for a tenant
type SecretGetter interface {
	Get(ctx context.Context, name string, tenant *string) (string, bool, error)
}

// SecretValue is the get_secret result
type SecretValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type getSecretArgs struct {
	Name string `json:"name"`
}

// WhoAmI returns the calling principal
func WhoAmI() Tool {
	return Tool{
		Name:        "whoami",
		Description: "Return the authenticated principal",
		Scopes:      []string{models.ScopeMCPAccess},
		Handler: func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
			p := middleware.PrincipalFromContext(ctx)
			if p == nil {
				return nil, services.ErrUnauthorized
			}
			return p, nil
		},
	}
}

// GetSecret reads a secret scoped to the calling principal
func GetSecret(store SecretGetter) Tool {
	return Tool{
		Name:        "get_secret",
		Description: "Read a secret owned by the caller",
		Scopes:      []string{models.ScopeSecretRead},
		Handler: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			p := middleware.PrincipalFromContext(ctx)
			if p == nil {
				return nil, services.ErrUnauthorized
			}

			var args getSecretArgs
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, services.NewDomainError(services.ErrorTypeValidation, "invalid tool arguments", err)
				}
			}
			if err := utils.ValidateSecretName(args.Name); err != nil {
				return nil, services.NewDomainError(services.ErrorTypeValidation, err.Error(), err)
			}

			value, found, err := store.Get(ctx, args.Name, models.StringPtr(p.ID))
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, services.ErrSecretNotFound
			}
			return SecretValue{Name: args.Name, Value: value}, nil
		},
	}
}

// RegisterBuiltins registers whoami and get_secret
func RegisterBuiltins(r *Registry, store SecretGetter) error {
	if err := r.Register(WhoAmI()); err != nil {
		return err
	}
	return r.Register(GetSecret(store))
}

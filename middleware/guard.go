package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/upb/mcp-auth-gateway/internal/observability"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services"
	"go.uber.org/zap"
)

// Operation is a callable tool: it receives raw JSON arguments and returns a JSON-encodable result
type Operation func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Authenticator resolves request headers to a principal holding the required scopes
type Authenticator interface {
	Authenticate(ctx context.Context, header http.Header, required []string) (*models.Principal, error)
}

// ToolError is the result a guarded operation returns instead of running
type ToolError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Scope string `json:"scope,omitempty"`
}

// GuardConfig controls bypass and unguarded behaviour
type GuardConfig struct {
	Skip           bool
	AllowUnguarded bool
}

// Guard wraps operations with authentication and scope checks
type Guard struct {
	auth    Authenticator
	config  GuardConfig
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewGuard creates a guard. A nil auth makes every wrapped operation fail
// closed unless config.AllowUnguarded is set.
func NewGuard(auth Authenticator, config GuardConfig, metrics *observability.Metrics, logger *zap.Logger) *Guard {
	return &Guard{
		auth:    auth,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}
}

// Wrap returns op guarded by required. Failures come back as a *ToolError
// result with a nil error; op is not invoked.
func (g *Guard) Wrap(tool string, required []string, op Operation) Operation {
	return func(ctx context.Context, args json.RawMessage) (interface{}, error) {
		if g.config.Skip {
			g.metrics.GuardDecision(tool, "skip")
			return op(WithPrincipal(ctx, models.DevPrincipal()), args)
		}

		if g.auth == nil {
			if g.config.AllowUnguarded {
				g.metrics.GuardDecision(tool, "unguarded")
				return op(ctx, args)
			}
			g.metrics.GuardDecision(tool, "deny")
			g.logger.Error("guarded operation called without an authenticator", zap.String("tool", tool))
			return toolError(services.ErrNotConfigured), nil
		}

		principal, err := g.auth.Authenticate(ctx, RequestHeadersFromContext(ctx), required)
		if err != nil {
			g.metrics.GuardDecision(tool, "deny")
			g.logger.Info("tool call rejected",
				zap.String("tool", tool),
				zap.String("request_id", GetRequestIDFromContext(ctx)),
				zap.String("reason", services.PublicMessage(err)))
			return toolError(err), nil
		}

		g.metrics.GuardDecision(tool, "allow")
		return op(WithPrincipal(ctx, principal), args)
	}
}

func toolError(err error) *ToolError {
	te := &ToolError{
		Error: services.PublicMessage(err),
		Code:  string(services.GetErrorType(err)),
	}
	if scope, ok := services.MissingScope(err); ok {
		te.Scope = scope
	}
	if te.Code == "" {
		te.Code = string(services.ErrorTypeInternal)
	}
	return te
}

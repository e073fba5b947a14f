package middleware

import (
	"net/http"

	"github.com/upb/mcp-auth-gateway/services"
	"github.com/upb/mcp-auth-gateway/utils"
	"go.uber.org/zap"
)

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	auth   Authenticator
	logger *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(auth Authenticator, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		auth:   auth,
		logger: logger,
	}
}

// CaptureHeaders stores the request headers in the context for guarded operations
func CaptureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(WithRequestHeaders(r.Context(), r.Header)))
	})
}

// RequireAuth authenticates the request and requires scopes. The session
// cookie is accepted in place of an Authorization header. Credential
// failures answer 401, missing scopes 403, store outages 503.
func (m *AuthMiddleware) RequireAuth(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestIDFromContext(ctx)

			if m.auth == nil {
				m.logger.Error("authentication not configured", zap.String("request_id", requestID))
				_ = utils.WriteServiceUnavailable(w, services.ErrNotConfigured.Message)
				return
			}

			principal, err := m.auth.Authenticate(ctx, credentialHeaders(r), scopes)
			if err != nil {
				m.logger.Warn("authentication failed",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path),
					zap.String("reason", services.PublicMessage(err)))
				writeAuthError(w, err)
				return
			}

			m.logger.Debug("authentication successful",
				zap.String("request_id", requestID),
				zap.String("principal_id", principal.ID))

			ctx = WithPrincipal(ctx, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	msg := services.PublicMessage(err)
	switch {
	case services.IsForbiddenError(err):
		scope, _ := services.MissingScope(err)
		_ = utils.WriteForbidden(w, msg, scope)
	case services.IsUnauthorizedError(err):
		_ = utils.WriteUnauthorized(w, msg)
	case services.IsStoreError(err), services.IsConfigurationError(err):
		_ = utils.WriteServiceUnavailable(w, msg)
	default:
		_ = utils.WriteInternalServerError(w, "")
	}
}

// SessionCookieName is the cookie the session endpoints store the access token in
const SessionCookieName = "token"

// credentialHeaders falls back to the session cookie when no Authorization header is sent
func credentialHeaders(r *http.Request) http.Header {
	if r.Header.Get("Authorization") != "" {
		return r.Header
	}
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return r.Header
	}
	h := r.Header.Clone()
	h.Set("Authorization", "Bearer "+cookie.Value)
	return h
}

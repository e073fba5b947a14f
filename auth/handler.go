package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services"
	"github.com/upb/mcp-auth-gateway/services/tokens"
	"github.com/upb/mcp-auth-gateway/utils"
	"go.uber.org/zap"
)

const (
	// TokenCookieName holds the session JWT
	TokenCookieName = "token"
	// RefreshCookieName holds the refresh API token
	RefreshCookieName = "refresh_token"
	// RefreshHeader is the alternative to sending the refresh token in the body
	RefreshHeader = "X-Refresh-Token"
)

// SessionFlow exchanges provider tokens for session credentials
type SessionFlow interface {
	VerifyExternalToken(ctx context.Context, providerToken string) *models.SessionResult
	Refresh(ctx context.Context, refreshToken string) *models.SessionResult
	Logout(ctx context.Context, refreshToken string) *models.SessionResult
	RefreshTTL() time.Duration
}

// JWTVerifier validates session JWTs
type JWTVerifier interface {
	VerifyJWT(token string) (*tokens.Claims, error)
}

// VerifyRequest carries the external provider token
type VerifyRequest struct {
	Token string `json:"token" validate:"required"`
}

// RefreshRequest carries a refresh token in the body
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Handler serves the session endpoints under /auth.
type Handler struct {
	flow     SessionFlow
	verifier JWTVerifier
	logger   *zap.Logger
}

// NewHandler creates a new session handler
func NewHandler(flow SessionFlow, verifier JWTVerifier, logger *zap.Logger) *Handler {
	return &Handler{
		flow:     flow,
		verifier: verifier,
		logger:   logger,
	}
}

// HandleVerify handles POST /auth/verify
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		_ = utils.WriteBadRequest(w, "token is required", nil)
		return
	}

	result := h.flow.VerifyExternalToken(r.Context(), req.Token)
	if !result.Success {
		_ = utils.WriteUnauthorized(w, result.Error)
		return
	}

	h.setSessionCookies(w, result)
	_ = utils.WriteJSON(w, http.StatusOK, result)
}

// HandleRefresh handles POST /auth/refresh
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshToken(w, r)
	if !ok {
		return
	}

	result := h.flow.Refresh(r.Context(), token)
	if !result.Success {
		_ = utils.WriteUnauthorized(w, result.Error)
		return
	}

	// the refresh token is not rotated, so only the access cookie changes
	h.setCookie(w, TokenCookieName, result.Token, result.ExpiresIn)
	_ = utils.WriteJSON(w, http.StatusOK, result)
}

// HandleLogout handles POST /auth/logout. Cookies are cleared even when revocation fails.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.refreshToken(w, r)
	if !ok {
		return
	}

	result := h.flow.Logout(r.Context(), token)

	h.setCookie(w, TokenCookieName, "", -1)
	h.setCookie(w, RefreshCookieName, "", -1)

	if !result.Success {
		_ = utils.WriteInternalServerError(w, result.Error)
		return
	}
	_ = utils.WriteJSON(w, http.StatusOK, result)
}

// HandleUser handles GET /auth/user. Only session JWTs are accepted.
func (h *Handler) HandleUser(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		_ = utils.WriteUnauthorized(w, "")
		return
	}

	claims, err := h.verifier.VerifyJWT(token)
	if err != nil {
		if services.IsConfigurationError(err) {
			h.logger.Error("session JWT verification not configured", zap.Error(err))
			_ = utils.WriteInternalServerError(w, services.PublicMessage(err))
			return
		}
		_ = utils.WriteUnauthorized(w, services.PublicMessage(err))
		return
	}

	_ = utils.WriteJSON(w, http.StatusOK, &models.SessionResult{
		Success: true,
		User:    claims.Principal(),
	})
}

// refreshToken reads the refresh token from the body, then the header, then the cookie
func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req RefreshRequest
	if r.ContentLength != 0 && r.Body != nil {
		if err := utils.DecodeJSON(r, &req); err != nil {
			_ = utils.WriteBadRequest(w, "Invalid request body", nil)
			return "", false
		}
	}

	token := req.RefreshToken
	if token == "" {
		token = r.Header.Get(RefreshHeader)
	}
	if token == "" {
		if c, err := r.Cookie(RefreshCookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		_ = utils.WriteUnauthorized(w, "Refresh token is required")
		return "", false
	}
	return token, true
}

func (h *Handler) setSessionCookies(w http.ResponseWriter, result *models.SessionResult) {
	if result.Token != "" {
		h.setCookie(w, TokenCookieName, result.Token, result.ExpiresIn)
	}
	if result.RefreshToken != "" {
		h.setCookie(w, RefreshCookieName, result.RefreshToken, int(h.flow.RefreshTTL().Seconds()))
	}
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func bearerToken(r *http.Request) string {
	if v := r.Header.Get("Authorization"); v != "" {
		return strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
	}
	if c, err := r.Cookie(TokenCookieName); err == nil {
		return c.Value
	}
	return ""
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services/audit"
	"github.com/upb/mcp-auth-gateway/services/tokens"
	"github.com/upb/mcp-auth-gateway/utils"
	"go.uber.org/zap"
)

// IssueTokenRequest describes the principal a token is minted for.
// ExpiresIn is in seconds; omitted means the token never expires.
type IssueTokenRequest struct {
	UserID    string   `json:"user_id" validate:"required,max=255"`
	Username  string   `json:"username,omitempty" validate:"omitempty,max=255"`
	Email     string   `json:"email,omitempty" validate:"omitempty,email"`
	Role      string   `json:"role,omitempty" validate:"omitempty,oneof=user admin"`
	Scopes    []string `json:"scopes" validate:"dive,scope"`
	ExpiresIn *int64   `json:"expires_in,omitempty" validate:"omitempty,gt=0"`
}

// IssuedTokenResponse is returned once; the raw token is not retrievable later
type IssuedTokenResponse struct {
	Token     string     `json:"token"`
	UserID    string     `json:"user_id"`
	Scopes    []string   `json:"scopes"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// PurgeResponse reports how many expired tokens were removed
type PurgeResponse struct {
	Purged int `json:"purged"`
}

// TokenIssuer is the token lifecycle surface the admin API needs
type TokenIssuer interface {
	IssueAPIToken(ctx context.Context, req tokens.APITokenRequest) (string, error)
	RevokeAPIToken(ctx context.Context, token string) (bool, error)
	ListAPITokens(ctx context.Context) ([]tokens.APITokenInfo, error)
	PurgeExpiredAPITokens(ctx context.Context) (int, error)
	IssueJWT(claims tokens.Claims, expiresIn *time.Duration) (string, error)
}

// CacheInvalidator drops a token from this process's authentication cache
type CacheInvalidator interface {
	Invalidate(token string)
}

// TokensHandler serves /api/admin/tokens and /api/admin/jwt
type TokensHandler struct {
	issuer TokenIssuer
	cache  CacheInvalidator
	audit  audit.Recorder
	now    func() time.Time
	logger *zap.Logger
}

// NewTokensHandler creates a new TokensHandler. cache may be nil.
func NewTokensHandler(issuer TokenIssuer, cache CacheInvalidator, recorder audit.Recorder, logger *zap.Logger) *TokensHandler {
	if recorder == nil {
		recorder = audit.Discard
	}
	return &TokensHandler{
		issuer: issuer,
		cache:  cache,
		audit:  recorder,
		now:    time.Now,
		logger: logger,
	}
}

// HandleIssue handles POST /api/admin/tokens
func (h *TokensHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeIssueRequest(w, r)
	if !ok {
		return
	}

	scopes := normalizeScopes(req.Scopes)
	expiresIn := req.expiresIn()
	token, err := h.issuer.IssueAPIToken(r.Context(), tokens.APITokenRequest{
		UserID:    req.UserID,
		Username:  req.Username,
		Email:     req.Email,
		Role:      req.Role,
		Scopes:    scopes,
		ExpiresIn: expiresIn,
	})
	if err != nil {
		recordAdmin(h.audit, r, models.AuditActionTokenIssued, req.UserID, false)
		HandleServiceError(w, err, h.logger)
		return
	}

	recordAdmin(h.audit, r, models.AuditActionTokenIssued, req.UserID, true)
	_ = utils.WriteCreated(w, IssuedTokenResponse{
		Token:     token,
		UserID:    req.UserID,
		Scopes:    scopes,
		ExpiresAt: h.expiresAt(expiresIn),
	})
}

// HandleList handles GET /api/admin/tokens. Tokens are masked.
func (h *TokensHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	infos, err := h.issuer.ListAPITokens(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, infos)
}

// HandleRevoke handles DELETE /api/admin/tokens/{token}. A successful revoke
// evicts the token from this process's authentication cache only. Other
// gateway instances keep serving their cached principal until its TTL lapses.
func (h *TokensHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	masked := tokens.MaskToken(token)

	ok, err := h.issuer.RevokeAPIToken(r.Context(), token)
	if err != nil {
		recordAdmin(h.audit, r, models.AuditActionTokenRevoked, masked, false)
		HandleServiceError(w, err, h.logger)
		return
	}
	if !ok {
		_ = utils.WriteInternalServerError(w, "Failed to revoke token")
		return
	}

	if h.cache != nil {
		h.cache.Invalidate(token)
	}
	recordAdmin(h.audit, r, models.AuditActionTokenRevoked, masked, true)
	utils.WriteNoContent(w)
}

// HandlePurge handles POST /api/admin/tokens/purge
func (h *TokensHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	n, err := h.issuer.PurgeExpiredAPITokens(r.Context())
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	_ = utils.WriteOK(w, PurgeResponse{Purged: n})
}

// HandleIssueJWT handles POST /api/admin/jwt
func (h *TokensHandler) HandleIssueJWT(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeIssueRequest(w, r)
	if !ok {
		return
	}

	scopes := normalizeScopes(req.Scopes)
	expiresIn := req.expiresIn()
	principal := models.NewPrincipal(req.UserID, req.Username, req.Email, req.Role, scopes)

	token, err := h.issuer.IssueJWT(tokens.ClaimsFor(principal), expiresIn)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	recordAdmin(h.audit, r, models.AuditActionJWTIssued, req.UserID, true)
	_ = utils.WriteCreated(w, IssuedTokenResponse{
		Token:     token,
		UserID:    req.UserID,
		Scopes:    scopes,
		ExpiresAt: h.expiresAt(expiresIn),
	})
}

func (h *TokensHandler) decodeIssueRequest(w http.ResponseWriter, r *http.Request) (*IssueTokenRequest, bool) {
	var req IssueTokenRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return nil, false
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return nil, false
	}
	return &req, true
}

func (h *TokensHandler) expiresAt(expiresIn *time.Duration) *time.Time {
	if expiresIn == nil {
		return nil
	}
	t := h.now().Add(*expiresIn).UTC()
	return &t
}

func (r *IssueTokenRequest) expiresIn() *time.Duration {
	if r.ExpiresIn == nil {
		return nil
	}
	d := time.Duration(*r.ExpiresIn) * time.Second
	return &d
}

func normalizeScopes(scopes []string) []string {
	if scopes == nil {
		return []string{}
	}
	return scopes
}

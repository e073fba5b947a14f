// Package session exchanges external provider tokens for gateway sessions.
package session

import (
	"context"
	"time"

	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services"
	"github.com/upb/mcp-auth-gateway/services/audit"
	"github.com/upb/mcp-auth-gateway/services/tokens"
	"go.uber.org/zap"
)

// Provider verifies tokens minted by the external auth provider
type Provider interface {
	VerifyToken(ctx context.Context, token string) (string, error)
	GetUser(ctx context.Context, userID string) (map[string]interface{}, error)
}

// SecretGetter reads refresh token records
type SecretGetter interface {
	Get(ctx context.Context, name string, tenant *string) (string, bool, error)
}

// Config holds session lifetimes
type Config struct {
	TokenTTL   time.Duration
	RefreshTTL time.Duration
}

// DefaultConfig returns a one hour session and a thirty day refresh token
func DefaultConfig() Config {
	return Config{
		TokenTTL:   time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
	}
}

// Flow runs the verify, refresh and logout exchanges
type Flow struct {
	provider Provider
	issuer   *tokens.Issuer
	store    SecretGetter
	config   Config
	audit    audit.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewFlow creates a session flow
func NewFlow(provider Provider, issuer *tokens.Issuer, store SecretGetter, config Config, recorder audit.Recorder, logger *zap.Logger) *Flow {
	if config.TokenTTL <= 0 {
		config.TokenTTL = DefaultConfig().TokenTTL
	}
	if config.RefreshTTL <= 0 {
		config.RefreshTTL = DefaultConfig().RefreshTTL
	}
	if recorder == nil {
		recorder = audit.Discard
	}
	return &Flow{
		provider: provider,
		issuer:   issuer,
		store:    store,
		config:   config,
		audit:    recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// TokenTTL is the lifetime of session JWTs
func (f *Flow) TokenTTL() time.Duration {
	return f.config.TokenTTL
}

// RefreshTTL is the lifetime of refresh tokens
func (f *Flow) RefreshTTL() time.Duration {
	return f.config.RefreshTTL
}

// VerifyExternalToken validates a provider token and opens a session: a JWT
// plus a refresh API token carrying only auth:refresh.
func (f *Flow) VerifyExternalToken(ctx context.Context, providerToken string) *models.SessionResult {
	if providerToken == "" {
		return models.SessionFailure("token is required")
	}

	userID, err := f.provider.VerifyToken(ctx, providerToken)
	if err != nil {
		return f.fail(models.AuditActionSessionOpened, "", "error verifying token", err)
	}

	doc, err := f.provider.GetUser(ctx, userID)
	if err != nil {
		return f.fail(models.AuditActionSessionOpened, userID, "error verifying token", err)
	}

	user := PrincipalFromProvider(userID, doc)

	tokenTTL := f.config.TokenTTL
	jwtToken, err := f.issuer.IssueJWT(tokens.ClaimsFor(user), &tokenTTL)
	if err != nil {
		return f.fail(models.AuditActionSessionOpened, user.ID, "error verifying token", err)
	}

	refreshTTL := f.config.RefreshTTL
	refreshToken, err := f.issuer.IssueAPIToken(ctx, tokens.APITokenRequest{
		UserID:    user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      user.Role,
		Scopes:    []string{models.ScopeRefresh},
		ExpiresIn: &refreshTTL,
	})
	if err != nil {
		return f.fail(models.AuditActionSessionOpened, user.ID, "error verifying token", err)
	}

	f.audit.Record(models.NewAuditLog(models.AuditActionSessionOpened, "privy", true).WithPrincipal(user.ID))
	return &models.SessionResult{
		Success:      true,
		User:         user,
		Token:        jwtToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(tokenTTL / time.Second),
	}
}

// Refresh mints a new JWT from a refresh token. The refresh token itself is
// returned unchanged; it is not rotated.
func (f *Flow) Refresh(ctx context.Context, refreshToken string) *models.SessionResult {
	if refreshToken == "" {
		return models.SessionFailure(services.ErrInvalidRefresh.Message)
	}

	data, found, err := f.store.Get(ctx, models.APITokenSecretName(refreshToken), nil)
	if err != nil {
		return f.fail(models.AuditActionJWTIssued, "", "error refreshing token", err)
	}
	if !found {
		return models.SessionFailure(services.ErrInvalidRefresh.Message)
	}

	record, err := models.ParseAPITokenRecord(data)
	if err != nil {
		f.logger.Error("stored refresh token record is malformed", zap.Error(err))
		return models.SessionFailure("invalid refresh token data format")
	}
	if record.Expired(f.now()) {
		return models.SessionFailure(services.ErrRefreshExpired.Message)
	}

	user := record.Principal()
	if !containsScope(user.Scopes, models.ScopeRefresh) {
		return models.SessionFailure(services.ErrRefreshScopeAbsent.Message)
	}

	sessionScopes := make([]string, 0, len(user.Scopes))
	for _, s := range user.Scopes {
		if s != models.ScopeRefresh {
			sessionScopes = append(sessionScopes, s)
		}
	}
	sessionUser := models.NewPrincipal(user.ID, user.Username, user.Email, user.Role, sessionScopes)

	tokenTTL := f.config.TokenTTL
	jwtToken, err := f.issuer.IssueJWT(tokens.ClaimsFor(sessionUser), &tokenTTL)
	if err != nil {
		return f.fail(models.AuditActionJWTIssued, user.ID, "error refreshing token", err)
	}

	f.audit.Record(models.NewAuditLog(models.AuditActionJWTIssued, "refresh", true).WithPrincipal(user.ID))
	return &models.SessionResult{
		Success:      true,
		User:         user,
		Token:        jwtToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int(tokenTTL / time.Second),
	}
}

// Logout revokes the refresh token. Success mirrors the revoke call, so an
// unknown token still logs out.
func (f *Flow) Logout(ctx context.Context, refreshToken string) *models.SessionResult {
	if refreshToken == "" {
		return models.SessionFailure("refresh token is required")
	}

	ok, err := f.issuer.RevokeAPIToken(ctx, refreshToken)
	if err != nil {
		return f.fail(models.AuditActionSessionClosed, "", "error logging out", err)
	}
	if !ok {
		return models.SessionFailure("failed to revoke refresh token")
	}

	f.audit.Record(models.NewAuditLog(models.AuditActionSessionClosed, "refresh", true))
	return &models.SessionResult{Success: true}
}

func (f *Flow) fail(action models.AuditAction, principalID, prefix string, err error) *models.SessionResult {
	msg := prefix + ": " + services.PublicMessage(err)
	f.logger.Warn("session flow failed",
		zap.String("action", string(action)),
		zap.Error(err))
	entry := models.NewAuditLog(action, "privy", false).WithReason(msg)
	if principalID != "" {
		entry.WithPrincipal(principalID)
	}
	f.audit.Record(entry)
	return models.SessionFailure(msg)
}

func containsScope(scopes []string, want string) bool {
	for _, s := range scopes {
		if s == want {
			return true
		}
	}
	return false
}

// Package tokens mints and revokes API tokens and JWTs.
package tokens

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sort"
	"strings"
	"time"

	"github.com/upb/mcp-auth-gateway/internal/observability"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services"
	"github.com/upb/mcp-auth-gateway/services/secrets"
	"go.uber.org/zap"
)

const tokenBytes = 32

// APITokenRequest describes the principal an API token is issued for
type APITokenRequest struct {
	UserID    string
	Username  string
	Email     string
	Role      string
	Scopes    []string
	ExpiresIn *time.Duration
}

// APITokenInfo is an API token record as shown on listing surfaces
type APITokenInfo struct {
	Token     string     `json:"token"`
	UserID    string     `json:"user_id"`
	Username  string     `json:"username,omitempty"`
	Email     string     `json:"email,omitempty"`
	Role      string     `json:"role,omitempty"`
	Scopes    []string   `json:"scopes"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Expired   bool       `json:"expired"`
}

// Issuer mints API tokens into the secret store and signs JWTs
type Issuer struct {
	store   secrets.Store
	signer  *Signer
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewIssuer creates a new token issuer
func NewIssuer(store secrets.Store, signer *Signer, metrics *observability.Metrics, logger *zap.Logger) *Issuer {
	return &Issuer{
		store:   store,
		signer:  signer,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Signer returns the JWT signer used by the issuer
func (i *Issuer) Signer() *Signer {
	return i.signer
}

// IssueAPIToken generates a token, stores its record and returns the raw token.
// The raw value is never retrievable again.
func (i *Issuer) IssueAPIToken(ctx context.Context, req APITokenRequest) (string, error) {
	if req.UserID == "" {
		return "", services.NewDomainError(services.ErrorTypeValidation, "user id is required", nil)
	}

	token, err := generateToken()
	if err != nil {
		return "", services.WrapInternal("failed to generate API token", err)
	}

	principal := models.NewPrincipal(req.UserID, req.Username, req.Email, req.Role, req.Scopes)
	record := models.NewAPITokenRecord(principal, i.now(), req.ExpiresIn)
	data, err := record.Encode()
	if err != nil {
		return "", services.WrapInternal("failed to encode API token", err)
	}

	description := "API token for " + principal.DisplayName()
	if _, err := i.store.Set(ctx, models.APITokenSecretName(token), data, nil, &description); err != nil {
		return "", err
	}

	i.metrics.TokenIssued("api_token")
	i.logger.Info("API token issued",
		zap.String("user_id", req.UserID),
		zap.Strings("scopes", principal.Scopes),
		zap.Bool("expires", req.ExpiresIn != nil))
	return token, nil
}

// RevokeAPIToken deletes the token's record. Revoking an unknown token succeeds.
// Authenticators that cached the token keep accepting it until their entry ages out.
func (i *Issuer) RevokeAPIToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, services.NewDomainError(services.ErrorTypeValidation, "token is required", nil)
	}
	ok, err := i.store.Delete(ctx, models.APITokenSecretName(token), nil)
	if err != nil {
		return false, err
	}
	i.logger.Info("API token revoked", zap.String("token", MaskToken(token)))
	return ok, nil
}

// IssueJWT signs a stateless token; the store is not touched
func (i *Issuer) IssueJWT(claims Claims, expiresIn *time.Duration) (string, error) {
	token, err := i.signer.Sign(claims, expiresIn)
	if err != nil {
		return "", err
	}
	i.metrics.TokenIssued("jwt")
	return token, nil
}

// VerifyJWT validates a token minted by IssueJWT
func (i *Issuer) VerifyJWT(token string) (*Claims, error) {
	return i.signer.Verify(token)
}

// ListAPITokens returns every stored token record with the token masked
func (i *Issuer) ListAPITokens(ctx context.Context) ([]APITokenInfo, error) {
	records, err := i.store.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	now := i.now()
	out := make([]APITokenInfo, 0)
	for _, secret := range records {
		if !models.IsAPITokenSecretName(secret.Name) || secret.CreatorID != nil {
			continue
		}
		record, err := models.ParseAPITokenRecord(secret.Value)
		if err != nil {
			i.logger.Warn("skipping malformed API token record", zap.String("id", secret.ID))
			continue
		}
		out = append(out, infoFor(strings.TrimPrefix(secret.Name, models.APITokenPrefix), record, now))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

// PurgeExpiredAPITokens deletes records whose expiry has passed and returns how many went
func (i *Issuer) PurgeExpiredAPITokens(ctx context.Context) (int, error) {
	records, err := i.store.List(ctx, nil)
	if err != nil {
		return 0, err
	}

	now := i.now()
	purged := 0
	for _, secret := range records {
		if !models.IsAPITokenSecretName(secret.Name) || secret.CreatorID != nil {
			continue
		}
		record, err := models.ParseAPITokenRecord(secret.Value)
		if err != nil || !record.Expired(now) {
			continue
		}
		if _, err := i.store.Delete(ctx, secret.Name, nil); err != nil {
			return purged, err
		}
		purged++
	}
	if purged > 0 {
		i.logger.Info("purged expired API tokens", zap.Int("count", purged))
	}
	return purged, nil
}

func infoFor(token string, record *models.APITokenRecord, now time.Time) APITokenInfo {
	info := APITokenInfo{
		Token:     MaskToken(token),
		UserID:    record.ID,
		Username:  models.StringValue(record.Username),
		Email:     models.StringValue(record.Email),
		Role:      models.StringValue(record.Role),
		Scopes:    record.Scopes,
		CreatedAt: time.Unix(0, int64(record.CreatedAt*float64(time.Second))).UTC(),
		Expired:   record.Expired(now),
	}
	if record.ExpiresAt != nil {
		exp := record.ExpiresTime().UTC()
		info.ExpiresAt = &exp
	}
	return info
}

// MaskToken shortens a token to its first 10 and last 5 characters
func MaskToken(token string) string {
	if len(token) <= 15 {
		return strings.Repeat("*", len(token))
	}
	return token[:10] + "..." + token[len(token)-5:]
}

func generateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Package authn resolves request credentials to a Principal.
package authn

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/upb/mcp-auth-gateway/internal/observability"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services"
	"github.com/upb/mcp-auth-gateway/services/audit"
	"github.com/upb/mcp-auth-gateway/services/tokens"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Authentication methods as reported in metrics and audit events
const (
	MethodBypass   = "bypass"
	MethodAPIToken = "api_token"
	MethodJWT      = "jwt"
	MethodNone     = "none"
)

// SecretGetter is the slice of the secret store the authenticator reads from
type SecretGetter interface {
	Get(ctx context.Context, name string, tenant *string) (string, bool, error)
}

// JWTVerifier validates a bearer JWT
type JWTVerifier interface {
	VerifyJWT(token string) (*tokens.Claims, error)
}

// Config selects headers and deployment-wide scope requirements
type Config struct {
	APITokenHeader string
	JWTHeader      string
	RequiredScopes []string
	Skip           bool
}

// Authenticator checks API tokens against the secret store and JWTs locally
type Authenticator struct {
	cfg      Config
	store    SecretGetter
	verifier JWTVerifier
	cache    *TokenCache
	group    singleflight.Group
	metrics  *observability.Metrics
	audit    audit.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthenticator creates an authenticator. verifier may be nil when JWTs are not accepted.
func NewAuthenticator(cfg Config, store SecretGetter, verifier JWTVerifier, cache *TokenCache, metrics *observability.Metrics, recorder audit.Recorder, logger *zap.Logger) *Authenticator {
	if cfg.APITokenHeader == "" {
		cfg.APITokenHeader = "X-API-Token"
	}
	if cfg.JWTHeader == "" {
		cfg.JWTHeader = "Authorization"
	}
	if recorder == nil {
		recorder = audit.Discard
	}
	return &Authenticator{
		cfg:      cfg,
		store:    store,
		verifier: verifier,
		cache:    cache,
		metrics:  metrics,
		audit:    recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Skip reports whether bypass mode is on
func (a *Authenticator) Skip() bool {
	return a.cfg.Skip
}

// Authenticate resolves the credentials in header and checks the caller holds
// every deployment scope plus required. The API token is tried first, then the
// JWT. When both fail, the scope error wins over the JWT error, which wins over
// the API token error.
func (a *Authenticator) Authenticate(ctx context.Context, header http.Header, required []string) (*models.Principal, error) {
	if a.cfg.Skip {
		a.metrics.AuthAttempt(MethodBypass, "success")
		return models.DevPrincipal(), nil
	}

	scopes := mergeScopes(a.cfg.RequiredScopes, required)
	var apiErr, jwtErr, scopeErr error

	if token := strings.TrimSpace(header.Get(a.cfg.APITokenHeader)); token != "" {
		p, err := a.authenticateAPIToken(ctx, token)
		if err == nil {
			err = checkScopes(p, scopes)
			if err == nil {
				a.succeeded(MethodAPIToken, p)
				return p, nil
			}
			scopeErr = err
		} else {
			apiErr = err
		}
		a.failed(MethodAPIToken, err)
	}

	if raw := strings.TrimSpace(header.Get(a.cfg.JWTHeader)); raw != "" {
		p, err := a.authenticateJWT(strings.TrimPrefix(raw, "Bearer "))
		if err == nil {
			err = checkScopes(p, scopes)
			if err == nil {
				a.succeeded(MethodJWT, p)
				return p, nil
			}
			if scopeErr == nil {
				scopeErr = err
			}
		} else {
			jwtErr = err
		}
		a.failed(MethodJWT, err)
	}

	switch {
	case scopeErr != nil:
		return nil, scopeErr
	case jwtErr != nil:
		return nil, jwtErr
	case apiErr != nil:
		return nil, apiErr
	}
	a.failed(MethodNone, services.ErrUnauthorized)
	return nil, services.ErrUnauthorized
}

func (a *Authenticator) authenticateAPIToken(ctx context.Context, token string) (*models.Principal, error) {
	if p := a.cache.Get(token); p != nil {
		a.metrics.CacheLookup(true)
		return p, nil
	}
	a.metrics.CacheLookup(false)

	// Concurrent misses for one token share a single store read. The shared
	// call must not die with whichever request happened to start it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := a.group.Do(token, func() (interface{}, error) {
		return a.lookupAPIToken(shared, token)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Principal), nil
}

func (a *Authenticator) lookupAPIToken(ctx context.Context, token string) (*models.Principal, error) {
	data, found, err := a.store.Get(ctx, models.APITokenSecretName(token), nil)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, services.ErrInvalidAPIToken
	}

	record, err := models.ParseAPITokenRecord(data)
	if err != nil {
		a.logger.Error("stored API token record is malformed", zap.Error(err))
		return nil, services.NewUnauthorizedError("invalid_api_token", "invalid API token data format", err)
	}
	if record.Expired(a.now()) {
		return nil, services.ErrAPITokenExpired
	}

	p := record.Principal()
	a.cache.Set(token, p, record.ExpiresTime())
	a.metrics.CacheSize(a.cache.Len())
	return p, nil
}

func (a *Authenticator) authenticateJWT(token string) (*models.Principal, error) {
	if a.verifier == nil {
		return nil, services.ErrJWTSecretMissing
	}
	claims, err := a.verifier.VerifyJWT(token)
	if err != nil {
		return nil, err
	}
	return claims.Principal(), nil
}

func (a *Authenticator) succeeded(method string, p *models.Principal) {
	a.metrics.AuthAttempt(method, "success")
	a.audit.Record(models.NewAuditLog(models.AuditActionAuthSucceeded, method, true).WithPrincipal(p.ID))
}

func (a *Authenticator) failed(method string, err error) {
	result := "failure"
	if services.IsForbiddenError(err) {
		result = "forbidden"
	} else if services.IsStoreError(err) {
		result = "error"
	}
	a.metrics.AuthAttempt(method, result)
	a.logger.Debug("credential rejected",
		zap.String("method", method),
		zap.String("reason", services.PublicMessage(err)))
	a.audit.Record(models.NewAuditLog(models.AuditActionAuthFailed, method, false).WithReason(services.PublicMessage(err)))
}

// checkScopes passes when nothing is required, when p holds "*", or when p holds every required scope
func checkScopes(p *models.Principal, required []string) error {
	if scope, missing := p.MissingScope(required); missing {
		return services.NewMissingScopeError(scope)
	}
	return nil
}

func mergeScopes(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, s := range list {
			if _, ok := seen[s]; ok || s == "" {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

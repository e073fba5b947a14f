package app

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/mcp-auth-gateway/config"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services"
	"github.com/upb/mcp-auth-gateway/services/tokens"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Store: config.StoreConfig{
			Backend: config.StoreBackendMemory,
			Table:   "secrets",
			Timeout: time.Second,
		},
		Auth: config.AuthConfig{
			JWTSecret:          "test-secret",
			JWTAlgorithm:       "HS256",
			APITokenHeader:     "X-API-Token",
			JWTHeader:          "Authorization",
			CacheTTL:           time.Minute,
			CacheSize:          100,
			CacheSweepInterval: time.Minute,
			SessionTokenTTL:    time.Hour,
			RefreshTokenTTL:    24 * time.Hour,
		},
		Audit: config.AuditConfig{
			Enabled:    true,
			Sink:       config.AuditSinkLog,
			Workers:    1,
			BufferSize: 10,
		},
		Observability: config.ObservabilityConfig{
			LogLevel:       "debug",
			MetricsEnabled: true,
		},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("memory backend wires every component", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		assert.Nil(t, deps.DB)
		assert.Nil(t, deps.RepoFactory)
		assert.NotNil(t, deps.Metrics)
		assert.NotNil(t, deps.Secrets)
		assert.NotNil(t, deps.Audit)
		assert.NotNil(t, deps.Issuer)
		assert.NotNil(t, deps.Authenticator)
		assert.NotNil(t, deps.Guard)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.Session)
		assert.NotNil(t, deps.AuthHandler())
		assert.Len(t, deps.Tools.List(), 2)

		require.NoError(t, deps.Close(ctx))
	})

	t.Run("issued API token authenticates", func(t *testing.T) {
		ctx := context.Background()
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)
		defer func() { _ = deps.Close(ctx) }()

		token, err := deps.Issuer.IssueAPIToken(ctx, tokens.APITokenRequest{
			UserID: "u1",
			Scopes: []string{models.ScopeMCPAccess},
		})
		require.NoError(t, err)

		header := http.Header{}
		header.Set("X-API-Token", token)
		p, err := deps.Authenticator.Authenticate(ctx, header, []string{models.ScopeMCPAccess})
		require.NoError(t, err)
		assert.Equal(t, "u1", p.ID)
	})

	t.Run("no JWT secret disables session handler", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Auth.JWTSecret = ""
		cfg.Audit.Enabled = false
		cfg.Observability.MetricsEnabled = false

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer func() { _ = deps.Close(ctx) }()

		assert.Nil(t, deps.AuthHandler())
		assert.Nil(t, deps.Audit)
		assert.Nil(t, deps.Metrics)

		header := http.Header{}
		header.Set("Authorization", "Bearer some.jwt.value")
		_, err = deps.Authenticator.Authenticate(ctx, header, nil)
		assert.True(t, services.IsConfigurationError(err))
	})

	t.Run("bad JWT algorithm fails", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.JWTAlgorithm = "RS256"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize authentication")
	})

	t.Run("bad encryption key fails", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Store.EncryptionKey = "too-short"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize secret store")
	})
}

func TestDependenciesClose(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, deps.Close(ctx))
	// second close is a no-op
	assert.NoError(t, deps.Close(ctx))
}

func TestNewDependencies_CacheSweepRunsInBackground(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Auth.CacheSweepInterval = 10 * time.Millisecond

	type result struct {
		deps *Dependencies
		err  error
	}
	ready := make(chan result, 1)
	go func() {
		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		ready <- result{deps, err}
	}()

	var deps *Dependencies
	select {
	case res := <-ready:
		require.NoError(t, res.err)
		deps = res.deps
	case <-time.After(3 * time.Second):
		t.Fatal("NewDependencies blocked on the cache sweep")
	}

	done := deps.sweepDone
	require.NotNil(t, done)

	require.NoError(t, deps.Close(ctx))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cache sweep still running after Close")
	}
	assert.Nil(t, deps.stopCacheSweep)
}

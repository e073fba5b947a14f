package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/mcp-auth-gateway/app"
	"github.com/upb/mcp-auth-gateway/config"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services/tokens"
	"go.uber.org/zap"
)

func newTestDeps(t *testing.T) *app.Dependencies {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
		Store:       config.StoreConfig{Backend: config.StoreBackendMemory, Table: "secrets", Timeout: time.Second},
		Auth: config.AuthConfig{
			JWTSecret:      "routes-secret",
			JWTAlgorithm:   "HS256",
			APITokenHeader: "X-API-Token",
			JWTHeader:      "Authorization",
			CacheTTL:       time.Minute,
			CacheSize:      10,
		},
		Audit:         config.AuditConfig{Enabled: false},
		Observability: config.ObservabilityConfig{LogLevel: "info", MetricsEnabled: true},
		CORS:          config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
	deps, err := app.NewDependencies(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })
	return deps
}

func issue(t *testing.T, deps *app.Dependencies, scopes ...string) string {
	t.Helper()
	token, err := deps.Issuer.IssueAPIToken(context.Background(), tokens.APITokenRequest{UserID: "admin-1", Scopes: scopes})
	require.NoError(t, err)
	return token
}

func do(h http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("X-API-Token", token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRoutes_Health(t *testing.T) {
	h := SetupRoutes(newTestDeps(t))

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", "", "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/readyz", "", "").Code)

	w := do(h, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/nope", "", "").Code)
}

func TestRoutes_AdminSecretsRequireScope(t *testing.T) {
	deps := newTestDeps(t)
	h := SetupRoutes(deps)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodGet, "/api/admin/secrets", "", "").Code)

	weak := issue(t, deps, models.ScopeMCPAccess)
	w := do(h, http.MethodGet, "/api/admin/secrets", weak, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), models.ScopeSecretsRW)

	admin := issue(t, deps, models.ScopeSecretsRW)
	w = do(h, http.MethodPost, "/api/admin/secrets", admin, `{"name":"K","value":"v"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(h, http.MethodGet, "/api/admin/secrets/K", admin, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"value":"v"`)
}

func TestRoutes_TokensAndTools(t *testing.T) {
	deps := newTestDeps(t)
	h := SetupRoutes(deps)
	admin := issue(t, deps, models.ScopeTokensRW)

	w := do(h, http.MethodPost, "/api/admin/tokens", admin, `{"user_id":"u9","scopes":["mcp:access"]}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(h, http.MethodGet, "/api/admin/tokens", admin, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"u9"`)

	user := issue(t, deps, models.ScopeMCPAccess)
	w = do(h, http.MethodPost, "/mcp/tools/whoami", user, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"admin-1"`)

	w = do(h, http.MethodPost, "/mcp/tools/get_secret", user, `{"arguments":{"name":"K"}}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(h, http.MethodGet, "/mcp/tools", user, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_AuditDisabled(t *testing.T) {
	deps := newTestDeps(t)
	h := SetupRoutes(deps)

	token := issue(t, deps, models.ScopeMCPAdmin)
	w := do(h, http.MethodGet, "/api/admin/audit", token, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(h, http.MethodGet, "/api/admin/audit/stats", token, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRoutes_AuditMemorySink(t *testing.T) {
	cfg := &config.Config{
		Environment: "test",
		Store:       config.StoreConfig{Backend: config.StoreBackendMemory, Table: "secrets", Timeout: time.Second},
		Auth: config.AuthConfig{
			JWTSecret:      "routes-secret",
			APITokenHeader: "X-API-Token",
			JWTHeader:      "Authorization",
			CacheTTL:       time.Minute,
			CacheSize:      10,
		},
		Audit: config.AuditConfig{Enabled: true, Sink: config.AuditSinkMemory, Workers: 1, BufferSize: 10},
	}
	deps, err := app.NewDependencies(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })

	h := SetupRoutes(deps)
	token := issue(t, deps, models.ScopeMCPAdmin)

	require.Eventually(t, func() bool {
		w := do(h, http.MethodGet, "/api/admin/audit?limit=10", token, "")
		if w.Code != http.StatusOK {
			return false
		}
		var body struct {
			Data []models.AuditLog `json:"data"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			return false
		}
		for _, entry := range body.Data {
			if entry.Action == models.AuditActionAuthSucceeded && models.StringValue(entry.PrincipalID) == "admin-1" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	w := do(h, http.MethodGet, "/api/admin/audit/stats", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		Data struct {
			BufferSize  int  `json:"buffer_size"`
			WorkerCount int  `json:"worker_count"`
			Started     bool `json:"started"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 10, stats.Data.BufferSize)
	assert.Equal(t, 1, stats.Data.WorkerCount)
	assert.True(t, stats.Data.Started)

	w = do(h, http.MethodGet, "/api/admin/audit/stats", issue(t, deps), "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

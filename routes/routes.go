package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/mcp-auth-gateway/app"
	"github.com/upb/mcp-auth-gateway/handlers"
	"github.com/upb/mcp-auth-gateway/middleware"
	"github.com/upb/mcp-auth-gateway/models"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Instrument(deps.Metrics, deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS middleware; cookies are sent by browser clients of the session endpoints
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", deps.Config.Auth.APITokenHeader, "X-Refresh-Token"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	readiness := map[string]handlers.Pinger{"secret_store": deps.Secrets}
	health := handlers.NewHealthHandler(readiness, deps.Logger)
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	// Session endpoints (Privy)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/verify", handlers.AuthVerifyHandler(deps))
		r.Post("/refresh", handlers.AuthRefreshHandler(deps))
		r.Post("/logout", handlers.AuthLogoutHandler(deps))
		r.Get("/user", handlers.AuthUserHandler(deps))
	})

	// MCP tools; each tool is guarded with its own scopes
	toolsHandler := handlers.NewToolsHandler(deps.Tools, deps.Logger)
	r.Route("/mcp/tools", func(r chi.Router) {
		r.Use(middleware.CaptureHeaders)
		r.With(deps.AuthMiddleware.RequireAuth(models.ScopeMCPAccess)).Get("/", toolsHandler.HandleList)
		r.Post("/{name}", toolsHandler.HandleCall)
	})

	// Admin API
	r.Route("/api/admin", func(r chi.Router) {
		secretsHandler := handlers.NewSecretsHandler(deps.Secrets, deps.Recorder, deps.Logger)
		r.Route("/secrets", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth(models.ScopeSecretsRW))
			r.Get("/", secretsHandler.HandleList)
			r.Post("/", secretsHandler.HandleCreate)
			r.Get("/{name}", secretsHandler.HandleGet)
			r.Put("/{name}", secretsHandler.HandleUpdate)
			r.Delete("/{name}", secretsHandler.HandleDelete)
		})

		tokensHandler := handlers.NewTokensHandler(deps.Issuer, deps.TokenCache, deps.Recorder, deps.Logger)
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth(models.ScopeTokensRW))
			r.Get("/tokens", tokensHandler.HandleList)
			r.Post("/tokens", tokensHandler.HandleIssue)
			r.Post("/tokens/purge", tokensHandler.HandlePurge)
			r.Delete("/tokens/{token}", tokensHandler.HandleRevoke)
			r.Post("/jwt", tokensHandler.HandleIssueJWT)
		})

		var auditReader handlers.AuditReader
		if deps.Audit != nil {
			auditReader = deps.Audit
		}
		auditHandler := handlers.NewAuditHandler(auditReader, deps.Logger)
		r.With(deps.AuthMiddleware.RequireAuth(models.ScopeMCPAdmin)).Get("/audit", auditHandler.HandleRecent)
		r.With(deps.AuthMiddleware.RequireAuth(models.ScopeMCPAdmin)).Get("/audit/stats", auditHandler.HandleStats)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}

package handlers

import (
	"net/http"

	"github.com/upb/mcp-auth-gateway/auth"
	"github.com/upb/mcp-auth-gateway/utils"
)

// AuthDeps provides the session handler for route wiring. It returns nil
// when no auth provider is configured.
type AuthDeps interface {
	AuthHandler() *auth.Handler
}

func withAuthHandler(deps AuthDeps, serve func(h *auth.Handler, w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h := deps.AuthHandler(); h != nil {
			serve(h, w, r)
			return
		}
		_ = utils.WriteServiceUnavailable(w, "Authentication not configured")
	}
}

// AuthVerifyHandler returns an http.HandlerFunc for POST /auth/verify
func AuthVerifyHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, (*auth.Handler).HandleVerify)
}

// AuthRefreshHandler returns an http.HandlerFunc for POST /auth/refresh
func AuthRefreshHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, (*auth.Handler).HandleRefresh)
}

// AuthLogoutHandler returns an http.HandlerFunc for POST /auth/logout
func AuthLogoutHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, (*auth.Handler).HandleLogout)
}

// AuthUserHandler returns an http.HandlerFunc for GET /auth/user
func AuthUserHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, (*auth.Handler).HandleUser)
}

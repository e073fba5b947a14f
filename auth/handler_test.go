package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services"
	"github.com/upb/mcp-auth-gateway/services/tokens"
	"go.uber.org/zap"
)

type MockFlow struct {
	mock.Mock
}

func (m *MockFlow) VerifyExternalToken(ctx context.Context, providerToken string) *models.SessionResult {
	return m.Called(ctx, providerToken).Get(0).(*models.SessionResult)
}

func (m *MockFlow) Refresh(ctx context.Context, refreshToken string) *models.SessionResult {
	return m.Called(ctx, refreshToken).Get(0).(*models.SessionResult)
}

func (m *MockFlow) Logout(ctx context.Context, refreshToken string) *models.SessionResult {
	return m.Called(ctx, refreshToken).Get(0).(*models.SessionResult)
}

func (m *MockFlow) RefreshTTL() time.Duration {
	return 720 * time.Hour
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) VerifyJWT(token string) (*tokens.Claims, error) {
	args := m.Called(token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*tokens.Claims), args.Error(1)
}

func cookiesByName(w *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := make(map[string]*http.Cookie)
	for _, c := range w.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func TestHandleVerify(t *testing.T) {
	user := models.NewPrincipal("did:privy:1", "alice@example.com", "alice@example.com", models.RoleUser, []string{models.ScopeMCPAccess})

	t.Run("success sets session cookies", func(t *testing.T) {
		flow := new(MockFlow)
		flow.On("VerifyExternalToken", mock.Anything, "privy-token").Return(&models.SessionResult{
			Success: true, User: user, Token: "jwt", RefreshToken: "refresh", ExpiresIn: 3600,
		})
		h := NewHandler(flow, new(MockVerifier), zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/auth/verify", strings.NewReader(`{"token":"privy-token"}`))
		w := httptest.NewRecorder()
		h.HandleVerify(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body models.SessionResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.Success)
		assert.Equal(t, "jwt", body.Token)
		assert.Equal(t, user.ID, body.User.ID)

		cookies := cookiesByName(w)
		require.Contains(t, cookies, TokenCookieName)
		require.Contains(t, cookies, RefreshCookieName)
		assert.Equal(t, 3600, cookies[TokenCookieName].MaxAge)
		assert.Equal(t, 2592000, cookies[RefreshCookieName].MaxAge)
		assert.True(t, cookies[TokenCookieName].HttpOnly)
		assert.True(t, cookies[TokenCookieName].Secure)
		assert.Equal(t, http.SameSiteStrictMode, cookies[TokenCookieName].SameSite)
	})

	t.Run("provider rejection is 401", func(t *testing.T) {
		flow := new(MockFlow)
		flow.On("VerifyExternalToken", mock.Anything, "bad").Return(models.SessionFailure("error verifying token: auth provider rejected the token"))
		h := NewHandler(flow, new(MockVerifier), zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleVerify(w, httptest.NewRequest(http.MethodPost, "/auth/verify", strings.NewReader(`{"token":"bad"}`)))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "error verifying token")
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("missing token is 400", func(t *testing.T) {
		h := NewHandler(new(MockFlow), new(MockVerifier), zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleVerify(w, httptest.NewRequest(http.MethodPost, "/auth/verify", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w = httptest.NewRecorder()
		h.HandleVerify(w, httptest.NewRequest(http.MethodPost, "/auth/verify", strings.NewReader(`not json`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHandleRefresh(t *testing.T) {
	ok := &models.SessionResult{Success: true, Token: "new-jwt", RefreshToken: "refresh", ExpiresIn: 3600}

	t.Run("token from body", func(t *testing.T) {
		flow := new(MockFlow)
		flow.On("Refresh", mock.Anything, "refresh").Return(ok)
		h := NewHandler(flow, new(MockVerifier), zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleRefresh(w, httptest.NewRequest(http.MethodPost, "/auth/refresh", strings.NewReader(`{"refresh_token":"refresh"}`)))

		assert.Equal(t, http.StatusOK, w.Code)
		cookies := cookiesByName(w)
		assert.Equal(t, "new-jwt", cookies[TokenCookieName].Value)
		assert.NotContains(t, cookies, RefreshCookieName)
		flow.AssertExpectations(t)
	})

	t.Run("token from header", func(t *testing.T) {
		flow := new(MockFlow)
		flow.On("Refresh", mock.Anything, "from-header").Return(ok)
		h := NewHandler(flow, new(MockVerifier), zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.Header.Set(RefreshHeader, "from-header")
		w := httptest.NewRecorder()
		h.HandleRefresh(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		flow.AssertExpectations(t)
	})

	t.Run("token from cookie", func(t *testing.T) {
		flow := new(MockFlow)
		flow.On("Refresh", mock.Anything, "from-cookie").Return(ok)
		h := NewHandler(flow, new(MockVerifier), zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: "from-cookie"})
		w := httptest.NewRecorder()
		h.HandleRefresh(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token is 401", func(t *testing.T) {
		flow := new(MockFlow)
		h := NewHandler(flow, new(MockVerifier), zap.NewNop())

		w := httptest.NewRecorder()
		h.HandleRefresh(w, httptest.NewRequest(http.MethodPost, "/auth/refresh", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Refresh token is required")
		flow.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
	})

	t.Run("expired refresh token is 401", func(t *testing.T) {
		flow := new(MockFlow)
		flow.On("Refresh", mock.Anything, "old").Return(models.SessionFailure("refresh token has expired"))
		h := NewHandler(flow, new(MockVerifier), zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
		req.Header.Set(RefreshHeader, "old")
		w := httptest.NewRecorder()
		h.HandleRefresh(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "refresh token has expired")
	})
}

func TestHandleLogout(t *testing.T) {
	t.Run("success clears cookies", func(t *testing.T) {
		flow := new(MockFlow)
		flow.On("Logout", mock.Anything, "refresh").Return(&models.SessionResult{Success: true})
		h := NewHandler(flow, new(MockVerifier), zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.Header.Set(RefreshHeader, "refresh")
		w := httptest.NewRecorder()
		h.HandleLogout(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		cookies := cookiesByName(w)
		assert.Equal(t, -1, cookies[TokenCookieName].MaxAge)
		assert.Equal(t, -1, cookies[RefreshCookieName].MaxAge)
	})

	t.Run("failure still clears cookies", func(t *testing.T) {
		flow := new(MockFlow)
		flow.On("Logout", mock.Anything, "refresh").Return(models.SessionFailure("error logging out: secret store unavailable"))
		h := NewHandler(flow, new(MockVerifier), zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(`{"refresh_token":"refresh"}`))
		w := httptest.NewRecorder()
		h.HandleLogout(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		cookies := cookiesByName(w)
		assert.Contains(t, cookies, TokenCookieName)
		assert.Contains(t, cookies, RefreshCookieName)
	})
}

func TestHandleUser(t *testing.T) {
	claims := tokens.ClaimsFor(models.NewPrincipal("u1", "alice", "a@example.com", models.RoleUser, []string{models.ScopeMCPAccess}))

	t.Run("valid JWT returns principal", func(t *testing.T) {
		verifier := new(MockVerifier)
		verifier.On("VerifyJWT", "jwt").Return(&claims, nil)
		h := NewHandler(new(MockFlow), verifier, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
		req.Header.Set("Authorization", "Bearer jwt")
		w := httptest.NewRecorder()
		h.HandleUser(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var body models.SessionResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "u1", body.User.ID)
		assert.Equal(t, []string{models.ScopeMCPAccess}, body.User.Scopes)
	})

	t.Run("expired JWT is 401", func(t *testing.T) {
		verifier := new(MockVerifier)
		verifier.On("VerifyJWT", "old").Return(nil, services.ErrTokenExpired)
		h := NewHandler(new(MockFlow), verifier, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
		req.AddCookie(&http.Cookie{Name: TokenCookieName, Value: "old"})
		w := httptest.NewRecorder()
		h.HandleUser(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "JWT token has expired")
	})

	t.Run("missing secret is 500", func(t *testing.T) {
		verifier := new(MockVerifier)
		verifier.On("VerifyJWT", "jwt").Return(nil, services.ErrJWTSecretMissing)
		h := NewHandler(new(MockFlow), verifier, zap.NewNop())

		req := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
		req.Header.Set("Authorization", "Bearer jwt")
		w := httptest.NewRecorder()
		h.HandleUser(w, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("no credential is 401", func(t *testing.T) {
		h := NewHandler(new(MockFlow), new(MockVerifier), zap.NewNop())
		w := httptest.NewRecorder()
		h.HandleUser(w, httptest.NewRequest(http.MethodGet, "/auth/user", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

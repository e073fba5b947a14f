// Package privy is a minimal client for the Privy auth API.
package privy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services"
	"go.uber.org/zap"
)

// APIKeySecretName is the secret holding the Privy API key
const APIKeySecretName = "PRIVY_API_KEY"

const maxErrorBody = 4 << 10

// Config configures the Privy client
type Config struct {
	AppID     string
	APIKey    string // fallback when the secret store has no key
	BaseURL   string
	CreatorID string // tenant whose PRIVY_API_KEY secret is used
	Timeout   time.Duration
}

// KeySource looks up the API key in the secret store
type KeySource interface {
	Get(ctx context.Context, name string, tenant *string) (string, bool, error)
}

// APIError is a non-2xx answer from Privy. Body is kept for logs only.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("privy %s %s returned status %d", e.Method, e.Path, e.StatusCode)
}

// Client talks to Privy. The API key is resolved on first use and then reused.
type Client struct {
	config     Config
	keys       KeySource
	httpClient *http.Client
	logger     *zap.Logger

	mu     sync.Mutex
	apiKey string
}

// NewClient creates a Privy client
func NewClient(cfg Config, keys KeySource, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://auth.privy.io/api/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		config:     cfg,
		keys:       keys,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// VerifyToken checks a Privy auth token and returns the Privy user id it belongs to
func (c *Client) VerifyToken(ctx context.Context, token string) (string, error) {
	var result map[string]interface{}
	if err := c.request(ctx, http.MethodPost, "/auth/verify", map[string]string{"token": token}, &result); err != nil {
		return "", err
	}

	user, _ := result["user"].(map[string]interface{})
	id, _ := user["id"].(string)
	if id == "" {
		return "", services.NewUnauthorizedError("invalid_provider_token", "invalid token: user id not found in response", nil)
	}
	return id, nil
}

// GetUser fetches the Privy user document
func (c *Client) GetUser(ctx context.Context, userID string) (map[string]interface{}, error) {
	var user map[string]interface{}
	if err := c.request(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, &user); err != nil {
		return nil, err
	}
	if user == nil {
		user = map[string]interface{}{}
	}
	return user, nil
}

func (c *Client) resolveAPIKey(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.apiKey != "" {
		return c.apiKey, nil
	}

	if c.keys != nil {
		key, found, err := c.keys.Get(ctx, APIKeySecretName, models.StringPtr(c.config.CreatorID))
		switch {
		case err != nil:
			// retried on the next call; env fallback serves this one
			c.logger.Warn("failed to read Privy API key from secret store", zap.Error(err))
		case found && key != "":
			c.apiKey = key
			return key, nil
		}
	}

	if c.config.APIKey == "" {
		return "", services.NewDomainError(services.ErrorTypeConfiguration, "Privy API key not configured", nil)
	}
	c.apiKey = c.config.APIKey
	return c.apiKey, nil
}

func (c *Client) request(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	if c.config.AppID == "" {
		return services.NewDomainError(services.ErrorTypeConfiguration, "Privy app id not configured", nil)
	}
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return services.WrapInternal("failed to encode Privy request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return services.WrapInternal("failed to build Privy request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("x-privy-app-id", c.config.AppID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Privy request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return services.WrapExternal("auth provider unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(data)}
		c.logger.Error("Privy API error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", apiErr.Body))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
			return services.NewUnauthorizedError("invalid_provider_token", "auth provider rejected the token", apiErr)
		}
		return services.WrapExternal("auth provider error", apiErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.WrapExternal("invalid auth provider response", err)
	}
	return nil
}

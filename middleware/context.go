package middleware

import (
	"context"
	"net/http"

	"github.com/upb/mcp-auth-gateway/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"

	// PrincipalKey is the context key for the authenticated principal
	PrincipalKey contextKey = "principal"

	// HeadersKey is the context key for the inbound request headers
	HeadersKey contextKey = "headers"
)

// GetRequestIDFromContext retrieves the request ID from context
func GetRequestIDFromContext(ctx context.Context) string {
	if val := ctx.Value(RequestIDKey); val != nil {
		if requestID, ok := val.(string); ok {
			return requestID
		}
	}
	return ""
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// PrincipalFromContext returns the principal attached by the guard, or nil
func PrincipalFromContext(ctx context.Context) *models.Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if p, ok := val.(*models.Principal); ok {
			return p
		}
	}
	return nil
}

// WithPrincipal attaches an authenticated principal
func WithPrincipal(ctx context.Context, p *models.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// RequestHeadersFromContext returns the inbound headers, or an empty set
func RequestHeadersFromContext(ctx context.Context) http.Header {
	if val := ctx.Value(HeadersKey); val != nil {
		if h, ok := val.(http.Header); ok {
			return h
		}
	}
	return http.Header{}
}

// WithRequestHeaders makes the inbound headers visible to guarded operations
func WithRequestHeaders(ctx context.Context, h http.Header) context.Context {
	return context.WithValue(ctx, HeadersKey, h)
}

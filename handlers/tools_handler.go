package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/mcp-auth-gateway/middleware"
	"github.com/upb/mcp-auth-gateway/services"
	"github.com/upb/mcp-auth-gateway/services/tools"
	"github.com/upb/mcp-auth-gateway/utils"
	"go.uber.org/zap"
)

// ToolCallRequest carries the tool arguments
type ToolCallRequest struct {
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ToolRegistry dispatches guarded tool calls
type ToolRegistry interface {
	Call(ctx context.Context, name string, args json.RawMessage) (interface{}, error)
	List() []tools.Info
}

// ToolsHandler serves /mcp/tools. Request headers must be in the context (middleware.CaptureHeaders).
type ToolsHandler struct {
	registry ToolRegistry
	logger   *zap.Logger
}

// NewToolsHandler creates a new ToolsHandler
func NewToolsHandler(registry ToolRegistry, logger *zap.Logger) *ToolsHandler {
	return &ToolsHandler{
		registry: registry,
		logger:   logger,
	}
}

// HandleList handles GET /mcp/tools
func (h *ToolsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, h.registry.List())
}

// HandleCall handles POST /mcp/tools/{name}
func (h *ToolsHandler) HandleCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	var req ToolCallRequest
	if r.ContentLength != 0 && r.Body != nil {
		if err := utils.DecodeJSON(r, &req); err != nil {
			_ = utils.WriteBadRequest(w, "Invalid request body", nil)
			return
		}
	}

	result, err := h.registry.Call(ctx, name, req.Arguments)
	if err != nil {
		h.logger.Debug("tool call failed",
			zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
			zap.String("tool", name),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	if te, ok := result.(*middleware.ToolError); ok {
		_ = utils.WriteJSON(w, toolErrorStatus(te), te)
		return
	}

	_ = utils.WriteOK(w, result)
}

func toolErrorStatus(te *middleware.ToolError) int {
	switch services.ErrorType(te.Code) {
	case services.ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorTypeForbidden:
		return http.StatusForbidden
	case services.ErrorTypeStore, services.ErrorTypeConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

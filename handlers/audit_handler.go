package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services"
	"github.com/upb/mcp-auth-gateway/services/audit"
	"github.com/upb/mcp-auth-gateway/utils"
	"go.uber.org/zap"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// AuditReader lists recent auth events and reports pipeline health
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]*models.AuditLog, error)
	GetStats() audit.Stats
}

// AuditHandler serves GET /api/admin/audit and /api/admin/audit/stats
type AuditHandler struct {
	reader AuditReader
	logger *zap.Logger
}

// NewAuditHandler creates a new AuditHandler. A nil reader means auditing is disabled.
func NewAuditHandler(reader AuditReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{reader: reader, logger: logger}
}

// HandleRecent handles GET /api/admin/audit?limit=N
func (h *AuditHandler) HandleRecent(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		_ = utils.WriteServiceUnavailable(w, "Audit trail disabled")
		return
	}

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			_ = utils.WriteBadRequest(w, "limit must be a positive integer", nil)
			return
		}
		if n > maxAuditLimit {
			n = maxAuditLimit
		}
		limit = n
	}

	logs, err := h.reader.Recent(r.Context(), limit)
	if err != nil {
		HandleServiceError(w, services.WrapStore("failed to read audit events", err), h.logger)
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}
	_ = utils.WriteOK(w, logs)
}

// HandleStats handles GET /api/admin/audit/stats
func (h *AuditHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if h.reader == nil {
		_ = utils.WriteServiceUnavailable(w, "Audit trail disabled")
		return
	}
	_ = utils.WriteOK(w, h.reader.GetStats())
}

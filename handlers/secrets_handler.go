package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/upb/mcp-auth-gateway/middleware"
	"github.com/upb/mcp-auth-gateway/models"
	"github.com/upb/mcp-auth-gateway/services/audit"
	"github.com/upb/mcp-auth-gateway/utils"
	"go.uber.org/zap"
)

// CreateSecretRequest represents a request to create or overwrite a secret
type CreateSecretRequest struct {
	Name        string  `json:"name" validate:"required,secretname"`
	Value       string  `json:"value" validate:"required"`
	CreatorID   *string `json:"creator_id,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1024"`
}

// UpdateSecretRequest represents a request to replace an existing secret's value
type UpdateSecretRequest struct {
	Value       string  `json:"value" validate:"required"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=1024"`
}

// SecretValueResponse is a single secret including its decrypted value
type SecretValueResponse struct {
	Name      string  `json:"name"`
	Value     string  `json:"value"`
	CreatorID *string `json:"creator_id"`
}

// SecretStore is the secrets service surface the admin API needs
type SecretStore interface {
	Get(ctx context.Context, name string, tenant *string) (string, bool, error)
	Set(ctx context.Context, name, value string, tenant, description *string) (bool, error)
	Delete(ctx context.Context, name string, tenant *string) (bool, error)
	List(ctx context.Context, tenant *string) ([]models.Secret, error)
}

// SecretsHandler serves /api/admin/secrets
type SecretsHandler struct {
	store  SecretStore
	audit  audit.Recorder
	logger *zap.Logger
}

// NewSecretsHandler creates a new SecretsHandler
func NewSecretsHandler(store SecretStore, recorder audit.Recorder, logger *zap.Logger) *SecretsHandler {
	if recorder == nil {
		recorder = audit.Discard
	}
	return &SecretsHandler{
		store:  store,
		audit:  recorder,
		logger: logger,
	}
}

// HandleList handles GET /api/admin/secrets. Values are never listed.
func (h *SecretsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := creatorIDParam(r)

	secrets, err := h.store.List(ctx, tenant)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	summaries := make([]models.SecretSummary, 0, len(secrets))
	for i := range secrets {
		summaries = append(summaries, secrets[i].Summary())
	}

	h.logger.Debug("listed secrets",
		zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
		zap.Int("count", len(summaries)))

	_ = utils.WriteOK(w, summaries)
}

// HandleGet handles GET /api/admin/secrets/{name}
func (h *SecretsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	name, ok := secretNameParam(w, r)
	if !ok {
		return
	}
	tenant := creatorIDParam(r)

	value, found, err := h.store.Get(r.Context(), name, tenant)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	if !found {
		_ = utils.WriteNotFound(w, "Secret "+name+" not found")
		return
	}

	_ = utils.WriteOK(w, SecretValueResponse{Name: name, Value: value, CreatorID: tenant})
}

// HandleCreate handles POST /api/admin/secrets
func (h *SecretsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSecretRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	ok, err := h.store.Set(r.Context(), req.Name, req.Value, req.CreatorID, req.Description)
	if err != nil {
		h.record(r, models.AuditActionSecretSet, req.Name, false)
		HandleServiceError(w, err, h.logger)
		return
	}
	if !ok {
		_ = utils.WriteInternalServerError(w, "Failed to create secret "+req.Name)
		return
	}

	h.record(r, models.AuditActionSecretSet, req.Name, true)
	_ = utils.WriteCreated(w, models.SecretSummary{
		Name:        req.Name,
		CreatorID:   req.CreatorID,
		Description: req.Description,
	})
}

// HandleUpdate handles PUT /api/admin/secrets/{name}. Missing secrets are not created.
func (h *SecretsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	name, ok := secretNameParam(w, r)
	if !ok {
		return
	}
	tenant := creatorIDParam(r)

	var req UpdateSecretRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	ctx := r.Context()
	if _, found, err := h.store.Get(ctx, name, tenant); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	} else if !found {
		_ = utils.WriteNotFound(w, "Secret "+name+" not found")
		return
	}

	ok, err := h.store.Set(ctx, name, req.Value, tenant, req.Description)
	if err != nil {
		h.record(r, models.AuditActionSecretSet, name, false)
		HandleServiceError(w, err, h.logger)
		return
	}
	if !ok {
		_ = utils.WriteInternalServerError(w, "Failed to update secret "+name)
		return
	}

	h.record(r, models.AuditActionSecretSet, name, true)
	_ = utils.WriteOK(w, models.SecretSummary{
		Name:        name,
		CreatorID:   tenant,
		Description: req.Description,
	})
}

// HandleDelete handles DELETE /api/admin/secrets/{name}
func (h *SecretsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	name, ok := secretNameParam(w, r)
	if !ok {
		return
	}
	tenant := creatorIDParam(r)
	ctx := r.Context()

	if _, found, err := h.store.Get(ctx, name, tenant); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	} else if !found {
		_ = utils.WriteNotFound(w, "Secret "+name+" not found")
		return
	}

	ok, err := h.store.Delete(ctx, name, tenant)
	if err != nil {
		h.record(r, models.AuditActionSecretDeleted, name, false)
		HandleServiceError(w, err, h.logger)
		return
	}
	if !ok {
		_ = utils.WriteInternalServerError(w, "Failed to delete secret "+name)
		return
	}

	h.record(r, models.AuditActionSecretDeleted, name, true)
	utils.WriteNoContent(w)
}

func (h *SecretsHandler) record(r *http.Request, action models.AuditAction, name string, success bool) {
	recordAdmin(h.audit, r, action, name, success)
}

// recordAdmin records an admin API mutation, attributed to the calling principal
func recordAdmin(recorder audit.Recorder, r *http.Request, action models.AuditAction, resource string, success bool) {
	entry := models.NewAuditLog(action, "admin_api", success).WithResource(resource)
	if p := middleware.PrincipalFromContext(r.Context()); p != nil {
		entry.WithPrincipal(p.ID)
	}
	entry.RequestID = middleware.GetRequestIDFromContext(r.Context())
	recorder.Record(entry)
}

func creatorIDParam(r *http.Request) *string {
	return models.StringPtr(r.URL.Query().Get("creator_id"))
}

func secretNameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if err := utils.ValidateSecretName(name); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return "", false
	}
	return name, true
}

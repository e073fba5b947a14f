package handlers

import (
	"net/http"

	"github.com/upb/mcp-auth-gateway/services"
	"github.com/upb/mcp-auth-gateway/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses.
// Only the public message is written; causes are logged.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	msg := services.PublicMessage(err)
	details := services.GetErrorDetails(err)

	var writeErr error
	switch {
	case services.IsNotFoundError(err):
		writeErr = utils.WriteNotFound(w, msg)

	case services.IsValidationError(err):
		writeErr = utils.WriteBadRequest(w, msg, details)

	case services.IsUnauthorizedError(err):
		writeErr = utils.WriteUnauthorized(w, msg)

	case services.IsForbiddenError(err):
		scope, _ := services.MissingScope(err)
		writeErr = utils.WriteForbidden(w, msg, scope)

	case services.IsStoreError(err):
		logger.Warn("secret store error", zap.Error(err))
		writeErr = utils.WriteServiceUnavailable(w, msg)

	case services.IsConfigurationError(err):
		logger.Error("configuration error", zap.Error(err))
		writeErr = utils.WriteServiceUnavailable(w, msg)

	case services.IsExternalError(err):
		// Auth provider errors are mapped to 502 Bad Gateway
		logger.Warn("external provider error", zap.Error(err))
		writeErr = utils.WriteError(w, http.StatusBadGateway, msg, details)

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w, "An internal error occurred")

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w, "An unexpected error occurred")
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteBadRequest(w, "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteBadRequest(w, err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}

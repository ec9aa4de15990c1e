package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/apperrors"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/auth"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/models"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/services"
)

// AIConfigRequest for PUT body.
type AIConfigRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"`
}

// AIConfigResponse for GET response.
type AIConfigResponse struct {
	Provider        string `json:"provider"`
	APIKey          string `json:"api_key,omitempty"` // Masked
	Model           string `json:"model,omitempty"`
	LastTestedAt    string `json:"last_tested_at,omitempty"`
	LastTestSuccess *bool  `json:"last_test_success,omitempty"`
}

// AIConfigHandler handles AI configuration HTTP requests.
type AIConfigHandler struct {
	service services.AIConfigService
	logger  *zap.Logger
}

// NewAIConfigHandler creates a new AI config handler.
func NewAIConfigHandler(service services.AIConfigService, logger *zap.Logger) *AIConfigHandler {
	return &AIConfigHandler{service: service, logger: logger}
}

// RegisterRoutes registers the AI config routes.
func (h *AIConfigHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("GET /api/ai-config", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("PUT /api/ai-config", authMiddleware.RequireAuth(h.Upsert))
	mux.HandleFunc("DELETE /api/ai-config", authMiddleware.RequireAuth(h.Delete))
	mux.HandleFunc("POST /api/ai-config/test", authMiddleware.RequireAuth(h.Test))
}

// Get returns the caller's AI config with the API key masked.
func (h *AIConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		h.errorResponse(w, http.StatusForbidden, "forbidden", "Authentication required")
		return
	}

	config, err := h.service.Get(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to get AI config", zap.Error(err))
		h.errorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to get AI config")
		return
	}

	if config == nil {
		h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: nil})
		return
	}

	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: toAIConfigResponse(config)})
}

// Upsert creates or updates the caller's AI config.
func (h *AIConfigHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		h.errorResponse(w, http.StatusForbidden, "forbidden", "Authentication required")
		return
	}

	var req AIConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	config, err := h.service.Upsert(r.Context(), userID, models.AIProvider(req.Provider), req.APIKey, req.Model)
	if err != nil {
		h.errorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: toAIConfigResponse(config)})
}

// Delete removes the caller's AI config.
func (h *AIConfigHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		h.errorResponse(w, http.StatusForbidden, "forbidden", "Authentication required")
		return
	}

	if err := h.service.Delete(r.Context(), userID); err != nil {
		h.logger.Error("Failed to delete AI config", zap.Error(err))
		h.errorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to delete AI config")
		return
	}

	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true})
}

// Test verifies the caller's stored credentials against the provider.
func (h *AIConfigHandler) Test(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		h.errorResponse(w, http.StatusForbidden, "forbidden", "Authentication required")
		return
	}

	result, err := h.service.Test(r.Context(), userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrAIConfigMissing) {
			h.errorResponse(w, http.StatusUnprocessableEntity, "validation_error", "No AI configuration to test")
			return
		}
		h.logger.Error("AI config test failed", zap.Error(err))
		h.errorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to test AI config")
		return
	}

	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: result})
}

func toAIConfigResponse(config *models.AIConfig) AIConfigResponse {
	resp := AIConfigResponse{
		Provider:        string(config.Provider),
		APIKey:          config.APIKey,
		Model:           config.Model,
		LastTestSuccess: config.LastTestSuccess,
	}
	if config.LastTestedAt != nil {
		resp.LastTestedAt = config.LastTestedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *AIConfigHandler) errorResponse(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *AIConfigHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

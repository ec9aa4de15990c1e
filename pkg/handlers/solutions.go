package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ideaforge-ai/ideaforge-engine/pkg/apperrors"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/auth"
	"github.com/ideaforge-ai/ideaforge-engine/pkg/services"
)

// User-facing messages of the publish surface. Polling clients match on
// these, so the wording is part of the API contract.
const (
	msgPublishRequirements   = "Requirements must be completed before publishing solution."
	msgRepublishRequirements = "Requirements must exist before republishing solution."
	msgGenerationInProgress  = "Solution generation is already in progress."
)

// CreateSolutionRequest is the POST /api/solutions body.
type CreateSolutionRequest struct {
	ConversationID string `json:"conversation_id"`
	ThreadID       string `json:"thread_id,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Requirements   string `json:"requirements,omitempty"`
}

// UpdateRequirementsRequest is the PUT requirements body.
type UpdateRequirementsRequest struct {
	Requirements string `json:"requirements"`
}

// SolutionsHandler handles solution lifecycle HTTP requests.
type SolutionsHandler struct {
	service services.SolutionService
	logger  *zap.Logger
}

// NewSolutionsHandler creates a new solutions handler.
func NewSolutionsHandler(service services.SolutionService, logger *zap.Logger) *SolutionsHandler {
	return &SolutionsHandler{service: service, logger: logger}
}

// RegisterRoutes registers the solution routes.
func (h *SolutionsHandler) RegisterRoutes(mux *http.ServeMux, authMiddleware *auth.Middleware) {
	mux.HandleFunc("POST /api/solutions", authMiddleware.RequireAuth(h.Create))
	mux.HandleFunc("GET /api/solutions", authMiddleware.RequireAuth(h.List))
	mux.HandleFunc("GET /api/solutions/{id}", authMiddleware.RequireAuth(h.Get))
	mux.HandleFunc("PUT /api/solutions/{id}/requirements", authMiddleware.RequireAuth(h.UpdateRequirements))
	mux.HandleFunc("POST /api/solutions/{id}/publish", authMiddleware.RequireAuth(h.Publish))
	mux.HandleFunc("POST /api/solutions/{id}/republish", authMiddleware.RequireAuth(h.Republish))
	mux.HandleFunc("GET /api/solutions/{id}/progress", authMiddleware.RequireAuth(h.Progress))
	mux.HandleFunc("POST /api/solutions/{id}/approve-requirements", authMiddleware.RequireAuth(h.ApproveRequirements))
	mux.HandleFunc("POST /api/solutions/{id}/approve-solution", authMiddleware.RequireAuth(h.ApproveSolution))
	mux.HandleFunc("POST /api/solutions/{id}/reject", authMiddleware.RequireAuth(h.Reject))
}

// Create handles POST /api/solutions.
func (h *SolutionsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, apperrors.ErrForbidden, "")
		return
	}

	var req CreateSolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "Invalid JSON body")
		return
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		h.badRequest(w, "Invalid conversation ID format")
		return
	}

	input := &services.CreateSolutionInput{
		ConversationID: conversationID,
		ThreadID:       req.ThreadID,
		Title:          req.Title,
		Description:    req.Description,
		Requirements:   req.Requirements,
	}
	if req.ProjectID != "" {
		projectID, err := uuid.Parse(req.ProjectID)
		if err != nil {
			h.badRequest(w, "Invalid project ID format")
			return
		}
		input.ProjectID = &projectID
	}

	solution, err := h.service.Create(r.Context(), userID, input)
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	h.writeJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: solution})
}

// List handles GET /api/solutions.
func (h *SolutionsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, apperrors.ErrForbidden, "")
		return
	}

	solutions, err := h.service.List(r.Context(), userID)
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: solutions})
}

// Get handles GET /api/solutions/{id}.
func (h *SolutionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	solution, err := h.service.Get(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: solution})
}

// UpdateRequirements handles PUT /api/solutions/{id}/requirements.
func (h *SolutionsHandler) UpdateRequirements(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	var req UpdateRequirementsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.badRequest(w, "Invalid JSON body")
		return
	}

	solution, err := h.service.UpdateRequirements(r.Context(), userID, id, req.Requirements)
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: solution})
}

// Publish handles POST /api/solutions/{id}/publish.
// Accepts the run and returns immediately; the caller polls the progress
// endpoint for milestones.
func (h *SolutionsHandler) Publish(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	if err := h.service.Publish(r.Context(), userID, id); err != nil {
		h.writeError(w, err, msgPublishRequirements)
		return
	}

	h.writeJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]string{"solution_id": id.String()},
	})
}

// Republish handles POST /api/solutions/{id}/republish.
func (h *SolutionsHandler) Republish(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	if err := h.service.Republish(r.Context(), userID, id); err != nil {
		h.writeError(w, err, msgRepublishRequirements)
		return
	}

	h.writeJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Data:    map[string]string{"solution_id": id.String()},
	})
}

// Progress handles GET /api/solutions/{id}/progress.
func (h *SolutionsHandler) Progress(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	rec, err := h.service.Progress(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: rec})
}

// ApproveRequirements handles POST /api/solutions/{id}/approve-requirements.
func (h *SolutionsHandler) ApproveRequirements(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	solution, err := h.service.ApproveRequirements(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: solution})
}

// ApproveSolution handles POST /api/solutions/{id}/approve-solution.
func (h *SolutionsHandler) ApproveSolution(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	solution, err := h.service.ApproveSolution(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: solution})
}

// Reject handles POST /api/solutions/{id}/reject.
func (h *SolutionsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.callerAndID(w, r)
	if !ok {
		return
	}

	solution, err := h.service.Reject(r.Context(), userID, id)
	if err != nil {
		h.writeError(w, err, "")
		return
	}

	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: solution})
}

// callerAndID extracts the authenticated user and the solution id path value.
func (h *SolutionsHandler) callerAndID(w http.ResponseWriter, r *http.Request) (string, uuid.UUID, bool) {
	userID, ok := auth.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, apperrors.ErrForbidden, "")
		return "", uuid.Nil, false
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.badRequest(w, "Invalid solution ID format")
		return "", uuid.Nil, false
	}

	return userID, id, true
}

// writeError maps service errors to HTTP responses. requirementsMessage is
// the surface-specific wording used for a missing-requirements failure.
func (h *SolutionsHandler) writeError(w http.ResponseWriter, err error, requirementsMessage string) {
	switch {
	case errors.Is(err, apperrors.ErrMissingRequirements):
		if requirementsMessage == "" {
			requirementsMessage = msgPublishRequirements
		}
		h.errorResponse(w, http.StatusUnprocessableEntity, "validation_error", requirementsMessage)
	case errors.Is(err, apperrors.ErrConflict):
		h.errorResponse(w, http.StatusConflict, "conflict", msgGenerationInProgress)
	case errors.Is(err, apperrors.ErrInvalidTransition):
		h.errorResponse(w, http.StatusConflict, "invalid_transition", "Solution is not in a valid state for this operation.")
	case errors.Is(err, apperrors.ErrForbidden):
		h.errorResponse(w, http.StatusForbidden, "forbidden", "You do not have access to this solution.")
	case errors.Is(err, apperrors.ErrNotFound):
		h.errorResponse(w, http.StatusNotFound, "not_found", "Solution not found.")
	default:
		h.logger.Error("solution request failed", zap.Error(err))
		h.errorResponse(w, http.StatusInternalServerError, "internal_error", "Internal server error.")
	}
}

func (h *SolutionsHandler) badRequest(w http.ResponseWriter, message string) {
	h.errorResponse(w, http.StatusBadRequest, "invalid_request", message)
}

func (h *SolutionsHandler) errorResponse(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *SolutionsHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

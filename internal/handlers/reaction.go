package handlers

import (
	"encoding/json"
	"net/http"

	"pixelsync-backend/internal/middleware"
	"pixelsync-backend/internal/models"
	"pixelsync-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// ReactionHandler handles reaction HTTP requests
type ReactionHandler struct {
	reactionService *services.ReactionService
}

// NewReactionHandler creates a new reaction handler
func NewReactionHandler(reactionService *services.ReactionService) *ReactionHandler {
	return &ReactionHandler{
		reactionService: reactionService,
	}
}

// ReactionsResponse is the grouped view of one image's reactions
type ReactionsResponse struct {
	Action    services.ToggleAction  `json:"action,omitempty"`
	Reactions []models.ReactionGroup `json:"reactions"`
}

// ToggleRequest represents the request body for toggling a reaction
type ToggleRequest struct {
	Emoji string `json:"emoji"`
}

// GetReactions handles GET /api/v1/photos/{photo_id}/reactions
func (h *ReactionHandler) GetReactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageID := chi.URLParam(r, "photo_id")

	snap := h.reactionService.Snapshot(ctx, imageID)
	if snap.Err != nil {
		log.Error().Err(snap.Err).Str("image_id", imageID).Msg("Failed to get reactions")
		respondError(w, "Failed to get reactions", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, ReactionsResponse{
		Reactions: services.GroupReactions(snap.Data, middleware.GetUserID(ctx)),
	})
}

// ToggleReaction handles POST /api/v1/photos/{photo_id}/reactions
func (h *ReactionHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	imageID := chi.URLParam(r, "photo_id")

	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	view := h.reactionService.Snapshot(ctx, imageID)
	action, err := h.reactionService.Toggle(ctx, view, imageID, userID, req.Emoji)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("image_id", imageID).Str("user_id", userID).Msg("Failed to toggle reaction")
		}
		respondError(w, err.Error(), status)
		return
	}

	after := h.reactionService.Snapshot(ctx, imageID)
	respondJSON(w, http.StatusOK, ReactionsResponse{
		Action:    action,
		Reactions: services.GroupReactions(after.Data, userID),
	})
}

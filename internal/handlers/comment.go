package handlers

import (
	"encoding/json"
	"net/http"

	"pixelsync-backend/internal/middleware"
	"pixelsync-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// CommentHandler handles comment HTTP requests
type CommentHandler struct {
	commentService *services.CommentService
}

// NewCommentHandler creates a new comment handler
func NewCommentHandler(commentService *services.CommentService) *CommentHandler {
	return &CommentHandler{
		commentService: commentService,
	}
}

// PostCommentRequest represents the request body for posting a comment
type PostCommentRequest struct {
	Text string `json:"text"`
}

// GetComments handles GET /api/v1/photos/{photo_id}/comments
func (h *CommentHandler) GetComments(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "photo_id")

	comments, err := h.commentService.Thread(r.Context(), imageID)
	if err != nil {
		log.Error().Err(err).Str("image_id", imageID).Msg("Failed to get comments")
		respondError(w, "Failed to get comments", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"comments": comments,
	})
}

// PostComment handles POST /api/v1/photos/{photo_id}/comments
func (h *CommentHandler) PostComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	imageID := chi.URLParam(r, "photo_id")

	var req PostCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	comment, err := h.commentService.Post(ctx, imageID, userID, req.Text)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("image_id", imageID).Str("user_id", userID).Msg("Failed to post comment")
		}
		respondError(w, err.Error(), status)
		return
	}

	respondJSON(w, http.StatusCreated, comment)
}

// DeleteComment handles DELETE /api/v1/comments/{comment_id}
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	commentID := chi.URLParam(r, "comment_id")

	if err := h.commentService.Delete(ctx, commentID, userID); err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			log.Error().Err(err).Str("comment_id", commentID).Str("user_id", userID).Msg("Failed to delete comment")
		}
		respondError(w, err.Error(), status)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

package handlers

import (
	"net/http"

	"pixelsync-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// FeedHandler handles activity feed HTTP requests
type FeedHandler struct {
	feedService *services.FeedService
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(feedService *services.FeedService) *FeedHandler {
	return &FeedHandler{
		feedService: feedService,
	}
}

// GetFeed handles GET /api/v1/feed
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	scope := services.FeedScope{ImageID: r.URL.Query().Get("image_id")}

	limit, hasLimit, err := queryInt(r, "limit")
	if err != nil || (hasLimit && limit < 0) {
		respondError(w, "limit must be a non-negative number", http.StatusBadRequest)
		return
	}

	items, err := h.feedService.Snapshot(r.Context(), scope)
	if err != nil {
		log.Error().Err(err).Str("image_id", scope.ImageID).Msg("Failed to build feed")
		respondError(w, "Failed to build feed", http.StatusInternalServerError)
		return
	}

	if hasLimit && limit < len(items) {
		items = items[:limit]
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
	})
}

package handlers

import (
	"errors"
	"net/http"

	"pixelsync-backend/internal/catalog"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// PhotoHandler handles photo catalog HTTP requests
type PhotoHandler struct {
	catalog catalog.Catalog
	perPage int
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(c catalog.Catalog, perPage int) *PhotoHandler {
	return &PhotoHandler{
		catalog: c,
		perPage: perPage,
	}
}

// ListPhotos handles GET /api/v1/photos
func (h *PhotoHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	page, _, err := queryInt(r, "page")
	if err != nil {
		respondError(w, "page must be a number", http.StatusBadRequest)
		return
	}
	perPage, _, err := queryInt(r, "per_page")
	if err != nil {
		respondError(w, "per_page must be a number", http.StatusBadRequest)
		return
	}

	params := catalog.ListParams{
		Page:    page,
		PerPage: perPage,
		OrderBy: r.URL.Query().Get("order_by"),
	}.Normalize(h.perPage)

	result, err := h.catalog.List(r.Context(), params)
	if err != nil {
		log.Error().Err(err).Int("page", params.Page).Msg("Failed to list photos")
		respondError(w, "Photo catalog unavailable", http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// GetPhoto handles GET /api/v1/photos/{photo_id}
func (h *PhotoHandler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	photoID := chi.URLParam(r, "photo_id")

	photo, err := h.catalog.Get(r.Context(), photoID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			respondError(w, "Photo not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("photo_id", photoID).Msg("Failed to get photo")
		respondError(w, "Photo catalog unavailable", http.StatusBadGateway)
		return
	}

	respondJSON(w, http.StatusOK, photo)
}

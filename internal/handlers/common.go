package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"pixelsync-backend/internal/catalog"
	"pixelsync-backend/internal/services"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidEmoji),
		errors.Is(err, services.ErrMissingImage),
		errors.Is(err, services.ErrMissingUser),
		errors.Is(err, services.ErrEmptyComment),
		errors.Is(err, services.ErrCommentTooLong):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotCommentOwner):
		return http.StatusForbidden
	case errors.Is(err, services.ErrCommentNotFound),
		errors.Is(err, catalog.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrViewNotReady):
		return http.StatusConflict
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// queryInt reads an optional integer query parameter
func queryInt(r *http.Request, name string) (int, bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

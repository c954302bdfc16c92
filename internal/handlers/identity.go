package handlers

import (
	"encoding/json"
	"net/http"

	"pixelsync-backend/internal/middleware"
	"pixelsync-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// IdentityHandler handles identity-related HTTP requests
type IdentityHandler struct {
	identityService *services.IdentityService
}

// NewIdentityHandler creates a new identity handler
func NewIdentityHandler(identityService *services.IdentityService) *IdentityHandler {
	return &IdentityHandler{
		identityService: identityService,
	}
}

// GetIdentity handles GET and POST /api/v1/identity. The middleware has
// already created the identity when the caller had none.
func (h *IdentityHandler) GetIdentity(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r.Context())
	if identity == nil {
		respondError(w, "Identity unavailable", http.StatusUnauthorized)
		return
	}

	respondJSON(w, http.StatusOK, identity)
}

// PushTokenRequest represents the request body for registering a device
type PushTokenRequest struct {
	Token string `json:"token"`
}

// RegisterPushToken handles PUT /api/v1/identity/push-token
func (h *IdentityHandler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req PushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.identityService.RegisterPushToken(ctx, userID, req.Token); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to register push token")
		respondError(w, "Failed to register push token", http.StatusInternalServerError)
		return
	}

	log.Info().Str("user_id", userID).Bool("registered", req.Token != "").Msg("Push token updated")
	w.WriteHeader(http.StatusNoContent)
}

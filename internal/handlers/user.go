package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"habit-streak-backend/internal/middleware"
	"habit-streak-backend/internal/models"
	"habit-streak-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// PushTokenRequest is the body of PUT /api/v1/users/push_token
type PushTokenRequest struct {
	PushToken string `json:"push_token"`
}

// CreateUser handles POST /api/v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.CreateUser(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to create user")
		respondError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("user_id", user.ID).
		Str("code", user.Code).
		Msg("User created")

	respondJSON(w, http.StatusOK, user)
}

// UpdatePushToken handles PUT /api/v1/users/push_token. An empty token disables push.
func (h *UserHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req PushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.userService.UpdatePushToken(r.Context(), userID, req.PushToken); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			respondError(w, "user not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to update push token")
		respondError(w, "Failed to update push token", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

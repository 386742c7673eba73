package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"habit-streak-backend/internal/middleware"
	"habit-streak-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UploadURLIssuer hands out pre-signed upload URLs for proof photos
type UploadURLIssuer interface {
	UploadURL(ctx context.Context, userID, contentType string) (*services.UploadResponse, error)
}

// PhotoHandler handles photo-related HTTP requests
type PhotoHandler struct {
	photos UploadURLIssuer
}

// NewPhotoHandler creates a new photo handler
func NewPhotoHandler(photos UploadURLIssuer) *PhotoHandler {
	return &PhotoHandler{
		photos: photos,
	}
}

// UploadRequest represents a request to get a pre-signed URL
type UploadRequest struct {
	ContentType string `json:"content_type"`
}

// UploadPhoto handles POST /api/v1/photos/upload. The returned photo_ref is
// sent back over the chat connection in a photo frame once the upload is done.
func (h *PhotoHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req UploadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	if req.ContentType != "" && !strings.HasPrefix(req.ContentType, "image/") {
		respondError(w, "content_type must be an image type", http.StatusBadRequest)
		return
	}

	response, err := h.photos.UploadURL(ctx, userID, req.ContentType)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("Failed to generate pre-signed URL")
		respondError(w, "Failed to generate upload URL", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("user_id", userID).
		Str("photo_ref", response.PhotoRef).
		Msg("Pre-signed URL generated")

	respondJSON(w, http.StatusOK, response)
}

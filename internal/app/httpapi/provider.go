package httpapi

import (
	"net/http"

	"github.com/halogen-labs/halogen/internal/google"
	"github.com/halogen-labs/halogen/internal/middleware"
)

// handleProfilePhotos aggregates People API photos across every linked
// Google account.
func (h *Handler) handleProfilePhotos(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	googleAccounts, _, err := h.accounts.LinkedAccounts(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	photos := []google.Photo{}
	for _, acct := range googleAccounts {
		bearer, err := h.accounts.GoogleBearer(r.Context(), userID, acct.Sub)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		accountPhotos, err := h.google.ListPhotos(r.Context(), bearer)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		photos = append(photos, accountPhotos...)
	}
	respondJSON(w, http.StatusOK, photos)
}

// handleYouTubeChannels aggregates channel listings across every linked
// Google account.
func (h *Handler) handleYouTubeChannels(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	googleAccounts, _, err := h.accounts.LinkedAccounts(r.Context(), userID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	channels := []google.Channel{}
	for _, acct := range googleAccounts {
		bearer, err := h.accounts.GoogleBearer(r.Context(), userID, acct.Sub)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		accountChannels, err := h.google.ListChannels(r.Context(), bearer)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		channels = append(channels, accountChannels...)
	}
	respondJSON(w, http.StatusOK, channels)
}

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/halogen-labs/halogen/internal/app/services/creators"
	apperrors "github.com/halogen-labs/halogen/internal/errors"
	"github.com/halogen-labs/halogen/internal/middleware"
)

func (h *Handler) handleGetCreatorProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.creators.Get(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// handleUpsertCreatorProfile replaces the profile from a multipart form. The
// picture arrives as an upload, with pfp_hidden as a provider URL to fetch
// server side, or with pfp_google as the sub of a linked Google account whose
// primary photo to use.
func (h *Handler) handleUpsertCreatorProfile(w http.ResponseWriter, r *http.Request) {
	f, err := parseForm(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	fields, err := f.requireFields(
		"given_name", "family_name", "pronouns",
		"profile_desc", "content_desc", "audience_desc",
	)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	userID := middleware.UserID(r.Context())
	avatarURL := f.fields["pfp_hidden"]
	if sub := f.fields["pfp_google"]; avatarURL == "" && sub != "" {
		bearer, err := h.accounts.GoogleBearer(r.Context(), userID, sub)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		avatarURL, err = h.google.PrimaryPhotoURL(r.Context(), bearer)
		if err != nil {
			h.respondError(w, r, apperrors.Upstream("google", err))
			return
		}
	}

	profile, err := h.creators.Upsert(r.Context(), userID, creators.UpsertParams{
		GivenName:    fields["given_name"],
		FamilyName:   fields["family_name"],
		Pronouns:     fields["pronouns"],
		ProfileDesc:  fields["profile_desc"],
		ContentDesc:  fields["content_desc"],
		AudienceDesc: fields["audience_desc"],
		Avatar:       f.image,
		AvatarURL:    avatarURL,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleSearchCreators(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	matches, err := h.creators.Search(r.Context(), query, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, matches)
}

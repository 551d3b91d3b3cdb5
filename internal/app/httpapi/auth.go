package httpapi

import (
	"context"
	"net/http"

	"github.com/halogen-labs/halogen/internal/app/domain/user"
	apperrors "github.com/halogen-labs/halogen/internal/errors"
	"github.com/halogen-labs/halogen/internal/middleware"
)

type provider string

const (
	providerGoogle provider = "google"
	providerTwitch provider = "twitch"
)

// loginRequest carries the OAuth authorization code flow result.
type loginRequest struct {
	RedirectOrigin string `json:"redirect_origin"`
	Code           string `json:"code"`
	KeepLoggedIn   bool   `json:"keep_logged_in"`
}

func (h *Handler) exchange(ctx context.Context, p provider, req loginRequest, authedUserID string) (user.User, *user.Session, error) {
	switch p {
	case providerGoogle:
		return h.accounts.LoginGoogle(ctx, req.Code, req.RedirectOrigin, authedUserID)
	case providerTwitch:
		return h.accounts.LoginTwitch(ctx, req.Code, req.RedirectOrigin, authedUserID)
	}
	return user.User{}, nil, apperrors.BadRequest("unknown provider")
}

// handleLogin exchanges the code, creates a session and sets the session
// cookie. The cookie persists across browser restarts only when
// keep_logged_in is set.
func (h *Handler) handleLogin(p provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			h.respondError(w, r, err)
			return
		}
		if req.Code == "" || req.RedirectOrigin == "" {
			h.respondError(w, r, apperrors.MissingFields([]string{"code", "redirect_origin"}))
			return
		}

		u, sess, err := h.exchange(r.Context(), p, req, "")
		if err != nil {
			h.respondError(w, r, err)
			return
		}

		cookie := &http.Cookie{
			Name:     h.cfg.Session.CookieName,
			Value:    sess.Token,
			Path:     "/",
			Secure:   true,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		}
		if req.KeepLoggedIn {
			cookie.Expires = sess.ExpiresAt
		}
		http.SetCookie(w, cookie)

		// Fresh users go to profile setup, returning ones home.
		redirect := "build-profile"
		if _, err := h.creators.Get(r.Context(), u.ID); err == nil {
			redirect = "home"
		} else if apperrors.HTTPStatus(err) != http.StatusNotFound {
			h.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"redirect": redirect})
	}
}

// handleAttach links another provider account to the authenticated user. It
// never creates a user or session.
func (h *Handler) handleAttach(p provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			h.respondError(w, r, err)
			return
		}
		if req.Code == "" || req.RedirectOrigin == "" {
			h.respondError(w, r, apperrors.MissingFields([]string{"code", "redirect_origin"}))
			return
		}

		if _, _, err := h.exchange(r.Context(), p, req, middleware.UserID(r.Context())); err != nil {
			h.respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Logout(r.Context(), middleware.SessionToken(r.Context())); err != nil {
		h.respondError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.Session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
	})
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleRegisterDeviceToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.Token == "" {
		h.respondError(w, r, apperrors.MissingFields([]string{"token"}))
		return
	}
	if err := h.accounts.RegisterDeviceToken(r.Context(), middleware.SessionToken(r.Context()), req.Token); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleLinkedAccounts(w http.ResponseWriter, r *http.Request) {
	google, twitch, err := h.accounts.LinkedAccounts(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"google": google,
		"twitch": twitch,
	})
}

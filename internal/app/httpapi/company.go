package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/halogen-labs/halogen/internal/app/domain/company"
	"github.com/halogen-labs/halogen/internal/app/services/companies"
	apperrors "github.com/halogen-labs/halogen/internal/errors"
	"github.com/halogen-labs/halogen/internal/middleware"
)

func companyID(r *http.Request) string {
	return mux.Vars(r)["company-id"]
}

func (h *Handler) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	details, err := h.companies.ListForUser(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, details)
}

func companyParams(f *form) (companies.UpsertParams, error) {
	fields, err := f.requireFields("full_name", "banner_desc")
	if err != nil {
		return companies.UpsertParams{}, err
	}

	var industry []string
	for _, v := range strings.Split(f.fields["industry"], ",") {
		if v = strings.TrimSpace(v); v != "" {
			industry = append(industry, v)
		}
	}
	return companies.UpsertParams{
		FullName:   fields["full_name"],
		BannerDesc: fields["banner_desc"],
		Industry:   industry,
		Logo:       f.image,
		LogoURL:    f.fields["logo_hidden"],
	}, nil
}

// handleCreateCompany creates a company from a multipart form; the creating
// user becomes its first admin.
func (h *Handler) handleCreateCompany(w http.ResponseWriter, r *http.Request) {
	f, err := parseForm(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	params, err := companyParams(f)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	c, err := h.companies.Create(r.Context(), middleware.UserID(r.Context()), params)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"company_id": c.ID})
}

func (h *Handler) handleUpdateCompany(w http.ResponseWriter, r *http.Request) {
	f, err := parseForm(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	params, err := companyParams(f)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	c, err := h.companies.Update(r.Context(), companyID(r), middleware.UserID(r.Context()), params)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	if err := h.companies.Delete(r.Context(), companyID(r), middleware.UserID(r.Context())); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListCompanyUsers(w http.ResponseWriter, r *http.Request) {
	detail, err := h.companies.Get(r.Context(), companyID(r), middleware.UserID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	users := make(map[string]company.MemberDetail, len(detail.Members))
	for _, m := range detail.Members {
		users[m.UserID] = m
	}
	respondJSON(w, http.StatusOK, users)
}

// handleMatchCreators ranks creators against the company's banner embedding.
func (h *Handler) handleMatchCreators(w http.ResponseWriter, r *http.Request) {
	vec, err := h.companies.BannerEmbedding(r.Context(), companyID(r), middleware.UserID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	matches, err := h.creators.SearchByEmbedding(r.Context(), vec, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, matches)
}

func (h *Handler) handleGetMemberProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.companies.GetMemberProfile(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleUpsertMemberProfile(w http.ResponseWriter, r *http.Request) {
	f, err := parseForm(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	fields, err := f.requireFields("given_name", "family_name", "pronouns")
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	profile, err := h.companies.UpsertMemberProfile(r.Context(), middleware.UserID(r.Context()), company.MemberProfile{
		GivenName:  fields["given_name"],
		FamilyName: fields["family_name"],
		Pronouns:   fields["pronouns"],
		AvatarPath: f.fields["pfp_hidden"],
	}, f.image)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GoogleEmail string `json:"google_email"`
		IsAdmin     bool   `json:"is_admin"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.GoogleEmail == "" {
		h.respondError(w, r, apperrors.MissingFields([]string{"google_email"}))
		return
	}

	err := h.companies.Invite(r.Context(), companyID(r), middleware.UserID(r.Context()), req.GoogleEmail, req.IsAdmin)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleUninvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GoogleEmail string `json:"google_email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if req.GoogleEmail == "" {
		h.respondError(w, r, apperrors.MissingFields([]string{"google_email"}))
		return
	}

	err := h.companies.Uninvite(r.Context(), companyID(r), middleware.UserID(r.Context()), req.GoogleEmail)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListInvites(w http.ResponseWriter, r *http.Request) {
	invites, err := h.companies.ListInvitationsFor(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, invites)
}

func (h *Handler) handleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	if err := h.companies.AcceptInvitation(r.Context(), companyID(r), middleware.UserID(r.Context())); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleRejectInvite(w http.ResponseWriter, r *http.Request) {
	if err := h.companies.RejectInvitation(r.Context(), companyID(r), middleware.UserID(r.Context())); err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

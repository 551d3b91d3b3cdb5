// Package httpapi mounts the REST surface, the WebSocket endpoint and static
// file serving on a gorilla/mux router.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/halogen-labs/halogen/internal/app/metrics"
	"github.com/halogen-labs/halogen/internal/app/services/accounts"
	"github.com/halogen-labs/halogen/internal/app/services/companies"
	"github.com/halogen-labs/halogen/internal/app/services/creators"
	"github.com/halogen-labs/halogen/internal/config"
	apperrors "github.com/halogen-labs/halogen/internal/errors"
	"github.com/halogen-labs/halogen/internal/filestore"
	"github.com/halogen-labs/halogen/internal/google"
	"github.com/halogen-labs/halogen/internal/middleware"
	"github.com/halogen-labs/halogen/internal/rpc"
	"github.com/halogen-labs/halogen/pkg/logger"
)

// Handler serves the HTTP API.
type Handler struct {
	cfg       *config.Config
	accounts  *accounts.Service
	creators  *creators.Service
	companies *companies.Service
	google    *google.Client
	files     *filestore.Store
	ws        *rpc.Server
	log       *logger.Logger
}

// NewHandler wires the services into one handler.
func NewHandler(
	cfg *config.Config,
	accountsSvc *accounts.Service,
	creatorsSvc *creators.Service,
	companiesSvc *companies.Service,
	googleClient *google.Client,
	files *filestore.Store,
	ws *rpc.Server,
	log *logger.Logger,
) *Handler {
	return &Handler{
		cfg:       cfg,
		accounts:  accountsSvc,
		creators:  creatorsSvc,
		companies: companiesSvc,
		google:    googleClient,
		files:     files,
		ws:        ws,
		log:       log,
	}
}

// Router builds the full middleware chain and route table.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	creator := api.PathPrefix("/creator").Subrouter()
	creator.HandleFunc("/profile", h.handleGetCreatorProfile).Methods(http.MethodGet)
	creator.HandleFunc("/profile", h.handleUpsertCreatorProfile).Methods(http.MethodPost)
	creator.HandleFunc("/search", h.handleSearchCreators).Methods(http.MethodGet)

	company := api.PathPrefix("/company").Subrouter()
	company.HandleFunc("", h.handleListCompanies).Methods(http.MethodGet)
	company.HandleFunc("", h.handleCreateCompany).Methods(http.MethodPost)
	company.HandleFunc("/invite", h.handleListInvites).Methods(http.MethodGet)
	company.HandleFunc("/user-profile", h.handleGetMemberProfile).Methods(http.MethodGet)
	company.HandleFunc("/user-profile", h.handleUpsertMemberProfile).Methods(http.MethodPost)
	company.HandleFunc("/{company-id}", h.handleUpdateCompany).Methods(http.MethodPatch)
	company.HandleFunc("/{company-id}", h.handleDeleteCompany).Methods(http.MethodDelete)
	company.HandleFunc("/{company-id}/user", h.handleListCompanyUsers).Methods(http.MethodGet)
	company.HandleFunc("/{company-id}/matches", h.handleMatchCreators).Methods(http.MethodGet)
	company.HandleFunc("/{company-id}/invite", h.handleInvite).Methods(http.MethodPost)
	company.HandleFunc("/{company-id}/invite", h.handleUninvite).Methods(http.MethodDelete)
	company.HandleFunc("/{company-id}/invite/accept", h.handleAcceptInvite).Methods(http.MethodGet)
	company.HandleFunc("/{company-id}/invite/reject", h.handleRejectInvite).Methods(http.MethodGet)

	googleAPI := api.PathPrefix("/google").Subrouter()
	googleAPI.HandleFunc("/login", h.handleLogin(providerGoogle)).Methods(http.MethodPost)
	googleAPI.HandleFunc("/attach", h.handleAttach(providerGoogle)).Methods(http.MethodPost)
	googleAPI.HandleFunc("/profile_photo", h.handleProfilePhotos).Methods(http.MethodGet)
	googleAPI.HandleFunc("/youtube/channel", h.handleYouTubeChannels).Methods(http.MethodGet)

	twitchAPI := api.PathPrefix("/twitch").Subrouter()
	twitchAPI.HandleFunc("/login", h.handleLogin(providerTwitch)).Methods(http.MethodPost)
	twitchAPI.HandleFunc("/attach", h.handleAttach(providerTwitch)).Methods(http.MethodPost)

	session := api.PathPrefix("/session").Subrouter()
	session.HandleFunc("/logout", h.handleLogout).Methods(http.MethodPost)
	session.HandleFunc("/device_token", h.handleRegisterDeviceToken).Methods(http.MethodPost)
	session.HandleFunc("/accounts", h.handleLinkedAccounts).Methods(http.MethodGet)

	storage := api.PathPrefix("/storage").Subrouter()
	storage.HandleFunc("/static/pfp/{name}", h.handleStaticFile(filestore.FolderProfilePicture)).Methods(http.MethodGet)
	storage.HandleFunc("/static/logo/{name}", h.handleStaticFile(filestore.FolderLogo)).Methods(http.MethodGet)

	r.HandleFunc("/ws", h.handleWS).Methods(http.MethodGet)

	auth := middleware.NewAuthMiddleware(h.accounts, h.cfg.Session.CookieName, []string{
		"/healthz",
		"/metrics",
		"/api/v1/google/login",
		"/api/v1/twitch/login",
		"/api/v1/storage/static/",
	}, h.log)
	rateLimiter := middleware.NewRateLimiter(h.cfg.RateLimit.RequestsPerSecond, h.cfg.RateLimit.Burst, h.log)
	cors := middleware.NewCORSMiddleware(h.cfg.CORSOrigins)

	// Auth runs before the limiter so authenticated traffic is keyed by
	// user id rather than client IP.
	r.Use(middleware.Logging(h.log))
	r.Use(mux.MiddlewareFunc(cors.Handler))
	r.Use(mux.MiddlewareFunc(auth.Handler))
	r.Use(mux.MiddlewareFunc(rateLimiter.Handler))

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	h.ws.Serve(w, r, middleware.UserID(r.Context()), middleware.SessionToken(r.Context()))
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func decodeJSON(r *http.Request, target interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return apperrors.BadRequest("malformed request body")
	}
	return nil
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if apperrors.HTTPStatus(err) >= 500 {
		h.log.WithError(err).Errorf("request %s %s failed", r.Method, r.URL.Path)
	}
	middleware.WriteError(w, err)
}

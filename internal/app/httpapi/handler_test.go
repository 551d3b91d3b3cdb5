package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/halogen-labs/halogen/internal/app/domain/user"
	"github.com/halogen-labs/halogen/internal/app/services/accounts"
	"github.com/halogen-labs/halogen/internal/app/services/chats"
	"github.com/halogen-labs/halogen/internal/app/services/companies"
	"github.com/halogen-labs/halogen/internal/app/services/creators"
	"github.com/halogen-labs/halogen/internal/app/services/notifications"
	"github.com/halogen-labs/halogen/internal/app/storage/memory"
	"github.com/halogen-labs/halogen/internal/config"
	"github.com/halogen-labs/halogen/internal/embedding"
	"github.com/halogen-labs/halogen/internal/filestore"
	"github.com/halogen-labs/halogen/internal/google"
	"github.com/halogen-labs/halogen/internal/rpc"
	"github.com/halogen-labs/halogen/pkg/logger"
)

// hashEncoder is a deterministic stand-in for the embedding API.
type hashEncoder struct{}

func (hashEncoder) Encode(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embedding.Dimensions)
	for i, r := range text {
		vec[i%embedding.Dimensions] += float32(r%13) / 13
	}
	return vec, nil
}

type harness struct {
	store  *memory.Store
	router http.Handler
	cfg    *config.Config
}

func newHarness(t *testing.T) *harness {
	return newHarnessFull(t, 1000, 1000, google.NewClient())
}

func newHarnessWithRateLimit(t *testing.T, rps, burst int) *harness {
	return newHarnessFull(t, rps, burst, google.NewClient())
}

func newHarnessFull(t *testing.T, rps, burst int, googleClient *google.Client) *harness {
	t.Helper()
	log := logger.NewDefault("test")
	store := memory.New()
	files := filestore.New(t.TempDir())
	cfg := &config.Config{
		Session:   config.SessionConfig{CookieName: "HALOGIN-SESSION", TTL: 90 * 24 * time.Hour},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: rps, Burst: burst},
	}

	accountsSvc := accounts.New(store, nil, cfg.Session.TTL, nil, nil, nil, log)
	creatorsSvc := creators.New(store, hashEncoder{}, files, log)
	companiesSvc := companies.New(store, hashEncoder{}, files, log)
	notifySvc := notifications.New(store, nil, log)
	chatsSvc := chats.New(store, notifySvc, log)

	registry := rpc.NewRegistry()
	chatsSvc.RegisterRPC(registry)
	ws := rpc.NewServer(registry, notifySvc, log)

	h := NewHandler(cfg, accountsSvc, creatorsSvc, companiesSvc, googleClient, files, ws, log)
	return &harness{store: store, router: h.Router(), cfg: cfg}
}

// login creates a user with a live session and returns its cookie.
func (hs *harness) login(t *testing.T) (string, *http.Cookie) {
	t.Helper()
	ctx := context.Background()
	u, err := hs.store.CreateUser(ctx)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := accounts.NewSessionToken()
	if err != nil {
		t.Fatalf("session token: %v", err)
	}
	sess := user.Session{Token: token, UserID: u.ID, ExpiresAt: time.Now().Add(time.Hour)}
	if err := hs.store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return u.ID, &http.Cookie{Name: hs.cfg.Session.CookieName, Value: token}
}

func (hs *harness) do(t *testing.T, method, path string, cookie *http.Cookie, contentType string, body *bytes.Buffer) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	hs.router.ServeHTTP(rec, req)
	return rec
}

func profileForm(t *testing.T, fields map[string]string, withImage bool) (string, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if withImage {
		fw, err := mw.CreateFormFile("pfp", "pfp.png")
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), A: 255})
			}
		}
		if err := png.Encode(fw, img); err != nil {
			t.Fatalf("encode png: %v", err)
		}
	}
	mw.Close()
	return mw.FormDataContentType(), &buf
}

func creatorFields(name string) map[string]string {
	return map[string]string{
		"given_name":    name,
		"family_name":   "Tester",
		"pronouns":      "they/them",
		"profile_desc":  "long-form video essays",
		"content_desc":  "tech deep dives",
		"audience_desc": "developers",
	}
}

func TestRequestsWithoutSessionAreRejected(t *testing.T) {
	hs := newHarness(t)
	rec := hs.do(t, http.MethodGet, "/api/v1/creator/profile", nil, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHealthzSkipsAuth(t *testing.T) {
	hs := newHarness(t)
	rec := hs.do(t, http.MethodGet, "/healthz", nil, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCreatorProfileRoundTrip(t *testing.T) {
	hs := newHarness(t)
	_, cookie := hs.login(t)

	rec := hs.do(t, http.MethodGet, "/api/v1/creator/profile", cookie, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before upsert, got %d", rec.Code)
	}

	ct, body := profileForm(t, creatorFields("Casey"), true)
	rec = hs.do(t, http.MethodPost, "/api/v1/creator/profile", cookie, ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert failed with %d: %s", rec.Code, rec.Body.String())
	}

	rec = hs.do(t, http.MethodGet, "/api/v1/creator/profile", cookie, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get failed with %d", rec.Code)
	}
	var profile struct {
		GivenName  string `json:"givenName"`
		AvatarPath string `json:"pfpPath"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if profile.GivenName != "Casey" {
		t.Fatalf("unexpected given name %q", profile.GivenName)
	}
	if !strings.HasPrefix(profile.AvatarPath, "static/pfp/") {
		t.Fatalf("unexpected avatar path %q", profile.AvatarPath)
	}
}

func TestCreatorProfileFromGooglePhoto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/people/me") {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"photos":[{"metadata":{"primary":true},"url":"http://%s/photo.png"}]}`, r.Host)
			return
		}
		img := image.NewRGBA(image.Rect(0, 0, 8, 8))
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				img.Set(x, y, color.RGBA{R: uint8(x * 30), B: uint8(y * 30), A: 255})
			}
		}
		png.Encode(w, img)
	}))
	defer srv.Close()

	hs := newHarnessFull(t, 1000, 1000, google.NewClientWithBaseURLs(srv.URL, srv.URL))
	userID, cookie := hs.login(t)

	acct := user.GoogleAccount{
		Sub:          "sub-1",
		Email:        "casey@example.com",
		UserID:       userID,
		AccessToken:  "at-live",
		ExpiresAt:    time.Now().Add(time.Hour),
		RefreshToken: "rt",
	}
	if err := hs.store.UpsertGoogleAccount(context.Background(), acct); err != nil {
		t.Fatalf("link google account: %v", err)
	}

	fields := creatorFields("Casey")
	fields["pfp_google"] = "sub-1"
	ct, body := profileForm(t, fields, false)
	rec := hs.do(t, http.MethodPost, "/api/v1/creator/profile", cookie, ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert failed with %d: %s", rec.Code, rec.Body.String())
	}

	var profile struct {
		AvatarPath string `json:"pfpPath"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if !strings.HasPrefix(profile.AvatarPath, "static/pfp/") {
		t.Fatalf("expected a stored avatar, got %q", profile.AvatarPath)
	}
}

func TestCreatorProfileMissingFieldsListsThem(t *testing.T) {
	hs := newHarness(t)
	_, cookie := hs.login(t)

	ct, body := profileForm(t, map[string]string{"given_name": "Casey"}, false)
	rec := hs.do(t, http.MethodPost, "/api/v1/creator/profile", cookie, ct, body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "family_name") {
		t.Fatalf("expected missing field listing, got %s", rec.Body.String())
	}
}

func TestCreatorSearchReturnsUpsertedProfiles(t *testing.T) {
	hs := newHarness(t)
	_, cookie := hs.login(t)

	ct, body := profileForm(t, creatorFields("Casey"), false)
	rec := hs.do(t, http.MethodPost, "/api/v1/creator/profile", cookie, ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert failed with %d: %s", rec.Code, rec.Body.String())
	}

	rec = hs.do(t, http.MethodGet, "/api/v1/creator/search?q=tech+deep+dives", cookie, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search failed with %d: %s", rec.Code, rec.Body.String())
	}
	var matches []struct {
		GivenName string  `json:"givenName"`
		Score     float64 `json:"score"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &matches); err != nil {
		t.Fatalf("decode matches: %v", err)
	}
	if len(matches) != 1 || matches[0].GivenName != "Casey" {
		t.Fatalf("unexpected matches %+v", matches)
	}
}

func TestCompanyLifecycleOverHTTP(t *testing.T) {
	hs := newHarness(t)
	adminID, adminCookie := hs.login(t)
	inviteeID, inviteeCookie := hs.login(t)

	// The invitee owns a Google identity the invitation will target.
	err := hs.store.UpsertGoogleAccount(context.Background(), user.GoogleAccount{
		Sub:    "sub-1",
		Email:  "invitee@example.com",
		UserID: inviteeID,
	})
	if err != nil {
		t.Fatalf("link google account: %v", err)
	}

	ct, body := profileForm(t, map[string]string{
		"full_name":   "Acme",
		"banner_desc": "We sponsor creators",
		"industry":    "games, hardware",
	}, false)
	rec := hs.do(t, http.MethodPost, "/api/v1/company", adminCookie, ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("create company failed with %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		CompanyID string `json:"company_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	inviteBody := bytes.NewBufferString(`{"google_email":"invitee@example.com","is_admin":false}`)
	rec = hs.do(t, http.MethodPost, "/api/v1/company/"+created.CompanyID+"/invite", adminCookie, "application/json", inviteBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("invite failed with %d: %s", rec.Code, rec.Body.String())
	}

	rec = hs.do(t, http.MethodGet, "/api/v1/company/invite", inviteeCookie, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list invites failed with %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), created.CompanyID) {
		t.Fatalf("expected invite for company, got %s", rec.Body.String())
	}

	rec = hs.do(t, http.MethodGet, "/api/v1/company/"+created.CompanyID+"/invite/accept", inviteeCookie, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept failed with %d: %s", rec.Code, rec.Body.String())
	}

	rec = hs.do(t, http.MethodGet, "/api/v1/company/"+created.CompanyID+"/user", inviteeCookie, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list users failed with %d: %s", rec.Code, rec.Body.String())
	}
	for _, id := range []string{adminID, inviteeID} {
		if !strings.Contains(rec.Body.String(), fmt.Sprintf("%q", id)) {
			t.Fatalf("expected member %s in listing, got %s", id, rec.Body.String())
		}
	}
}

func TestCompanyMatchesRankCreators(t *testing.T) {
	hs := newHarness(t)
	_, adminCookie := hs.login(t)
	_, creatorCookie := hs.login(t)

	ct, body := profileForm(t, creatorFields("Casey"), false)
	rec := hs.do(t, http.MethodPost, "/api/v1/creator/profile", creatorCookie, ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("creator upsert failed with %d: %s", rec.Code, rec.Body.String())
	}

	ct, body = profileForm(t, map[string]string{
		"full_name":   "Acme",
		"banner_desc": "We sponsor tech creators",
	}, false)
	rec = hs.do(t, http.MethodPost, "/api/v1/company", adminCookie, ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("create company failed with %d", rec.Code)
	}
	var created struct {
		CompanyID string `json:"company_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	rec = hs.do(t, http.MethodGet, "/api/v1/company/"+created.CompanyID+"/matches", adminCookie, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("matches failed with %d: %s", rec.Code, rec.Body.String())
	}
	var matches []struct {
		GivenName string `json:"givenName"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &matches); err != nil {
		t.Fatalf("decode matches: %v", err)
	}
	if len(matches) != 1 || matches[0].GivenName != "Casey" {
		t.Fatalf("unexpected matches %+v", matches)
	}

	rec = hs.do(t, http.MethodGet, "/api/v1/company/"+created.CompanyID+"/matches", creatorCookie, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("non-member should get 401, got %d", rec.Code)
	}
}

func TestCompanyMutationsRequireAdmin(t *testing.T) {
	hs := newHarness(t)
	_, adminCookie := hs.login(t)
	_, strangerCookie := hs.login(t)

	ct, body := profileForm(t, map[string]string{
		"full_name":   "Acme",
		"banner_desc": "We sponsor creators",
	}, false)
	rec := hs.do(t, http.MethodPost, "/api/v1/company", adminCookie, ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("create company failed with %d", rec.Code)
	}
	var created struct {
		CompanyID string `json:"company_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}

	inviteBody := bytes.NewBufferString(`{"google_email":"x@example.com","is_admin":false}`)
	rec = hs.do(t, http.MethodPost, "/api/v1/company/"+created.CompanyID+"/invite", strangerCookie, "application/json", inviteBody)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-member invite, got %d", rec.Code)
	}
}

func TestStaticFileServing(t *testing.T) {
	hs := newHarness(t)
	_, cookie := hs.login(t)

	ct, body := profileForm(t, creatorFields("Casey"), true)
	rec := hs.do(t, http.MethodPost, "/api/v1/creator/profile", cookie, ct, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert failed with %d: %s", rec.Code, rec.Body.String())
	}

	rec = hs.do(t, http.MethodGet, "/api/v1/creator/profile", cookie, "", nil)
	var profile struct {
		AvatarPath string `json:"pfpPath"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
		t.Fatalf("decode profile: %v", err)
	}

	name := strings.TrimPrefix(profile.AvatarPath, "static/pfp/")
	rec = hs.do(t, http.MethodGet, "/api/v1/storage/static/pfp/"+name, nil, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("static file fetch failed with %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		t.Fatalf("unexpected content type %q", ct)
	}

	rec = hs.do(t, http.MethodGet, "/api/v1/storage/static/pfp/does-not-exist.png", nil, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown file, got %d", rec.Code)
	}
}

func TestDeviceTokenRegistration(t *testing.T) {
	hs := newHarness(t)
	_, cookie := hs.login(t)

	rec := hs.do(t, http.MethodPost, "/api/v1/session/device_token", cookie, "application/json",
		bytes.NewBufferString(`{"token":"fcm-1"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("register device token failed with %d: %s", rec.Code, rec.Body.String())
	}

	tok, err := hs.store.GetSessionDeviceToken(context.Background(), cookie.Value)
	if err != nil {
		t.Fatalf("device token not stored: %v", err)
	}
	if tok.Token != "fcm-1" {
		t.Fatalf("unexpected token %q", tok.Token)
	}
}

func TestRateLimitIsKeyedByUser(t *testing.T) {
	hs := newHarnessWithRateLimit(t, 1, 1)
	_, cookieA := hs.login(t)
	_, cookieB := hs.login(t)

	// Both requests come from the same client address, so per-IP keying
	// would reject the second user here.
	if rec := hs.do(t, http.MethodGet, "/api/v1/session/accounts", cookieA, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("first user: status %d", rec.Code)
	}
	if rec := hs.do(t, http.MethodGet, "/api/v1/session/accounts", cookieB, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("second user: status %d", rec.Code)
	}
	if rec := hs.do(t, http.MethodGet, "/api/v1/session/accounts", cookieA, "", nil); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("repeat request: status %d, want 429", rec.Code)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	hs := newHarness(t)
	_, cookie := hs.login(t)

	rec := hs.do(t, http.MethodPost, "/api/v1/session/logout", cookie, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout failed with %d", rec.Code)
	}

	rec = hs.do(t, http.MethodGet, "/api/v1/creator/profile", cookie, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d", rec.Code)
	}
}

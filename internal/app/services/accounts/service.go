// Package accounts manages users, login sessions and linked OAuth identities.
package accounts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/halogen-labs/halogen/internal/app/domain/user"
	"github.com/halogen-labs/halogen/internal/app/storage"
	apperrors "github.com/halogen-labs/halogen/internal/errors"
	"github.com/halogen-labs/halogen/internal/oauth"
	"github.com/halogen-labs/halogen/internal/twitch"
	"github.com/halogen-labs/halogen/pkg/logger"
)

const (
	sessionTokenLength = 256

	// cacheTTL bounds how long a deleted session can still authenticate
	// through the cache.
	cacheTTL = time.Minute
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Stores is the persistence surface the service needs.
type Stores interface {
	storage.UserStore
	storage.SessionStore
	storage.OAuthAccountStore
	storage.DeviceTokenStore
}

// Service implements account and session management.
type Service struct {
	stores     Stores
	cache      *redis.Client
	sessionTTL time.Duration

	googleOAuth *oauth.Exchanger
	twitchOAuth *oauth.Exchanger
	twitchAPI   *twitch.Client

	log *logger.Logger
}

// New creates the service. cache may be nil, session lookups then always hit
// the database.
func New(stores Stores, cache *redis.Client, sessionTTL time.Duration,
	googleOAuth, twitchOAuth *oauth.Exchanger, twitchAPI *twitch.Client, log *logger.Logger) *Service {
	return &Service{
		stores:      stores,
		cache:       cache,
		sessionTTL:  sessionTTL,
		googleOAuth: googleOAuth,
		twitchOAuth: twitchOAuth,
		twitchAPI:   twitchAPI,
		log:         log,
	}
}

// NewSessionToken generates an opaque alphanumeric session token.
func NewSessionToken() (string, error) {
	buf := make([]byte, sessionTokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(buf), nil
}

// CreateSession issues a session for the user.
func (s *Service) CreateSession(ctx context.Context, userID string) (user.Session, error) {
	token, err := NewSessionToken()
	if err != nil {
		return user.Session{}, err
	}
	sess := user.Session{
		Token:     token,
		ExpiresAt: time.Now().UTC().Add(s.sessionTTL),
		UserID:    userID,
	}
	if err := s.stores.CreateSession(ctx, sess); err != nil {
		return user.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func cacheKey(token string) string { return "session:" + token }

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (user.User, error) {
	if token == "" {
		return user.User{}, apperrors.Unauthorized("missing session token")
	}

	if s.cache != nil {
		if userID, err := s.cache.Get(ctx, cacheKey(token)).Result(); err == nil && userID != "" {
			u, err := s.stores.GetUser(ctx, userID)
			if err == nil {
				return u, nil
			}
		}
	}

	u, err := s.stores.GetSessionUser(ctx, token, time.Now())
	if errors.Is(err, storage.ErrNotFound) {
		return user.User{}, apperrors.Unauthorized("invalid or expired session")
	}
	if err != nil {
		return user.User{}, fmt.Errorf("resolve session: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey(token), u.ID, cacheTTL).Err(); err != nil {
			s.log.WithError(err).Warnf("session cache write failed")
		}
	}
	return u, nil
}

// Logout deletes a session, its cache entry and its push registration, so a
// logged-out device stops receiving notifications.
func (s *Service) Logout(ctx context.Context, token string) error {
	if s.cache != nil {
		if err := s.cache.Del(ctx, cacheKey(token)).Err(); err != nil {
			s.log.WithError(err).Warnf("session cache delete failed")
		}
	}
	tok, err := s.stores.GetSessionDeviceToken(ctx, token)
	switch {
	case err == nil:
		if err := s.stores.DeleteDeviceToken(ctx, tok.Token); err != nil {
			s.log.WithError(err).Warnf("device token delete failed")
		}
	case !errors.Is(err, storage.ErrNotFound):
		s.log.WithError(err).Warnf("device token lookup failed")
	}
	return s.stores.DeleteSession(ctx, token)
}

// RegisterDeviceToken associates an FCM registration token with a session.
func (s *Service) RegisterDeviceToken(ctx context.Context, sessionToken, deviceToken string) error {
	if deviceToken == "" {
		return apperrors.BadRequest("device token is required")
	}
	err := s.stores.UpsertDeviceToken(ctx, user.DeviceToken{Token: deviceToken, SessionToken: sessionToken})
	if err != nil {
		return fmt.Errorf("register device token: %w", err)
	}
	return nil
}

// LoginGoogle exchanges an authorization code and logs in (or creates) the
// user owning the Google identity. When authedUserID is non-empty, the
// identity is attached to that user and no session is issued.
func (s *Service) LoginGoogle(ctx context.Context, code, redirectURI string, authedUserID string) (user.User, *user.Session, error) {
	tok, err := s.googleOAuth.Exchange(ctx, code, redirectURI)
	if err != nil {
		return user.User{}, nil, apperrors.BadRequest("could not exchange the provided code").WithDetails("cause", err.Error())
	}
	if tok.RefreshToken == "" {
		return user.User{}, nil, apperrors.BadRequest("token response carries no refresh token; request offline access")
	}

	rawID, err := oauth.IDTokenFrom(tok)
	if err != nil {
		return user.User{}, nil, apperrors.Upstream("google", err)
	}
	claims, err := oauth.ParseIDToken(rawID)
	if err != nil {
		return user.User{}, nil, apperrors.InvalidToken(err)
	}

	acct := user.GoogleAccount{
		Sub:          claims.Sub,
		Email:        claims.Email,
		AccessToken:  tok.AccessToken,
		ExpiresAt:    tok.Expiry,
		RefreshToken: tok.RefreshToken,
	}

	u, sess, err := s.resolveAccountUser(ctx, authedUserID, func() (string, error) {
		existing, err := s.stores.GetGoogleAccountBySub(ctx, claims.Sub)
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return existing.UserID, err
	})
	if err != nil {
		return user.User{}, nil, err
	}

	acct.UserID = u.ID
	if err := s.stores.UpsertGoogleAccount(ctx, acct); err != nil {
		return user.User{}, nil, fmt.Errorf("store google account: %w", err)
	}
	s.log.WithField("user_id", u.ID).Infof("google account %s linked", claims.Sub)
	return u, sess, nil
}

// LoginTwitch is the Twitch counterpart of LoginGoogle. Identity comes from
// the Helix users endpoint.
func (s *Service) LoginTwitch(ctx context.Context, code, redirectURI string, authedUserID string) (user.User, *user.Session, error) {
	tok, err := s.twitchOAuth.Exchange(ctx, code, redirectURI)
	if err != nil {
		return user.User{}, nil, apperrors.BadRequest("could not exchange the provided code").WithDetails("cause", err.Error())
	}
	if tok.RefreshToken == "" {
		return user.User{}, nil, apperrors.BadRequest("token response carries no refresh token")
	}

	identity, err := s.twitchAPI.CurrentUser(ctx, tok.AccessToken)
	if err != nil {
		return user.User{}, nil, apperrors.Upstream("twitch", err)
	}

	acct := user.TwitchAccount{
		ID:           identity.ID,
		Login:        identity.Login,
		AccessToken:  tok.AccessToken,
		ExpiresAt:    tok.Expiry,
		RefreshToken: tok.RefreshToken,
	}

	u, sess, err := s.resolveAccountUser(ctx, authedUserID, func() (string, error) {
		existing, err := s.stores.GetTwitchAccountByID(ctx, identity.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return "", nil
		}
		return existing.UserID, err
	})
	if err != nil {
		return user.User{}, nil, err
	}

	acct.UserID = u.ID
	if err := s.stores.UpsertTwitchAccount(ctx, acct); err != nil {
		return user.User{}, nil, fmt.Errorf("store twitch account: %w", err)
	}
	s.log.WithField("user_id", u.ID).Infof("twitch account %s linked", identity.ID)
	return u, sess, nil
}

// resolveAccountUser decides which user a provider identity belongs to.
// Attach keeps the authenticated user; login reuses the identity's existing
// owner or creates a fresh account.
func (s *Service) resolveAccountUser(ctx context.Context, authedUserID string, ownerOf func() (string, error)) (user.User, *user.Session, error) {
	if authedUserID != "" {
		owner, err := ownerOf()
		if err != nil {
			return user.User{}, nil, err
		}
		if owner != "" && owner != authedUserID {
			return user.User{}, nil, apperrors.Conflict("this account is already linked to another user")
		}
		u, err := s.stores.GetUser(ctx, authedUserID)
		if err != nil {
			return user.User{}, nil, fmt.Errorf("load user: %w", err)
		}
		return u, nil, nil
	}

	owner, err := ownerOf()
	if err != nil {
		return user.User{}, nil, err
	}

	var u user.User
	if owner != "" {
		u, err = s.stores.GetUser(ctx, owner)
	} else {
		u, err = s.stores.CreateUser(ctx)
	}
	if err != nil {
		return user.User{}, nil, fmt.Errorf("resolve user: %w", err)
	}

	sess, err := s.CreateSession(ctx, u.ID)
	if err != nil {
		return user.User{}, nil, err
	}
	return u, &sess, nil
}

// GoogleBearer returns a live access token for a linked Google account,
// refreshing and persisting rotated credentials when needed.
func (s *Service) GoogleBearer(ctx context.Context, userID, sub string) (string, error) {
	acct, err := s.stores.GetGoogleAccountBySub(ctx, sub)
	if errors.Is(err, storage.ErrNotFound) {
		return "", apperrors.NotFound("google account")
	}
	if err != nil {
		return "", err
	}
	if acct.UserID != userID {
		return "", apperrors.NotFound("google account")
	}

	return s.googleOAuth.Fresh(ctx, oauth.Credentials{
		AccessToken:  acct.AccessToken,
		ExpiresAt:    acct.ExpiresAt,
		RefreshToken: acct.RefreshToken,
	}, func(c oauth.Credentials) error {
		acct.AccessToken = c.AccessToken
		acct.ExpiresAt = c.ExpiresAt
		acct.RefreshToken = c.RefreshToken
		return s.stores.UpsertGoogleAccount(ctx, acct)
	})
}

// TwitchBearer is the Twitch counterpart of GoogleBearer.
func (s *Service) TwitchBearer(ctx context.Context, userID, accountID string) (string, error) {
	acct, err := s.stores.GetTwitchAccountByID(ctx, accountID)
	if errors.Is(err, storage.ErrNotFound) {
		return "", apperrors.NotFound("twitch account")
	}
	if err != nil {
		return "", err
	}
	if acct.UserID != userID {
		return "", apperrors.NotFound("twitch account")
	}

	return s.twitchOAuth.Fresh(ctx, oauth.Credentials{
		AccessToken:  acct.AccessToken,
		ExpiresAt:    acct.ExpiresAt,
		RefreshToken: acct.RefreshToken,
	}, func(c oauth.Credentials) error {
		acct.AccessToken = c.AccessToken
		acct.ExpiresAt = c.ExpiresAt
		acct.RefreshToken = c.RefreshToken
		return s.stores.UpsertTwitchAccount(ctx, acct)
	})
}

// LinkedAccounts returns the client-visible view of the user's linked
// provider identities.
func (s *Service) LinkedAccounts(ctx context.Context, userID string) ([]user.GoogleAccountMeta, []user.TwitchAccountMeta, error) {
	googles, err := s.stores.ListGoogleAccounts(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	twitches, err := s.stores.ListTwitchAccounts(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	gm := make([]user.GoogleAccountMeta, len(googles))
	for i, a := range googles {
		gm[i] = a.Meta()
	}
	tm := make([]user.TwitchAccountMeta, len(twitches))
	for i, a := range twitches {
		tm[i] = a.Meta()
	}
	return gm, tm, nil
}

// GoogleEmails lists the emails of the user's linked Google accounts.
func (s *Service) GoogleEmails(ctx context.Context, userID string) ([]string, error) {
	return s.stores.ListGoogleEmails(ctx, userID)
}

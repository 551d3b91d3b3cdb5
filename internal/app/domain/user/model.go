// Package user defines accounts, sessions and linked OAuth identities.
package user

import "time"

// User is a platform account. Everything else hangs off its ID; the profile
// data lives in the creator and company domains.
type User struct {
	ID        string    `json:"id" db:"id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Session is a logged-in browser session identified by an opaque token.
type Session struct {
	Token     string    `json:"-" db:"token"`
	ExpiresAt time.Time `json:"expiresAt" db:"expires_at"`
	UserID    string    `json:"userId" db:"user_id"`
}

// Expired reports whether the session is past its expiry.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Provider identifies an OAuth provider.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderTwitch Provider = "twitch"
)

// GoogleAccount is a Google identity attached to a user, keyed by the
// OpenID Connect subject.
type GoogleAccount struct {
	Sub          string    `json:"sub" db:"sub"`
	Email        string    `json:"email" db:"email"`
	AccessToken  string    `json:"-" db:"access_token"`
	ExpiresAt    time.Time `json:"-" db:"expires_at"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	UserID       string    `json:"userId" db:"user_id"`
}

// Meta returns the client-visible part of the account.
func (a GoogleAccount) Meta() GoogleAccountMeta {
	return GoogleAccountMeta{Sub: a.Sub, Email: a.Email}
}

// GoogleAccountMeta is the serializable subset of a GoogleAccount.
type GoogleAccountMeta struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
}

// TwitchAccount is a Twitch identity attached to a user, keyed by the
// Twitch user ID.
type TwitchAccount struct {
	ID           string    `json:"id" db:"id"`
	Login        string    `json:"login" db:"login"`
	AccessToken  string    `json:"-" db:"access_token"`
	ExpiresAt    time.Time `json:"-" db:"expires_at"`
	RefreshToken string    `json:"-" db:"refresh_token"`
	UserID       string    `json:"userId" db:"user_id"`
}

// Meta returns the client-visible part of the account.
func (a TwitchAccount) Meta() TwitchAccountMeta {
	return TwitchAccountMeta{ID: a.ID, Login: a.Login}
}

// TwitchAccountMeta is the serializable subset of a TwitchAccount.
type TwitchAccountMeta struct {
	ID    string `json:"id"`
	Login string `json:"login"`
}

// DeviceToken maps an FCM registration token to the session that registered
// it. Device tokens die with their session.
type DeviceToken struct {
	Token        string `json:"token" db:"token"`
	SessionToken string `json:"-" db:"session_token"`
}

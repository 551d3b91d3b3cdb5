// Package oauth wraps the provider OAuth flows: authorization-code exchange,
// token refresh and ID-token claim extraction.
package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/twitch"

	"github.com/halogen-labs/halogen/internal/config"
)

// refreshBuffer is subtracted from token expiry so a token about to lapse
// mid-request is refreshed up front.
const refreshBuffer = time.Second

// Credentials is an access/refresh token pair as persisted per linked account.
type Credentials struct {
	AccessToken  string
	ExpiresAt    time.Time
	RefreshToken string
}

// Stale reports whether the access token needs a refresh before use.
func (c Credentials) Stale(now time.Time) bool {
	return !now.Add(refreshBuffer).Before(c.ExpiresAt)
}

// Exchanger runs the OAuth flows of one provider.
type Exchanger struct {
	cfg *oauth2.Config
}

// NewGoogle builds an Exchanger for Google's OAuth endpoints.
func NewGoogle(p config.OAuthProvider) *Exchanger {
	return &Exchanger{cfg: &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Endpoint:     google.Endpoint,
	}}
}

// NewTwitch builds an Exchanger for Twitch's OAuth endpoints.
func NewTwitch(p config.OAuthProvider) *Exchanger {
	return &Exchanger{cfg: &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Endpoint:     twitch.Endpoint,
	}}
}

// NewWithEndpoint builds an Exchanger against a custom token endpoint, for
// tests.
func NewWithEndpoint(p config.OAuthProvider, tokenURL string) *Exchanger {
	return &Exchanger{cfg: &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}}
}

// ClientID returns the provider client ID, needed by Twitch API calls.
func (e *Exchanger) ClientID() string { return e.cfg.ClientID }

// Exchange trades an authorization code for tokens. The redirect URI must
// match the one the client used to obtain the code.
func (e *Exchanger) Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error) {
	tok, err := e.cfg.Exchange(ctx, code, oauth2.SetAuthURLParam("redirect_uri", redirectURI))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// Refresh trades a refresh token for a fresh access token. Providers may
// rotate the refresh token; when the response omits one, the caller keeps
// the old token.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	src := e.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	return tok, nil
}

// Fresh returns a usable access token for stored credentials, refreshing
// them first when stale. The persist callback stores rotated credentials;
// a refresh response without a new refresh token keeps the stored one.
func (e *Exchanger) Fresh(ctx context.Context, creds Credentials, persist func(Credentials) error) (string, error) {
	if !creds.Stale(time.Now()) {
		return creds.AccessToken, nil
	}

	tok, err := e.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		return "", err
	}

	rotated := Credentials{
		AccessToken:  tok.AccessToken,
		ExpiresAt:    tok.Expiry,
		RefreshToken: tok.RefreshToken,
	}
	if rotated.RefreshToken == "" {
		rotated.RefreshToken = creds.RefreshToken
	}
	if err := persist(rotated); err != nil {
		return "", fmt.Errorf("persist rotated credentials: %w", err)
	}
	return rotated.AccessToken, nil
}

// IDClaims is the subset of OpenID Connect ID-token claims the login flow
// needs.
type IDClaims struct {
	Sub   string
	Email string
}

// ParseIDToken extracts claims from an ID token without verifying its
// signature. The token arrives fresh over TLS from the provider's own token
// endpoint, which is the trust anchor here.
func ParseIDToken(raw string) (IDClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return IDClaims{}, fmt.Errorf("parse id token: %w", err)
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return IDClaims{}, fmt.Errorf("id token has no sub claim")
	}
	email, _ := claims["email"].(string)
	return IDClaims{Sub: sub, Email: email}, nil
}

// IDTokenFrom pulls the id_token field off a token response.
func IDTokenFrom(tok *oauth2.Token) (string, error) {
	raw, _ := tok.Extra("id_token").(string)
	if raw == "" {
		return "", fmt.Errorf("token response has no id_token")
	}
	return raw, nil
}

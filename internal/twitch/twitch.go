// Package twitch calls the Twitch Helix API on behalf of linked accounts.
package twitch

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/halogen-labs/halogen/internal/httputil"
)

const helixBaseURL = "https://api.twitch.tv/helix"

// Identity is the Helix view of the authenticated user.
type Identity struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"displayName"`
	ProfileImageURL string `json:"profileImageUrl"`
}

// Client calls the Helix API. Helix requires the app's Client-Id header next
// to the user bearer token.
type Client struct {
	api *httputil.Client
}

// NewClient creates a Client against the production Helix endpoint.
func NewClient(clientID string) *Client {
	return NewClientWithBaseURL(helixBaseURL, clientID)
}

// NewClientWithBaseURL creates a Client against a custom endpoint, for tests.
func NewClientWithBaseURL(baseURL, clientID string) *Client {
	return &Client{api: httputil.NewClient(httputil.ClientConfig{
		BaseURL: baseURL,
		Headers: map[string]string{"Client-Id": clientID},
	})}
}

// CurrentUser resolves the bearer token to its Twitch user.
func (c *Client) CurrentUser(ctx context.Context, bearer string) (Identity, error) {
	resp, err := c.api.Get(ctx, "/users", bearer)
	if err != nil {
		return Identity{}, err
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return Identity{}, fmt.Errorf("fetch twitch user: %w", err)
	}

	u := gjson.GetBytes(body, "data.0")
	if !u.Exists() {
		return Identity{}, fmt.Errorf("twitch user response is empty")
	}
	return Identity{
		ID:              u.Get("id").String(),
		Login:           u.Get("login").String(),
		DisplayName:     u.Get("display_name").String(),
		ProfileImageURL: u.Get("profile_image_url").String(),
	}, nil
}

// Package google calls the Google People and YouTube Data APIs on behalf of
// linked accounts.
package google

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/halogen-labs/halogen/internal/httputil"
)

const (
	peopleBaseURL  = "https://people.googleapis.com/v1"
	youtubeBaseURL = "https://www.googleapis.com/youtube/v3"
)

// Client calls the Google APIs with a per-request bearer token.
type Client struct {
	people  *httputil.Client
	youtube *httputil.Client
}

// NewClient creates a Client against the production Google endpoints.
func NewClient() *Client {
	return &Client{
		people:  httputil.NewClient(httputil.ClientConfig{BaseURL: peopleBaseURL}),
		youtube: httputil.NewClient(httputil.ClientConfig{BaseURL: youtubeBaseURL}),
	}
}

// NewClientWithBaseURLs creates a Client against custom endpoints, for tests.
func NewClientWithBaseURLs(peopleURL, youtubeURL string) *Client {
	return &Client{
		people:  httputil.NewClient(httputil.ClientConfig{BaseURL: peopleURL}),
		youtube: httputil.NewClient(httputil.ClientConfig{BaseURL: youtubeURL}),
	}
}

// Photo is one profile photo of an account.
type Photo struct {
	Primary bool   `json:"primary"`
	URL     string `json:"url"`
}

// ListPhotos returns the account's profile photos.
func (c *Client) ListPhotos(ctx context.Context, bearer string) ([]Photo, error) {
	resp, err := c.people.Get(ctx, "/people/me?personFields=photos", bearer)
	if err != nil {
		return nil, err
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("fetch profile photos: %w", err)
	}

	var photos []Photo
	gjson.GetBytes(body, "photos").ForEach(func(_, photo gjson.Result) bool {
		photos = append(photos, Photo{
			Primary: photo.Get("metadata.primary").Bool(),
			URL:     photo.Get("url").String(),
		})
		return true
	})
	return photos, nil
}

// PrimaryPhotoURL returns the URL of the account's primary profile photo.
func (c *Client) PrimaryPhotoURL(ctx context.Context, bearer string) (string, error) {
	resp, err := c.people.Get(ctx, "/people/me?personFields=photos", bearer)
	if err != nil {
		return "", err
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return "", fmt.Errorf("fetch profile photos: %w", err)
	}

	// Prefer the photo marked primary, fall back to the first one.
	photos := gjson.GetBytes(body, "photos")
	var url string
	photos.ForEach(func(_, photo gjson.Result) bool {
		if url == "" {
			url = photo.Get("url").String()
		}
		if photo.Get("metadata.primary").Bool() {
			url = photo.Get("url").String()
			return false
		}
		return true
	})
	if url == "" {
		return "", fmt.Errorf("account has no profile photo")
	}
	return url, nil
}

// Channel is a YouTube channel owned by the account.
type Channel struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnailUrl"`
	Subscribers  int64  `json:"subscribers"`
	VideoCount   int64  `json:"videoCount"`
	ViewCount    int64  `json:"viewCount"`
}

// ListChannels returns the channels owned by the account.
func (c *Client) ListChannels(ctx context.Context, bearer string) ([]Channel, error) {
	resp, err := c.youtube.Get(ctx, "/channels?part=snippet%2Cstatistics&mine=true", bearer)
	if err != nil {
		return nil, err
	}
	body, err := httputil.ReadBody(resp)
	if err != nil {
		return nil, fmt.Errorf("fetch youtube channels: %w", err)
	}

	var channels []Channel
	gjson.GetBytes(body, "items").ForEach(func(_, item gjson.Result) bool {
		channels = append(channels, Channel{
			ID:           item.Get("id").String(),
			Title:        item.Get("snippet.title").String(),
			Description:  item.Get("snippet.description").String(),
			ThumbnailURL: item.Get("snippet.thumbnails.default.url").String(),
			Subscribers:  item.Get("statistics.subscriberCount").Int(),
			VideoCount:   item.Get("statistics.videoCount").Int(),
			ViewCount:    item.Get("statistics.viewCount").Int(),
		})
		return true
	})
	return channels, nil
}

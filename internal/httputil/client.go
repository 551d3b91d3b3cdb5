// Package httputil provides the HTTP client used for calls to the external
// provider APIs (Google, Twitch, Voyage, FCM).
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a thin JSON client for one upstream API. Headers set on the
// client are attached to every request.
type Client struct {
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// Headers are attached to every request, e.g. a Twitch Client-Id.
	Headers map[string]string
}

// NewClient creates a client for the API rooted at cfg.BaseURL.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		headers:    headers,
	}
}

// Do executes a request against path with an optional JSON body. A non-empty
// bearer token is sent as the Authorization header.
func (c *Client) Do(ctx context.Context, method, path, bearer string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Get performs an authenticated GET.
func (c *Client) Get(ctx context.Context, path, bearer string) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, path, bearer, nil)
}

// Post performs an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path, bearer string, body interface{}) (*http.Response, error) {
	return c.Do(ctx, http.MethodPost, path, bearer, body)
}

// ReadBody drains and returns the response body, failing on non-2xx status.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return data, fmt.Errorf("upstream returned status %d: %s", resp.StatusCode, truncate(data, 256))
	}
	return data, nil
}

// DecodeResponse decodes a JSON response body into target, failing on
// non-2xx status.
func DecodeResponse(resp *http.Response, target interface{}) error {
	data, err := ReadBody(resp)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}

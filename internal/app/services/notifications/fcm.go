package notifications

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/halogen-labs/halogen/internal/app/domain/notification"
	"github.com/halogen-labs/halogen/internal/httputil"
)

const fcmScope = "https://www.googleapis.com/auth/firebase.messaging"

// SendError classifies a failed delivery.
type SendError struct {
	// InvalidToken marks tokens FCM no longer recognises; they get deleted.
	InvalidToken bool
	// RetryAfter is the server-requested backoff, zero when none was given.
	RetryAfter time.Duration
	Err        error
}

func (e *SendError) Error() string { return e.Err.Error() }

func (e *SendError) Unwrap() error { return e.Err }

// Sender delivers device messages.
type Sender interface {
	Send(ctx context.Context, msg notification.DeviceMessage) error
}

// FCMSender sends through the FCM HTTP v1 API, authenticated with a service
// account.
type FCMSender struct {
	api    *httputil.Client
	tokens oauth2.TokenSource
	path   string
}

// NewFCMSender builds a sender for the project using service-account
// credentials from credentialsFile.
func NewFCMSender(ctx context.Context, projectID, credentialsFile string) (*FCMSender, error) {
	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read fcm credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("parse fcm credentials: %w", err)
	}
	return &FCMSender{
		api:    httputil.NewClient(httputil.ClientConfig{BaseURL: "https://fcm.googleapis.com"}),
		tokens: creds.TokenSource,
		path:   fmt.Sprintf("/v1/projects/%s/messages:send", projectID),
	}, nil
}

// Send delivers one message. Failures come back as *SendError.
func (s *FCMSender) Send(ctx context.Context, msg notification.DeviceMessage) error {
	tok, err := s.tokens.Token()
	if err != nil {
		return &SendError{Err: fmt.Errorf("fcm access token: %w", err)}
	}

	body := map[string]interface{}{
		"message": map[string]interface{}{
			"token": msg.Token,
			"notification": map[string]string{
				"title": msg.Payload.Title,
				"body":  msg.Payload.Body,
			},
			"data": map[string]string{
				// FCM data values must be strings; the payload rides as JSON.
				"payload": string(msg.Payload.Data),
			},
		},
	}

	resp, err := s.api.Post(ctx, s.path, tok.AccessToken, body)
	if err != nil {
		return &SendError{Err: err}
	}
	raw, readErr := httputil.ReadBody(resp)
	if readErr == nil {
		return nil
	}

	sendErr := &SendError{Err: fmt.Errorf("fcm send: %w", readErr)}
	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		status := gjson.GetBytes(raw, "error.details.#.errorCode")
		if resp.StatusCode == http.StatusNotFound || statusContains(status, "UNREGISTERED") || statusContains(status, "INVALID_ARGUMENT") {
			sendErr.InvalidToken = true
		}
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		sendErr.RetryAfter = retryAfter(resp)
	}
	return sendErr
}

func statusContains(list gjson.Result, code string) bool {
	found := false
	list.ForEach(func(_, v gjson.Result) bool {
		if v.String() == code {
			found = true
			return false
		}
		return true
	})
	return found
}

// retryAfter parses the Retry-After header as either seconds or an HTTP
// date. The returned delay is never negative.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}

package httputil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendsBearerAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("Client-Id"); got != "client-1" {
			t.Errorf("client-id = %q", got)
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		BaseURL: srv.URL,
		Headers: map[string]string{"Client-Id": "client-1"},
	})

	resp, err := c.Get(context.Background(), "/users", "tok")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	var out struct {
		OK bool `json:"ok"`
	}
	if err := DecodeResponse(resp, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.OK {
		t.Fatal("unexpected body")
	}
}

func TestReadBodyFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{BaseURL: srv.URL})
	resp, err := c.Get(context.Background(), "/", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := ReadBody(resp); err == nil {
		t.Fatal("expected error for 403 response")
	}
}

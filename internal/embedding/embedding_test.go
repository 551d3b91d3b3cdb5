package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestVoyageEncode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("authorization = %q", got)
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "voyage-large-2" || len(req.Input) != 1 {
			t.Errorf("request = %+v", req)
		}
		w.Write([]byte(`{"object":"list","data":[{"object":"embedding","embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	enc := NewVoyageWithBaseURL(srv.URL, "key-1", "voyage-large-2")
	vec, err := enc.Encode(context.Background(), "some profile text")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Fatalf("vector = %v", vec)
	}
}

func TestVoyageEncodeEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer srv.Close()

	enc := NewVoyageWithBaseURL(srv.URL, "key-1", "voyage-large-2")
	if _, err := enc.Encode(context.Background(), "text"); err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestFormatCreatorProfile(t *testing.T) {
	text := FormatCreatorProfile("indie games", "speedruns", "competitive players")
	for _, want := range []string{
		"# Content Creator Profile Description:\nindie games",
		"# Content Creator Content Description:\nspeedruns",
		"# Content Creator Audience Description:\ncompetitive players",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("formatted text missing %q:\n%s", want, text)
		}
	}
}

func TestFormatCompanyBanner(t *testing.T) {
	text := FormatCompanyBanner("we make snacks")
	if text != "Question: Who are we?\nAnswer: we make snacks" {
		t.Fatalf("formatted text = %q", text)
	}
}

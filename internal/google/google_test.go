package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPrimaryPhotoURLPrefersPrimary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"photos": [
				{"url": "https://img/other", "metadata": {"primary": false}},
				{"url": "https://img/primary", "metadata": {"primary": true}}
			]
		}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURLs(srv.URL, srv.URL)
	url, err := c.PrimaryPhotoURL(context.Background(), "tok")
	if err != nil {
		t.Fatalf("primary photo: %v", err)
	}
	if url != "https://img/primary" {
		t.Fatalf("url = %q", url)
	}
}

func TestPrimaryPhotoURLFailsWithoutPhotos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURLs(srv.URL, srv.URL)
	if _, err := c.PrimaryPhotoURL(context.Background(), "tok"); err == nil {
		t.Fatal("expected error for account without photos")
	}
}

func TestListChannels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mine") != "true" {
			t.Errorf("mine = %q", r.URL.Query().Get("mine"))
		}
		w.Write([]byte(`{
			"items": [{
				"id": "UC123",
				"snippet": {
					"title": "Speedruns Daily",
					"description": "daily runs",
					"thumbnails": {"default": {"url": "https://img/thumb"}}
				},
				"statistics": {"subscriberCount": "42000", "videoCount": "310", "viewCount": "9000000"}
			}]
		}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURLs(srv.URL, srv.URL)
	channels, err := c.ListChannels(context.Background(), "tok")
	if err != nil {
		t.Fatalf("list channels: %v", err)
	}
	if len(channels) != 1 {
		t.Fatalf("got %d channels, want 1", len(channels))
	}
	ch := channels[0]
	if ch.ID != "UC123" || ch.Title != "Speedruns Daily" || ch.Subscribers != 42000 {
		t.Fatalf("channel = %+v", ch)
	}
}

package plex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(srv.Client(), zerolog.Nop(), srv.URL, "test-token", "dev")
	return client, srv
}

func TestGetLibrarySections(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/library/sections" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Plex-Token") != "test-token" {
			t.Errorf("missing plex token header")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"MediaContainer": {"Directory": [
			{"key": "1", "title": "Movies", "type": "movie"},
			{"key": "2", "title": "TV Shows", "type": "show"}
		]}}`))
	})

	sections, err := client.GetLibrarySections(context.Background())
	if err != nil {
		t.Fatalf("GetLibrarySections: %v", err)
	}
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	if sections[1].Key != 2 || sections[1].Title != "TV Shows" || sections[1].Type != "show" {
		t.Errorf("unexpected section: %+v", sections[1])
	}
}

func TestRefreshSection(t *testing.T) {
	var hit string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hit = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	if err := client.RefreshSection(context.Background(), 3); err != nil {
		t.Fatalf("RefreshSection: %v", err)
	}
	if hit != "/library/sections/3/refresh" {
		t.Errorf("refresh hit %q", hit)
	}
}

func TestRefreshPathEscapesQuery(t *testing.T) {
	var raw string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	})

	if err := client.RefreshPath(context.Background(), 1, "/media/TV Shows/Andor"); err != nil {
		t.Fatalf("RefreshPath: %v", err)
	}
	if raw != "path=%2Fmedia%2FTV+Shows%2FAndor" {
		t.Errorf("query = %q", raw)
	}
}

func TestTestConnectionFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	if err := client.TestConnection(context.Background()); err == nil {
		t.Fatal("expected error for unauthorized server")
	}
}

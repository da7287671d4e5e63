package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolvePrefersEdgeHeaders(t *testing.T) {
	// Header hits must never reach the lookup endpoint.
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected lookup request for %s", r.URL.Path)
	}))
	defer backend.Close()

	s := NewService(backend.URL)
	h := http.Header{}
	h.Set("CF-IPCountry", "SE")
	h.Set("CF-IPCity", "Stockholm")

	loc := s.Resolve(context.Background(), "203.0.113.7:51234", h)
	if loc.Country != "SE" || loc.City != "Stockholm" {
		t.Fatalf("location = %+v", loc)
	}
}

func TestResolveFallsBackToLookup(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/203.0.113.7" {
			t.Errorf("lookup path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"country":"DE","city":"Berlin"}`))
	}))
	defer backend.Close()

	s := NewService(backend.URL)
	loc := s.Resolve(context.Background(), "203.0.113.7:51234", http.Header{})
	if loc.Country != "DE" || loc.City != "Berlin" {
		t.Fatalf("location = %+v", loc)
	}
}

func TestResolveDegradesQuietly(t *testing.T) {
	// No headers and no lookup configured: empty, no error surface.
	s := NewService("")
	loc := s.Resolve(context.Background(), "203.0.113.7:51234", http.Header{})
	if loc != (Location{}) {
		t.Fatalf("location = %+v, want empty", loc)
	}

	// Backend failures degrade the same way.
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer backend.Close()

	s = NewService(backend.URL)
	loc = s.Resolve(context.Background(), "203.0.113.7:51234", http.Header{})
	if loc != (Location{}) {
		t.Fatalf("location = %+v, want empty", loc)
	}
}

func TestResolveBadPayload(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer backend.Close()

	s := NewService(backend.URL)
	loc := s.Resolve(context.Background(), "203.0.113.7:51234", http.Header{})
	if loc != (Location{}) {
		t.Fatalf("location = %+v, want empty", loc)
	}
}

package tmdb

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sydlexius/playbill/internal/provider"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWithBaseURL("test-key", provider.NewRateLimiterMap(), logger, srv.URL)
}

func TestMovieCredits(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/603/credits" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("api_key") != "test-key" {
			t.Error("missing api key")
		}
		_, _ = w.Write([]byte(`{"id":603,"cast":[
			{"id":6384,"name":"Keanu Reeves","original_name":"Keanu Reeves","character":"Neo","order":0,"gender":2,"popularity":40.5},
			{"id":2975,"name":"Laurence Fishburne","original_name":"Laurence Fishburne","character":"Morpheus","order":1}
		]}`))
	}))

	credits, err := c.MovieCredits(context.Background(), "603")
	if err != nil {
		t.Fatalf("MovieCredits: %v", err)
	}
	if len(credits) != 2 {
		t.Fatalf("len = %d", len(credits))
	}
	if credits[0].Character != "Neo" || credits[0].Order != 0 {
		t.Errorf("first credit = %+v", credits[0])
	}
}

func TestSeriesCreditsMergesGuests(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tv/1396":
			_, _ = w.Write([]byte(`{"id":1396,"credits":{"cast":[
				{"id":17419,"name":"Bryan Cranston","character":"Walter White","order":0}
			]}}`))
		case "/tv/1396/aggregate_credits":
			_, _ = w.Write([]byte(`{"cast":[
				{"id":17419,"name":"Bryan Cranston","order":0,"roles":[{"character":"Walter White","episode_count":62}]},
				{"id":84497,"name":"Jonathan Banks","order":5,"roles":[{"character":"Mike Ehrmantraut","episode_count":30}]}
			]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))

	credits, err := c.SeriesCredits(context.Background(), "1396")
	if err != nil {
		t.Fatalf("SeriesCredits: %v", err)
	}
	if len(credits) != 2 {
		t.Fatalf("len = %d", len(credits))
	}
	if credits[0].ID != 17419 || credits[0].Order != 0 {
		t.Errorf("main credit = %+v", credits[0])
	}
	if credits[1].ID != 84497 || credits[1].Order != guestOrder {
		t.Errorf("guest credit should rank behind main cast: %+v", credits[1])
	}
	if credits[1].Character != "Mike Ehrmantraut" {
		t.Errorf("guest character = %q", credits[1].Character)
	}
}

func TestFindPersonByExternalID(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/find/nm0000206" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("external_source") != "imdb_id" {
			t.Error("missing external_source")
		}
		_, _ = w.Write([]byte(`{"person_results":[{"id":6384,"name":"Keanu Reeves","gender":2}]}`))
	}))

	p, err := c.FindPersonByExternalID(context.Background(), "nm0000206")
	if err != nil {
		t.Fatalf("FindPersonByExternalID: %v", err)
	}
	if p.ID != 6384 || p.Name != "Keanu Reeves" {
		t.Errorf("person = %+v", p)
	}
}

func TestFindPersonNotFound(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"person_results":[]}`))
	}))

	_, err := c.FindPersonByExternalID(context.Background(), "nm9999999")
	var notFound *provider.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusNotFound, func(err error) bool {
			var e *provider.ErrNotFound
			return errors.As(err, &e)
		}},
		{http.StatusUnauthorized, func(err error) bool {
			var e *provider.ErrAuthRequired
			return errors.As(err, &e)
		}},
		{http.StatusTooManyRequests, func(err error) bool {
			var e *provider.ErrProviderUnavailable
			return errors.As(err, &e) && e.RetryAfter > 0
		}},
		{http.StatusInternalServerError, func(err error) bool {
			var e *provider.ErrProviderUnavailable
			return errors.As(err, &e)
		}},
	}
	for _, tt := range tests {
		c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))
		_, err := c.MovieCredits(context.Background(), "1")
		if err == nil || !tt.check(err) {
			t.Errorf("status %d: unexpected error %v", tt.status, err)
		}
	}
}

func TestMissingAPIKey(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewWithBaseURL("", provider.NewRateLimiterMap(), logger, "http://localhost:0")
	_, err := c.MovieCredits(context.Background(), "1")
	var auth *provider.ErrAuthRequired
	if !errors.As(err, &auth) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
}

package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MarcoPoloResearchLab/movieclub/internal/tmdb"
)

const upstreamSearchBody = `{"page":1,"results":[{"id":603,"title":"The Matrix","release_date":"1999-03-31","poster_path":"/matrix.jpg","overview":"Neo."}],"total_pages":1,"total_results":1}`

func withSearchUpstream(t *testing.T, status int) harnessOption {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(upstreamSearchBody))
	}))
	t.Cleanup(upstream.Close)
	return func(cfg *tmdb.ClientConfig) {
		cfg.APIKey = "key"
		cfg.BaseURL = upstream.URL
	}
}

func TestSearchProxyErrors(t *testing.T) {
	harness := newTestHarness(t)

	recorder := harness.do(t, http.MethodGet, "/api/tmdb", nil, nil)
	if body := decodeBody[envelope](t, recorder); recorder.Code != http.StatusBadRequest || body.Error != "Query parameter is required" {
		t.Fatalf("expected missing query error, got %d %#v", recorder.Code, body)
	}

	recorder = harness.do(t, http.MethodGet, "/api/tmdb?query=matrix", nil, nil)
	if body := decodeBody[envelope](t, recorder); recorder.Code != http.StatusInternalServerError || body.Error != "TMDB API key is not configured" {
		t.Fatalf("expected missing key error, got %d %#v", recorder.Code, body)
	}

	failing := newTestHarness(t, withSearchUpstream(t, http.StatusBadGateway))
	recorder = failing.do(t, http.MethodGet, "/api/tmdb?query=matrix", nil, nil)
	if body := decodeBody[envelope](t, recorder); recorder.Code != http.StatusInternalServerError || body.Error != "Failed to search movies" {
		t.Fatalf("expected upstream failure, got %d %#v", recorder.Code, body)
	}
}

func TestSearchProxyPassesUpstreamJSON(t *testing.T) {
	harness := newTestHarness(t, withSearchUpstream(t, http.StatusOK))

	recorder := harness.do(t, http.MethodGet, "/api/tmdb?query=matrix", nil, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	if recorder.Body.String() != upstreamSearchBody {
		t.Fatalf("expected upstream body verbatim, got %s", recorder.Body.String())
	}

	recorder = harness.do(t, http.MethodGet, "/api/tmdb/suggestions?query=matrix", nil, nil)
	payload := decodeBody[struct {
		Results []tmdb.Suggestion `json:"results"`
	}](t, recorder)
	if len(payload.Results) != 1 || payload.Results[0].Year == nil || *payload.Results[0].Year != 1999 {
		t.Fatalf("unexpected suggestions %#v", payload.Results)
	}
	if payload.Results[0].PosterURL == nil || *payload.Results[0].PosterURL != "https://image.tmdb.org/t/p/w342/matrix.jpg" {
		t.Fatalf("unexpected poster url %v", payload.Results[0].PosterURL)
	}
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/streambrr/internal/config"
	"github.com/autobrr/streambrr/internal/debrid"
	"github.com/autobrr/streambrr/internal/domain"
	"github.com/autobrr/streambrr/internal/quality"
	"github.com/autobrr/streambrr/internal/resolver"
	"github.com/autobrr/streambrr/internal/scraper"
)

type stubSearcher struct {
	candidates []scraper.Candidate
}

func (s *stubSearcher) Search(ctx context.Context, criteria scraper.SearchCriteria) []scraper.Candidate {
	return s.candidates
}

type stubProvider struct {
	availability map[string]debrid.Availability
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) CheckAvailability(ctx context.Context, token, infoHash string) (debrid.Availability, error) {
	return s.availability[infoHash], nil
}

func testHash(c byte) string {
	return strings.Repeat(string(c), 40)
}

func newTestServer(t *testing.T, baseURL string) *Server {
	t.Helper()

	searcher := &stubSearcher{
		candidates: []scraper.Candidate{
			{
				InfoHash: testHash('A'),
				Title:    "Movie.Name.2020.1080p.BluRay.x264-SPARKS",
				Source:   "rutor",
				Seeders:  25,
				Size:     9_500_000_000,
				Quality:  quality.Descriptor{Resolution: quality.Resolution1080p, Source: quality.SourceBluRay, Codec: quality.CodecH264},
			},
		},
	}
	provider := &stubProvider{
		availability: map[string]debrid.Availability{
			testHash('A'): {Available: true, Files: []debrid.File{{Index: 1, Name: "Movie.Name.2020.1080p.mkv", Size: 9_500_000_000}}},
		},
	}

	resolverService, err := resolver.New(searcher, provider, nil, nil, resolver.Options{})
	require.NoError(t, err)

	return NewServer(&Dependencies{
		Config: &config.AppConfig{
			Config: &domain.Config{BaseURL: baseURL},
		},
		Version:  "test",
		Resolver: resolverService,
	})
}

func doRequest(t *testing.T, handler http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeStreams(t *testing.T, rec *httptest.ResponseRecorder) []resolver.Stream {
	t.Helper()

	var payload struct {
		Streams []resolver.Stream `json:"streams"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Streams
}

func TestStreamsEndpointMovie(t *testing.T) {
	server := newTestServer(t, "/")
	handler, err := server.Handler()
	require.NoError(t, err)

	rec := doRequest(t, handler, http.MethodGet, "/api/streams/movie/tt0000001",
		map[string]string{"X-Debrid-Token": "token-a"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	streams := decodeStreams(t, rec)
	require.Len(t, streams, 1)
	assert.Equal(t, "streambrr 1080p", streams[0].Name)
	assert.Equal(t, testHash('A'), streams[0].InfoHash)
	assert.Contains(t, streams[0].Title, "Movie.Name.2020.1080p.BluRay.x264-SPARKS")
}

func TestStreamsEndpointMissingToken(t *testing.T) {
	server := newTestServer(t, "/")
	handler, err := server.Handler()
	require.NoError(t, err)

	rec := doRequest(t, handler, http.MethodGet, "/api/streams/movie/tt0000001", nil)

	require.Equal(t, http.StatusOK, rec.Code)

	streams := decodeStreams(t, rec)
	require.Len(t, streams, 1)
	assert.Equal(t, "streambrr", streams[0].Name)
	assert.Contains(t, streams[0].Title, "configuration required")
	assert.Empty(t, streams[0].InfoHash)
}

func TestStreamsEndpointSeries(t *testing.T) {
	server := newTestServer(t, "/")
	handler, err := server.Handler()
	require.NoError(t, err)

	rec := doRequest(t, handler, http.MethodGet, "/api/streams/series/tt0000002?season=1&episode=2",
		map[string]string{"X-Debrid-Token": "token-a"})

	require.Equal(t, http.StatusOK, rec.Code)
	streams := decodeStreams(t, rec)
	require.Len(t, streams, 1)
}

func TestStreamsEndpointBadRequests(t *testing.T) {
	server := newTestServer(t, "/")
	handler, err := server.Handler()
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
	}{
		{name: "unknown_media_type", target: "/api/streams/music/tt0000001"},
		{name: "series_without_season", target: "/api/streams/series/tt0000002?episode=1"},
		{name: "series_without_episode", target: "/api/streams/series/tt0000002?season=1"},
		{name: "negative_season", target: "/api/streams/series/tt0000002?season=-1&episode=1"},
		{name: "zero_episode", target: "/api/streams/series/tt0000002?season=1&episode=0"},
		{name: "non_numeric_season", target: "/api/streams/series/tt0000002?season=one&episode=1"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, handler, http.MethodGet, tt.target,
				map[string]string{"X-Debrid-Token": "token-a"})

			require.Equal(t, http.StatusBadRequest, rec.Code)

			var payload map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
			assert.NotEmpty(t, payload["error"])
		})
	}
}

func TestHealthEndpoints(t *testing.T) {
	server := newTestServer(t, "/")
	handler, err := server.Handler()
	require.NoError(t, err)

	for _, target := range []string{"/health", "/api/health", "/healthz/readiness", "/healthz/liveness"} {
		rec := doRequest(t, handler, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusOK, rec.Code, "endpoint %s", target)
	}
}

func TestBaseURLMount(t *testing.T) {
	server := newTestServer(t, "/streambrr/")
	handler, err := server.Handler()
	require.NoError(t, err)

	rec := doRequest(t, handler, http.MethodGet, "/streambrr/api/streams/movie/tt0000001",
		map[string]string{"X-Debrid-Token": "token-a"})
	require.Equal(t, http.StatusOK, rec.Code)
	streams := decodeStreams(t, rec)
	require.Len(t, streams, 1)

	// Root path points callers at the configured base URL
	rec = doRequest(t, handler, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "/streambrr/")
}

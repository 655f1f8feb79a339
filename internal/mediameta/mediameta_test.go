// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package mediameta

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupMovie(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)

		assert.Equal(t, "/meta/movie/tt0137523.json", r.URL.Path)
		assert.True(t, strings.HasPrefix(r.Header.Get("User-Agent"), "streambrr/"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"meta":{"id":"tt0137523","type":"movie","name":"Fight Club","releaseInfo":"1999"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, time.Minute)
	defer client.Close()

	meta, err := client.Lookup(context.Background(), "movie", "tt0137523")
	require.NoError(t, err)

	assert.Equal(t, "tt0137523", meta.ID)
	assert.Equal(t, "movie", meta.Kind)
	assert.Equal(t, "Fight Club", meta.Name)
	assert.Equal(t, 1999, meta.Year)

	// second lookup is served from cache
	meta, err = client.Lookup(context.Background(), "movie", "tt0137523")
	require.NoError(t, err)
	assert.Equal(t, "Fight Club", meta.Name)

	assert.Equal(t, int32(1), requests.Load())
}

func TestLookupSeries(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/meta/series/tt0903747.json", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"meta":{"id":"tt0903747","type":"series","name":"Breaking Bad","releaseInfo":"2008-2013"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, time.Minute)
	defer client.Close()

	meta, err := client.Lookup(context.Background(), "series", "tt0903747")
	require.NoError(t, err)

	assert.Equal(t, "Breaking Bad", meta.Name)
	assert.Equal(t, 2008, meta.Year)
}

func TestLookupNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, time.Minute)
	defer client.Close()

	_, err := client.Lookup(context.Background(), "movie", "tt0000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestLookupEmptyMeta(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"meta":{}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second, time.Minute)
	defer client.Close()

	_, err := client.Lookup(context.Background(), "movie", "tt0137523")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no metadata")
}

func TestParseYear(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		releaseInfo string
		expected    int
	}{
		{
			name:        "movie year",
			releaseInfo: "1999",
			expected:    1999,
		},
		{
			name:        "series range",
			releaseInfo: "2008-2013",
			expected:    2008,
		},
		{
			name:        "ongoing series",
			releaseInfo: "2016-",
			expected:    2016,
		},
		{
			name:        "empty",
			releaseInfo: "",
			expected:    0,
		},
		{
			name:        "no digits",
			releaseInfo: "unknown",
			expected:    0,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, parseYear(tt.releaseInfo))
		})
	}
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package aggregate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/streambrr/internal/scraper"
)

type stubSource struct {
	name       string
	candidates []scraper.Candidate
	err        error
	delay      time.Duration
	panics     bool
	calls      atomic.Int32
}

func (s *stubSource) Name() string {
	return s.name
}

func (s *stubSource) Search(ctx context.Context, criteria scraper.SearchCriteria) ([]scraper.Candidate, error) {
	s.calls.Add(1)
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.candidates, s.err
}

func candidate(hash, source string) scraper.Candidate {
	return scraper.Candidate{InfoHash: hash, Title: "Movie 2020 1080p", Source: source, Seeders: 10}
}

func TestSearchAPIFirst(t *testing.T) {
	api := &stubSource{
		name:       "torznab",
		candidates: []scraper.Candidate{candidate("689B2FE9BBBAB7E5E13B7F4FC78A754E2F4A7C87", "torznab")},
	}
	scraperSource := &stubSource{
		name:       "rutor",
		candidates: []scraper.Candidate{candidate("AAAA2FE9BBBAB7E5E13B7F4FC78A754E2F4A7C87", "rutor")},
	}

	agg := New(api, []scraper.Source{scraperSource}, time.Second, nil)

	candidates := agg.Search(context.Background(), scraper.SearchCriteria{Kind: scraper.MediaKindMovie, Title: "Movie"})

	require.Len(t, candidates, 1)
	assert.Equal(t, "torznab", candidates[0].Source)

	// A non-empty structured result must skip the scrapers entirely.
	assert.Equal(t, int32(1), api.calls.Load())
	assert.Equal(t, int32(0), scraperSource.calls.Load())
}

func TestSearchFallsBackOnEmptyAPI(t *testing.T) {
	api := &stubSource{name: "torznab"}
	first := &stubSource{
		name:       "rutor",
		candidates: []scraper.Candidate{candidate("689B2FE9BBBAB7E5E13B7F4FC78A754E2F4A7C87", "rutor")},
	}
	second := &stubSource{
		name:       "nnmclub",
		candidates: []scraper.Candidate{candidate("AAAA2FE9BBBAB7E5E13B7F4FC78A754E2F4A7C87", "nnmclub")},
	}

	agg := New(api, []scraper.Source{first, second}, time.Second, nil)

	candidates := agg.Search(context.Background(), scraper.SearchCriteria{Kind: scraper.MediaKindMovie, Title: "Movie"})

	assert.Equal(t, int32(1), api.calls.Load())
	require.Len(t, candidates, 2)

	sources := []string{candidates[0].Source, candidates[1].Source}
	assert.ElementsMatch(t, []string{"rutor", "nnmclub"}, sources)
}

func TestSearchFallsBackOnAPIError(t *testing.T) {
	api := &stubSource{name: "torznab", err: errors.New("boom")}
	scraperSource := &stubSource{
		name:       "rutor",
		candidates: []scraper.Candidate{candidate("689B2FE9BBBAB7E5E13B7F4FC78A754E2F4A7C87", "rutor")},
	}

	agg := New(api, []scraper.Source{scraperSource}, time.Second, nil)

	candidates := agg.Search(context.Background(), scraper.SearchCriteria{Kind: scraper.MediaKindMovie, Title: "Movie"})

	require.Len(t, candidates, 1)
	assert.Equal(t, "rutor", candidates[0].Source)
}

func TestSearchWithoutAPISource(t *testing.T) {
	scraperSource := &stubSource{
		name:       "rutor",
		candidates: []scraper.Candidate{candidate("689B2FE9BBBAB7E5E13B7F4FC78A754E2F4A7C87", "rutor")},
	}

	agg := New(nil, []scraper.Source{scraperSource}, time.Second, nil)

	candidates := agg.Search(context.Background(), scraper.SearchCriteria{Kind: scraper.MediaKindMovie, Title: "Movie"})
	require.Len(t, candidates, 1)
}

func TestSearchSurvivesPanicAndError(t *testing.T) {
	panicking := &stubSource{name: "rutor", panics: true}
	failing := &stubSource{name: "nnmclub", err: errors.New("http 500")}
	healthy := &stubSource{
		name:       "kinozal",
		candidates: []scraper.Candidate{candidate("689B2FE9BBBAB7E5E13B7F4FC78A754E2F4A7C87", "kinozal")},
	}

	agg := New(nil, []scraper.Source{panicking, failing, healthy}, time.Second, nil)

	candidates := agg.Search(context.Background(), scraper.SearchCriteria{Kind: scraper.MediaKindMovie, Title: "Movie"})

	require.Len(t, candidates, 1)
	assert.Equal(t, "kinozal", candidates[0].Source)
}

func TestSearchNormalizesAndDropsHashless(t *testing.T) {
	source := &stubSource{
		name: "rutor",
		candidates: []scraper.Candidate{
			{InfoHash: "689b2fe9bbbab7e5e13b7f4fc78a754e2f4a7c87", Source: "rutor"},
			{InfoHash: "", Source: "rutor"},
			{InfoHash: "not-a-hash", Source: "rutor"},
		},
	}

	agg := New(nil, []scraper.Source{source}, time.Second, nil)

	candidates := agg.Search(context.Background(), scraper.SearchCriteria{Kind: scraper.MediaKindMovie, Title: "Movie"})

	require.Len(t, candidates, 1)
	assert.Equal(t, "689B2FE9BBBAB7E5E13B7F4FC78A754E2F4A7C87", candidates[0].InfoHash)
}

func TestSearchCancelledContext(t *testing.T) {
	slow := &stubSource{name: "rutor", delay: 2 * time.Second}

	agg := New(nil, []scraper.Source{slow}, 5*time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	candidates := agg.Search(ctx, scraper.SearchCriteria{Kind: scraper.MediaKindMovie, Title: "Movie"})

	assert.Empty(t, candidates)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSearchNoSources(t *testing.T) {
	agg := New(nil, nil, time.Second, nil)

	candidates := agg.Search(context.Background(), scraper.SearchCriteria{Kind: scraper.MediaKindMovie, Title: "Movie"})
	assert.Empty(t, candidates)
}

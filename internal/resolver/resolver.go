// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package resolver turns a media id into a ranked list of debrid cached,
// playable streams. It is the single entry point of the resolution pipeline:
// cache lookup, metadata, source aggregation, dedup and ranking, filtering,
// availability checks and stream assembly all run behind Resolve.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/moistari/rls"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/streambrr/internal/debrid"
	"github.com/autobrr/streambrr/internal/episode"
	"github.com/autobrr/streambrr/internal/mediameta"
	"github.com/autobrr/streambrr/internal/metrics"
	"github.com/autobrr/streambrr/internal/rank"
	"github.com/autobrr/streambrr/internal/scraper"
)

const (
	DefaultMaxAvailabilityChecks   = 15
	DefaultAvailabilityConcurrency = 3
	DefaultCacheTTL                = time.Hour
)

// Request identifies the media to resolve and carries the requester's debrid
// credential. Season and Episode are only meaningful for series.
type Request struct {
	Kind       scraper.MediaKind
	MediaID    string
	Season     int
	Episode    int
	Credential string
}

// mediaKey is the canonical cache identity of the requested media.
func (r Request) mediaKey() string {
	if r.Kind == scraper.MediaKindSeries {
		return fmt.Sprintf("%s:%d:%d", r.MediaID, r.Season, r.Episode)
	}
	return r.MediaID
}

// Stream is a single availability confirmed playback option. FileIndex is
// the 1-based position in the torrent's original file list, nil for single
// file torrents and for packs where no video file could be identified.
type Stream struct {
	Name      string   `json:"name"`
	Title     string   `json:"title"`
	InfoHash  string   `json:"infoHash,omitempty"`
	FileIndex *int     `json:"fileIdx,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Searcher yields candidates for search criteria. Implemented by
// aggregate.Aggregator.
type Searcher interface {
	Search(ctx context.Context, criteria scraper.SearchCriteria) []scraper.Candidate
}

// MetadataSource resolves a media id into title metadata. Implemented by
// mediameta.Client.
type MetadataSource interface {
	Lookup(ctx context.Context, kind, id string) (mediameta.Meta, error)
}

type Options struct {
	MaxAvailabilityChecks   int
	AvailabilityConcurrency int
	CacheTTL                time.Duration
	FilterExpr              string
}

// Service resolves media ids into streams.
type Service struct {
	searcher Searcher
	provider debrid.Provider
	meta     MetadataSource
	cache    *resultCache
	filter   *candidateFilter
	metrics  *metrics.Metrics

	maxChecks   int
	concurrency int
}

func New(searcher Searcher, provider debrid.Provider, meta MetadataSource, m *metrics.Metrics, opts Options) (*Service, error) {
	filter, err := newCandidateFilter(opts.FilterExpr)
	if err != nil {
		return nil, err
	}

	maxChecks := opts.MaxAvailabilityChecks
	if maxChecks <= 0 {
		maxChecks = DefaultMaxAvailabilityChecks
	}
	concurrency := opts.AvailabilityConcurrency
	if concurrency <= 0 {
		concurrency = DefaultAvailabilityConcurrency
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &Service{
		searcher:    searcher,
		provider:    provider,
		meta:        meta,
		cache:       newResultCache(ttl),
		filter:      filter,
		metrics:     m,
		maxChecks:   maxChecks,
		concurrency: concurrency,
	}, nil
}

// SetFilter swaps the candidate filter expression at runtime. Called on
// config reload.
func (s *Service) SetFilter(expression string) error {
	return s.filter.Set(expression)
}

// Resolve runs the full pipeline for one request. Source and provider
// failures degrade the result instead of failing it; the only returned error
// is the caller's own context ending.
func (s *Service) Resolve(ctx context.Context, req Request) ([]Stream, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()

	if req.Credential == "" {
		log.Debug().Str("mediaId", req.MediaID).Msg("resolve request without a debrid credential")
		s.recordResolve(req.Kind, "missing_credential", start)
		return []Stream{configRequiredStream()}, nil
	}

	key := cacheKey(req.mediaKey(), req.Credential)
	if streams, ok := s.cache.Get(key); ok {
		s.recordCacheEvent("hit")
		s.recordResolve(req.Kind, "cache_hit", start)
		return streams, nil
	}
	s.recordCacheEvent("miss")

	criteria := s.buildCriteria(ctx, req)

	candidates := s.searcher.Search(ctx, criteria)
	candidates = rank.Dedup(candidates)
	rank.Sort(candidates)
	candidates = s.filter.Apply(candidates)

	if len(candidates) == 0 {
		log.Debug().Str("mediaId", req.MediaID).Msg("no candidates found")
		s.recordResolve(req.Kind, "no_candidates", start)
		return []Stream{}, nil
	}

	streams := s.resolveAvailability(ctx, req, candidates)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(streams) > 0 {
		s.cache.Put(key, streams)
		s.recordCacheEvent("store")
		s.recordResolve(req.Kind, "ok", start)
	} else {
		s.recordResolve(req.Kind, "none_available", start)
	}

	log.Debug().
		Str("mediaId", req.MediaID).
		Int("candidates", len(candidates)).
		Int("streams", len(streams)).
		Dur("elapsed", time.Since(start)).
		Msg("resolution finished")

	return streams, nil
}

// buildCriteria enriches the request with title metadata. Lookup failures
// leave the title empty and resolution continues with a degraded query.
func (s *Service) buildCriteria(ctx context.Context, req Request) scraper.SearchCriteria {
	criteria := scraper.SearchCriteria{
		Kind:    req.Kind,
		IMDbID:  req.MediaID,
		Season:  req.Season,
		Episode: req.Episode,
	}

	if s.meta == nil {
		return criteria
	}

	meta, err := s.meta.Lookup(ctx, string(req.Kind), req.MediaID)
	if err != nil {
		log.Warn().Err(err).Str("mediaId", req.MediaID).Msg("metadata lookup failed, resolving with degraded query")
		return criteria
	}

	criteria.Title = meta.Name
	criteria.Year = meta.Year
	return criteria
}

// resolveAvailability checks the top ranked candidates against the debrid
// provider and assembles streams for the cached ones, preserving rank order.
func (s *Service) resolveAvailability(ctx context.Context, req Request, candidates []scraper.Candidate) []Stream {
	if len(candidates) > s.maxChecks {
		candidates = candidates[:s.maxChecks]
	}

	// each goroutine writes its own slot, order survives the fan-out
	results := make([]*Stream, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, candidate := range candidates {
		g.Go(func() error {
			availability, err := s.provider.CheckAvailability(gctx, req.Credential, candidate.InfoHash)
			if err != nil {
				// a provider timeout also reads as DeadlineExceeded, so only
				// the group context decides whether the fan-out is over
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Debug().Err(err).Str("hash", candidate.InfoHash).Msg("availability check failed, dropping candidate")
				s.recordAvailability("error")
				return nil
			}

			if !availability.Available {
				s.recordAvailability("uncached")
				return nil
			}
			s.recordAvailability("cached")

			stream := s.buildStream(req, candidate, availability)
			results[i] = &stream
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("availability resolution interrupted")
	}

	streams := make([]Stream, 0, len(results))
	for _, stream := range results {
		if stream != nil {
			streams = append(streams, *stream)
		}
	}
	return streams
}

func (s *Service) buildStream(req Request, candidate scraper.Candidate, availability debrid.Availability) Stream {
	var fileIndex *int
	if req.Kind == scraper.MediaKindSeries && len(availability.Files) > 0 {
		names := make([]string, len(availability.Files))
		for i, file := range availability.Files {
			names[i] = file.Name
		}
		if pos, ok := episode.MatchFile(names, req.Season, req.Episode); ok {
			// MatchFile positions index into the provider's list, the
			// provider's own Index maps back to the original torrent
			idx := availability.Files[pos-1].Index
			fileIndex = &idx
		}
	}

	tags := streamTags(candidate)

	name := "streambrr"
	if label := candidate.Quality.Label(); label != "" {
		name += " " + label
	}

	return Stream{
		Name:      name,
		Title:     candidate.Title + "\n" + strings.Join(tags, " | "),
		InfoHash:  candidate.InfoHash,
		FileIndex: fileIndex,
		Tags:      tags,
	}
}

func streamTags(candidate scraper.Candidate) []string {
	tags := make([]string, 0, 5)

	if label := candidate.Quality.Label(); label != "" {
		tags = append(tags, label)
	}
	if candidate.Size > 0 {
		tags = append(tags, humanize.Bytes(uint64(candidate.Size)))
	}
	tags = append(tags, fmt.Sprintf("%d seeders", candidate.Seeders))
	if release := rls.ParseString(candidate.Title); release.Group != "" {
		tags = append(tags, release.Group)
	}
	if candidate.Source != "" {
		tags = append(tags, candidate.Source)
	}

	return tags
}

// configRequiredStream is what a requester without a configured credential
// sees. Players render it like any other stream so the problem is visible
// where the user is looking.
func configRequiredStream() Stream {
	return Stream{
		Name:  "streambrr",
		Title: "configuration required\nadd your debrid API token to receive streams",
	}
}

func (s *Service) recordResolve(kind scraper.MediaKind, outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.ResolveTotal.WithLabelValues(string(kind), outcome).Inc()
	s.metrics.ResolveDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
}

func (s *Service) recordCacheEvent(event string) {
	if s.metrics == nil {
		return
	}
	s.metrics.CacheEvents.WithLabelValues(event).Inc()
}

func (s *Service) recordAvailability(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.AvailabilityChecks.WithLabelValues(outcome).Inc()
}

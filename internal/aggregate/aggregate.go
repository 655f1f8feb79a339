// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package aggregate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/streambrr/internal/metrics"
	"github.com/autobrr/streambrr/internal/scraper"
)

type sourceExecResult struct {
	source     string
	candidates []scraper.Candidate
	err        error
}

// Aggregator collects candidates for one request. The structured API source
// runs alone first; the scrapers only run when it produces nothing, never to
// top up a partial result.
type Aggregator struct {
	api      scraper.Source
	scrapers []scraper.Source
	timeout  time.Duration
	metrics  *metrics.Metrics
}

func New(api scraper.Source, scrapers []scraper.Source, timeout time.Duration, m *metrics.Metrics) *Aggregator {
	return &Aggregator{
		api:      api,
		scrapers: scrapers,
		timeout:  timeout,
		metrics:  m,
	}
}

// Search fans out to the configured sources. Individual source failures are
// logged and counted but never fail the search as a whole.
func (a *Aggregator) Search(ctx context.Context, criteria scraper.SearchCriteria) []scraper.Candidate {
	if a.api != nil {
		candidates := a.searchAPI(ctx, criteria)
		if len(candidates) > 0 {
			return candidates
		}
		log.Debug().
			Str("source", a.api.Name()).
			Msg("Structured source returned nothing, falling back to scrapers")
	}

	return a.searchScrapers(ctx, criteria)
}

func (a *Aggregator) searchAPI(ctx context.Context, criteria scraper.SearchCriteria) []scraper.Candidate {
	searchCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	candidates, err := a.api.Search(searchCtx, criteria)
	if err != nil {
		a.recordSearch(a.api.Name(), searchOutcome(err), 0)
		log.Warn().Err(err).Str("source", a.api.Name()).Msg("Structured source search failed")
		return nil
	}

	a.recordSearch(a.api.Name(), "success", len(candidates))
	return dropHashless(candidates)
}

func (a *Aggregator) searchScrapers(ctx context.Context, criteria scraper.SearchCriteria) []scraper.Candidate {
	if len(a.scrapers) == 0 {
		return nil
	}

	resultsChan := make(chan sourceExecResult, len(a.scrapers))

	for _, source := range a.scrapers {
		go func(source scraper.Source) {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Str("source", source.Name()).
						Interface("panic", r).
						Msg("Source search panicked")
					resultsChan <- sourceExecResult{
						source: source.Name(),
						err:    fmt.Errorf("source %s panicked: %v", source.Name(), r),
					}
				}
			}()

			searchCtx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			candidates, err := source.Search(searchCtx, criteria)
			resultsChan <- sourceExecResult{source: source.Name(), candidates: candidates, err: err}
		}(source)
	}

	var all []scraper.Candidate
	successes := 0
	failures := 0
	timeouts := 0

	for range a.scrapers {
		select {
		case <-ctx.Done():
			log.Warn().Err(ctx.Err()).Msg("Aggregation cancelled while collecting scraper results")
			return dropHashless(all)
		case result := <-resultsChan:
			if result.err != nil {
				if isTimeoutError(result.err) {
					timeouts++
					a.recordSearch(result.source, "timeout", 0)
				} else {
					failures++
					a.recordSearch(result.source, "error", 0)
				}
				log.Warn().Err(result.err).Str("source", result.source).Msg("Scraper search failed")
				continue
			}
			successes++
			a.recordSearch(result.source, "success", len(result.candidates))
			all = append(all, result.candidates...)
		}
	}

	log.Debug().
		Int("sources", len(a.scrapers)).
		Int("successes", successes).
		Int("failures", failures).
		Int("timeouts", timeouts).
		Int("candidates", len(all)).
		Msg("Scraper aggregation complete")

	return dropHashless(all)
}

// dropHashless enforces that no candidate leaves the aggregator without a
// normalized infohash.
func dropHashless(candidates []scraper.Candidate) []scraper.Candidate {
	kept := make([]scraper.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		hash, ok := scraper.NormalizeInfoHash(candidate.InfoHash)
		if !ok {
			continue
		}
		candidate.InfoHash = hash
		kept = append(kept, candidate)
	}
	return kept
}

func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "context deadline exceeded") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}

func searchOutcome(err error) string {
	if isTimeoutError(err) {
		return "timeout"
	}
	return "error"
}

func (a *Aggregator) recordSearch(source, outcome string, candidates int) {
	if a.metrics == nil {
		return
	}
	a.metrics.SourceSearches.WithLabelValues(source, outcome).Inc()
	if outcome == "success" {
		a.metrics.SourceCandidates.WithLabelValues(source).Observe(float64(candidates))
	}
}

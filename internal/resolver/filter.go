// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package resolver

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/streambrr/internal/scraper"
)

// filterEnv is the expression environment for a single candidate. The field
// names are part of the user facing expression syntax.
type filterEnv struct {
	Title      string
	Seeders    int
	SizeBytes  int64
	Resolution string
	Source     string
	Codec      string
	HDR        bool
}

// candidateFilter applies an optional user supplied expression to scraped
// candidates, e.g. `Seeders > 5 && Source != "CAM"`. The program is compiled
// once per expression and swapped atomically on config reload.
type candidateFilter struct {
	mu      sync.RWMutex
	source  string
	program *vm.Program
}

func newCandidateFilter(expression string) (*candidateFilter, error) {
	f := &candidateFilter{}
	if err := f.Set(expression); err != nil {
		return nil, err
	}
	return f, nil
}

// Set compiles and installs a new filter expression. An empty expression
// clears the filter. A compile error leaves the current filter in place.
func (f *candidateFilter) Set(expression string) error {
	if expression == "" {
		f.mu.Lock()
		f.source = ""
		f.program = nil
		f.mu.Unlock()
		return nil
	}

	program, err := expr.Compile(expression, expr.Env(filterEnv{}), expr.AsBool())
	if err != nil {
		return fmt.Errorf("failed to compile filter expression: %w", err)
	}

	f.mu.Lock()
	f.source = expression
	f.program = program
	f.mu.Unlock()

	return nil
}

// Apply returns the candidates the expression evaluates true for. Evaluation
// failures keep the candidate so a bad expression cannot blank out results.
func (f *candidateFilter) Apply(candidates []scraper.Candidate) []scraper.Candidate {
	f.mu.RLock()
	program := f.program
	f.mu.RUnlock()

	if program == nil || len(candidates) == 0 {
		return candidates
	}

	kept := make([]scraper.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		env := filterEnv{
			Title:      candidate.Title,
			Seeders:    candidate.Seeders,
			SizeBytes:  candidate.Size,
			Resolution: string(candidate.Quality.Resolution),
			Source:     string(candidate.Quality.Source),
			Codec:      string(candidate.Quality.Codec),
			HDR:        candidate.Quality.HDR,
		}

		result, err := expr.Run(program, env)
		if err != nil {
			log.Debug().Err(err).Str("title", candidate.Title).Msg("filter expression failed, keeping candidate")
			kept = append(kept, candidate)
			continue
		}

		if keep, ok := result.(bool); !ok || keep {
			kept = append(kept, candidate)
		}
	}

	return kept
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package rank

import (
	"sort"

	"github.com/autobrr/streambrr/internal/quality"
	"github.com/autobrr/streambrr/internal/scraper"
)

// seederGapThreshold is the seeder difference above which swarm health
// outweighs release quality.
const seederGapThreshold = 10

var resolutionPriority = map[quality.Resolution]int{
	quality.Resolution4K:    100,
	quality.Resolution2160p: 90,
	quality.Resolution1080p: 80,
	quality.Resolution720p:  60,
	quality.Resolution480p:  40,
}

var sourcePriority = map[quality.Source]int{
	quality.SourceREMUX:  95,
	quality.SourceBluRay: 70,
	quality.SourceWEBDL:  65,
	quality.SourceWEBRip: 60,
	quality.SourceHDTV:   50,
}

// Priority scores a quality descriptor. A release is as good as its best
// facet, so a REMUX outranks a plain 2160p rip even without a resolution tag.
func Priority(d quality.Descriptor) int {
	p := resolutionPriority[d.Resolution]
	if sp := sourcePriority[d.Source]; sp > p {
		p = sp
	}
	return p
}

// Dedup collapses candidates sharing an infohash. Hashes are normalized
// upper case before candidates reach this point, so equality is a direct
// map lookup. The first occurrence wins, input order is preserved.
func Dedup(candidates []scraper.Candidate) []scraper.Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]scraper.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if _, ok := seen[candidate.InfoHash]; ok {
			continue
		}
		seen[candidate.InfoHash] = struct{}{}
		out = append(out, candidate)
	}
	return out
}

// Sort orders candidates best first. A seeder gap above the threshold is
// decisive, otherwise quality priority decides, then seeders break ties.
func Sort(candidates []scraper.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return better(candidates[i], candidates[j])
	})
}

func better(a, b scraper.Candidate) bool {
	if gap := a.Seeders - b.Seeders; gap > seederGapThreshold {
		return true
	} else if gap < -seederGapThreshold {
		return false
	}

	pa, pb := Priority(a.Quality), Priority(b.Quality)
	if pa != pb {
		return pa > pb
	}

	return a.Seeders > b.Seeders
}

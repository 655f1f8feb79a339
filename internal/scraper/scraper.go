// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/anacrolix/torrent/metainfo"
	"github.com/dustin/go-humanize"
	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/autobrr/streambrr/internal/buildinfo"
	"github.com/autobrr/streambrr/internal/quality"
)

// maxResponseSize caps how much of a tracker response we are willing to read.
const maxResponseSize = 10 << 20 // 10MB

type MediaKind string

const (
	MediaKindMovie  MediaKind = "movie"
	MediaKindSeries MediaKind = "series"
)

// SearchCriteria describes one resolution request as seen by the sources.
type SearchCriteria struct {
	Kind    MediaKind
	IMDbID  string
	Title   string
	Year    int
	Season  int
	Episode int
}

func (c SearchCriteria) Episodic() bool {
	return c.Kind == MediaKindSeries
}

// Query renders the free text query for this request: "Title YEAR" for
// movies, "Title S01E02" for episodes. Falls back to the bare title when
// the year is unknown.
func (c SearchCriteria) Query() string {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return ""
	}
	if c.Episodic() {
		return fmt.Sprintf("%s S%02dE%02d", title, c.Season, c.Episode)
	}
	if c.Year > 0 {
		return fmt.Sprintf("%s %d", title, c.Year)
	}
	return title
}

// scrapeQuery is the text scrapers place in the tracker search box. Episode
// requests search the bare title so season packs surface; the episode matcher
// later picks the right file out of the pack.
func scrapeQuery(criteria SearchCriteria) string {
	title := strings.TrimSpace(criteria.Title)
	if title == "" {
		return ""
	}
	if !criteria.Episodic() && criteria.Year > 0 {
		return fmt.Sprintf("%s %d", title, criteria.Year)
	}
	return title
}

// Candidate is a single release offered by a source. InfoHash is always
// normalized to upper case 40 char hex before a candidate leaves a source.
type Candidate struct {
	InfoHash string             `json:"infoHash"`
	Title    string             `json:"title"`
	Source   string             `json:"source"`
	Seeders  int                `json:"seeders"`
	Size     int64              `json:"size"`
	Quality  quality.Descriptor `json:"quality"`
}

// Source searches one upstream tracker or indexer.
type Source interface {
	Name() string
	Search(ctx context.Context, criteria SearchCriteria) ([]Candidate, error)
}

// FetchError is returned when an upstream responds with a non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

func (e *FetchError) Is(target error) bool {
	_, ok := target.(*FetchError)
	return ok
}

// NormalizeInfoHash validates a raw v1 infohash and returns it upper cased.
func NormalizeInfoHash(hash string) (string, bool) {
	hash = strings.ToLower(strings.TrimSpace(hash))
	hash = strings.TrimPrefix(hash, "urn:btih:")

	if len(hash) != 40 {
		return "", false
	}
	if _, err := hex.DecodeString(hash); err != nil {
		return "", false
	}

	return strings.ToUpper(hash), true
}

// InfoHashFromMagnet extracts and normalizes the v1 infohash from a magnet
// link. Handles both hex and base32 encoded hashes.
func InfoHashFromMagnet(rawMagnet string) (string, bool) {
	rawMagnet = strings.TrimSpace(rawMagnet)
	if rawMagnet == "" {
		return "", false
	}

	m, err := metainfo.ParseMagnetUri(rawMagnet)
	if err != nil {
		return "", false
	}

	return NormalizeInfoHash(m.InfoHash.HexString())
}

// ruUnitReplacer maps Cyrillic size units onto the Latin ones that
// humanize understands. Longer units first so "ГБ" never degrades to "ГB".
var ruUnitReplacer = strings.NewReplacer(
	"ТБ", "TB",
	"ГБ", "GB",
	"МБ", "MB",
	"КБ", "KB",
	"Б", "B",
)

// ParseSize converts a human readable size ("9.5 GB", "1.37 ГБ", "734003200")
// into bytes. Returns 0 when the text cannot be parsed.
func ParseSize(text string) int64 {
	text = strings.TrimSpace(strings.ReplaceAll(text, " ", " "))
	if text == "" {
		return 0
	}

	if n, err := strconv.ParseInt(text, 10, 64); err == nil && n >= 0 {
		return n
	}

	normalized := ruUnitReplacer.Replace(strings.ToUpper(text))
	n, err := humanize.ParseBytes(normalized)
	if err != nil || n > math.MaxInt64 {
		return 0
	}

	return int64(n)
}

// TitleMatches reports whether a result row plausibly belongs to the
// requested title. Guards scrapers against trackers that pad thin result
// pages with unrelated releases.
func TitleMatches(queryTitle, rowTitle string) bool {
	queryTitle = strings.TrimSpace(queryTitle)
	if queryTitle == "" {
		return true
	}
	return fuzzy.MatchNormalizedFold(queryTitle, rowTitle)
}

var (
	digitsRegexp  = regexp.MustCompile(`\d+`)
	spaceStripper = strings.NewReplacer(" ", "", " ", "")
)

// parseCount pulls the first integer out of a table cell, tolerating nbsp
// thousands separators and decorations around the number.
func parseCount(text string) int {
	match := digitsRegexp.FindString(spaceStripper.Replace(text))
	if match == "" {
		return 0
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return n
}

func fetchPage(ctx context.Context, client *http.Client, pageURL string) ([]byte, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, "", &FetchError{URL: pageURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response from %s: %w", pageURL, err)
	}
	if len(body) > maxResponseSize {
		return nil, "", fmt.Errorf("response from %s exceeds %d bytes", pageURL, maxResponseSize)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"

	"github.com/autobrr/streambrr/internal/quality"
)

// Rutor scrapes the rutor search page. Result rows carry a magnet link
// directly, no authentication or detail page fetch required.
type Rutor struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewRutor(baseURL string, timeout time.Duration) *Rutor {
	return &Rutor{
		name:    "rutor",
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *Rutor) Name() string {
	return r.name
}

func (r *Rutor) Search(ctx context.Context, criteria SearchCriteria) ([]Candidate, error) {
	query := scrapeQuery(criteria)
	if query == "" {
		return nil, nil
	}

	// Path segments are page/category/filter/sort, zeroed to search everything.
	searchURL := fmt.Sprintf("%s/search/0/0/000/0/%s", r.baseURL, url.PathEscape(query))

	body, contentType, err := fetchPage(ctx, r.client, searchURL)
	if err != nil {
		return nil, err
	}

	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to decode rutor response: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rutor response: %w", err)
	}

	var candidates []Candidate
	doc.Find("tr.gai, tr.tum").Each(func(_ int, row *goquery.Selection) {
		candidate, ok := r.rowToCandidate(row, criteria)
		if !ok {
			return
		}
		candidates = append(candidates, candidate)
	})

	log.Debug().
		Str("source", r.name).
		Str("query", query).
		Int("candidates", len(candidates)).
		Msg("Rutor search complete")

	return candidates, nil
}

func (r *Rutor) rowToCandidate(row *goquery.Selection, criteria SearchCriteria) (Candidate, bool) {
	magnet, _ := row.Find("a[href^='magnet:']").First().Attr("href")
	hash, ok := InfoHashFromMagnet(magnet)
	if !ok {
		return Candidate{}, false
	}

	title := strings.TrimSpace(row.Find("a[href^='/torrent/']").First().Text())
	if title == "" || !TitleMatches(criteria.Title, title) {
		return Candidate{}, false
	}

	// Rows have 4 or 5 cells depending on the comment counter, the size
	// cell is always second to last.
	cells := row.Find("td")
	var size int64
	if cells.Length() >= 2 {
		size = ParseSize(cells.Eq(cells.Length() - 2).Text())
	}

	return Candidate{
		InfoHash: hash,
		Title:    title,
		Source:   r.name,
		Seeders:  parseCount(row.Find("span.green").First().Text()),
		Size:     size,
		Quality:  quality.Extract(title),
	}, true
}

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
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/autobrr/streambrr/internal/quality"
)

// NNMClub scrapes the nnmclub tracker search. Pages are served as
// windows-1251 and rows link a magnet directly.
type NNMClub struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewNNMClub(baseURL string, timeout time.Duration) *NNMClub {
	return &NNMClub{
		name:    "nnmclub",
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (n *NNMClub) Name() string {
	return n.name
}

func (n *NNMClub) Search(ctx context.Context, criteria SearchCriteria) ([]Candidate, error) {
	query := scrapeQuery(criteria)
	if query == "" {
		return nil, nil
	}

	searchURL := fmt.Sprintf("%s/forum/tracker.php?nm=%s", n.baseURL, url.QueryEscape(query))

	body, _, err := fetchPage(ctx, n.client, searchURL)
	if err != nil {
		return nil, err
	}

	decoded := transform.NewReader(bytes.NewReader(body), charmap.Windows1251.NewDecoder())
	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to parse nnmclub response: %w", err)
	}

	var candidates []Candidate
	doc.Find("tr.prow1, tr.prow2").Each(func(_ int, row *goquery.Selection) {
		candidate, ok := n.rowToCandidate(row, criteria)
		if !ok {
			return
		}
		candidates = append(candidates, candidate)
	})

	log.Debug().
		Str("source", n.name).
		Str("query", query).
		Int("candidates", len(candidates)).
		Msg("NNMClub search complete")

	return candidates, nil
}

func (n *NNMClub) rowToCandidate(row *goquery.Selection, criteria SearchCriteria) (Candidate, bool) {
	magnet, _ := row.Find("a[href^='magnet:']").First().Attr("href")
	hash, ok := InfoHashFromMagnet(magnet)
	if !ok {
		return Candidate{}, false
	}

	title := strings.TrimSpace(row.Find("a.topictitle").First().Text())
	if title == "" || !TitleMatches(criteria.Title, title) {
		return Candidate{}, false
	}

	// The first <u> in a row is the size column sort key holding the exact
	// byte count, the date cell sort key comes after it.
	size := ParseSize(row.Find("td u").First().Text())

	return Candidate{
		InfoHash: hash,
		Title:    title,
		Source:   n.name,
		Seeders:  parseCount(row.Find("td.seedmed").First().Text()),
		Size:     size,
		Quality:  quality.Extract(title),
	}, true
}

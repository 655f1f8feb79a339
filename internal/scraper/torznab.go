// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/streambrr/internal/quality"
)

// Torznab category IDs queried per media kind.
const (
	categoryMovies = 2000
	categoryTV     = 5000
)

// Torznab queries a torznab compatible indexer endpoint (Jackett, Prowlarr,
// or a native tracker API) and converts its RSS feed into candidates.
type Torznab struct {
	name     string
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewTorznab(name, endpoint, apiKey string, timeout time.Duration) *Torznab {
	return &Torznab{
		name:     name,
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *Torznab) Name() string {
	return t.name
}

func (t *Torznab) Search(ctx context.Context, criteria SearchCriteria) ([]Candidate, error) {
	searchURL, err := t.buildSearchURL(criteria)
	if err != nil {
		return nil, err
	}

	body, _, err := fetchPage(ctx, t.client, searchURL)
	if err != nil {
		return nil, err
	}

	var feed torznabFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to decode torznab response: %w", err)
	}

	candidates := make([]Candidate, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		candidate, ok := t.itemToCandidate(item)
		if !ok {
			log.Trace().
				Str("source", t.name).
				Str("title", item.Title).
				Msg("Skipping feed item without usable infohash")
			continue
		}
		candidates = append(candidates, candidate)
	}

	log.Debug().
		Str("source", t.name).
		Int("items", len(feed.Channel.Items)).
		Int("candidates", len(candidates)).
		Msg("Torznab search complete")

	return candidates, nil
}

// Healthcheck probes the endpoint's caps document. Used at startup to
// validate connectivity and that free text search is enabled.
func (t *Torznab) Healthcheck(ctx context.Context) error {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return fmt.Errorf("invalid torznab endpoint: %w", err)
	}

	query := u.Query()
	query.Set("t", "caps")
	if t.apiKey != "" {
		query.Set("apikey", t.apiKey)
	}
	u.RawQuery = query.Encode()

	body, _, err := fetchPage(ctx, t.client, u.String())
	if err != nil {
		return err
	}

	var caps torznabCaps
	if err := xml.Unmarshal(body, &caps); err != nil {
		return fmt.Errorf("failed to decode torznab caps: %w", err)
	}

	if strings.EqualFold(caps.Searching.Search.Available, "no") {
		return errors.New("torznab endpoint does not support free text search")
	}

	log.Debug().
		Str("source", t.name).
		Str("server", caps.Server.Title).
		Msg("Torznab caps check passed")

	return nil
}

func (t *Torznab) buildSearchURL(criteria SearchCriteria) (string, error) {
	u, err := url.Parse(t.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid torznab endpoint: %w", err)
	}

	query := u.Query()
	query.Set("t", "search")
	if t.apiKey != "" {
		query.Set("apikey", t.apiKey)
	}
	if criteria.Episodic() {
		query.Set("cat", strconv.Itoa(categoryTV))
	} else {
		query.Set("cat", strconv.Itoa(categoryMovies))
	}
	if q := criteria.Query(); q != "" {
		query.Set("q", q)
	}
	if criteria.IMDbID != "" {
		query.Set("imdbid", criteria.IMDbID)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

func (t *Torznab) itemToCandidate(item torznabItem) (Candidate, bool) {
	attrs := make(map[string]string, len(item.Attrs))
	for _, attr := range item.Attrs {
		attrs[strings.ToLower(attr.Name)] = attr.Value
	}

	hash, ok := NormalizeInfoHash(attrs["infohash"])
	if !ok {
		for _, raw := range []string{attrs["magneturl"], item.Link, item.Enclosure.URL} {
			if !strings.HasPrefix(raw, "magnet:") {
				continue
			}
			if hash, ok = InfoHashFromMagnet(raw); ok {
				break
			}
		}
	}
	if !ok {
		return Candidate{}, false
	}

	size := ParseSize(item.Size)
	if size == 0 {
		size = ParseSize(attrs["size"])
	}

	title := strings.TrimSpace(item.Title)

	return Candidate{
		InfoHash: hash,
		Title:    title,
		Source:   t.name,
		Seeders:  parseCount(attrs["seeders"]),
		Size:     size,
		Quality:  quality.Extract(title),
	}, true
}

// torznabFeed models the subset of the torznab RSS schema we consume. The
// namespaced torznab:attr elements decode through the plain "attr" local name.
type torznabFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string        `xml:"title"`
		Items []torznabItem `xml:"item"`
	} `xml:"channel"`
}

type torznabItem struct {
	Title     string `xml:"title"`
	GUID      string `xml:"guid"`
	Link      string `xml:"link"`
	Size      string `xml:"size"`
	Enclosure struct {
		URL string `xml:"url,attr"`
	} `xml:"enclosure"`
	Attrs []torznabAttr `xml:"attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type torznabCaps struct {
	XMLName xml.Name `xml:"caps"`
	Server  struct {
		Title string `xml:"title,attr"`
	} `xml:"server"`
	Searching struct {
		Search struct {
			Available string `xml:"available,attr"`
		} `xml:"search"`
	} `xml:"searching"`
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package mediameta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"

	"github.com/autobrr/streambrr/internal/buildinfo"
)

const maxResponseSize = 1 << 20 // 1MB

var yearRegexp = regexp.MustCompile(`\d{4}`)

// Meta is the subset of title metadata the resolver needs to build search
// queries.
type Meta struct {
	ID   string
	Kind string
	Name string
	Year int
}

// Client looks up title metadata from a Cinemeta compatible endpoint.
// Lookups are cached since metadata for a given id is effectively immutable.
type Client struct {
	baseURL string
	client  *http.Client
	cache   *ttlcache.Cache[string, Meta]
}

func NewClient(baseURL string, timeout, cacheTTL time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cache:   ttlcache.New(ttlcache.Options[string, Meta]{}.SetDefaultTTL(cacheTTL)),
	}
}

func (c *Client) Close() {
	c.cache.Close()
}

// Lookup resolves an id like tt1375666 into a display title and year.
// Failures bubble up so the caller can proceed with a degraded query.
func (c *Client) Lookup(ctx context.Context, kind, id string) (Meta, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	key := kind + ":" + id
	if meta, ok := c.cache.Get(key); ok {
		return meta, nil
	}

	endpoint := fmt.Sprintf("%s/meta/%s/%s.json", c.baseURL, kind, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Meta{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", buildinfo.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Meta{}, fmt.Errorf("metadata lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Meta{}, fmt.Errorf("metadata lookup for %s/%s returned status %d", kind, id, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return Meta{}, fmt.Errorf("failed to read metadata response: %w", err)
	}

	var envelope struct {
		Meta struct {
			ID          string `json:"id"`
			Type        string `json:"type"`
			Name        string `json:"name"`
			ReleaseInfo string `json:"releaseInfo"`
		} `json:"meta"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Meta{}, fmt.Errorf("failed to decode metadata response: %w", err)
	}
	if envelope.Meta.Name == "" {
		return Meta{}, fmt.Errorf("no metadata for %s/%s", kind, id)
	}

	meta := Meta{
		ID:   envelope.Meta.ID,
		Kind: envelope.Meta.Type,
		Name: envelope.Meta.Name,
		Year: parseYear(envelope.Meta.ReleaseInfo),
	}

	c.cache.Set(key, meta, ttlcache.DefaultTTL)

	return meta, nil
}

// parseYear pulls the leading year out of releaseInfo, which is "2010" for
// movies and a range like "2008-2013" for series.
func parseYear(releaseInfo string) int {
	match := yearRegexp.FindString(releaseInfo)
	if match == "" {
		return 0
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return year
}

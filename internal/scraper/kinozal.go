// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/autobrr/streambrr/internal/buildinfo"
	"github.com/autobrr/streambrr/internal/quality"
)

// kinozalDetailFetchLimit bounds how many detail pages one search is allowed
// to pull for hash extraction.
const kinozalDetailFetchLimit = 5

var kinozalHashRegexp = regexp.MustCompile(`(?i)инфо\s*хеш\s*:?\s*([0-9a-fA-F]{40})`)

// Kinozal scrapes the kinozal tracker. Search rows expose no hash or magnet,
// so the adapter logs in with the configured account and pulls hashes from
// the first few detail pages. Construction without credentials is a caller
// error, the adapter is only registered when an account is configured.
type Kinozal struct {
	name     string
	baseURL  string
	username string
	password string
	client   *http.Client

	mu       sync.Mutex
	loggedIn bool
}

func NewKinozal(baseURL, username, password string, timeout time.Duration) (*Kinozal, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Kinozal{
		name:     "kinozal",
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: timeout, Jar: jar},
	}, nil
}

func (k *Kinozal) Name() string {
	return k.name
}

func (k *Kinozal) Search(ctx context.Context, criteria SearchCriteria) ([]Candidate, error) {
	query := scrapeQuery(criteria)
	if query == "" {
		return nil, nil
	}

	if err := k.ensureLogin(ctx); err != nil {
		return nil, err
	}

	searchURL := fmt.Sprintf("%s/browse.php?s=%s", k.baseURL, url.QueryEscape(query))

	body, _, err := fetchPage(ctx, k.client, searchURL)
	if err != nil {
		return nil, err
	}

	decoded := transform.NewReader(bytes.NewReader(body), charmap.Windows1251.NewDecoder())
	doc, err := goquery.NewDocumentFromReader(decoded)
	if err != nil {
		return nil, fmt.Errorf("failed to parse kinozal response: %w", err)
	}

	type searchRow struct {
		detailURL string
		title     string
		size      int64
		seeders   int
	}

	var rows []searchRow
	doc.Find("tr.first, tr.bg").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("td.nam a").First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		title := strings.TrimSpace(link.Text())
		if title == "" || !TitleMatches(criteria.Title, title) {
			return
		}
		// Rows carry two .s cells, comment count first and size last.
		rows = append(rows, searchRow{
			detailURL: k.baseURL + href,
			title:     title,
			size:      ParseSize(row.Find("td.s").Last().Text()),
			seeders:   parseCount(row.Find("td.sl_s").First().Text()),
		})
	})

	if len(rows) > kinozalDetailFetchLimit {
		rows = rows[:kinozalDetailFetchLimit]
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		hash, err := k.fetchInfoHash(ctx, row.detailURL)
		if err != nil {
			log.Debug().
				Err(err).
				Str("source", k.name).
				Str("url", row.detailURL).
				Msg("Skipping kinozal row without hash")
			continue
		}
		candidates = append(candidates, Candidate{
			InfoHash: hash,
			Title:    row.title,
			Source:   k.name,
			Seeders:  row.seeders,
			Size:     row.size,
			Quality:  quality.Extract(row.title),
		})
	}

	log.Debug().
		Str("source", k.name).
		Str("query", query).
		Int("candidates", len(candidates)).
		Msg("Kinozal search complete")

	return candidates, nil
}

func (k *Kinozal) ensureLogin(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.loggedIn {
		return nil
	}

	form := url.Values{}
	form.Set("username", k.username)
	form.Set("password", k.password)
	form.Set("returnto", "")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/takelogin.php", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("kinozal login failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		return &FetchError{URL: req.URL.String(), StatusCode: resp.StatusCode}
	}

	// The login post answers with a redirect, a session cookie in the jar
	// is the success signal.
	base, err := url.Parse(k.baseURL)
	if err != nil {
		return fmt.Errorf("invalid kinozal base url: %w", err)
	}
	for _, cookie := range k.client.Jar.Cookies(base) {
		if cookie.Name == "uid" || cookie.Name == "pass" || strings.HasPrefix(cookie.Name, "sess") {
			k.loggedIn = true
			return nil
		}
	}

	return errors.New("kinozal login rejected, check credentials")
}

func (k *Kinozal) fetchInfoHash(ctx context.Context, detailURL string) (string, error) {
	body, _, err := fetchPage(ctx, k.client, detailURL)
	if err != nil {
		return "", err
	}

	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(body), charmap.Windows1251.NewDecoder()))
	if err != nil {
		return "", fmt.Errorf("failed to decode kinozal detail page: %w", err)
	}

	if match := kinozalHashRegexp.FindSubmatch(decoded); match != nil {
		if hash, ok := NormalizeInfoHash(string(match[1])); ok {
			return hash, nil
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(decoded))
	if err != nil {
		return "", fmt.Errorf("failed to parse kinozal detail page: %w", err)
	}
	if magnet, ok := doc.Find("a[href^='magnet:']").First().Attr("href"); ok {
		if hash, ok := InfoHashFromMagnet(magnet); ok {
			return hash, nil
		}
	}

	return "", errors.New("no infohash on detail page")
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/autobrr/streambrr/internal/buildinfo"
)

const (
	defaultBaseURL  = "https://api.real-debrid.com/rest/1.0"
	maxResponseSize = 4 << 20 // 4MB
)

// RealDebrid talks to the Real-Debrid REST API. The caller's API token is
// passed per request, the client itself holds no credential.
type RealDebrid struct {
	baseURL string
	client  *http.Client
}

func NewRealDebrid(baseURL string, timeout time.Duration) *RealDebrid {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &RealDebrid{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *RealDebrid) Name() string {
	return "realdebrid"
}

func (r *RealDebrid) CheckAvailability(ctx context.Context, token, infoHash string) (Availability, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	endpoint := fmt.Sprintf("%s/torrents/instantAvailability/%s", r.baseURL, strings.ToLower(infoHash))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Availability{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", buildinfo.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return Availability{}, fmt.Errorf("availability check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return Availability{}, fmt.Errorf("failed to read availability response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return Availability{}, apiErr
	}

	// Hoster maps arrive as [] instead of {} when nothing is cached, so
	// every entry is decoded leniently.
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return Availability{}, fmt.Errorf("failed to decode availability response: %w", err)
	}

	for hash, rawHosters := range payload {
		if !strings.EqualFold(hash, infoHash) {
			continue
		}

		var hosters map[string][]map[string]realDebridFile
		if err := json.Unmarshal(rawHosters, &hosters); err != nil {
			continue
		}

		if files := bestVariant(hosters); len(files) > 0 {
			return Availability{Available: true, Files: files}, nil
		}
	}

	return Availability{}, nil
}

// bestVariant picks the cached file combination with the most files. Variant
// keys are the 1-based file IDs of the torrent's original file list.
func bestVariant(hosters map[string][]map[string]realDebridFile) []File {
	var best map[string]realDebridFile
	for _, variants := range hosters {
		for _, variant := range variants {
			if len(variant) > len(best) {
				best = variant
			}
		}
	}
	if len(best) == 0 {
		return nil
	}

	files := make([]File, 0, len(best))
	for id, file := range best {
		index, err := strconv.Atoi(id)
		if err != nil || index < 1 {
			continue
		}
		files = append(files, File{Index: index, Name: file.Filename, Size: file.Filesize})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Index < files[j].Index
	})

	return files
}

type realDebridFile struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
}

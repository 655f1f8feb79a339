// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package debrid

import (
	"context"
	"fmt"
)

// File is one entry of a torrent's file list as the debrid service knows it.
// Index is the 1-based position in the torrent's original file list.
type File struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Size  int64  `json:"size"`
}

// Availability reports whether a torrent is cached and playable without
// downloading, and which files the cached copy holds.
type Availability struct {
	Available bool
	Files     []File
}

// Provider checks cached availability against one debrid service using the
// requester's own credential.
type Provider interface {
	Name() string
	CheckAvailability(ctx context.Context, token, infoHash string) (Availability, error)
}

// APIError is a non-2xx answer from the debrid API.
type APIError struct {
	StatusCode int
	Code       int    `json:"error_code"`
	Message    string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("debrid API error %d (code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("debrid API error %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	_, ok := target.(*APIError)
	return ok
}

// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package resolver

import (
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// resultCache stores resolved stream lists per media/requester pair. Expiry
// is checked lazily on read and stale entries are evicted there; no
// background sweeper runs.
type resultCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	streams   []Stream
	createdAt time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *resultCache) Get(key string) ([]Stream, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if time.Since(entry.createdAt) >= c.ttl {
		c.mu.Lock()
		// a concurrent Put may have refreshed the entry between the
		// locks, only evict the one we saw expire
		if current, ok := c.entries[key]; ok && current.createdAt.Equal(entry.createdAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return entry.streams, true
}

func (c *resultCache) Put(key string, streams []Stream) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{
		streams:   streams,
		createdAt: time.Now(),
	}
	c.mu.Unlock()
}

func (c *resultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cacheKey joins the canonical media key with a fingerprint of the requester
// credential so different debrid accounts never share entries. The raw
// credential never ends up in a map key.
func cacheKey(mediaKey, credential string) string {
	return fmt.Sprintf("%s|%x", mediaKey, xxhash.Sum64String(credential))
}

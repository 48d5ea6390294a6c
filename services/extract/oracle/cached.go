// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package oracle

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

// DefaultCacheSize is the in-memory tier capacity used when none is given.
const DefaultCacheSize = 4096

// Store is a persistent cost tier behind the in-memory cache. Get reports
// ok=false for a missing key.
type Store interface {
	Get(ctx context.Context, key string) (cost egraph.Cost, ok bool, err error)
	Put(ctx context.Context, key string, cost egraph.Cost) error
}

// CacheStats reports in-memory tier counters.
type CacheStats struct {
	Size      int   `json:"size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// Cached memoizes an oracle by (oracle name, graph fingerprint, result
// fingerprint). Lookups go to the in-memory LRU, then the Store if one is
// set. Failures are never cached. Store errors are logged and otherwise
// ignored.
//
// Thread Safety: Safe for concurrent use.
type Cached struct {
	inner  Oracle
	memory *lruCache[string, egraph.Cost]
	store  Store
	logger *slog.Logger
}

// NewCached wraps inner with a cache of size entries. store may be nil.
func NewCached(inner Oracle, size int, store Store) *Cached {
	return &Cached{
		inner:  inner,
		memory: newLRUCache[string, egraph.Cost](size),
		store:  store,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger.
func (c *Cached) WithLogger(logger *slog.Logger) *Cached {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Name implements Oracle.
func (c *Cached) Name() string { return c.inner.Name() }

// CacheKey returns the cache key for candidate cand under oracle name.
func CacheKey(name string, cand Candidate) string {
	return name + "/" + cand.Graph.Fingerprint() + "/" + cand.Fingerprint()
}

// Evaluate implements Oracle.
func (c *Cached) Evaluate(ctx context.Context, cand Candidate) (egraph.Cost, error) {
	key := CacheKey(c.inner.Name(), cand)

	if cost, ok := c.memory.get(key); ok {
		recordCache(ctx, c.Name(), "memory", true)
		return cost, nil
	}
	recordCache(ctx, c.Name(), "memory", false)

	if c.store != nil {
		cost, ok, err := c.store.Get(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("cost store read failed", slog.String("key", key), slog.String("error", err.Error()))
		case ok:
			recordCache(ctx, c.Name(), "store", true)
			c.memory.set(key, cost)
			return cost, nil
		default:
			recordCache(ctx, c.Name(), "store", false)
		}
	}

	cost, err := c.inner.Evaluate(ctx, cand)
	if err != nil || cost.IsInf() {
		return cost, err
	}

	c.memory.set(key, cost)
	if c.store != nil {
		if err := c.store.Put(ctx, key, cost); err != nil {
			c.logger.Warn("cost store write failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return cost, nil
}

// Stats returns in-memory tier counters.
func (c *Cached) Stats() CacheStats {
	return CacheStats{
		Size:      c.memory.len(),
		Hits:      c.memory.hits.Load(),
		Misses:    c.memory.misses.Load(),
		Evictions: c.memory.evictions.Load(),
	}
}

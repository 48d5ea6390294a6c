// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/egx/services/extract/egraph"
)

const keyPrefix = "cost/"

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("cost cache is closed")

// CostStore maps cache keys to oracle costs. It implements oracle.Store.
//
// Values are the 8-byte big-endian IEEE-754 bits of the cost. Infinite
// costs are never written.
//
// Thread Safety: Safe for concurrent use.
type CostStore struct {
	db     *badger.DB
	gc     *gcRunner
	ttl    time.Duration
	logger *slog.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Open opens a CostStore.
//
// Outputs:
//   - *CostStore: Call Close when done.
//   - error: Non-nil if the path is missing or the database cannot be opened.
func Open(cfg Config) (*CostStore, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &CostStore{db: db, ttl: cfg.TTL, logger: logger, closed: make(chan struct{})}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.gc = startGC(db, cfg.GCInterval, cfg.GCDiscardRatio, logger)
	}
	return s, nil
}

func (s *CostStore) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Get returns the cost stored under key.
func (s *CostStore) Get(ctx context.Context, key string) (egraph.Cost, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	if s.isClosed() {
		return 0, false, ErrClosed
	}

	var cost egraph.Cost
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("corrupt cost entry %q: %d bytes", key, len(val))
			}
			cost = egraph.Cost(math.Float64frombits(binary.BigEndian.Uint64(val)))
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cost, true, nil
}

// Put stores cost under key. Infinite costs are ignored.
func (s *CostStore) Put(ctx context.Context, key string, cost egraph.Cost) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.isClosed() {
		return ErrClosed
	}
	if cost.IsInf() {
		return nil
	}

	val := make([]byte, 8)
	binary.BigEndian.PutUint64(val, math.Float64bits(float64(cost)))
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+key), val)
		if s.ttl > 0 {
			e = e.WithTTL(s.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Len counts stored entries.
func (s *CostStore) Len() (int, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Purge removes every stored cost.
func (s *CostStore) Purge() error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.db.DropPrefix([]byte(keyPrefix))
}

// Close stops GC and closes the database. Safe to call more than once.
func (s *CostStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.gc != nil {
			s.gc.stop()
		}
		err = s.db.Close()
	})
	return err
}

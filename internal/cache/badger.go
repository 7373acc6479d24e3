// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Badger stores entries in an embedded BadgerDB using native entry TTLs,
// so expired values are invisible to reads and reclaimed by compaction.
type Badger struct {
	db     *badger.DB
	prefix []byte
	ttl    time.Duration
}

// NewBadger opens (or creates) the database.
func NewBadger(cfg BadgerConfig, prefix string, ttl time.Duration) (*Badger, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Dir != "":
		opts = badger.DefaultOptions(cfg.Dir)
	default:
		return nil, fmt.Errorf("badger cache: dir is required unless in_memory is set")
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger cache: open: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Badger{db: db, prefix: []byte(prefix), ttl: ttl}, nil
}

// Name implements Cacher.
func (b *Badger) Name() string { return string(BackendBadger) }

func (b *Badger) key(k string) []byte {
	out := make([]byte, 0, len(b.prefix)+len(k))
	out = append(out, b.prefix...)
	return append(out, k...)
}

// Get implements Cacher.
func (b *Badger) Get(_ context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger get: %w", err)
	}
	return data, true, nil
}

// Set implements Cacher.
func (b *Badger) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = b.ttl
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(b.key(key), value).WithTTL(ttl))
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// Delete implements Cacher.
func (b *Badger) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(b.key(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// Flush drops every key under the prefix.
func (b *Badger) Flush(_ context.Context) error {
	if err := b.db.DropPrefix(b.prefix); err != nil {
		return fmt.Errorf("badger flush: %w", err)
	}
	return nil
}

// Close implements Cacher.
func (b *Badger) Close() error { return b.db.Close() }

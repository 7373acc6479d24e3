// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

// Package cache provides the read-through response cache used by the
// recommendation engine.
//
// Every backend stores opaque byte values with a per-entry TTL behind the
// Cacher interface. Callers treat the cache as best-effort: an error from
// any method means "no cache", never "no answer".
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by a backend after Close.
var ErrClosed = errors.New("cache closed")

// Cacher defines the interface for cache implementations.
//
// Usage:
//
//	c, err := cache.New(ctx, cache.Config{Backend: cache.BackendMemory, TTL: 15 * time.Minute})
//	if err != nil { ... }
//	_ = c.Set(ctx, key, payload, 0) // 0 uses the configured TTL
//	if data, ok, err := c.Get(ctx, key); err == nil && ok {
//	    // Use cached bytes
//	}
type Cacher interface {
	// Get returns the value and true if present and not expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value for ttl. A ttl <= 0 uses the backend default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error

	// Flush removes every entry this cache owns.
	Flush(ctx context.Context) error

	// Name identifies the backend in logs and metrics.
	Name() string

	// Close releases connections and background goroutines.
	Close() error
}

// Backend selects a Cacher implementation.
type Backend string

const (
	// BackendMemory is the in-process TTL map (default).
	BackendMemory Backend = "memory"

	// BackendRedis shares entries across server replicas.
	BackendRedis Backend = "redis"

	// BackendBadger persists entries on local disk with native TTLs.
	BackendBadger Backend = "badger"

	// BackendNone disables caching.
	BackendNone Backend = "none"
)

// Config holds configuration for creating a cache.
type Config struct {
	Backend Backend

	// TTL is the default time-to-live for entries. Default: 15m.
	TTL time.Duration

	// KeyPrefix namespaces keys in shared stores. Default: "kgrec:".
	KeyPrefix string

	Redis  RedisConfig
	Badger BadgerConfig
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// BadgerConfig configures the Badger backend.
type BadgerConfig struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir      string
	InMemory bool
}

// DefaultTTL is the response cache lifetime.
const DefaultTTL = 15 * time.Minute

// New creates a cache based on the configuration and wraps it with
// metrics instrumentation.
func New(ctx context.Context, cfg Config) (Cacher, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "kgrec:"
	}

	var (
		c   Cacher
		err error
	)
	switch cfg.Backend {
	case BackendRedis:
		c, err = NewRedis(ctx, cfg.Redis, cfg.KeyPrefix, cfg.TTL)
	case BackendBadger:
		c, err = NewBadger(cfg.Badger, cfg.KeyPrefix, cfg.TTL)
	case BackendNone:
		c = Noop{}
	case BackendMemory, "":
		c = NewMemory(cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(c), nil
}

// Noop never stores anything.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set discards the value.
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }

// Delete is a no-op.
func (Noop) Delete(context.Context, string) error { return nil }

// Flush is a no-op.
func (Noop) Flush(context.Context) error { return nil }

// Name returns "none".
func (Noop) Name() string { return string(BackendNone) }

// Close is a no-op.
func (Noop) Close() error { return nil }

// Verify interface implementations at compile time
var (
	_ Cacher = (*Memory)(nil)
	_ Cacher = (*Redis)(nil)
	_ Cacher = (*Badger)(nil)
	_ Cacher = (*instrumented)(nil)
	_ Cacher = Noop{}
)

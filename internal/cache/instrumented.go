// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package cache

import (
	"context"
	"time"

	"github.com/tomtom215/kgrec/internal/metrics"
)

// instrumented records hit, miss and error counts per backend.
type instrumented struct {
	Cacher
}

// Instrument wraps c with prometheus counters.
func Instrument(c Cacher) Cacher {
	if _, ok := c.(*instrumented); ok {
		return c
	}
	return &instrumented{Cacher: c}
}

func (i *instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, ok, err := i.Cacher.Get(ctx, key)
	metrics.RecordCacheLookup(i.Name(), ok, err)
	return data, ok, err
}

func (i *instrumented) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := i.Cacher.Set(ctx, key, value, ttl)
	metrics.RecordCacheWrite(i.Name(), err)
	return err
}

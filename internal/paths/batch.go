// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package paths

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/kgrec/internal/graph"
)

// UserItem is a (user, dish) pair to explain.
type UserItem struct {
	UserID int    `json:"user_id"`
	Item   string `json:"item"`
}

// Record is the pre-sampled explanation of one pair.
type Record struct {
	UserID    int          `json:"user_id"`
	Item      string       `json:"item"`
	Paths     []graph.Path `json:"paths"`
	Patterns  []string     `json:"patterns"`
	Diversity float64      `json:"diversity"`
	Error     string       `json:"error,omitempty"`
}

// SampleBatch explains every pair with at most workers concurrent
// lookups. Output order matches input order. A pair whose history cannot
// be read is reported in Record.Error; only context cancellation aborts
// the batch.
func (s *Sampler) SampleBatch(ctx context.Context, pairs []UserItem, workers int) ([]Record, error) {
	if workers <= 0 {
		workers = 1
	}
	out := make([]Record, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, pair := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec := Record{UserID: pair.UserID, Item: pair.Item}
			found, err := s.SampleForUserItem(gctx, pair.UserID, pair.Item)
			if err != nil {
				rec.Error = err.Error()
			}
			rec.Paths = found
			rec.Patterns = Patterns(found)
			rec.Diversity = DiversityV2(found)
			out[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// MeanDiversity averages Record.Diversity over records without errors.
func MeanDiversity(records []Record) float64 {
	var sum float64
	n := 0
	for _, r := range records {
		if r.Error != "" {
			continue
		}
		sum += r.Diversity
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

// Package paths mines short explanation paths between dishes.
//
// A 2-hop path goes dish -> shared attribute -> dish; a 3-hop path passes
// through one intermediate dish and two shared attributes. The sampler asks
// the graph store for a fixed family of relation patterns, keeps the first
// path of every distinct pattern, and scores how varied a path set is.
package paths

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/kgrec/internal/graph"
	"github.com/tomtom215/kgrec/internal/metrics"
)

// Config bounds how many paths each step may return.
type Config struct {
	// TwoHopLimit caps paths per 2-hop pattern. Default: 5.
	TwoHopLimit int

	// ThreeHopLimit caps paths per 3-hop pattern. Default: 3.
	ThreeHopLimit int

	// SampleSize caps SamplePaths and SampleForUserItem. Default: 10.
	SampleSize int

	// HistoryLimit is how many distinct history dishes anchor the search
	// for one user. Default: 5.
	HistoryLimit int
}

// DefaultConfig returns default sampler limits.
func DefaultConfig() Config {
	return Config{
		TwoHopLimit:   5,
		ThreeHopLimit: 3,
		SampleSize:    10,
		HistoryLimit:  5,
	}
}

var (
	twoHopPatterns = [][]graph.Relation{
		{graph.HasTag, graph.HasTag},
		{graph.Contains, graph.Contains},
	}
	threeHopPatterns = [][]graph.Relation{
		{graph.HasTag, graph.HasTag, graph.HasTag, graph.HasTag},
		{graph.Contains, graph.Contains, graph.HasTag, graph.HasTag},
		{graph.HasTag, graph.HasTag, graph.Contains, graph.Contains},
	}
)

// Sampler queries a graph store for explanation paths. It is safe for
// concurrent use when the store is.
type Sampler struct {
	store  graph.Store
	cfg    Config
	logger zerolog.Logger
}

// NewSampler creates a sampler. Zero limits take their defaults.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSampler(store graph.Store, cfg Config, logger zerolog.Logger) *Sampler {
	def := DefaultConfig()
	if cfg.TwoHopLimit <= 0 {
		cfg.TwoHopLimit = def.TwoHopLimit
	}
	if cfg.ThreeHopLimit <= 0 {
		cfg.ThreeHopLimit = def.ThreeHopLimit
	}
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = def.SampleSize
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = def.HistoryLimit
	}
	return &Sampler{
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "paths").Logger(),
	}
}

// TwoHopPaths returns dish-attribute-dish paths, shared tags first.
func (s *Sampler) TwoHopPaths(ctx context.Context, start, end string) []graph.Path {
	return s.match(ctx, start, end, twoHopPatterns, s.cfg.TwoHopLimit)
}

// ThreeHopPaths returns paths through one intermediate dish.
func (s *Sampler) ThreeHopPaths(ctx context.Context, start, end string) []graph.Path {
	return s.match(ctx, start, end, threeHopPatterns, s.cfg.ThreeHopLimit)
}

// match unions the results of every pattern. A failing pattern is logged
// and contributes nothing.
func (s *Sampler) match(ctx context.Context, start, end string, patterns [][]graph.Relation, limit int) []graph.Path {
	if start == "" || end == "" || start == end {
		return nil
	}
	var out []graph.Path
	for _, rels := range patterns {
		if ctx.Err() != nil {
			break
		}
		found, err := s.store.MatchPaths(ctx, graph.PathQuery{
			Start:     start,
			End:       end,
			Relations: rels,
			Limit:     limit,
		})
		if err != nil {
			s.logger.Warn().Err(err).
				Str("start", start).
				Str("end", end).
				Str("pattern", graph.Path{Hops: hopsOf(rels)}.Pattern()).
				Msg("Path query failed")
			continue
		}
		if len(found) > limit {
			found = found[:limit]
		}
		out = append(out, found...)
	}
	return out
}

func hopsOf(rels []graph.Relation) []graph.Hop {
	hops := make([]graph.Hop, len(rels))
	for i, r := range rels {
		hops[i].Relation = r
	}
	return hops
}

// SamplePaths returns 2-hop then 3-hop paths, one per distinct pattern,
// capped at the sample size.
func (s *Sampler) SamplePaths(ctx context.Context, start, end string) []graph.Path {
	all := append(s.TwoHopPaths(ctx, start, end), s.ThreeHopPaths(ctx, start, end)...)
	return truncate(DedupByPattern(all), s.cfg.SampleSize)
}

// SampleForUserItem explains target from the user's highest-rated history.
// An empty history yields no paths and no error; an error is returned only
// when the history itself cannot be read.
func (s *Sampler) SampleForUserItem(ctx context.Context, userID int, target string) ([]graph.Path, error) {
	start := time.Now()
	history, err := s.store.UserHistory(ctx, userID)
	if err != nil {
		return nil, err
	}

	var out []graph.Path
	for _, anchor := range HistoryAnchors(history, target, s.cfg.HistoryLimit) {
		if ctx.Err() != nil {
			break
		}
		out = append(out, s.SamplePaths(ctx, anchor, target)...)
		if len(out) >= s.cfg.SampleSize {
			break
		}
	}
	out = truncate(out, s.cfg.SampleSize)

	metrics.PathSampleDuration.Observe(time.Since(start).Seconds())
	metrics.PathsReturned.Observe(float64(len(out)))
	return out, nil
}

// HistoryAnchors orders history by rating (highest first, ties keep their
// original order) and returns up to limit distinct dish names other than
// target.
func HistoryAnchors(history []graph.HistoryEntry, target string, limit int) []string {
	sorted := append([]graph.HistoryEntry(nil), history...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Rating > sorted[j].Rating })

	seen := make(map[string]struct{}, len(sorted))
	names := make([]string, 0, limit)
	for _, h := range sorted {
		if len(names) >= limit {
			break
		}
		if h.Item == "" || h.Item == target {
			continue
		}
		if _, dup := seen[h.Item]; dup {
			continue
		}
		seen[h.Item] = struct{}{}
		names = append(names, h.Item)
	}
	return names
}

// DedupByPattern keeps the first path of every pattern, in input order.
func DedupByPattern(in []graph.Path) []graph.Path {
	seen := make(map[string]struct{}, len(in))
	out := make([]graph.Path, 0, len(in))
	for _, p := range in {
		key := p.Pattern()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

func truncate(in []graph.Path, n int) []graph.Path {
	if len(in) > n {
		return in[:n]
	}
	return in
}

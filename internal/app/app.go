// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

// Package app turns a loaded config.Config into running components. The
// server and the CLI share it so both see the same graph store, checkpoint
// directory and cache.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/tomtom215/kgrec/internal/cache"
	"github.com/tomtom215/kgrec/internal/config"
	"github.com/tomtom215/kgrec/internal/embedding"
	"github.com/tomtom215/kgrec/internal/eval"
	"github.com/tomtom215/kgrec/internal/experiment"
	"github.com/tomtom215/kgrec/internal/graph"
	"github.com/tomtom215/kgrec/internal/paths"
	"github.com/tomtom215/kgrec/internal/recommend"
	"github.com/tomtom215/kgrec/internal/train"
)

// Components are the long-lived objects of a serving process.
type Components struct {
	Config      *config.Config
	Graph       graph.Store
	Cache       cache.Cacher
	Checkpoints *embedding.Store
	Snapshots   *embedding.Holder
	Sampler     *paths.Sampler
	Groups      experiment.GroupMap
	// Feedback is nil when no feedback database is configured.
	Feedback *experiment.FeedbackStore
	Engine   *recommend.Engine

	closers []func(context.Context) error
}

// GraphResilience maps the graph section to the store wrapper settings.
func GraphResilience(cfg *config.Config) graph.ResilienceConfig {
	g := cfg.Graph
	return graph.ResilienceConfig{
		MaxAttempts:         g.MaxAttempts,
		AttemptTimeout:      g.QueryTimeout,
		QueriesPerSecond:    g.QueriesPerSecond,
		Burst:               g.Burst,
		BreakerTimeout:      g.BreakerTimeout,
		BreakerMinRequests:  g.BreakerMinRequests,
		BreakerFailureRatio: g.BreakerFailureRatio,
	}
}

// CacheConfig maps the cache section.
func CacheConfig(cfg *config.Config) cache.Config {
	c := cfg.Cache
	return cache.Config{
		Backend:   cache.Backend(c.Backend),
		TTL:       c.TTL,
		KeyPrefix: c.KeyPrefix,
		Redis: cache.RedisConfig{
			Addr:     c.RedisAddr,
			Password: c.RedisPassword,
			DB:       c.RedisDB,
		},
		Badger: cache.BadgerConfig{
			Dir:      c.BadgerDir,
			InMemory: c.BadgerInMemory,
		},
	}
}

// TrainConfig maps the train section onto the trainer defaults.
func TrainConfig(cfg *config.Config) train.Config {
	t := cfg.Train
	out := train.DefaultConfig()
	out.Dim = t.Dim
	out.Epochs = t.Epochs
	out.BatchSize = t.BatchSize
	out.NegativesPerPositive = t.NegativesPerPositive
	out.MaxResampleAttempts = t.MaxResampleAttempts
	out.LearningRate = t.LearningRate
	out.WeightDecay = t.WeightDecay
	out.L2Reg = t.L2Reg
	out.Seed = t.Seed
	return out
}

// PathsConfig maps the paths section.
func PathsConfig(cfg *config.Config) paths.Config {
	p := cfg.Paths
	return paths.Config{
		TwoHopLimit:   p.TwoHopLimit,
		ThreeHopLimit: p.ThreeHopLimit,
		SampleSize:    p.SampleSize,
		HistoryLimit:  p.HistoryLimit,
	}
}

// RecommendConfig maps the recommend section. The response cache lifetime
// follows cache.ttl.
func RecommendConfig(cfg *config.Config) recommend.Config {
	r := cfg.Recommend
	out := recommend.DefaultConfig()
	out.DefaultTopK = r.DefaultTopK
	out.MaxTopK = r.MaxTopK
	out.CandidateMultiplier = r.CandidateMultiplier
	out.NameBufferMultiplier = r.NameBufferMultiplier
	out.MinResults = r.MinResults
	out.MaxExplanationPaths = r.MaxExplanationPaths
	out.ExplainWorkers = r.ExplainWorkers
	out.PlaceholderSubstrings = r.PlaceholderSubstrings
	out.PlaceholderPrefixes = r.PlaceholderPrefixes
	out.CacheTTL = cfg.Cache.TTL
	return out
}

// EvalConfig maps the eval section.
func EvalConfig(cfg *config.Config) eval.Config {
	e := cfg.Eval
	return eval.Config{
		K:               e.K,
		ExcludeTrain:    e.ExcludeTrain,
		Workers:         e.Workers,
		PathSampleUsers: e.PathSampleUsers,
	}
}

// OpenGraph connects the configured driver and wraps it with retries, a
// rate cap and a circuit breaker.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func OpenGraph(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (graph.Store, error) {
	var (
		store graph.Store
		err   error
	)
	switch cfg.Graph.Driver {
	case "memory":
		store, err = graph.LoadFixture(cfg.Graph.FixturePath)
	case "neo4j":
		store, err = graph.NewNeo4jStore(ctx, graph.Neo4jConfig{
			URI:      cfg.Graph.URI,
			Username: cfg.Graph.Username,
			Password: cfg.Graph.Password,
			Database: cfg.Graph.Database,
		})
	default:
		err = fmt.Errorf("unknown graph driver %q", cfg.Graph.Driver)
	}
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("driver", cfg.Graph.Driver).
		Int("max_attempts", cfg.Graph.MaxAttempts).
		Dur("query_timeout", cfg.Graph.QueryTimeout).
		Msg("Graph store connected")
	return graph.NewResilientStore(store, GraphResilience(cfg), logger), nil
}

// LoadGroups reads the experiment group map. A missing file yields an empty
// map, which places every user in the plain arm.
func LoadGroups(path string) (experiment.GroupMap, error) {
	if path == "" {
		return experiment.GroupMap{}, nil
	}
	groups, err := experiment.LoadGroupMap(path)
	if errors.Is(err, os.ErrNotExist) {
		return experiment.GroupMap{}, nil
	}
	return groups, err
}

// New builds every serving component. Call Close to release them.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Components, error) {
	c := &Components{Config: cfg, Snapshots: &embedding.Holder{}}
	if err := c.build(ctx, logger); err != nil {
		_ = c.Close(context.Background())
		return nil, err
	}
	return c, nil
}

//nolint:gocritic // zerolog.Logger is designed to be passed by value
func (c *Components) build(ctx context.Context, logger zerolog.Logger) error {
	cfg := c.Config
	var err error

	if c.Graph, err = OpenGraph(ctx, cfg, logger); err != nil {
		return fmt.Errorf("open graph store: %w", err)
	}
	c.closers = append(c.closers, c.Graph.Close)

	if c.Cache, err = cache.New(ctx, CacheConfig(cfg)); err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return c.Cache.Close() })

	if c.Checkpoints, err = embedding.NewStore(cfg.Model.Dir); err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}

	if c.Groups, err = LoadGroups(cfg.Experiment.GroupMapPath); err != nil {
		return err
	}
	counts := c.Groups.Counts()
	logger.Info().
		Int("users", len(c.Groups)).
		Int("group_a", counts[experiment.GroupA]).
		Int("group_b", counts[experiment.GroupB]).
		Msg("Experiment groups loaded")

	if path := cfg.Experiment.FeedbackDBPath; path != "" {
		if c.Feedback, err = experiment.OpenFeedbackStore(ctx, path, c.Groups, logger); err != nil {
			return fmt.Errorf("open feedback store: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return c.Feedback.Close() })
	}

	c.Sampler = paths.NewSampler(c.Graph, PathsConfig(cfg), logger)

	c.Engine, err = recommend.NewEngine(RecommendConfig(cfg), recommend.Dependencies{
		Snapshots: c.Snapshots,
		Graph:     c.Graph,
		Sampler:   c.Sampler,
		Groups:    c.Groups,
		Cache:     c.Cache,
	}, logger)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	return nil
}

// Close releases components in reverse order of creation.
func (c *Components) Close(ctx context.Context) error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

// Package recommend is the online scorer. It ranks dishes for a user with
// the active embedding snapshot, enriches them from the graph store,
// attaches explanations according to the user's experiment arm, and caches
// the result.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/kgrec/internal/cache"
	"github.com/tomtom215/kgrec/internal/embedding"
	"github.com/tomtom215/kgrec/internal/graph"
	"github.com/tomtom215/kgrec/internal/logging"
	"github.com/tomtom215/kgrec/internal/metrics"
	"github.com/tomtom215/kgrec/internal/validation"
)

// Dependencies are the collaborators of an Engine. Snapshots and Graph are
// required. A nil Sampler disables the explained arm, a nil Groups puts
// every user in the plain arm and a nil Cache disables caching.
type Dependencies struct {
	Snapshots *embedding.Holder
	Graph     graph.Store
	Sampler   PathSampler
	Groups    GroupResolver
	Cache     cache.Cacher
}

// Engine serves recommendations. It is safe for concurrent use.
type Engine struct {
	cfg       Config
	snapshots *embedding.Holder
	graph     graph.Store
	groups    GroupResolver
	explained *ExplainedArm
	cache     cache.Cacher
	flight    singleflight.Group
	logger    zerolog.Logger
}

// NewEngine creates an engine.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewEngine(cfg Config, deps Dependencies, logger zerolog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Snapshots == nil {
		return nil, errors.New("snapshot holder is required")
	}
	if deps.Graph == nil {
		return nil, errors.New("graph store is required")
	}

	e := &Engine{
		cfg:       cfg,
		snapshots: deps.Snapshots,
		graph:     deps.Graph,
		groups:    deps.Groups,
		cache:     deps.Cache,
		logger:    logger.With().Str("component", "recommend").Logger(),
	}
	if e.cache == nil {
		e.cache = cache.Noop{}
	}
	if deps.Sampler != nil {
		e.explained = NewExplainedArm(deps.Sampler, cfg.MaxExplanationPaths, e.logger)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Ready reports whether a model snapshot is installed.
func (e *Engine) Ready() error {
	if e.snapshots.Load() == nil {
		return newError(KindConfiguration, "ready", ErrModelNotLoaded)
	}
	return nil
}

// ModelVersion returns the installed snapshot version, or 0.
func (e *Engine) ModelVersion() int {
	if s := e.snapshots.Load(); s != nil {
		return s.Version()
	}
	return 0
}

// Recommend returns up to req.TopK dishes for req.UserID. A cached response
// is returned with FromCache set. Concurrent misses for the same key share
// one computation.
func (e *Engine) Recommend(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	if req.TopK == 0 {
		req.TopK = e.cfg.DefaultTopK
	}
	arm := e.armFor(req.UserID)

	resp, outcome, err := e.recommend(ctx, req, arm)
	metrics.RecordRecommend(arm.Group(), outcome, time.Since(start))
	return resp, err
}

func (e *Engine) recommend(ctx context.Context, req Request, arm ExperimentArm) (*Response, string, error) {
	const op = "recommend"

	if verr := validation.ValidateStruct(&req); verr != nil {
		return nil, "invalid", newError(KindValidation, op, verr)
	}
	if req.TopK > e.cfg.MaxTopK {
		return nil, "invalid", newError(KindValidation, op, fmt.Errorf("topk must be at most %d", e.cfg.MaxTopK))
	}

	snap := e.snapshots.Load()
	if snap == nil {
		return nil, "error", newError(KindConfiguration, op, ErrModelNotLoaded)
	}
	if req.UserID >= snap.NumUsers() {
		return nil, "invalid", newError(KindValidation, op,
			fmt.Errorf("%w: %d not in [0, %d)", ErrUserOutOfRange, req.UserID, snap.NumUsers()))
	}

	key := cacheKey(req)
	if resp, ok := e.cached(ctx, key); ok {
		return resp, "cached", nil
	}

	// The shared computation outlives any single waiter; graph calls stay
	// bounded by the store's per-attempt timeout.
	shared := context.WithoutCancel(ctx)
	ch := e.flight.DoChan(key, func() (interface{}, error) {
		return e.compute(shared, snap, req, arm, key)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, "canceled", ctx.Err()
	case res = <-ch:
	}
	v, err := res.Val, res.Err
	if err != nil {
		if errors.Is(err, ErrInsufficientResults) {
			return nil, "insufficient", err
		}
		return nil, "error", err
	}

	resp := *v.(*Response)
	if resp.Shortfall > 0 {
		return &resp, "underfilled", nil
	}
	return &resp, "ok", nil
}

type candidate struct {
	index int
	name  string
	score float64
}

func (e *Engine) compute(ctx context.Context, snap *embedding.Snapshot, req Request, arm ExperimentArm, key string) (*Response, error) {
	const op = "recommend"
	start := time.Now()
	logger := e.logger.With().
		Str("request_id", logging.RequestIDFromContext(ctx)).
		Int("user_id", req.UserID).
		Int("topk", req.TopK).
		Logger()

	cat := snap.Catalog()
	fetch := min(req.TopK*e.cfg.CandidateMultiplier, cat.NumItems())
	top := snap.TopItems(req.UserID, graph.Interacted, fetch, nil)

	named, dropped := e.nameCandidates(cat, top, req.TopK*e.cfg.NameBufferMultiplier)
	items, enrichDropped, graphErr := e.enrich(ctx, &logger, req.UserID, named, req.TopK)
	dropped += enrichDropped

	degraded := e.explain(ctx, arm, req.UserID, items)

	resp := &Response{
		UserID:          req.UserID,
		RequestedTopK:   req.TopK,
		TopK:            len(items),
		ExperimentGroup: arm.Group(),
		ShowExplanation: arm.ShowExplanation(),
		Shortfall:       req.TopK - len(items),
		Recommendations: items,
		Metadata: Metadata{
			ModelVersion: snap.Version(),
			GeneratedAt:  time.Now().UTC(),
			Candidates:   len(top),
			Dropped:      dropped,
			LatencyMS:    time.Since(start).Milliseconds(),
		},
	}

	if resp.Shortfall > 0 {
		metrics.RecommendShortfall.Add(float64(resp.Shortfall))
		logger.Warn().
			Int("returned", resp.TopK).
			Int("shortfall", resp.Shortfall).
			Int("candidates", len(top)).
			Msg("Recommendation list under-filled")
	}

	if len(items) < e.cfg.MinResults {
		err := fmt.Errorf("%w: %d of %d required items", ErrInsufficientResults, len(items), e.cfg.MinResults)
		if graphErr != nil {
			return nil, newError(KindDependencyUnavailable, op, fmt.Errorf("%w: %w", err, graphErr))
		}
		return nil, newError(KindDataIncomplete, op, err)
	}

	if degraded || graphErr != nil || ctx.Err() != nil {
		logger.Warn().Bool("explanations_degraded", degraded).Msg("Degraded response not cached")
	} else {
		e.store(ctx, &logger, key, resp)
	}

	logger.Debug().
		Int("candidates", len(top)).
		Int("returned", resp.TopK).
		Int64("latency_ms", resp.Metadata.LatencyMS).
		Msg("Recommendation complete")
	return resp, nil
}

// nameCandidates keeps up to limit candidates with a displayable name.
func (e *Engine) nameCandidates(cat *embedding.Catalog, top []embedding.ScoredItem, limit int) ([]candidate, int) {
	out := make([]candidate, 0, min(limit, len(top)))
	dropped := 0
	for _, it := range top {
		if len(out) >= limit {
			break
		}
		name := cat.Name(it.Index)
		switch {
		case name == "":
			metrics.CandidatesDropped.WithLabelValues("unnamed").Inc()
			dropped++
		case e.isPlaceholder(name):
			metrics.CandidatesDropped.WithLabelValues("placeholder").Inc()
			dropped++
		default:
			out = append(out, candidate{index: it.Index, name: name, score: it.Score})
		}
	}
	return out, dropped
}

func (e *Engine) isPlaceholder(name string) bool {
	for _, s := range e.cfg.PlaceholderSubstrings {
		if s != "" && strings.Contains(name, s) {
			return true
		}
	}
	for _, p := range e.cfg.PlaceholderPrefixes {
		if p != "" && strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// enrich fetches attributes for every candidate in one call and keeps the
// first limit complete ones. A failed fetch drops every candidate; the
// error is returned alongside for classification.
func (e *Engine) enrich(ctx context.Context, logger *zerolog.Logger, userID int, cands []candidate, limit int) ([]Item, int, error) {
	items := make([]Item, 0, limit)
	if len(cands) == 0 {
		return items, 0, nil
	}

	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.name
	}
	attrs, err := e.graph.ItemAttributes(ctx, names)
	if err != nil {
		logger.Error().Err(err).Int("candidates", len(cands)).Msg("Attribute lookup failed, dropping candidates")
		metrics.CandidatesDropped.WithLabelValues("graph_unavailable").Add(float64(len(cands)))
		return items, len(cands), err
	}

	dropped := 0
	for _, c := range cands {
		if len(items) >= limit {
			break
		}
		a, ok := attrs[c.name]
		if !ok {
			metrics.CandidatesDropped.WithLabelValues("missing_attributes").Inc()
			logger.Debug().Int("item_id", c.index).Str("item", c.name).Msg("Candidate missing from graph")
			dropped++
			continue
		}
		if !a.Complete() {
			metrics.CandidatesDropped.WithLabelValues("zero_price").Inc()
			logger.Debug().Int("item_id", c.index).Str("item", c.name).Msg("Candidate has no price")
			dropped++
			continue
		}
		items = append(items, Item{
			ItemID:      c.index,
			Name:        c.name,
			Price:       a.Price,
			Tags:        nonNil(a.Tags),
			Ingredients: nonNil(a.Ingredients),
			Photo:       a.Photo,
			Score:       c.score,
		})
	}
	return items, dropped, nil
}

// explain fills in the arm's explanation for every item. The plain arm
// runs inline; the explained arm samples items concurrently. It reports
// whether any explanation fell back because sampling failed.
func (e *Engine) explain(ctx context.Context, arm ExperimentArm, userID int, items []Item) bool {
	if !arm.ShowExplanation() {
		for i := range items {
			ex := arm.Explain(ctx, userID, items[i].Name)
			items[i].Explanation, items[i].Paths = ex.Text, ex.Paths
		}
		return false
	}

	var degraded atomic.Bool
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.ExplainWorkers)
	for i := range items {
		g.Go(func() error {
			ex := arm.Explain(gctx, userID, items[i].Name)
			items[i].Explanation, items[i].Paths = ex.Text, ex.Paths
			if ex.Degraded {
				degraded.Store(true)
			}
			return nil
		})
	}
	_ = g.Wait()
	return degraded.Load()
}

// Detail returns one dish with the explanation the user's arm allows.
func (e *Engine) Detail(ctx context.Context, userID int, name string) (*DishDetail, error) {
	const op = "detail"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newError(KindValidation, op, errors.New("dish name is required"))
	}
	if userID < 0 {
		return nil, newError(KindValidation, op, fmt.Errorf("%w: %d", ErrUserOutOfRange, userID))
	}

	itemID := -1
	var score *float64
	if snap := e.snapshots.Load(); snap != nil {
		if userID >= snap.NumUsers() {
			return nil, newError(KindValidation, op,
				fmt.Errorf("%w: %d not in [0, %d)", ErrUserOutOfRange, userID, snap.NumUsers()))
		}
		if idx, ok := snap.Catalog().ItemIndex(name); ok {
			itemID = idx
			s := snap.ScoreItem(userID, graph.Interacted, idx)
			score = &s
		}
	}

	attrs, err := e.graph.ItemAttributes(ctx, []string{name})
	if err != nil {
		return nil, newError(KindDependencyUnavailable, op, err)
	}
	a, ok := attrs[name]
	if !ok {
		return nil, newError(KindDataIncomplete, op, fmt.Errorf("%w: %q", ErrDishNotFound, name))
	}

	arm := e.armFor(userID)
	ex := arm.Explain(ctx, userID, name)
	return &DishDetail{
		ItemID:          itemID,
		Name:            a.Name,
		Price:           a.Price,
		Photo:           a.Photo,
		Tags:            nonNil(a.Tags),
		Ingredients:     nonNil(a.Ingredients),
		Score:           score,
		ExperimentGroup: arm.Group(),
		ShowExplanation: arm.ShowExplanation(),
		Explanation:     ex.Text,
		Paths:           ex.Paths,
	}, nil
}

type cacheKeyParams struct {
	UserID int `json:"user_id"`
	TopK   int `json:"topk"`
}

func cacheKey(req Request) string {
	return cache.GenerateKey("rec", cacheKeyParams{UserID: req.UserID, TopK: req.TopK})
}

// cached returns a decoded cache hit. Cache failures count as misses.
func (e *Engine) cached(ctx context.Context, key string) (*Response, bool) {
	data, ok, err := e.cache.Get(ctx, key)
	if err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, bypassing")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		e.logger.Warn().Err(err).Str("key", key).Msg("Discarding undecodable cache entry")
		return nil, false
	}
	resp.FromCache = true
	return &resp, true
}

func (e *Engine) store(ctx context.Context, logger *zerolog.Logger, key string, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Warn().Err(err).Msg("Encode response for cache failed")
		return
	}
	if err := e.cache.Set(ctx, key, data, e.cfg.CacheTTL); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("Cache write failed, bypassing")
	}
}

// FlushCache drops every cached response.
func (e *Engine) FlushCache(ctx context.Context) error {
	return e.cache.Flush(ctx)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

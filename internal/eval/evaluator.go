// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

// Package eval scores an embedding snapshot against held-out positives.
//
// Ranking uses the same embedding.Score as training and serving. For each
// test user the evaluator ranks every dish, drops the user's training
// positives, and reports HR@k, NDCG@k, reciprocal rank and intra-list
// diversity. Optionally it also samples explanation paths for a bounded
// number of users and reports their mean DiversityV2.
package eval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/kgrec/internal/embedding"
	"github.com/tomtom215/kgrec/internal/graph"
	"github.com/tomtom215/kgrec/internal/paths"
	"github.com/tomtom215/kgrec/internal/train"
)

// ErrNoTestUsers is returned when no test user falls inside the model.
var ErrNoTestUsers = errors.New("no evaluable test users")

// Config controls an evaluation run.
type Config struct {
	K               int  `json:"k"`
	ExcludeTrain    bool `json:"exclude_train"`
	Workers         int  `json:"workers"`
	PathSampleUsers int  `json:"path_sample_users"`
}

// DefaultConfig returns k=10 with training positives excluded and path
// diversity disabled.
func DefaultConfig() Config {
	return Config{K: 10, ExcludeTrain: true, Workers: 4}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.K < 1 {
		return fmt.Errorf("eval.k must be positive, got %d", c.K)
	}
	if c.Workers < 1 {
		return fmt.Errorf("eval.workers must be positive, got %d", c.Workers)
	}
	if c.PathSampleUsers < 0 {
		return fmt.Errorf("eval.path_sample_users must be non-negative, got %d", c.PathSampleUsers)
	}
	return nil
}

// PathSampler mines paths between two dishes. *paths.Sampler implements it.
type PathSampler interface {
	SamplePaths(ctx context.Context, start, end string) []graph.Path
}

// HistorySource reads a user's rated interactions. graph.Store implements it.
type HistorySource interface {
	UserHistory(ctx context.Context, userID int) ([]graph.HistoryEntry, error)
}

// UserResult holds the metrics of one test user.
type UserResult struct {
	User          int     `json:"user"`
	HitRate       float64 `json:"hit_rate"`
	NDCG          float64 `json:"ndcg"`
	RR            float64 `json:"reciprocal_rank"`
	Diversity     float64 `json:"diversity"`
	PathDiversity float64 `json:"path_diversity"`
	PathSampled   bool    `json:"path_sampled"`
	Top           []int   `json:"top"`
}

// Report aggregates a run. Means are over evaluated users.
type Report struct {
	RunID         string        `json:"run_id"`
	ModelVersion  int           `json:"model_version"`
	K             int           `json:"k"`
	Users         int           `json:"users"`
	SkippedUsers  int           `json:"skipped_users"`
	HitRate       float64       `json:"hit_rate"`
	NDCG          float64       `json:"ndcg"`
	MRR           float64       `json:"mrr"`
	Diversity     float64       `json:"diversity"`
	PathUsers     int           `json:"path_users"`
	PathDiversity float64       `json:"path_diversity"`
	Duration      time.Duration `json:"duration"`
	PerUser       []UserResult  `json:"per_user,omitempty"`
}

// Evaluator runs offline evaluations. The path sampler and history source
// are only needed when Config.PathSampleUsers > 0.
type Evaluator struct {
	cfg     Config
	sampler PathSampler
	history HistorySource
	logger  zerolog.Logger
}

// New creates an evaluator.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(cfg Config, sampler PathSampler, history HistorySource, logger zerolog.Logger) (*Evaluator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.PathSampleUsers > 0 && (sampler == nil || history == nil) {
		return nil, errors.New("path diversity needs a path sampler and a history source")
	}
	return &Evaluator{
		cfg:     cfg,
		sampler: sampler,
		history: history,
		logger:  logger.With().Str("component", "eval").Logger(),
	}, nil
}

// Evaluate ranks dishes for every user in test. Users outside the model's
// user block are skipped and counted.
func (e *Evaluator) Evaluate(ctx context.Context, snap *embedding.Snapshot, trainSet, test train.Positives) (*Report, error) {
	start := time.Now()
	report := &Report{
		RunID:        uuid.New().String(),
		ModelVersion: snap.Version(),
		K:            e.cfg.K,
	}

	var users []int
	for _, u := range test.Users() {
		if u < 0 || u >= snap.NumUsers() {
			report.SkippedUsers++
			continue
		}
		users = append(users, u)
	}
	if len(users) == 0 {
		return report, ErrNoTestUsers
	}

	results := make([]UserResult, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i, u := range users {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.evaluateUser(gctx, snap, u, trainSet, test, i < e.cfg.PathSampleUsers)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}

	for _, r := range results {
		report.HitRate += r.HitRate
		report.NDCG += r.NDCG
		report.MRR += r.RR
		report.Diversity += r.Diversity
		if r.PathSampled {
			report.PathUsers++
			report.PathDiversity += r.PathDiversity
		}
	}
	n := float64(len(results))
	report.Users = len(results)
	report.HitRate /= n
	report.NDCG /= n
	report.MRR /= n
	report.Diversity /= n
	if report.PathUsers > 0 {
		report.PathDiversity /= float64(report.PathUsers)
	}
	report.PerUser = results
	report.Duration = time.Since(start)

	e.logger.Info().
		Str("run_id", report.RunID).
		Int("model_version", report.ModelVersion).
		Int("users", report.Users).
		Int("skipped_users", report.SkippedUsers).
		Float64("hr", report.HitRate).
		Float64("ndcg", report.NDCG).
		Float64("mrr", report.MRR).
		Dur("duration", report.Duration).
		Msg("Evaluation complete")
	return report, nil
}

func (e *Evaluator) evaluateUser(ctx context.Context, snap *embedding.Snapshot, user int, trainSet, test train.Positives, samplePaths bool) UserResult {
	var exclude map[int]bool
	if e.cfg.ExcludeTrain {
		items := trainSet.Items(user)
		exclude = make(map[int]bool, len(items))
		for _, it := range items {
			exclude[it] = true
		}
	}

	scored := snap.TopItems(user, graph.Interacted, e.cfg.K, exclude)
	top := make([]int, len(scored))
	vectors := make([][]float64, len(scored))
	for i, s := range scored {
		top[i] = s.Index
		vectors[i] = snap.EntityVector(s.Index)
	}

	heldOut := test.Items(user)
	relevant := make(map[int]bool, len(heldOut))
	for _, it := range heldOut {
		relevant[it] = true
	}

	res := UserResult{
		User:      user,
		HitRate:   HitRate(top, relevant),
		NDCG:      NDCG(top, relevant),
		RR:        ReciprocalRank(top, relevant),
		Diversity: IntraListDiversity(vectors),
		Top:       top,
	}
	if samplePaths && len(top) > 0 {
		res.PathDiversity, res.PathSampled = e.pathDiversity(ctx, user, snap.Catalog().Name(top[0]))
	}
	return res
}

// pathDiversity samples paths from the user's best-rated history dish to
// target. It reports false when the user has no usable history.
func (e *Evaluator) pathDiversity(ctx context.Context, user int, target string) (float64, bool) {
	history, err := e.history.UserHistory(ctx, user)
	if err != nil {
		e.logger.Warn().Err(err).Int("user_id", user).Msg("History unavailable, skipping path diversity")
		return 0, false
	}
	anchors := paths.HistoryAnchors(history, target, 1)
	if len(anchors) == 0 {
		return 0, false
	}
	return paths.DiversityV2(e.sampler.SamplePaths(ctx, anchors[0], target)), true
}

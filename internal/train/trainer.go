// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

// Package train fits entity and relation embeddings with a pairwise
// ranking objective.
//
// Every observed (user, dish) pair is contrasted against sampled dishes the
// user never touched. Facts are scored TransE-style with embedding.Score,
// and the loss is Bayesian Personalized Ranking:
//
//	loss = -log σ(score(u, r, pos) - score(u, r, neg)) + λ/2 (‖u‖² + ‖pos‖² + ‖neg‖²)
//
// Entity rows are projected back onto the unit sphere after every step.
// Only the epoch with the lowest average loss is persisted.
package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/kgrec/internal/embedding"
	"github.com/tomtom215/kgrec/internal/graph"
	"github.com/tomtom215/kgrec/internal/metrics"
)

var (
	// ErrNoPositives means there is nothing to learn from. No checkpoint is
	// written.
	ErrNoPositives = errors.New("no positive interactions to train on")

	// ErrNoTriplets means every positive was skipped because its user has
	// no negative candidates left.
	ErrNoTriplets = errors.New("no trainable triplets")
)

// Result summarizes a training run.
type Result struct {
	Version   int
	Epochs    int
	BestEpoch int
	BestLoss  float64
	Positives int
	// Skipped counts triplets dropped because no negative existed.
	Skipped   int
	Fallbacks int
	Duration  time.Duration
	Snapshot  *embedding.Snapshot
}

// Trainer runs the optimization loop. A nil checkpoint store keeps the best
// snapshot in memory only.
type Trainer struct {
	cfg    Config
	store  *embedding.Store
	logger zerolog.Logger
}

// New creates a trainer.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(cfg Config, store *embedding.Store, logger zerolog.Logger) *Trainer {
	return &Trainer{
		cfg:    withDefaults(cfg),
		store:  store,
		logger: logger.With().Str("component", "trainer").Logger(),
	}
}

// Config returns the effective configuration.
func (t *Trainer) Config() Config { return t.cfg }

// model is the mutable training state.
type model struct {
	ent, rel       embedding.Matrix
	entOpt, relOpt *adam
	step           int
	l2             float64
}

//nolint:gocritic // Config is small and read-only here
func newModel(cfg Config, numEntities int, rng *rand.Rand) *model {
	m := &model{
		ent: xavierUniform(numEntities, cfg.Dim, rng),
		rel: xavierUniform(len(graph.Relations), cfg.Dim, rng),
		l2:  cfg.L2Reg,
	}
	embedding.NormalizeRows(m.ent)
	m.entOpt = newAdam(cfg, numEntities, cfg.Dim)
	m.relOpt = newAdam(cfg, len(graph.Relations), cfg.Dim)
	return m
}

// xavierUniform draws from U(-b, b) with b = sqrt(6 / (rows + cols)).
func xavierUniform(rows, cols int, rng *rand.Rand) embedding.Matrix {
	m := embedding.NewMatrix(rows, cols)
	bound := math.Sqrt(6 / float64(rows+cols))
	for i := range m.Data {
		m.Data[i] = (rng.Float64()*2 - 1) * bound
	}
	return m
}

// Train fits embeddings for every entity in cat from the positive pairs.
func (t *Trainer) Train(ctx context.Context, cat *embedding.Catalog, pos Positives) (*Result, error) {
	start := time.Now()
	res := &Result{Positives: pos.Len(), BestLoss: math.Inf(1), BestEpoch: -1}
	if res.Positives == 0 {
		return res, ErrNoPositives
	}
	lo, hi := cat.ItemRange()
	if hi <= lo {
		return res, fmt.Errorf("train: catalog has no dishes")
	}

	//nolint:gosec // G404: math/rand is acceptable for ML initialization (not security)
	rng := rand.New(rand.NewSource(t.cfg.Seed))
	m := newModel(t.cfg, cat.Len(), rng)
	sampler := NewNegativeSampler(lo, hi, pos, rng, t.cfg.MaxResampleAttempts)

	res.Version = 1
	if t.store != nil {
		res.Version = t.store.NextVersion()
	}

	t.logger.Info().
		Int("entities", cat.Len()).
		Int("users", cat.NumUsers()).
		Int("dishes", cat.NumItems()).
		Int("positives", res.Positives).
		Int("dim", t.cfg.Dim).
		Int("epochs", t.cfg.Epochs).
		Int("version", res.Version).
		Msg("Training started")

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		triplets, skipped := generateTriplets(pos, sampler, t.cfg.NegativesPerPositive)
		res.Skipped += skipped
		rng.Shuffle(len(triplets), func(i, j int) { triplets[i], triplets[j] = triplets[j], triplets[i] })

		var total float64
		batches := 0
		for b := 0; b < len(triplets); b += t.cfg.BatchSize {
			batch := triplets[b:min(b+t.cfg.BatchSize, len(triplets))]
			if len(batch) < 2 {
				continue
			}
			total += m.trainStep(batch)
			batches++
		}
		res.Epochs = epoch + 1
		if batches == 0 {
			return res, ErrNoTriplets
		}

		avg := total / float64(batches)
		metrics.TrainingEpochLoss.Set(avg)
		ev := t.logger.Info().Int("epoch", epoch).Float64("loss", avg).Int("triplets", len(triplets))

		if avg < res.BestLoss {
			res.BestLoss = avg
			res.BestEpoch = epoch
			snap, err := embedding.NewSnapshot(res.Version, time.Now().UTC(), m.ent.Clone(), m.rel.Clone(), cat)
			if err != nil {
				return res, fmt.Errorf("snapshot epoch %d: %w", epoch, err)
			}
			res.Snapshot = snap
			if t.store != nil {
				meta := embedding.Metadata{
					Epoch:              epoch,
					Loss:               avg,
					TrainingDurationMS: time.Since(start).Milliseconds(),
				}
				if err := t.store.SaveSnapshot(ctx, snap, meta); err != nil {
					return res, fmt.Errorf("save checkpoint: %w", err)
				}
			}
			ev = ev.Bool("best", true)
		}
		ev.Msg("Epoch complete")
	}

	res.Fallbacks = sampler.Fallbacks
	res.Duration = time.Since(start)
	t.logger.Info().
		Int("best_epoch", res.BestEpoch).
		Float64("best_loss", res.BestLoss).
		Int("skipped", res.Skipped).
		Int("fallbacks", res.Fallbacks).
		Dur("duration", res.Duration).
		Msg("Training complete")
	return res, nil
}

// generateTriplets pairs every positive with fresh negatives, visiting users
// and items in ascending order so a fixed seed reproduces the run.
func generateTriplets(pos Positives, sampler *NegativeSampler, perPositive int) ([]Triplet, int) {
	triplets := make([]Triplet, 0, pos.Len()*perPositive)
	skipped := 0
	for _, u := range pos.Users() {
		for _, item := range pos.Items(u) {
			for k := 0; k < perPositive; k++ {
				neg, ok := sampler.Sample(u)
				if !ok {
					skipped++
					continue
				}
				triplets = append(triplets, Triplet{User: u, Pos: item, Neg: neg})
			}
		}
	}
	return triplets, skipped
}

// trainStep applies one Adam step on batch and returns the batch loss.
func (m *model) trainStep(batch []Triplet) float64 {
	dim := m.ent.Cols
	scale := 1 / float64(len(batch))
	r := m.rel.Row(int(graph.Interacted))

	entGrad := make(map[int][]float64, 3*len(batch))
	relGrad := make([]float64, dim)
	grad := func(row int) []float64 {
		g, ok := entGrad[row]
		if !ok {
			g = make([]float64, dim)
			entGrad[row] = g
		}
		return g
	}

	xp := make([]float64, dim)
	xn := make([]float64, dim)
	var loss float64
	for _, tr := range batch {
		u, p, n := m.ent.Row(tr.User), m.ent.Row(tr.Pos), m.ent.Row(tr.Neg)
		for i := 0; i < dim; i++ {
			xp[i] = u[i] + r[i] - p[i]
			xn[i] = u[i] + r[i] - n[i]
		}
		np, nn := embedding.Norm(xp), embedding.Norm(xn)
		diff := nn - np // score(pos) - score(neg)

		loss += softplus(-diff) * scale
		loss += m.l2 / 2 * (sqNorm(u) + sqNorm(p) + sqNorm(n)) * scale

		// dL/d(diff) = -σ(-diff)
		coef := -sigmoid(-diff) * scale
		gu, gp, gn := grad(tr.User), grad(tr.Pos), grad(tr.Neg)
		for i := 0; i < dim; i++ {
			var dp, dn float64
			if np > 0 {
				dp = xp[i] / np
			}
			if nn > 0 {
				dn = xn[i] / nn
			}
			// d(diff)/du = d(diff)/dr = -xp/|xp| + xn/|xn|
			du := coef * (dn - dp)
			gu[i] += du + m.l2*u[i]*scale
			relGrad[i] += du
			gp[i] += coef*dp + m.l2*p[i]*scale
			gn[i] += -coef*dn + m.l2*n[i]*scale
		}
	}

	m.step++
	for row, g := range entGrad {
		m.entOpt.update(m.ent, row, g, m.step)
		embedding.Normalize(m.ent.Row(row))
	}
	m.relOpt.update(m.rel, int(graph.Interacted), relGrad, m.step)
	return loss
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// softplus is log(1 + e^x) without overflow.
func softplus(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}

func sqNorm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return s
}

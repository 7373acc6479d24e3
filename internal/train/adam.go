// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package train

import (
	"math"

	"github.com/tomtom215/kgrec/internal/embedding"
)

// adam holds first and second moment estimates for one parameter matrix.
// Updates are lazy: only rows that received a gradient move, while bias
// correction uses the global step count shared by all matrices.
type adam struct {
	lr, beta1, beta2, eps, decay float64
	m, v                         embedding.Matrix
}

//nolint:gocritic // Config is small and read-only here
func newAdam(cfg Config, rows, cols int) *adam {
	return &adam{
		lr:    cfg.LearningRate,
		beta1: cfg.Beta1,
		beta2: cfg.Beta2,
		eps:   cfg.Epsilon,
		decay: cfg.WeightDecay,
		m:     embedding.NewMatrix(rows, cols),
		v:     embedding.NewMatrix(rows, cols),
	}
}

// update applies one step to row of params using grad. step starts at 1.
func (a *adam) update(params embedding.Matrix, row int, grad []float64, step int) {
	p := params.Row(row)
	m := a.m.Row(row)
	v := a.v.Row(row)
	c1 := 1 - math.Pow(a.beta1, float64(step))
	c2 := 1 - math.Pow(a.beta2, float64(step))
	for i := range p {
		g := grad[i] + a.decay*p[i]
		m[i] = a.beta1*m[i] + (1-a.beta1)*g
		v[i] = a.beta2*v[i] + (1-a.beta2)*g*g
		mHat := m[i] / c1
		vHat := v[i] / c2
		p[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
}

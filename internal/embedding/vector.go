// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

// Package embedding holds the learned entity and relation vectors.
//
// A Snapshot is immutable once built. Serving code reads the current
// snapshot through a Holder, and retraining publishes a new one with
// Holder.Swap; nothing mutates vectors in place after publication.
//
// Scoring is TransE-style: score(h, r, t) = -||h + r - t||. Trainer,
// engine and evaluator all call Score so the sign convention cannot drift.
package embedding

import (
	"fmt"
	"math"
)

// Matrix is a dense row-major [Rows x Cols] matrix.
type Matrix struct {
	Rows int
	Cols int
	Data []float64
}

// NewMatrix allocates a zeroed matrix.
func NewMatrix(rows, cols int) Matrix {
	return Matrix{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// Row returns row i as a slice aliasing the matrix storage.
func (m Matrix) Row(i int) []float64 {
	return m.Data[i*m.Cols : (i+1)*m.Cols]
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	return Matrix{Rows: m.Rows, Cols: m.Cols, Data: append([]float64(nil), m.Data...)}
}

// Validate checks that Data matches the declared shape.
func (m Matrix) Validate() error {
	if m.Rows < 0 || m.Cols <= 0 {
		return fmt.Errorf("invalid matrix shape %dx%d", m.Rows, m.Cols)
	}
	if len(m.Data) != m.Rows*m.Cols {
		return fmt.Errorf("matrix data length %d does not match shape %dx%d", len(m.Data), m.Rows, m.Cols)
	}
	return nil
}

// Score is the plausibility of (h, r, t): higher is better.
func Score(h, r, t []float64) float64 {
	var sum float64
	for i := range h {
		d := h[i] + r[i] - t[i]
		sum += d * d
	}
	return -math.Sqrt(sum)
}

// Norm returns the L2 norm of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize scales v to unit length in place. Zero vectors are left alone.
func Normalize(v []float64) {
	n := Norm(v)
	if n == 0 {
		return
	}
	for i := range v {
		v[i] /= n
	}
}

// NormalizeRows normalizes every row of m in place.
func NormalizeRows(m Matrix) {
	for i := 0; i < m.Rows; i++ {
		Normalize(m.Row(i))
	}
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0
// when either is a zero vector.
func CosineSimilarity(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

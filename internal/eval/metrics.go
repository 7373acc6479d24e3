// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package eval

import (
	"math"

	"github.com/tomtom215/kgrec/internal/embedding"
)

// HitRate is 1 when any of top is relevant, else 0.
func HitRate(top []int, relevant map[int]bool) float64 {
	for _, idx := range top {
		if relevant[idx] {
			return 1
		}
	}
	return 0
}

// NDCG is DCG/IDCG over top with binary gains. The ideal list places
// min(len(relevant), len(top)) hits first.
func NDCG(top []int, relevant map[int]bool) float64 {
	if len(relevant) == 0 || len(top) == 0 {
		return 0
	}
	var dcg float64
	for i, idx := range top {
		if relevant[idx] {
			dcg += 1 / math.Log2(float64(i+2))
		}
	}
	var idcg float64
	for i := 0; i < min(len(relevant), len(top)); i++ {
		idcg += 1 / math.Log2(float64(i+2))
	}
	return dcg / idcg
}

// ReciprocalRank is 1/rank of the first relevant item in top, or 0.
func ReciprocalRank(top []int, relevant map[int]bool) float64 {
	for i, idx := range top {
		if relevant[idx] {
			return 1 / float64(i+1)
		}
	}
	return 0
}

// IntraListDiversity is the mean pairwise cosine distance between vectors.
// Lists shorter than two have diversity 0.
func IntraListDiversity(vectors [][]float64) float64 {
	n := len(vectors)
	if n < 2 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += 1 - embedding.CosineSimilarity(vectors[i], vectors[j])
		}
	}
	return sum / float64(n*(n-1)/2)
}

// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package paths

import (
	"math"

	"github.com/tomtom215/kgrec/internal/graph"
)

// Diversity is Simpson's index of diversity over path patterns:
//
//	1 - Σ n_i(n_i - 1) / (N(N - 1))
//
// It is 0 for fewer than two paths and always lies in [0, 1].
func Diversity(paths []graph.Path) float64 {
	n := len(paths)
	if n < 2 {
		return 0
	}
	var same float64
	for _, c := range patternCounts(paths) {
		same += float64(c) * float64(c-1)
	}
	return 1 - same/(float64(n)*float64(n-1))
}

// DiversityV2 blends Simpson diversity with the share of unique patterns,
// 0.6*SID + 0.4*unique/N, rounded to four decimals. It is a relative
// signal for comparing path sets, not an absolute score.
func DiversityV2(paths []graph.Path) float64 {
	n := len(paths)
	if n < 2 {
		return 0
	}
	unique := float64(len(patternCounts(paths))) / float64(n)
	return math.Round((0.6*Diversity(paths)+0.4*unique)*1e4) / 1e4
}

// Patterns returns the pattern of every path in order.
func Patterns(paths []graph.Path) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.Pattern()
	}
	return out
}

func patternCounts(paths []graph.Path) map[string]int {
	counts := make(map[string]int)
	for _, p := range paths {
		counts[p.Pattern()]++
	}
	return counts
}

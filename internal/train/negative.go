// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package train

import "math/rand"

// NegativeSampler draws items a user has not interacted with.
//
// Sampling is rejection-based over the item range. After maxAttempts
// rejections it falls back to a uniform draw from the user's complement
// set, which is built lazily and kept for the rest of the run.
type NegativeSampler struct {
	lo, hi      int
	pos         Positives
	rng         *rand.Rand
	maxAttempts int
	complement  map[int][]int

	// Fallbacks counts draws that needed the complement set.
	Fallbacks int
}

// NewNegativeSampler samples from the half-open item range [lo, hi).
func NewNegativeSampler(lo, hi int, pos Positives, rng *rand.Rand, maxAttempts int) *NegativeSampler {
	if maxAttempts <= 0 {
		maxAttempts = 100
	}
	return &NegativeSampler{
		lo:          lo,
		hi:          hi,
		pos:         pos,
		rng:         rng,
		maxAttempts: maxAttempts,
		complement:  make(map[int][]int),
	}
}

// Sample returns a negative item for user. ok is false when the user has
// interacted with every item and no negative exists.
func (s *NegativeSampler) Sample(user int) (item int, ok bool) {
	n := s.hi - s.lo
	if n <= 0 {
		return 0, false
	}
	for i := 0; i < s.maxAttempts; i++ {
		item = s.lo + s.rng.Intn(n)
		if !s.pos.Has(user, item) {
			return item, true
		}
	}

	s.Fallbacks++
	comp, built := s.complement[user]
	if !built {
		comp = make([]int, 0, n-len(s.pos[user]))
		for i := s.lo; i < s.hi; i++ {
			if !s.pos.Has(user, i) {
				comp = append(comp, i)
			}
		}
		s.complement[user] = comp
	}
	if len(comp) == 0 {
		return 0, false
	}
	return comp[s.rng.Intn(len(comp))], true
}

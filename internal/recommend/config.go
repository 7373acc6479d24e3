// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package recommend

import (
	"fmt"
	"time"
)

// Config contains the tunables of the recommendation engine.
type Config struct {
	// DefaultTopK is used when a request leaves topk unset.
	DefaultTopK int `json:"default_topk"`

	// MaxTopK bounds the requested list length.
	MaxTopK int `json:"max_topk"`

	// CandidateMultiplier sets how many scored candidates are taken per
	// requested item before name filtering.
	CandidateMultiplier int `json:"candidate_multiplier"`

	// NameBufferMultiplier sets how many named candidates are kept per
	// requested item before attribute filtering.
	NameBufferMultiplier int `json:"name_buffer_multiplier"`

	// MinResults is the smallest list the engine will return. Fewer
	// surviving items is reported as ErrInsufficientResults.
	MinResults int `json:"min_results"`

	// CacheTTL is the lifetime of a cached response.
	CacheTTL time.Duration `json:"cache_ttl"`

	// PlaceholderSubstrings and PlaceholderPrefixes mark generated dish
	// names that must never be shown to users.
	PlaceholderSubstrings []string `json:"placeholder_substrings"`
	PlaceholderPrefixes   []string `json:"placeholder_prefixes"`

	// MaxExplanationPaths is the number of paths attached to an item.
	MaxExplanationPaths int `json:"max_explanation_paths"`

	// ExplainWorkers bounds concurrent path sampling within one request.
	ExplainWorkers int `json:"explain_workers"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTopK:           10,
		MaxTopK:               50,
		CandidateMultiplier:   3,
		NameBufferMultiplier:  2,
		MinResults:            1,
		CacheTTL:              15 * time.Minute,
		PlaceholderSubstrings: []string{"菜品_"},
		PlaceholderPrefixes:   []string{"菜品"},
		MaxExplanationPaths:   3,
		ExplainWorkers:        4,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.DefaultTopK < 1 {
		return fmt.Errorf("recommend.default_topk must be positive, got %d", c.DefaultTopK)
	}
	if c.MaxTopK < c.DefaultTopK || c.MaxTopK > 50 {
		return fmt.Errorf("recommend.max_topk must be in [default_topk, 50], got %d", c.MaxTopK)
	}
	if c.CandidateMultiplier < 1 {
		return fmt.Errorf("recommend.candidate_multiplier must be positive, got %d", c.CandidateMultiplier)
	}
	if c.NameBufferMultiplier < 1 || c.NameBufferMultiplier > c.CandidateMultiplier {
		return fmt.Errorf("recommend.name_buffer_multiplier must be in [1, candidate_multiplier], got %d", c.NameBufferMultiplier)
	}
	if c.MinResults < 0 {
		return fmt.Errorf("recommend.min_results must be non-negative, got %d", c.MinResults)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("recommend.cache_ttl must be positive, got %v", c.CacheTTL)
	}
	if c.MaxExplanationPaths < 0 {
		return fmt.Errorf("recommend.max_explanation_paths must be non-negative, got %d", c.MaxExplanationPaths)
	}
	if c.ExplainWorkers < 1 {
		return fmt.Errorf("recommend.explain_workers must be positive, got %d", c.ExplainWorkers)
	}
	return nil
}

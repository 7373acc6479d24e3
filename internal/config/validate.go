// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package config

import (
	"fmt"
	"strings"

	"github.com/tomtom215/kgrec/internal/logging"
)

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	checks := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateGraph,
		c.validateCache,
		c.validateModel,
		c.validateTrain,
		c.validatePaths,
		c.validateRecommend,
		c.validateEval,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.read_timeout and server.write_timeout must be positive")
	}
	if !c.Server.RateLimitDisabled {
		if c.Server.RateLimitReqs < 1 {
			return fmt.Errorf("server.rate_limit_reqs must be positive, got %d", c.Server.RateLimitReqs)
		}
		if c.Server.RateLimitWindow <= 0 {
			return fmt.Errorf("server.rate_limit_window must be positive, got %v", c.Server.RateLimitWindow)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error, fatal, disabled; got %q", c.Logging.Level)
	}
	if f := strings.ToLower(c.Logging.Format); f != "json" && f != "console" {
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateGraph() error {
	switch c.Graph.Driver {
	case "neo4j":
		if c.Graph.URI == "" {
			return fmt.Errorf("graph.uri is required for the neo4j driver")
		}
	case "memory":
		if c.Graph.FixturePath == "" {
			return fmt.Errorf("graph.fixture_path is required for the memory driver")
		}
	default:
		return fmt.Errorf("graph.driver must be neo4j or memory, got %q", c.Graph.Driver)
	}
	if c.Graph.MaxAttempts < 1 {
		return fmt.Errorf("graph.max_attempts must be positive, got %d", c.Graph.MaxAttempts)
	}
	if c.Graph.QueryTimeout < 0 {
		return fmt.Errorf("graph.query_timeout must be non-negative, got %v", c.Graph.QueryTimeout)
	}
	if c.Graph.BreakerFailureRatio <= 0 || c.Graph.BreakerFailureRatio > 1 {
		return fmt.Errorf("graph.breaker_failure_ratio must be in (0, 1], got %v", c.Graph.BreakerFailureRatio)
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case "memory", "none":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	case "badger":
		if c.Cache.BadgerDir == "" && !c.Cache.BadgerInMemory {
			return fmt.Errorf("cache.badger_dir is required unless cache.badger_in_memory is set")
		}
	default:
		return fmt.Errorf("cache.backend must be memory, redis, badger or none, got %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %v", c.Cache.TTL)
	}
	return nil
}

func (c *Config) validateModel() error {
	if c.Model.Dir == "" {
		return fmt.Errorf("model.dir is required")
	}
	if c.Model.Version < 0 {
		return fmt.Errorf("model.version must be non-negative, got %d", c.Model.Version)
	}
	if c.Model.Keep < 0 {
		return fmt.Errorf("model.keep must be non-negative, got %d", c.Model.Keep)
	}
	return nil
}

func (c *Config) validateTrain() error {
	t := c.Train
	if t.Dim < 1 || t.Epochs < 1 || t.BatchSize < 2 {
		return fmt.Errorf("train.dim and train.epochs must be positive and train.batch_size at least 2")
	}
	if t.NegativesPerPositive < 1 {
		return fmt.Errorf("train.negatives_per_positive must be positive, got %d", t.NegativesPerPositive)
	}
	if t.LearningRate <= 0 {
		return fmt.Errorf("train.learning_rate must be positive, got %v", t.LearningRate)
	}
	if t.WeightDecay < 0 || t.L2Reg < 0 {
		return fmt.Errorf("train.weight_decay and train.l2_reg must be non-negative")
	}
	if t.HoldoutFraction < 0 || t.HoldoutFraction >= 1 {
		return fmt.Errorf("train.holdout_fraction must be in [0, 1), got %v", t.HoldoutFraction)
	}
	return nil
}

func (c *Config) validatePaths() error {
	p := c.Paths
	if p.TwoHopLimit < 1 || p.ThreeHopLimit < 1 || p.SampleSize < 1 || p.HistoryLimit < 1 {
		return fmt.Errorf("paths limits must all be positive")
	}
	if p.Workers < 1 {
		return fmt.Errorf("paths.workers must be positive, got %d", p.Workers)
	}
	return nil
}

func (c *Config) validateRecommend() error {
	r := c.Recommend
	if r.DefaultTopK < 1 || r.MaxTopK < r.DefaultTopK || r.MaxTopK > 50 {
		return fmt.Errorf("recommend.default_topk must be positive and recommend.max_topk in [default_topk, 50]")
	}
	if r.CandidateMultiplier < 1 || r.NameBufferMultiplier < 1 {
		return fmt.Errorf("recommend multipliers must be positive")
	}
	if r.MinResults < 0 {
		return fmt.Errorf("recommend.min_results must be non-negative, got %d", r.MinResults)
	}
	return nil
}

func (c *Config) validateEval() error {
	if c.Eval.K < 1 {
		return fmt.Errorf("eval.k must be positive, got %d", c.Eval.K)
	}
	if c.Eval.Workers < 1 {
		return fmt.Errorf("eval.workers must be positive, got %d", c.Eval.Workers)
	}
	return nil
}

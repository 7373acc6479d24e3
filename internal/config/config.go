// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

// Package config loads KGRec configuration with Koanf v2.
//
// Loading order, later layers overriding earlier ones:
//  1. Defaults from defaultConfig
//  2. YAML file: $CONFIG_PATH, ./config.yaml, ./config.yml, /etc/kgrec/config.yaml
//  3. KGREC_* environment variables listed in envMappings
//
// Example config.yaml:
//
//	graph:
//	  driver: neo4j
//	  uri: bolt://neo4j:7687
//	cache:
//	  backend: redis
//	  redis_addr: redis:6379
//	model:
//	  dir: /data/models
package config

import "time"

// Config is the complete KGRec configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Graph      GraphConfig      `koanf:"graph"`
	Cache      CacheConfig      `koanf:"cache"`
	Model      ModelConfig      `koanf:"model"`
	Train      TrainConfig      `koanf:"train"`
	Paths      PathsConfig      `koanf:"paths"`
	Recommend  RecommendConfig  `koanf:"recommend"`
	Experiment ExperimentConfig `koanf:"experiment"`
	Eval       EvalConfig       `koanf:"eval"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// GraphConfig selects and tunes the graph store.
type GraphConfig struct {
	// Driver is neo4j or memory. The memory driver loads FixturePath.
	Driver      string `koanf:"driver"`
	URI         string `koanf:"uri"`
	Username    string `koanf:"username"`
	Password    string `koanf:"password"`
	Database    string `koanf:"database"`
	FixturePath string `koanf:"fixture_path"`

	MaxAttempts         int           `koanf:"max_attempts"`
	QueryTimeout        time.Duration `koanf:"query_timeout"`
	QueriesPerSecond    float64       `koanf:"queries_per_second"`
	Burst               int           `koanf:"burst"`
	BreakerTimeout      time.Duration `koanf:"breaker_timeout"`
	BreakerMinRequests  uint32        `koanf:"breaker_min_requests"`
	BreakerFailureRatio float64       `koanf:"breaker_failure_ratio"`
}

// CacheConfig selects the response cache backend.
type CacheConfig struct {
	// Backend is memory, redis, badger or none.
	Backend        string        `koanf:"backend"`
	TTL            time.Duration `koanf:"ttl"`
	KeyPrefix      string        `koanf:"key_prefix"`
	RedisAddr      string        `koanf:"redis_addr"`
	RedisPassword  string        `koanf:"redis_password"`
	RedisDB        int           `koanf:"redis_db"`
	BadgerDir      string        `koanf:"badger_dir"`
	BadgerInMemory bool          `koanf:"badger_in_memory"`
}

// ModelConfig locates embedding checkpoints.
type ModelConfig struct {
	Dir string `koanf:"dir"`
	// Version pins a checkpoint; 0 follows the latest.
	Version        int           `koanf:"version"`
	ReloadInterval time.Duration `koanf:"reload_interval"`
	// StrictCatalog refuses checkpoints whose entity table differs from
	// the live graph instead of serving them with a warning.
	StrictCatalog bool `koanf:"strict_catalog"`
	// Keep is the number of versions kept by prune; 0 keeps all.
	Keep int `koanf:"keep"`
}

// TrainConfig holds trainer hyperparameters and input locations.
type TrainConfig struct {
	Dim                  int     `koanf:"dim"`
	Epochs               int     `koanf:"epochs"`
	BatchSize            int     `koanf:"batch_size"`
	NegativesPerPositive int     `koanf:"negatives_per_positive"`
	MaxResampleAttempts  int     `koanf:"max_resample_attempts"`
	LearningRate         float64 `koanf:"learning_rate"`
	WeightDecay          float64 `koanf:"weight_decay"`
	L2Reg                float64 `koanf:"l2_reg"`
	Seed                 int64   `koanf:"seed"`

	// SamplesPath is a user,item,label CSV. Empty reads interactions from
	// the graph.
	SamplesPath     string  `koanf:"samples_path"`
	SamplesPerUser  int     `koanf:"samples_per_user"`
	HoldoutFraction float64 `koanf:"holdout_fraction"`
}

// PathsConfig tunes the explanation path sampler.
type PathsConfig struct {
	TwoHopLimit   int `koanf:"two_hop_limit"`
	ThreeHopLimit int `koanf:"three_hop_limit"`
	SampleSize    int `koanf:"sample_size"`
	HistoryLimit  int `koanf:"history_limit"`
	Workers       int `koanf:"workers"`
}

// RecommendConfig tunes the online scorer.
type RecommendConfig struct {
	DefaultTopK           int      `koanf:"default_topk"`
	MaxTopK               int      `koanf:"max_topk"`
	CandidateMultiplier   int      `koanf:"candidate_multiplier"`
	NameBufferMultiplier  int      `koanf:"name_buffer_multiplier"`
	MinResults            int      `koanf:"min_results"`
	MaxExplanationPaths   int      `koanf:"max_explanation_paths"`
	ExplainWorkers        int      `koanf:"explain_workers"`
	PlaceholderSubstrings []string `koanf:"placeholder_substrings"`
	PlaceholderPrefixes   []string `koanf:"placeholder_prefixes"`
}

// ExperimentConfig locates the A/B experiment state.
type ExperimentConfig struct {
	GroupMapPath   string `koanf:"group_map_path"`
	FeedbackDBPath string `koanf:"feedback_db_path"`
	Seed           int64  `koanf:"seed"`
}

// EvalConfig configures offline evaluation.
type EvalConfig struct {
	K               int  `koanf:"k"`
	ExcludeTrain    bool `koanf:"exclude_train"`
	Workers         int  `koanf:"workers"`
	PathSampleUsers int  `koanf:"path_sample_users"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Graph: GraphConfig{
			Driver:              "neo4j",
			URI:                 "bolt://localhost:7687",
			Username:            "neo4j",
			Database:            "neo4j",
			MaxAttempts:         2,
			QueryTimeout:        2 * time.Second,
			QueriesPerSecond:    200,
			Burst:               50,
			BreakerTimeout:      30 * time.Second,
			BreakerMinRequests:  10,
			BreakerFailureRatio: 0.6,
		},
		Cache: CacheConfig{
			Backend:   "memory",
			TTL:       15 * time.Minute,
			KeyPrefix: "kgrec:",
		},
		Model: ModelConfig{
			Dir:            "/data/models",
			ReloadInterval: time.Minute,
			Keep:           5,
		},
		Train: TrainConfig{
			Dim:                  32,
			Epochs:               50,
			BatchSize:            64,
			NegativesPerPositive: 4,
			MaxResampleAttempts:  100,
			LearningRate:         1e-3,
			WeightDecay:          1e-5,
			L2Reg:                1e-3,
			Seed:                 42,
			SamplesPerUser:       5,
			HoldoutFraction:      0.2,
		},
		Paths: PathsConfig{
			TwoHopLimit:   5,
			ThreeHopLimit: 3,
			SampleSize:    10,
			HistoryLimit:  5,
			Workers:       4,
		},
		Recommend: RecommendConfig{
			DefaultTopK:           10,
			MaxTopK:               50,
			CandidateMultiplier:   3,
			NameBufferMultiplier:  2,
			MinResults:            1,
			MaxExplanationPaths:   3,
			ExplainWorkers:        4,
			PlaceholderSubstrings: []string{"菜品_"},
			PlaceholderPrefixes:   []string{"菜品"},
		},
		Experiment: ExperimentConfig{
			GroupMapPath:   "/data/experiment/user_group_map.json",
			FeedbackDBPath: "/data/experiment/feedback.duckdb",
			Seed:           42,
		},
		Eval: EvalConfig{
			K:            10,
			ExcludeTrain: true,
			Workers:      4,
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

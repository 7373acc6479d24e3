// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/kgrec/config.yaml",
	"/etc/kgrec/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "KGREC_"

// Load builds the configuration from defaults, the config file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadFile(findConfigFile())
}

// LoadFile is Load with an explicit config file. An empty path skips the
// file layer.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"recommend.placeholder_substrings",
	"recommend.placeholder_prefixes",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lower-cased variable names (without KGREC_) to config
// paths. Unlisted variables are ignored.
var envMappings = map[string]string{
	// Server
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_read_timeout":   "server.read_timeout",
	"http_write_timeout":  "server.write_timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",
	"cors_origins":        "server.cors_origins",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Graph
	"graph_driver":          "graph.driver",
	"neo4j_uri":             "graph.uri",
	"neo4j_username":        "graph.username",
	"neo4j_password":        "graph.password",
	"neo4j_database":        "graph.database",
	"graph_fixture":         "graph.fixture_path",
	"graph_max_attempts":    "graph.max_attempts",
	"graph_query_timeout":   "graph.query_timeout",
	"graph_qps":             "graph.queries_per_second",
	"graph_burst":           "graph.burst",
	"graph_breaker_timeout": "graph.breaker_timeout",

	// Cache
	"cache_backend":    "cache.backend",
	"cache_ttl":        "cache.ttl",
	"cache_key_prefix": "cache.key_prefix",
	"redis_addr":       "cache.redis_addr",
	"redis_password":   "cache.redis_password",
	"redis_db":         "cache.redis_db",
	"badger_dir":       "cache.badger_dir",
	"badger_in_memory": "cache.badger_in_memory",

	// Model
	"model_dir":             "model.dir",
	"model_version":         "model.version",
	"model_reload_interval": "model.reload_interval",
	"model_strict_catalog":  "model.strict_catalog",
	"model_keep":            "model.keep",

	// Train
	"train_dim":              "train.dim",
	"train_epochs":           "train.epochs",
	"train_batch_size":       "train.batch_size",
	"train_negatives":        "train.negatives_per_positive",
	"train_learning_rate":    "train.learning_rate",
	"train_weight_decay":     "train.weight_decay",
	"train_l2_reg":           "train.l2_reg",
	"train_seed":             "train.seed",
	"train_samples_path":     "train.samples_path",
	"train_holdout_fraction": "train.holdout_fraction",

	// Paths
	"paths_sample_size":   "paths.sample_size",
	"paths_history_limit": "paths.history_limit",
	"paths_workers":       "paths.workers",

	// Recommend
	"recommend_default_topk":     "recommend.default_topk",
	"recommend_max_topk":         "recommend.max_topk",
	"recommend_min_results":      "recommend.min_results",
	"recommend_explain_workers":  "recommend.explain_workers",
	"recommend_placeholder_subs": "recommend.placeholder_substrings",
	"recommend_placeholder_pref": "recommend.placeholder_prefixes",

	// Experiment
	"group_map_path":   "experiment.group_map_path",
	"feedback_db_path": "experiment.feedback_db_path",
	"experiment_seed":  "experiment.seed",

	// Eval
	"eval_k":                 "eval.k",
	"eval_exclude_train":     "eval.exclude_train",
	"eval_workers":           "eval.workers",
	"eval_path_sample_users": "eval.path_sample_users",
}

// envTransformFunc maps KGREC_NEO4J_URI to graph.uri. It returns "" for
// unknown variables so they are skipped.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return envMappings[key]
}

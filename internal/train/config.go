// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package train

// Config contains configuration for the embedding trainer.
type Config struct {
	// Dim is the embedding dimension shared by entities and relations.
	// Default: 32.
	Dim int

	// Epochs is the number of passes over the positive set.
	// Default: 50.
	Epochs int

	// BatchSize is the number of triplets per optimizer step.
	// Batches with fewer than 2 triplets are skipped.
	// Default: 64.
	BatchSize int

	// NegativesPerPositive is how many negatives are drawn for every
	// positive pair in each epoch.
	// Default: 4.
	NegativesPerPositive int

	// MaxResampleAttempts bounds rejection sampling before falling back to
	// the user's complement set.
	// Default: 100.
	MaxResampleAttempts int

	// LearningRate is the Adam step size.
	// Default: 0.001.
	LearningRate float64

	// Beta1 and Beta2 are the Adam moment decay rates.
	// Defaults: 0.9, 0.999.
	Beta1 float64
	Beta2 float64

	// Epsilon keeps the Adam denominator away from zero.
	// Default: 1e-8.
	Epsilon float64

	// WeightDecay is added to the gradient as decay * param.
	// Default: 1e-5.
	WeightDecay float64

	// L2Reg scales the per-triplet penalty on the three vectors involved.
	// Default: 0.001.
	L2Reg float64

	// Seed for reproducible training. If 0, uses a default seed.
	Seed int64
}

// DefaultConfig returns default trainer configuration.
func DefaultConfig() Config {
	return Config{
		Dim:                  32,
		Epochs:               50,
		BatchSize:            64,
		NegativesPerPositive: 4,
		MaxResampleAttempts:  100,
		LearningRate:         1e-3,
		Beta1:                0.9,
		Beta2:                0.999,
		Epsilon:              1e-8,
		WeightDecay:          1e-5,
		L2Reg:                1e-3,
		Seed:                 42,
	}
}

// withDefaults fills zero fields from DefaultConfig.
//
//nolint:gocritic // Config is passed by value to keep the caller's copy untouched
func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.Dim <= 0 {
		cfg.Dim = def.Dim
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = def.Epochs
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.NegativesPerPositive <= 0 {
		cfg.NegativesPerPositive = def.NegativesPerPositive
	}
	if cfg.MaxResampleAttempts <= 0 {
		cfg.MaxResampleAttempts = def.MaxResampleAttempts
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.Beta1 <= 0 || cfg.Beta1 >= 1 {
		cfg.Beta1 = def.Beta1
	}
	if cfg.Beta2 <= 0 || cfg.Beta2 >= 1 {
		cfg.Beta2 = def.Beta2
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = def.Epsilon
	}
	if cfg.WeightDecay < 0 {
		cfg.WeightDecay = 0
	}
	if cfg.L2Reg < 0 {
		cfg.L2Reg = 0
	}
	if cfg.Seed == 0 {
		cfg.Seed = def.Seed
	}
	return cfg
}

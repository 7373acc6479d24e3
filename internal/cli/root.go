// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

// Package cli implements the kgrec operator commands: training, evaluation,
// graph export, sample generation, path inspection, experiment setup and
// analysis, and checkpoint housekeeping.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tomtom215/kgrec/internal/config"
	"github.com/tomtom215/kgrec/internal/logging"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	logLevel   string
	output     string
}

// NewRootCommand builds a fresh kgrec command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "kgrec",
		Short: "Explainable knowledge-graph dish recommender",
		Long: `kgrec trains TransE entity embeddings over the dish knowledge graph,
evaluates them offline, and prepares the artifacts the recommendation
server loads: checkpoints, experiment group maps and training samples.

Configuration follows the server: defaults, then the YAML file given by
--config or $CONFIG_PATH, then KGREC_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			switch opts.output {
			case outputTable, outputJSON:
				return nil
			}
			return fmt.Errorf("--output must be %s or %s, got %q", outputTable, outputJSON, opts.output)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default: $CONFIG_PATH, ./config.yaml, /etc/kgrec/config.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "override logging.level")
	flags.StringVarP(&opts.output, "output", "o", outputTable, "output format (table, json)")

	root.AddCommand(
		newTrainCmd(opts),
		newEvalCmd(opts),
		newExportCmd(opts),
		newSamplesCmd(opts),
		newPathsCmd(opts),
		newSamplePathsCmd(opts),
		newRecommendCmd(opts),
		newAssignGroupsCmd(opts),
		newAnalyzeCmd(opts),
		newModelsCmd(opts),
		newCacheCmd(opts),
	)
	return root
}

// load reads the configuration and points console logging at stderr so
// command output on stdout stays machine-readable.
func (o *options) load(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFile(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if o.logLevel != "" {
		if !logging.ValidLevel(o.logLevel) {
			return nil, zerolog.Nop(), fmt.Errorf("invalid --log-level %q", o.logLevel)
		}
		level = o.logLevel
	}
	logging.Init(logging.Config{
		Level:     level,
		Format:    "console",
		Timestamp: true,
		Output:    cmd.ErrOrStderr(),
	})
	return cfg, logging.Logger(), nil
}

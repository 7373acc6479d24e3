// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/kgrec/internal/app"
	"github.com/tomtom215/kgrec/internal/cache"
	"github.com/tomtom215/kgrec/internal/embedding"
)

func newModelsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and prune embedding checkpoints",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List checkpoint versions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load(cmd)
			if err != nil {
				return err
			}
			checkpoints, err := embedding.NewStore(cfg.Model.Dir)
			if err != nil {
				return err
			}
			metas, err := checkpoints.List(cmd.Context())
			if err != nil {
				return err
			}

			t := &table{header: []string{"Version", "Trained", "Epoch", "Loss", "Entities", "Users", "Dim", "Size"}}
			for _, m := range metas {
				t.add(itoa(m.Version), m.TrainedAt.Format(time.RFC3339), itoa(m.Epoch), ftoa(m.Loss),
					itoa(m.NumEntities), itoa(m.NumUsers), itoa(m.Dim), itoa(int(m.SizeBytes)))
			}
			return opts.emit(cmd.OutOrStdout(), metas, t)
		},
	}

	var keep int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest checkpoint versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("keep") {
				keep = cfg.Model.Keep
			}
			if keep < 1 {
				return errors.New("--keep must be at least 1")
			}
			checkpoints, err := embedding.NewStore(cfg.Model.Dir)
			if err != nil {
				return err
			}
			removed, err := checkpoints.Prune(cmd.Context(), keep)
			if err != nil {
				return err
			}
			logger.Info().Int("removed", removed).Int("keep", keep).Msg("Checkpoints pruned")

			t := fields()
			t.add("kept versions", itoa(keep))
			t.add("removed files", itoa(removed))
			t.add("latest version", itoa(checkpoints.LatestVersion()))
			return opts.emit(cmd.OutOrStdout(), map[string]int{"keep": keep, "removed": removed}, t)
		},
	}
	prune.Flags().IntVar(&keep, "keep", 0, "versions to keep (default model.keep)")

	cmd.AddCommand(list, prune)
	return cmd
}

func newCacheCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the shared response cache",
	}
	flush := &cobra.Command{
		Use:   "flush",
		Short: "Drop every cached recommendation",
		Long: `Flush removes all keys under cache.key_prefix from the configured backend.
It only reaches shared backends (redis, badger); a memory cache lives inside
each server process and is flushed by the server on model reload.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			backend := cache.Backend(cfg.Cache.Backend)
			if backend == cache.BackendMemory || backend == cache.BackendNone {
				logger.Warn().Str("backend", cfg.Cache.Backend).Msg("Cache backend is process-local; nothing to flush")
				return opts.emit(cmd.OutOrStdout(), map[string]any{"backend": backend, "flushed": false},
					&table{header: []string{"Backend", "Flushed"}, rows: [][]string{{string(backend), "no"}}})
			}

			c, err := cache.New(cmd.Context(), app.CacheConfig(cfg))
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			if err := c.Flush(cmd.Context()); err != nil {
				return err
			}
			logger.Info().Str("backend", c.Name()).Msg("Cache flushed")
			return opts.emit(cmd.OutOrStdout(), map[string]any{"backend": backend, "flushed": true},
				&table{header: []string{"Backend", "Flushed"}, rows: [][]string{{string(backend), "yes"}}})
		},
	}
	cmd.AddCommand(flush)
	return cmd
}

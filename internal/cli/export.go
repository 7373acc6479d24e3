// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tomtom215/kgrec/internal/app"
	"github.com/tomtom215/kgrec/internal/train"
)

func newExportCmd(opts *options) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the graph as id triples plus the entity catalog",
		Long: `Export writes triples.csv (head_id,tail_id,rel) and catalog.json to --out.
Entity ids are catalog positions: users first (id = user id), then dishes,
tags and ingredients. Relation ids are 0 INTERACTED, 1 HAS_TAG, 2 CONTAINS.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := app.OpenGraph(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close(context.Background()) }()

			cat, err := app.LoadCatalog(ctx, store)
			if err != nil {
				return err
			}
			n, err := app.ExportGraph(ctx, store, cat, out)
			if err != nil {
				return err
			}

			result := map[string]any{
				"dir":      out,
				"entities": cat.Len(),
				"users":    cat.NumUsers(),
				"dishes":   cat.NumItems(),
				"triples":  n,
			}
			t := fields()
			t.add("dir", out)
			t.add("entities", itoa(cat.Len()))
			t.add("users", itoa(cat.NumUsers()))
			t.add("dishes", itoa(cat.NumItems()))
			t.add("triples", itoa(n))
			return opts.emit(cmd.OutOrStdout(), result, t)
		},
	}
	cmd.Flags().StringVar(&out, "out", "export", "output directory")
	return cmd
}

func newSamplesCmd(opts *options) *cobra.Command {
	var (
		out     string
		perUser int
		seed    int64
	)
	cmd := &cobra.Command{
		Use:   "samples",
		Short: "Generate random positive samples as a user,item,label CSV",
		Long: `Samples draws --per-user random dishes for every user in the catalog and
writes them as label-1 rows. The file can seed training through
train.samples_path when the graph has no interaction edges yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("per-user") {
				perUser = cfg.Train.SamplesPerUser
			}
			ctx := cmd.Context()
			store, err := app.OpenGraph(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close(context.Background()) }()

			cat, err := app.LoadCatalog(ctx, store)
			if err != nil {
				return err
			}
			samples := train.MakeSamples(cat, perUser, seed)

			if err := os.MkdirAll(filepath.Dir(out), 0o750); err != nil {
				return err
			}
			f, err := os.Create(out) //nolint:gosec // path comes from operator flags
			if err != nil {
				return err
			}
			if err := train.WriteSamplesCSV(f, samples); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			logger.Info().Str("path", out).Int("rows", len(samples)).Msg("Samples written")

			t := fields()
			t.add("path", out)
			t.add("users", itoa(cat.NumUsers()))
			t.add("rows", itoa(len(samples)))
			return opts.emit(cmd.OutOrStdout(), map[string]any{"path": out, "rows": len(samples)}, t)
		},
	}
	cmd.Flags().StringVar(&out, "out", "samples.csv", "output CSV path")
	cmd.Flags().IntVar(&perUser, "per-user", 5, "samples per user (default train.samples_per_user)")
	cmd.Flags().Int64Var(&seed, "seed", 42, "random seed")
	return cmd
}

// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tomtom215/kgrec/internal/app"
	"github.com/tomtom215/kgrec/internal/embedding"
	"github.com/tomtom215/kgrec/internal/train"
)

func newEvalCmd(opts *options) *cobra.Command {
	var (
		version     int
		k           int
		pathUsers   int
		includeSeen bool
	)
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a checkpoint offline (HR@k, NDCG@k, MRR, diversity)",
		Long: `Eval loads a checkpoint and repeats the hold-out split used by train
(same train.holdout_fraction and train.seed) so the held-out positives are
the test set. Without a hold-out fraction every positive is a test item and
nothing is excluded from the ranking.

--path-users samples explanation paths for that many test users and reports
their mean Simpson path diversity.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("k") {
				cfg.Eval.K = k
			}
			if cmd.Flags().Changed("path-users") {
				cfg.Eval.PathSampleUsers = pathUsers
			}
			if includeSeen {
				cfg.Eval.ExcludeTrain = false
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			checkpoints, err := embedding.NewStore(cfg.Model.Dir)
			if err != nil {
				return err
			}
			snap, _, err := checkpoints.LoadSnapshot(ctx, version)
			if err != nil {
				return err
			}

			store, err := app.OpenGraph(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close(context.Background()) }()

			// Positives are indexed through the snapshot's catalog so ids match the model.
			pos, err := app.LoadPositives(ctx, cfg, store, snap.Catalog(), logger)
			if err != nil {
				return err
			}
			trainSet, testSet := holdout(cfg, pos)
			if testSet.Len() == 0 {
				trainSet, testSet = train.Positives{}, trainSet
			}

			report, err := runEval(ctx, cfg, store, logger, snap, trainSet, testSet)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), report, reportTable(report))
		},
	}
	cmd.Flags().IntVar(&version, "version", 0, "checkpoint version (0 = latest)")
	cmd.Flags().IntVar(&k, "k", 0, "override eval.k")
	cmd.Flags().IntVar(&pathUsers, "path-users", 0, "override eval.path_sample_users")
	cmd.Flags().BoolVar(&includeSeen, "include-seen", false, "rank training positives too")
	return cmd
}

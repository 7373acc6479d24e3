// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tomtom215/kgrec/internal/app"
	"github.com/tomtom215/kgrec/internal/config"
	"github.com/tomtom215/kgrec/internal/embedding"
	"github.com/tomtom215/kgrec/internal/eval"
	"github.com/tomtom215/kgrec/internal/graph"
	"github.com/tomtom215/kgrec/internal/paths"
	"github.com/tomtom215/kgrec/internal/train"
)

type trainOutput struct {
	Version    int          `json:"version"`
	Epochs     int          `json:"epochs"`
	BestEpoch  int          `json:"best_epoch"`
	BestLoss   float64      `json:"best_loss"`
	Positives  int          `json:"positives"`
	HeldOut    int          `json:"held_out"`
	Skipped    int          `json:"skipped"`
	Fallbacks  int          `json:"fallbacks"`
	Pruned     int          `json:"pruned"`
	DurationMS int64        `json:"duration_ms"`
	Eval       *eval.Report `json:"eval,omitempty"`
}

func newTrainCmd(opts *options) *cobra.Command {
	var (
		epochs   int
		dim      int
		samples  string
		evaluate bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train entity embeddings and write a checkpoint",
		Long: `Train reads the entity catalog from the graph store and positive pairs
from train.samples_path (or the graph's INTERACTED edges), holds out
train.holdout_fraction of every user's positives, and fits TransE
embeddings with a BPR loss. The best epoch is written to model.dir as a new
version; running servers pick it up on their next reload tick.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("epochs") {
				cfg.Train.Epochs = epochs
			}
			if cmd.Flags().Changed("dim") {
				cfg.Train.Dim = dim
			}
			if cmd.Flags().Changed("samples") {
				cfg.Train.SamplesPath = samples
			}
			if err := cfg.Validate(); err != nil {
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
			pos, err := app.LoadPositives(ctx, cfg, store, cat, logger)
			if err != nil {
				return err
			}
			trainSet, testSet := holdout(cfg, pos)

			checkpoints, err := embedding.NewStore(cfg.Model.Dir)
			if err != nil {
				return err
			}
			res, err := train.New(app.TrainConfig(cfg), checkpoints, logger).Train(ctx, cat, trainSet)
			if err != nil {
				return fmt.Errorf("train: %w", err)
			}

			out := trainOutput{
				Version:    res.Version,
				Epochs:     res.Epochs,
				BestEpoch:  res.BestEpoch,
				BestLoss:   res.BestLoss,
				Positives:  res.Positives,
				HeldOut:    testSet.Len(),
				Skipped:    res.Skipped,
				Fallbacks:  res.Fallbacks,
				DurationMS: res.Duration.Milliseconds(),
			}
			if cfg.Model.Keep > 0 {
				if out.Pruned, err = checkpoints.Prune(ctx, cfg.Model.Keep); err != nil {
					logger.Warn().Err(err).Msg("Checkpoint prune failed")
				}
			}
			if evaluate && testSet.Len() > 0 {
				if out.Eval, err = runEval(ctx, cfg, store, logger, res.Snapshot, trainSet, testSet); err != nil {
					return err
				}
			}

			t := fields()
			t.add("version", itoa(out.Version))
			t.add("epochs", itoa(out.Epochs))
			t.add("best epoch", itoa(out.BestEpoch))
			t.add("best loss", ftoa(out.BestLoss))
			t.add("positives", itoa(out.Positives))
			t.add("held out", itoa(out.HeldOut))
			t.add("skipped triplets", itoa(out.Skipped))
			t.add("negative fallbacks", itoa(out.Fallbacks))
			t.add("pruned files", itoa(out.Pruned))
			t.add("duration", res.Duration.Round(time.Millisecond).String())
			tables := []*table{t}
			if out.Eval != nil {
				tables = append(tables, reportTable(out.Eval))
			}
			return opts.emit(cmd.OutOrStdout(), out, tables...)
		},
	}
	cmd.Flags().IntVar(&epochs, "epochs", 0, "override train.epochs")
	cmd.Flags().IntVar(&dim, "dim", 0, "override train.dim")
	cmd.Flags().StringVar(&samples, "samples", "", "override train.samples_path (user,item,label CSV)")
	cmd.Flags().BoolVar(&evaluate, "evaluate", false, "evaluate the best snapshot on the held-out positives")
	return cmd
}

// holdout splits positives for evaluation. With no hold-out fraction the
// test set is empty.
func holdout(cfg *config.Config, pos train.Positives) (trainSet, testSet train.Positives) {
	if cfg.Train.HoldoutFraction <= 0 {
		return pos, train.Positives{}
	}
	return train.SplitHoldout(pos, cfg.Train.HoldoutFraction, cfg.Train.Seed)
}

//nolint:gocritic // zerolog.Logger is designed to be passed by value
func runEval(ctx context.Context, cfg *config.Config, store graph.Store, logger zerolog.Logger, snap *embedding.Snapshot, trainSet, testSet train.Positives) (*eval.Report, error) {
	sampler := paths.NewSampler(store, app.PathsConfig(cfg), logger)
	evaluator, err := eval.New(app.EvalConfig(cfg), sampler, store, logger)
	if err != nil {
		return nil, err
	}
	report, err := evaluator.Evaluate(ctx, snap, trainSet, testSet)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	return report, nil
}

func reportTable(r *eval.Report) *table {
	t := &table{header: []string{"Metric", "Value"}}
	t.add("run id", r.RunID)
	t.add("model version", itoa(r.ModelVersion))
	t.add("users", itoa(r.Users))
	t.add("skipped users", itoa(r.SkippedUsers))
	t.add(fmt.Sprintf("HR@%d", r.K), ftoa(r.HitRate))
	t.add(fmt.Sprintf("NDCG@%d", r.K), ftoa(r.NDCG))
	t.add("MRR", ftoa(r.MRR))
	t.add("diversity", ftoa(r.Diversity))
	if r.PathUsers > 0 {
		t.add("path users", itoa(r.PathUsers))
		t.add("path diversity", ftoa(r.PathDiversity))
	}
	t.add("duration", r.Duration.Round(time.Millisecond).String())
	return t
}

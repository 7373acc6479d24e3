// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/kgrec/internal/app"
	"github.com/tomtom215/kgrec/internal/embedding"
	"github.com/tomtom215/kgrec/internal/paths"
	"github.com/tomtom215/kgrec/internal/recommend"
	"github.com/tomtom215/kgrec/internal/train"
)

type pathsOutput struct {
	UserID      int                  `json:"user_id"`
	Dish        string               `json:"dish"`
	Paths       []recommend.PathView `json:"paths"`
	Diversity   float64              `json:"diversity"`
	DiversityV2 float64              `json:"diversity_v2"`
}

func newPathsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "paths <user_id> <dish>",
		Short: "Sample explanation paths from a user's history to a dish",
		Long: `Paths runs the explanation sampler for one user and dish and prints every
path found, with the Simpson diversity of the path patterns.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.Atoi(args[0])
			if err != nil || userID < 0 {
				return fmt.Errorf("user_id must be a non-negative integer, got %q", args[0])
			}
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

			found, err := paths.NewSampler(store, app.PathsConfig(cfg), logger).SampleForUserItem(ctx, userID, args[1])
			if err != nil {
				return err
			}

			out := pathsOutput{
				UserID:      userID,
				Dish:        args[1],
				Paths:       make([]recommend.PathView, 0, len(found)),
				Diversity:   paths.Diversity(found),
				DiversityV2: paths.DiversityV2(found),
			}
			t := &table{header: []string{"#", "Pattern", "Path"}}
			for i, p := range found {
				v := recommend.NewPathView(p)
				out.Paths = append(out.Paths, v)
				t.add(itoa(i+1), v.Pattern, pathString(v))
			}
			summary := fields()
			summary.add("paths", itoa(len(found)))
			summary.add("diversity", ftoa(out.Diversity))
			summary.add("diversity v2", ftoa(out.DiversityV2))
			return opts.emit(cmd.OutOrStdout(), out, t, summary)
		},
	}
}

func newRecommendCmd(opts *options) *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "recommend <user_id>",
		Short: "Score dishes for a user with the current checkpoint",
		Long: `Recommend runs the serving engine in-process against model.version (or the
latest checkpoint) and prints the ranked dishes. The user's experiment group
decides whether explanations are attached, exactly as the server does.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("user_id must be an integer, got %q", args[0])
			}
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			// The feedback log is not needed here and DuckDB allows one writer.
			cfg.Experiment.FeedbackDBPath = ""

			ctx := cmd.Context()
			c, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close(context.Background()) }()

			if err := loadInto(ctx, c.Checkpoints, c.Snapshots, cfg.Model.Version); err != nil {
				return err
			}
			resp, err := c.Engine.Recommend(ctx, recommend.Request{UserID: userID, TopK: topK})
			if err != nil {
				return err
			}

			t := &table{header: []string{"Rank", "Dish", "Price", "Score", "Explanation"}}
			for i, it := range resp.Recommendations {
				t.add(itoa(i+1), it.Name, strconv.FormatFloat(it.Price, 'f', 2, 64), ftoa(it.Score), it.Explanation)
			}
			meta := fields()
			meta.add("user", itoa(resp.UserID))
			meta.add("group", resp.ExperimentGroup)
			meta.add("model version", itoa(resp.Metadata.ModelVersion))
			meta.add("returned", fmt.Sprintf("%d of %d", resp.TopK, resp.RequestedTopK))
			return opts.emit(cmd.OutOrStdout(), resp, t, meta)
		},
	}
	cmd.Flags().IntVar(&topK, "topk", 0, "number of dishes (default recommend.default_topk)")
	return cmd
}

// loadInto publishes a checkpoint version (0 = latest) to holder.
func loadInto(ctx context.Context, checkpoints *embedding.Store, holder *embedding.Holder, version int) error {
	snap, _, err := checkpoints.LoadSnapshot(ctx, version)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	holder.Swap(snap)
	return nil
}

func newSamplePathsCmd(opts *options) *cobra.Command {
	var (
		samples string
		out     string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "sample-paths",
		Short: "Pre-sample explanation paths for every positive pair in a samples CSV",
		Long: `Sample-paths reads user,item,label rows (default train.samples_path), keeps
the distinct label-1 pairs, samples explanation paths for each with
--workers concurrent graph lookups and writes the records as JSON to --out.
Pairs whose user history cannot be read are kept with an error message.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if samples == "" {
				samples = cfg.Train.SamplesPath
			}
			if samples == "" {
				return errors.New("--samples is required when train.samples_path is not set")
			}
			if !cmd.Flags().Changed("workers") {
				workers = cfg.Paths.Workers
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
			rows, err := train.LoadSamplesCSV(samples)
			if err != nil {
				return err
			}
			pairs := samplePairs(rows, cat)

			records, err := paths.NewSampler(store, app.PathsConfig(cfg), logger).SampleBatch(ctx, pairs, workers)
			if err != nil {
				return err
			}
			if err := writeJSONFile(out, records); err != nil {
				return err
			}

			failed := 0
			for _, r := range records {
				if r.Error != "" {
					failed++
				}
			}
			mean := paths.MeanDiversity(records)
			logger.Info().Str("path", out).Int("pairs", len(records)).Int("failed", failed).Msg("Explanation paths written")

			t := fields()
			t.add("path", out)
			t.add("pairs", itoa(len(records)))
			t.add("failed", itoa(failed))
			t.add("mean diversity v2", ftoa(mean))
			return opts.emit(cmd.OutOrStdout(), map[string]any{
				"path": out, "pairs": len(records), "failed": failed, "mean_diversity_v2": mean,
			}, t)
		},
	}
	cmd.Flags().StringVar(&samples, "samples", "", "samples CSV (default train.samples_path)")
	cmd.Flags().StringVar(&out, "out", "paths.json", "output JSON path")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent lookups (default paths.workers)")
	return cmd
}

// samplePairs maps label-1 sample rows to distinct (user, dish name) pairs
// in file order. Rows whose item is not a catalog dish are skipped.
func samplePairs(rows []train.Sample, cat *embedding.Catalog) []paths.UserItem {
	seen := make(map[paths.UserItem]struct{}, len(rows))
	out := make([]paths.UserItem, 0, len(rows))
	for _, r := range rows {
		if r.Label != 1 || !cat.IsItem(r.Item) {
			continue
		}
		p := paths.UserItem{UserID: r.User, Item: cat.Name(r.Item)}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o600)
}

// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/kgrec/internal/app"
	"github.com/tomtom215/kgrec/internal/experiment"
)

func newAssignGroupsCmd(opts *options) *cobra.Command {
	var (
		out  string
		seed int64
	)
	cmd := &cobra.Command{
		Use:   "assign-groups",
		Short: "Split the catalog's users into experiment groups A and B",
		Long: `Assign-groups shuffles every user id with --seed, puts the first half in
group A (explanations shown) and the rest in group B, and writes the map to
--out (default experiment.group_map_path). Restart or reload servers to use
the new map.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.Experiment.GroupMapPath
			}
			if !cmd.Flags().Changed("seed") {
				seed = cfg.Experiment.Seed
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
			ids := make([]int, cat.NumUsers())
			for i := range ids {
				ids[i] = i
			}
			groups := experiment.AssignGroups(ids, seed)
			if err := groups.Save(out); err != nil {
				return err
			}

			counts := groups.Counts()
			logger.Info().Str("path", out).Int("users", len(groups)).Msg("Group map written")
			t := &table{header: []string{"Group", "Users"}}
			t.add(experiment.GroupA, itoa(counts[experiment.GroupA]))
			t.add(experiment.GroupB, itoa(counts[experiment.GroupB]))
			return opts.emit(cmd.OutOrStdout(), map[string]any{"path": out, "counts": counts}, t)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "group map path (default experiment.group_map_path)")
	cmd.Flags().Int64Var(&seed, "seed", 42, "shuffle seed (default experiment.seed)")
	return cmd
}

func newAnalyzeCmd(opts *options) *cobra.Command {
	var comments int
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Summarize experiment feedback per group",
		Long: `Analyze reads the feedback log and reports, per group, the rating count,
mean, median, sample standard deviation, rating distribution and click
rate, then the A-B mean difference and relative lift.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load(cmd)
			if err != nil {
				return err
			}
			if cfg.Experiment.FeedbackDBPath == "" {
				return errors.New("experiment.feedback_db_path is not set")
			}

			ctx := cmd.Context()
			groups, err := app.LoadGroups(cfg.Experiment.GroupMapPath)
			if err != nil {
				return err
			}
			store, err := experiment.OpenFeedbackStore(ctx, cfg.Experiment.FeedbackDBPath, groups, logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			sum, err := store.Summary(ctx, comments)
			if err != nil {
				return err
			}

			stats := &table{header: []string{"Group", "Count", "Mean", "Median", "Std", "Click rate", "1", "2", "3", "4", "5"}}
			for _, g := range sum.Groups {
				row := []string{g.Group, itoa(g.Count), ftoa(g.Mean), ftoa(g.Median), ftoa(g.StdDev), ftoa(g.ClickRate)}
				for _, n := range g.Distribution {
					row = append(row, itoa(n))
				}
				stats.add(row...)
			}

			overview := fields()
			overview.add("total feedback", itoa(sum.Total))
			if c := sum.Comparison; c != nil {
				overview.add("mean A", ftoa(c.MeanA))
				overview.add("mean B", ftoa(c.MeanB))
				overview.add("difference (A-B)", ftoa(c.Difference))
				overview.add("relative lift", fmt.Sprintf("%.2f%%", c.RelativeLift*100))
			}

			tables := []*table{stats, overview}
			if comments > 0 {
				ct := &table{header: []string{"Group", "Comment"}}
				for _, g := range sum.Groups {
					for _, text := range g.Comments {
						ct.add(g.Group, strings.TrimSpace(text))
					}
				}
				if len(ct.rows) > 0 {
					tables = append(tables, ct)
				}
			}
			return opts.emit(cmd.OutOrStdout(), sum, tables...)
		},
	}
	cmd.Flags().IntVar(&comments, "comments", 5, "recent comments shown per group")
	return cmd
}

// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/kgrec/internal/embedding"
	"github.com/tomtom215/kgrec/internal/eval"
	"github.com/tomtom215/kgrec/internal/graph"
	"github.com/tomtom215/kgrec/internal/paths"
	"github.com/tomtom215/kgrec/internal/recommend"
	"github.com/tomtom215/kgrec/internal/train"
)

// workspace writes a memory-graph fixture and a config file pointing every
// path into a temp dir.
type workspace struct {
	dir    string
	config string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fx := graph.Fixture{
		Users: []graph.FixtureUser{
			{UserID: 0, Interactions: []graph.FixtureInteraction{{Dish: "mapo tofu", Rating: 5, Timestamp: ts}}},
			{UserID: 1, Interactions: []graph.FixtureInteraction{
				{Dish: "mapo tofu", Rating: 4, Timestamp: ts},
				{Dish: "kung pao chicken", Rating: 5, Timestamp: ts.Add(time.Hour)},
			}},
		},
		Dishes: []graph.ItemAttributes{
			{Name: "mapo tofu", Price: 28, Tags: []string{"spicy"}, Ingredients: []string{"tofu"}},
			{Name: "kung pao chicken", Price: 32, Tags: []string{"spicy"}, Ingredients: []string{"chicken", "peanut"}},
			{Name: "steamed fish", Price: 58, Tags: []string{"light"}, Ingredients: []string{"fish"}},
		},
	}
	data, err := json.Marshal(fx)
	if err != nil {
		t.Fatal(err)
	}
	fixture := filepath.Join(dir, "graph.json")
	if err := os.WriteFile(fixture, data, 0o600); err != nil {
		t.Fatal(err)
	}

	yaml := fmt.Sprintf(`logging:
  level: error
graph:
  driver: memory
  fixture_path: %s
model:
  dir: %s
  keep: 0
train:
  dim: 4
  epochs: 3
  holdout_fraction: 0
experiment:
  group_map_path: %s
  feedback_db_path: %s
`, fixture, filepath.Join(dir, "models"), filepath.Join(dir, "groups.json"), filepath.Join(dir, "feedback.duckdb"))
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	return &workspace{dir: dir, config: cfgPath}
}

func (w *workspace) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", w.config}, args...))
	err := root.Execute()
	return stdout.String(), err
}

func (w *workspace) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := w.run(t, args...)
	if err != nil {
		t.Fatalf("kgrec %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestCommands_EndToEnd(t *testing.T) {
	w := newWorkspace(t)

	exportDir := filepath.Join(w.dir, "export")
	out := w.mustRun(t, "export", "--out", exportDir)
	if !strings.Contains(out, "triples") {
		t.Errorf("export output = %q", out)
	}
	for _, name := range []string{"triples.csv", "catalog.json"} {
		if _, err := os.Stat(filepath.Join(exportDir, name)); err != nil {
			t.Errorf("export missing %s: %v", name, err)
		}
	}

	samplesPath := filepath.Join(w.dir, "samples", "samples.csv")
	w.mustRun(t, "samples", "--out", samplesPath, "--per-user", "2")
	if _, err := os.Stat(samplesPath); err != nil {
		t.Errorf("samples file: %v", err)
	}

	var sampled struct {
		Pairs  int `json:"pairs"`
		Failed int `json:"failed"`
	}
	pathsOut := filepath.Join(w.dir, "paths.json")
	if err := json.Unmarshal([]byte(w.mustRun(t, "-o", "json", "sample-paths", "--samples", samplesPath, "--out", pathsOut)), &sampled); err != nil {
		t.Fatalf("decode sample-paths: %v", err)
	}
	if sampled.Pairs == 0 || sampled.Failed != 0 {
		t.Errorf("sample-paths = %+v, want pairs and no failures", sampled)
	}
	if _, err := os.Stat(pathsOut); err != nil {
		t.Errorf("paths file: %v", err)
	}

	var groups struct {
		Counts map[string]int `json:"counts"`
	}
	if err := json.Unmarshal([]byte(w.mustRun(t, "-o", "json", "assign-groups")), &groups); err != nil {
		t.Fatalf("decode assign-groups: %v", err)
	}
	if groups.Counts["A"]+groups.Counts["B"] != 2 {
		t.Errorf("group counts = %v, want 2 users", groups.Counts)
	}

	var trained trainOutput
	if err := json.Unmarshal([]byte(w.mustRun(t, "-o", "json", "train", "--epochs", "2")), &trained); err != nil {
		t.Fatalf("decode train: %v", err)
	}
	if trained.Version != 1 || trained.Positives != 3 || trained.Epochs != 2 {
		t.Errorf("train = %+v, want version 1, 3 positives, 2 epochs", trained)
	}

	var metas []embedding.Metadata
	if err := json.Unmarshal([]byte(w.mustRun(t, "-o", "json", "models", "list")), &metas); err != nil {
		t.Fatalf("decode models list: %v", err)
	}
	if len(metas) != 1 || metas[0].Version != 1 {
		t.Errorf("models = %+v, want version 1", metas)
	}

	var report eval.Report
	if err := json.Unmarshal([]byte(w.mustRun(t, "-o", "json", "eval", "--k", "2")), &report); err != nil {
		t.Fatalf("decode eval: %v", err)
	}
	if report.Users != 2 || report.K != 2 || report.ModelVersion != 1 {
		t.Errorf("eval = %+v, want 2 users at k=2 on version 1", report)
	}

	var rec recommend.Response
	if err := json.Unmarshal([]byte(w.mustRun(t, "-o", "json", "recommend", "0", "--topk", "2")), &rec); err != nil {
		t.Fatalf("decode recommend: %v", err)
	}
	if rec.UserID != 0 || len(rec.Recommendations) == 0 {
		t.Errorf("recommend = %+v", rec)
	}

	if out := w.mustRun(t, "paths", "1", "kung pao chicken"); !strings.Contains(out, "diversity") {
		t.Errorf("paths output = %q", out)
	}

	if out := w.mustRun(t, "analyze"); !strings.Contains(strings.ToLower(out), "total feedback") {
		t.Errorf("analyze output = %q", out)
	}

	if out := w.mustRun(t, "cache", "flush"); !strings.Contains(out, "memory") {
		t.Errorf("cache flush output = %q", out)
	}

	w.mustRun(t, "models", "prune", "--keep", "1")
}

func TestCommands_Errors(t *testing.T) {
	w := newWorkspace(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad output", []string{"-o", "xml", "models", "list"}, "--output"},
		{"bad log level", []string{"--log-level", "loud", "models", "list"}, "log-level"},
		{"bad user id", []string{"paths", "x", "mapo tofu"}, "user_id"},
		{"no checkpoint", []string{"eval"}, ""},
		{"prune keep zero", []string{"models", "prune", "--keep", "0"}, "--keep"},
		{"missing args", []string{"paths", "1"}, "accepts 2 arg"},
		{"sample-paths without samples", []string{"sample-paths"}, "--samples"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.run(t, tt.args...)
			if err == nil {
				t.Fatalf("kgrec %v: expected error", tt.args)
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestPathString(t *testing.T) {
	t.Parallel()
	v := recommend.PathView{
		Start:     "mapo tofu",
		Relations: []string{"HAS_TAG", "HAS_TAG"},
		Entities:  []string{"spicy", "kung pao chicken"},
	}
	want := "mapo tofu -[HAS_TAG]-> spicy -[HAS_TAG]-> kung pao chicken"
	if got := pathString(v); got != want {
		t.Errorf("pathString = %q, want %q", got, want)
	}
}

func TestSamplePairs(t *testing.T) {
	t.Parallel()
	cat, err := embedding.BuildCatalog([]graph.Entity{
		{Kind: graph.KindUser, Name: "0"},
		{Kind: graph.KindUser, Name: "1"},
		{Kind: graph.KindDish, Name: "mapo tofu"},
		{Kind: graph.KindDish, Name: "kung pao chicken"},
		{Kind: graph.KindTag, Name: "spicy"},
	})
	if err != nil {
		t.Fatal(err)
	}
	rows := []train.Sample{
		{User: 0, Item: 2, Label: 1},
		{User: 0, Item: 2, Label: 1},
		{User: 1, Item: 3, Label: 1},
		{User: 1, Item: 2, Label: 0},
		{User: 1, Item: 4, Label: 1},
	}
	got := samplePairs(rows, cat)
	want := []paths.UserItem{{UserID: 0, Item: "mapo tofu"}, {UserID: 1, Item: "kung pao chicken"}}
	if len(got) != len(want) {
		t.Fatalf("samplePairs = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pair[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/kgrec/internal/config"
	"github.com/tomtom215/kgrec/internal/graph"
	"github.com/tomtom215/kgrec/internal/logging"
	"github.com/tomtom215/kgrec/internal/recommend"
)

func writeFixture(t *testing.T, dir string) string {
	t.Helper()
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
		},
	}
	data, err := json.Marshal(fx)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	path := filepath.Join(dir, "graph.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Graph.Driver = "memory"
	cfg.Graph.FixturePath = writeFixture(t, dir)
	cfg.Model.Dir = filepath.Join(dir, "models")
	cfg.Experiment.GroupMapPath = filepath.Join(dir, "missing.json")
	cfg.Experiment.FeedbackDBPath = ""
	return cfg
}

func TestNew_MemoryDriver(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)

	c, err := New(context.Background(), cfg, logging.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() {
		if err := c.Close(context.Background()); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	if c.Feedback != nil {
		t.Error("Feedback should be nil without a database path")
	}
	if len(c.Groups) != 0 {
		t.Errorf("Groups = %v, want empty for a missing map file", c.Groups)
	}
	if err := c.Graph.Ping(context.Background()); err != nil {
		t.Errorf("Graph.Ping() error = %v", err)
	}
	if !errors.Is(c.Engine.Ready(), recommend.ErrModelNotLoaded) {
		t.Errorf("Engine.Ready() = %v, want ErrModelNotLoaded before the first snapshot", c.Engine.Ready())
	}
	if _, err := os.Stat(cfg.Model.Dir); err != nil {
		t.Errorf("model dir not created: %v", err)
	}
}

func TestNew_BadDriver(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Graph.Driver = "sqlite"

	if _, err := New(context.Background(), cfg, logging.Nop()); err == nil || !strings.Contains(err.Error(), "unknown graph driver") {
		t.Errorf("New() error = %v, want unknown graph driver", err)
	}
}

func TestLoadCatalogAndPositives(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	ctx := context.Background()

	store, err := OpenGraph(ctx, cfg, logging.Nop())
	if err != nil {
		t.Fatalf("OpenGraph() error = %v", err)
	}
	cat, err := LoadCatalog(ctx, store)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}
	// 2 users, 2 dishes, 1 tag, 3 ingredients
	if cat.Len() != 8 || cat.NumUsers() != 2 || cat.NumItems() != 2 {
		t.Errorf("catalog = %d entities %d users %d dishes, want 8 2 2", cat.Len(), cat.NumUsers(), cat.NumItems())
	}

	pos, err := LoadPositives(ctx, cfg, store, cat, logging.Nop())
	if err != nil {
		t.Fatalf("LoadPositives() error = %v", err)
	}
	if pos.Len() != 3 {
		t.Errorf("positives = %d, want 3", pos.Len())
	}
}

func TestLoadPositives_FromCSV(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	ctx := context.Background()

	store, err := OpenGraph(ctx, cfg, logging.Nop())
	if err != nil {
		t.Fatalf("OpenGraph() error = %v", err)
	}
	cat, err := LoadCatalog(ctx, store)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}

	// user 5 and item 4 (a tag) fall outside the catalog ranges
	csvPath := filepath.Join(t.TempDir(), "samples.csv")
	body := "user,item,label\n0,2,1\n1,3,1\n1,2,0\n5,2,1\n0,4,1\n"
	if err := os.WriteFile(csvPath, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg.Train.SamplesPath = csvPath

	pos, err := LoadPositives(ctx, cfg, store, cat, logging.Nop())
	if err != nil {
		t.Fatalf("LoadPositives() error = %v", err)
	}
	if pos.Len() != 2 || !pos.Has(0, 2) || !pos.Has(1, 3) {
		t.Errorf("positives = %v, want {0:2, 1:3}", pos)
	}
}

func TestExportGraph(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	ctx := context.Background()

	store, err := OpenGraph(ctx, cfg, logging.Nop())
	if err != nil {
		t.Fatalf("OpenGraph() error = %v", err)
	}
	cat, err := LoadCatalog(ctx, store)
	if err != nil {
		t.Fatalf("LoadCatalog() error = %v", err)
	}

	dir := filepath.Join(t.TempDir(), "export")
	n, err := ExportGraph(ctx, store, cat, dir)
	if err != nil {
		t.Fatalf("ExportGraph() error = %v", err)
	}
	// 3 interactions, 2 tag edges, 3 ingredient edges
	if n != 8 {
		t.Errorf("triples = %d, want 8", n)
	}

	data, err := os.ReadFile(filepath.Join(dir, TriplesFile))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 9 || lines[0] != "head_id,tail_id,rel" {
		t.Errorf("triples file = %q", lines)
	}
	// user 0 INTERACTED with dish index 2
	if lines[1] != "0,2,0" {
		t.Errorf("first triple = %q, want 0,2,0", lines[1])
	}

	var entities []graph.Entity
	raw, err := os.ReadFile(filepath.Join(dir, CatalogFile))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(raw, &entities); err != nil {
		t.Fatalf("decode catalog: %v", err)
	}
	if len(entities) != cat.Len() || entities[2] != (graph.Entity{Kind: graph.KindDish, Name: "mapo tofu"}) {
		t.Errorf("catalog = %v", entities)
	}
}

func TestLoadGroups(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	g, err := LoadGroups(filepath.Join(dir, "nope.json"))
	if err != nil || len(g) != 0 {
		t.Errorf("LoadGroups(missing) = %v, %v; want empty, nil", g, err)
	}

	path := filepath.Join(dir, "groups.json")
	if err := os.WriteFile(path, []byte(`{"0": "A", "1": "B"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	g, err = LoadGroups(path)
	if err != nil {
		t.Fatalf("LoadGroups() error = %v", err)
	}
	if g.Group(0) != "A" || g.Group(1) != "B" {
		t.Errorf("groups = %v", g)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"x": "A"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadGroups(bad); err == nil {
		t.Error("LoadGroups(bad) should fail")
	}
}

func TestConfigMapping(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Cache.TTL = 3 * time.Minute
	cfg.Recommend.MaxTopK = 20
	cfg.Train.Dim = 8
	cfg.Graph.MaxAttempts = 4

	if got := RecommendConfig(cfg); got.CacheTTL != 3*time.Minute || got.MaxTopK != 20 {
		t.Errorf("RecommendConfig = %+v", got)
	}
	if err := func() error { c := RecommendConfig(cfg); return c.Validate() }(); err != nil {
		t.Errorf("RecommendConfig.Validate() = %v", err)
	}
	if got := TrainConfig(cfg); got.Dim != 8 || got.Beta1 != 0.9 {
		t.Errorf("TrainConfig = %+v, want dim 8 with Adam defaults", got)
	}
	if got := GraphResilience(cfg); got.MaxAttempts != 4 || got.AttemptTimeout != cfg.Graph.QueryTimeout {
		t.Errorf("GraphResilience = %+v", got)
	}
	if got := CacheConfig(cfg); string(got.Backend) != cfg.Cache.Backend || got.TTL != 3*time.Minute {
		t.Errorf("CacheConfig = %+v", got)
	}
	if got := EvalConfig(cfg); got.Validate() != nil {
		t.Errorf("EvalConfig.Validate() = %v", got.Validate())
	}
	if got := PathsConfig(cfg); got.TwoHopLimit != cfg.Paths.TwoHopLimit {
		t.Errorf("PathsConfig = %+v", got)
	}
}

// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package train

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/tomtom215/kgrec/internal/embedding"
	"github.com/tomtom215/kgrec/internal/graph"
	"github.com/tomtom215/kgrec/internal/logging"
)

// testCatalog has users 0..users-1, dishes d0..d{dishes-1} and one tag.
func testCatalog(t *testing.T, users, dishes int) *embedding.Catalog {
	t.Helper()
	var ents []graph.Entity
	for u := 0; u < users; u++ {
		ents = append(ents, graph.Entity{Kind: graph.KindUser, Name: strconv.Itoa(u)})
	}
	for d := 0; d < dishes; d++ {
		ents = append(ents, graph.Entity{Kind: graph.KindDish, Name: "d" + strconv.Itoa(d)})
	}
	ents = append(ents, graph.Entity{Kind: graph.KindTag, Name: "spicy"})
	cat, err := embedding.BuildCatalog(ents)
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}
	return cat
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := withDefaults(Config{})
	if cfg.Dim != 32 || cfg.Epochs != 50 || cfg.BatchSize != 64 || cfg.NegativesPerPositive != 4 {
		t.Errorf("withDefaults(zero) = %+v", cfg)
	}
	if cfg.LearningRate != 1e-3 || cfg.Beta1 != 0.9 || cfg.Beta2 != 0.999 {
		t.Errorf("optimizer defaults = %v %v %v", cfg.LearningRate, cfg.Beta1, cfg.Beta2)
	}

	custom := withDefaults(Config{Dim: 8, Epochs: 3, Seed: 7})
	if custom.Dim != 8 || custom.Epochs != 3 || custom.Seed != 7 {
		t.Errorf("custom values overwritten: %+v", custom)
	}
}

func TestNegativeSampler(t *testing.T) {
	t.Parallel()

	pos := make(Positives)
	pos.Add(0, 10)
	pos.Add(0, 11)
	//nolint:gosec // test randomness
	rng := rand.New(rand.NewSource(1))
	s := NewNegativeSampler(10, 15, pos, rng, 100)
	for i := 0; i < 200; i++ {
		item, ok := s.Sample(0)
		if !ok {
			t.Fatal("Sample returned !ok with free items available")
		}
		if item < 10 || item >= 15 {
			t.Fatalf("item %d outside [10, 15)", item)
		}
		if pos.Has(0, item) {
			t.Fatalf("sampled positive item %d", item)
		}
	}
}

func TestNegativeSamplerFallback(t *testing.T) {
	t.Parallel()

	pos := make(Positives)
	for i := 0; i < 99; i++ {
		pos.Add(0, i)
	}
	//nolint:gosec // test randomness
	rng := rand.New(rand.NewSource(3))
	s := NewNegativeSampler(0, 100, pos, rng, 1)
	for i := 0; i < 20; i++ {
		item, ok := s.Sample(0)
		if !ok || item != 99 {
			t.Fatalf("Sample = %d, %v, want 99, true", item, ok)
		}
	}
	if s.Fallbacks == 0 {
		t.Error("expected at least one complement fallback")
	}

	pos.Add(0, 99)
	full := NewNegativeSampler(0, 100, pos, rng, 5)
	if _, ok := full.Sample(0); ok {
		t.Error("Sample succeeded for a user with no negatives")
	}
}

func TestTrainStepKeepsUnitNorm(t *testing.T) {
	t.Parallel()

	cfg := withDefaults(Config{Dim: 8, LearningRate: 0.05})
	//nolint:gosec // test randomness
	rng := rand.New(rand.NewSource(9))
	m := newModel(cfg, 10, rng)
	for i := 0; i < m.ent.Rows; i++ {
		if n := embedding.Norm(m.ent.Row(i)); math.Abs(n-1) > 1e-9 {
			t.Fatalf("initial row %d norm = %v, want 1", i, n)
		}
	}

	batch := []Triplet{{User: 0, Pos: 3, Neg: 5}, {User: 1, Pos: 4, Neg: 6}, {User: 0, Pos: 7, Neg: 8}}
	for step := 0; step < 5; step++ {
		m.trainStep(batch)
		for i := 0; i < m.ent.Rows; i++ {
			if n := embedding.Norm(m.ent.Row(i)); math.Abs(n-1) > 1e-9 {
				t.Fatalf("step %d row %d norm = %v, want 1", step, i, n)
			}
		}
	}
}

func TestTrainStepReducesLoss(t *testing.T) {
	t.Parallel()

	cfg := withDefaults(Config{Dim: 8, LearningRate: 0.05, L2Reg: 1e-6})
	//nolint:gosec // test randomness
	rng := rand.New(rand.NewSource(11))
	m := newModel(cfg, 6, rng)
	batch := []Triplet{{User: 0, Pos: 2, Neg: 3}, {User: 1, Pos: 4, Neg: 5}}

	first := m.trainStep(batch)
	var last float64
	for i := 0; i < 100; i++ {
		last = m.trainStep(batch)
	}
	if last >= first {
		t.Errorf("loss did not decrease: first %v, last %v", first, last)
	}
}

func TestTrainEmptyPositives(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := embedding.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	tr := New(Config{Epochs: 2}, store, logging.Nop())
	res, err := tr.Train(context.Background(), testCatalog(t, 2, 3), make(Positives))
	if !errors.Is(err, ErrNoPositives) {
		t.Fatalf("err = %v, want ErrNoPositives", err)
	}
	if res == nil || res.Epochs != 0 || res.Snapshot != nil {
		t.Errorf("result = %+v, want zero-epoch result", res)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("checkpoint files written: %d", len(entries))
	}
}

func TestTrainNoTriplets(t *testing.T) {
	t.Parallel()

	pos := make(Positives)
	pos.Add(0, 1) // the only dish
	tr := New(Config{Epochs: 2}, nil, logging.Nop())
	_, err := tr.Train(context.Background(), testCatalog(t, 1, 1), pos)
	if !errors.Is(err, ErrNoTriplets) {
		t.Errorf("err = %v, want ErrNoTriplets", err)
	}
}

func TestTrainPersistsBestCheckpoint(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cat := testCatalog(t, 3, 6)
	samples := MakeSamples(cat, 2, 42)
	pos, dropped := PositivesFromSamples(samples, cat)
	if dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}

	store, err := embedding.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var buf bytes.Buffer
	tr := New(Config{Dim: 4, Epochs: 4, BatchSize: 4, LearningRate: 0.01}, store, logging.NewTestLogger(&buf))
	res, err := tr.Train(ctx, cat, pos)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if res.Epochs != 4 || res.BestEpoch < 0 || res.Snapshot == nil {
		t.Fatalf("result = %+v", res)
	}
	if res.Version != 1 {
		t.Errorf("Version = %d, want 1", res.Version)
	}

	snap, meta, err := store.LoadSnapshot(ctx, 0)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if meta.Epoch != res.BestEpoch || meta.Loss != res.BestLoss {
		t.Errorf("persisted epoch/loss = %d/%v, want %d/%v", meta.Epoch, meta.Loss, res.BestEpoch, res.BestLoss)
	}
	if snap.Dim() != 4 || snap.NumUsers() != 3 {
		t.Errorf("snapshot dim/users = %d/%d", snap.Dim(), snap.NumUsers())
	}
	for i := 0; i < snap.Catalog().Len(); i++ {
		if n := embedding.Norm(snap.EntityVector(i)); math.Abs(n-1) > 1e-9 {
			t.Errorf("persisted row %d norm = %v", i, n)
		}
	}
	if !strings.Contains(buf.String(), "Training complete") {
		t.Error("completion not logged")
	}
}

func TestTrainCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cat := testCatalog(t, 2, 4)
	pos := make(Positives)
	pos.Add(0, 2)
	_, err := New(Config{}, nil, logging.Nop()).Train(ctx, cat, pos)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestReadSamplesCSV(t *testing.T) {
	t.Parallel()

	in := "user,item,label\n0,5,1\n1,6.0,0\n2, 7\n"
	got, err := ReadSamplesCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadSamplesCSV: %v", err)
	}
	want := []Sample{{0, 5, 1}, {1, 6, 0}, {2, 7, 1}}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	if _, err := ReadSamplesCSV(strings.NewReader("0,abc,1\n")); err == nil {
		t.Error("invalid item accepted")
	}
}

func TestWriteSamplesCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteSamplesCSV(&buf, []Sample{{0, 3, 1}}); err != nil {
		t.Fatalf("WriteSamplesCSV: %v", err)
	}
	if got, want := buf.String(), "user,item,label\n0,3,1\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestMakeSamples(t *testing.T) {
	t.Parallel()

	cat := testCatalog(t, 4, 10)
	samples := MakeSamples(cat, 5, 42)
	if len(samples) != 20 {
		t.Fatalf("len = %d, want 20", len(samples))
	}
	perUser := map[int]map[int]bool{}
	for _, s := range samples {
		if !cat.IsItem(s.Item) || s.Label != 1 {
			t.Fatalf("bad sample %+v", s)
		}
		if perUser[s.User] == nil {
			perUser[s.User] = map[int]bool{}
		}
		if perUser[s.User][s.Item] {
			t.Fatalf("duplicate sample %+v", s)
		}
		perUser[s.User][s.Item] = true
	}

	again := MakeSamples(cat, 5, 42)
	for i := range samples {
		if samples[i] != again[i] {
			t.Fatal("MakeSamples is not deterministic for a fixed seed")
		}
	}
}

func TestSplitHoldout(t *testing.T) {
	t.Parallel()

	pos := make(Positives)
	for i := 0; i < 10; i++ {
		pos.Add(0, 100+i)
	}
	pos.Add(1, 100)

	trainSet, testSet := SplitHoldout(pos, 0.2, 1)
	if got := len(testSet[0]); got != 2 {
		t.Errorf("user 0 test size = %d, want 2", got)
	}
	if got := len(trainSet[0]); got != 8 {
		t.Errorf("user 0 train size = %d, want 8", got)
	}
	if len(testSet[1]) != 0 || len(trainSet[1]) != 1 {
		t.Errorf("single-positive user split = %d/%d, want 1/0", len(trainSet[1]), len(testSet[1]))
	}
	for item := range testSet[0] {
		if trainSet.Has(0, item) {
			t.Errorf("item %d in both sets", item)
		}
	}
}

func TestPositivesFromInteractions(t *testing.T) {
	t.Parallel()

	cat := testCatalog(t, 2, 3)
	pos, dropped := PositivesFromInteractions([]graph.Interaction{
		{UserID: 0, Item: "d1", Rating: 5, Timestamp: time.Now()},
		{UserID: 1, Item: "d2"},
		{UserID: 1, Item: "unknown"},
		{UserID: 7, Item: "d0"},
	}, cat)
	if dropped != 2 {
		t.Errorf("dropped = %d, want 2", dropped)
	}
	d1, _ := cat.ItemIndex("d1")
	if !pos.Has(0, d1) {
		t.Error("user 0 -> d1 missing")
	}
	if pos.Len() != 2 {
		t.Errorf("Len = %d, want 2", pos.Len())
	}
}

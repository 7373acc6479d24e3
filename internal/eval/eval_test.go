// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package eval

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tomtom215/kgrec/internal/embedding"
	"github.com/tomtom215/kgrec/internal/graph"
	"github.com/tomtom215/kgrec/internal/logging"
	"github.com/tomtom215/kgrec/internal/paths"
	"github.com/tomtom215/kgrec/internal/train"
)

const eps = 1e-4

func near(a, b float64) bool { return math.Abs(a-b) < eps }

// Dishes d0..d3 sit at indices 2..5. User 0 ranks them d0, d1, d2, d3;
// user 1 ranks them d3, d2, d0, d1.
func testSnapshot(t *testing.T) *embedding.Snapshot {
	t.Helper()
	entities := []graph.Entity{
		{Kind: graph.KindUser, Name: "0"},
		{Kind: graph.KindUser, Name: "1"},
		{Kind: graph.KindDish, Name: "d0"},
		{Kind: graph.KindDish, Name: "d1"},
		{Kind: graph.KindDish, Name: "d2"},
		{Kind: graph.KindDish, Name: "d3"},
	}
	cat, err := embedding.NewCatalog(entities)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	ent := embedding.NewMatrix(len(entities), 2)
	copy(ent.Row(1), []float64{0, 0.36})
	copy(ent.Row(2), []float64{0.1, 0})
	copy(ent.Row(3), []float64{0.2, 0})
	copy(ent.Row(4), []float64{0, 0.3})
	copy(ent.Row(5), []float64{0, 0.4})

	snap, err := embedding.NewSnapshot(3, time.Now(), ent, embedding.NewMatrix(len(graph.Relations), 2), cat)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return snap
}

func positives(pairs ...[2]int) train.Positives {
	p := train.Positives{}
	for _, pr := range pairs {
		p.Add(pr[0], pr[1])
	}
	return p
}

func TestHitRate(t *testing.T) {
	t.Parallel()
	rel := map[int]bool{7: true}
	if got := HitRate([]int{1, 7}, rel); got != 1 {
		t.Errorf("HitRate hit = %v, want 1", got)
	}
	if got := HitRate([]int{1, 2}, rel); got != 0 {
		t.Errorf("HitRate miss = %v, want 0", got)
	}
}

func TestNDCG(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		top  []int
		rel  map[int]bool
		want float64
	}{
		{"first", []int{1, 2, 3}, map[int]bool{1: true}, 1},
		{"second", []int{1, 2, 3}, map[int]bool{2: true}, 1 / math.Log2(3)},
		{"two of three", []int{1, 2, 3}, map[int]bool{1: true, 3: true}, 1.5 / (1 + 1/math.Log2(3))},
		{"more relevant than k", []int{1, 2}, map[int]bool{1: true, 2: true, 9: true}, 1},
		{"miss", []int{1, 2}, map[int]bool{5: true}, 0},
		{"empty relevant", []int{1}, nil, 0},
	}
	for _, tt := range tests {
		if got := NDCG(tt.top, tt.rel); !near(got, tt.want) {
			t.Errorf("%s: NDCG = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestReciprocalRank(t *testing.T) {
	t.Parallel()
	rel := map[int]bool{3: true, 4: true}
	if got := ReciprocalRank([]int{1, 3, 4}, rel); got != 0.5 {
		t.Errorf("ReciprocalRank = %v, want 0.5", got)
	}
	if got := ReciprocalRank([]int{1}, rel); got != 0 {
		t.Errorf("ReciprocalRank miss = %v, want 0", got)
	}
}

func TestIntraListDiversity(t *testing.T) {
	t.Parallel()
	if got := IntraListDiversity([][]float64{{1, 0}}); got != 0 {
		t.Errorf("single item = %v, want 0", got)
	}
	if got := IntraListDiversity([][]float64{{1, 0}, {0, 1}}); !near(got, 1) {
		t.Errorf("orthogonal = %v, want 1", got)
	}
	if got := IntraListDiversity([][]float64{{1, 0}, {2, 0}, {0, 3}}); !near(got, 2.0/3) {
		t.Errorf("mixed = %v, want 2/3", got)
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	snap := testSnapshot(t)
	ev, err := New(Config{K: 2, ExcludeTrain: true, Workers: 2}, nil, nil, logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	trainSet := positives([2]int{0, 2})
	test := positives([2]int{0, 4}, [2]int{1, 2}, [2]int{7, 3})

	report, err := ev.Evaluate(context.Background(), snap, trainSet, test)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.Users != 2 || report.SkippedUsers != 1 {
		t.Errorf("users = %d skipped = %d, want 2 and 1", report.Users, report.SkippedUsers)
	}
	if !near(report.HitRate, 0.5) {
		t.Errorf("HitRate = %v, want 0.5", report.HitRate)
	}
	if !near(report.MRR, 0.25) {
		t.Errorf("MRR = %v, want 0.25", report.MRR)
	}
	if want := 0.5 / math.Log2(3); !near(report.NDCG, want) {
		t.Errorf("NDCG = %v, want %v", report.NDCG, want)
	}
	if !near(report.Diversity, 0.5) {
		t.Errorf("Diversity = %v, want 0.5", report.Diversity)
	}
	if report.ModelVersion != 3 || report.RunID == "" {
		t.Errorf("version = %d run = %q", report.ModelVersion, report.RunID)
	}
	if got := report.PerUser[0].Top; len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Errorf("user 0 top = %v, want [3 4]", got)
	}
}

func TestEvaluate_WithoutExclusion(t *testing.T) {
	t.Parallel()
	ev, err := New(Config{K: 2, Workers: 1}, nil, nil, logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	report, err := ev.Evaluate(context.Background(), testSnapshot(t), positives([2]int{0, 2}), positives([2]int{0, 4}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.HitRate != 0 {
		t.Errorf("HitRate = %v, want 0 when training positives occupy the top", report.HitRate)
	}
}

func TestEvaluate_NoUsers(t *testing.T) {
	t.Parallel()
	ev, err := New(DefaultConfig(), nil, nil, logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = ev.Evaluate(context.Background(), testSnapshot(t), nil, positives([2]int{9, 2}))
	if !errors.Is(err, ErrNoTestUsers) {
		t.Errorf("err = %v, want ErrNoTestUsers", err)
	}
}

func TestEvaluate_Cancelled(t *testing.T) {
	t.Parallel()
	ev, err := New(DefaultConfig(), nil, nil, logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ev.Evaluate(ctx, testSnapshot(t), nil, positives([2]int{0, 2})); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestEvaluate_PathDiversity(t *testing.T) {
	t.Parallel()
	store := graph.NewMemoryStore()
	store.AddDish(graph.ItemAttributes{Name: "d0", Price: 1, Tags: []string{"spicy"}, Ingredients: []string{"tofu"}})
	store.AddDish(graph.ItemAttributes{Name: "d1", Price: 1, Tags: []string{"spicy"}, Ingredients: []string{"tofu"}})
	store.AddDish(graph.ItemAttributes{Name: "d2", Price: 1})
	store.AddDish(graph.ItemAttributes{Name: "d3", Price: 1})
	store.AddInteraction(0, "d0", 5, time.Now())

	sampler := paths.NewSampler(store, paths.DefaultConfig(), logging.Nop())
	ev, err := New(Config{K: 2, ExcludeTrain: true, Workers: 2, PathSampleUsers: 1}, sampler, store, logging.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := ev.Evaluate(context.Background(), testSnapshot(t), positives([2]int{0, 2}), positives([2]int{0, 4}, [2]int{1, 2}))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if report.PathUsers != 1 {
		t.Fatalf("PathUsers = %d, want 1", report.PathUsers)
	}
	if !near(report.PathDiversity, 1) {
		t.Errorf("PathDiversity = %v, want 1", report.PathDiversity)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{K: 0, Workers: 1}, nil, nil, logging.Nop()); err == nil {
		t.Error("expected error for k=0")
	}
	if _, err := New(Config{K: 5, Workers: 1, PathSampleUsers: 3}, nil, nil, logging.Nop()); err == nil {
		t.Error("expected error for path diversity without sampler")
	}
}

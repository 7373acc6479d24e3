// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package embedding

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/kgrec/internal/graph"
)

func testEntities() []graph.Entity {
	return []graph.Entity{
		{Kind: graph.KindDish, Name: "mapo tofu"},
		{Kind: graph.KindUser, Name: "1"},
		{Kind: graph.KindTag, Name: "spicy"},
		{Kind: graph.KindUser, Name: "0"},
		{Kind: graph.KindDish, Name: "tofu soup"},
		{Kind: graph.KindIngredient, Name: "tofu"},
		{Kind: graph.KindDish, Name: "mapo tofu"},
	}
}

// testSnapshot builds a 2-user, 2-dish snapshot in dimension 2 where user 0
// prefers "tofu soup" and user 1 prefers "mapo tofu".
func testSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	cat, err := BuildCatalog(testEntities())
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}
	ent := NewMatrix(cat.Len(), 2)
	copy(ent.Row(0), []float64{1, 0})
	copy(ent.Row(1), []float64{0, 1})
	copy(ent.Row(2), []float64{0, 1})  // mapo tofu
	copy(ent.Row(3), []float64{1, 0})  // tofu soup
	copy(ent.Row(4), []float64{-1, 0}) // spicy
	copy(ent.Row(5), []float64{0, -1}) // tofu
	rel := NewMatrix(len(graph.Relations), 2)
	snap, err := NewSnapshot(1, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), ent, rel, cat)
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}
	return snap
}

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		h, r, t []float64
		want    float64
	}{
		{"exact translation", []float64{1, 0}, []float64{0, 1}, []float64{1, 1}, 0},
		{"unit miss", []float64{0, 0}, []float64{0, 0}, []float64{1, 0}, -1},
		{"3-4-5", []float64{3, 0}, []float64{0, 4}, []float64{0, 0}, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Score(tt.h, tt.r, tt.t); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNormalizeRows(t *testing.T) {
	t.Parallel()

	m := NewMatrix(3, 2)
	copy(m.Data, []float64{3, 4, 0, 0, -2, 0})
	NormalizeRows(m)
	if n := Norm(m.Row(0)); math.Abs(n-1) > 1e-12 {
		t.Errorf("row 0 norm = %v, want 1", n)
	}
	if n := Norm(m.Row(1)); n != 0 {
		t.Errorf("zero row norm = %v, want 0", n)
	}
	if got := m.Row(2)[0]; got != -1 {
		t.Errorf("row 2 = %v, want [-1 0]", m.Row(2))
	}
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	if got := CosineSimilarity([]float64{1, 0}, []float64{0, 1}); got != 0 {
		t.Errorf("orthogonal = %v, want 0", got)
	}
	if got := CosineSimilarity([]float64{2, 0}, []float64{5, 0}); math.Abs(got-1) > 1e-12 {
		t.Errorf("parallel = %v, want 1", got)
	}
	if got := CosineSimilarity([]float64{0, 0}, []float64{5, 0}); got != 0 {
		t.Errorf("zero vector = %v, want 0", got)
	}
}

func TestBuildCatalogLayout(t *testing.T) {
	t.Parallel()

	cat, err := BuildCatalog(testEntities())
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}
	want := []string{"0", "1", "mapo tofu", "tofu soup", "spicy", "tofu"}
	if cat.Len() != len(want) {
		t.Fatalf("Len = %d, want %d", cat.Len(), len(want))
	}
	for i, name := range want {
		if got := cat.Name(i); got != name {
			t.Errorf("Name(%d) = %q, want %q", i, got, name)
		}
	}
	if cat.NumUsers() != 2 || cat.NumItems() != 2 {
		t.Errorf("NumUsers, NumItems = %d, %d, want 2, 2", cat.NumUsers(), cat.NumItems())
	}
	lo, hi := cat.ItemRange()
	if lo != 2 || hi != 4 {
		t.Errorf("ItemRange = [%d, %d), want [2, 4)", lo, hi)
	}
	if idx, ok := cat.ItemIndex("tofu soup"); !ok || idx != 3 {
		t.Errorf("ItemIndex(tofu soup) = %d, %v", idx, ok)
	}
	if _, ok := cat.ItemIndex("tofu"); ok {
		t.Error("ItemIndex should not resolve an ingredient")
	}
	if cat.IsItem(4) {
		t.Error("tag index reported as item")
	}
	if got := cat.Name(99); got != "" {
		t.Errorf("Name(99) = %q, want empty", got)
	}
}

func TestNewCatalogRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		entities []graph.Entity
	}{
		{"user gap", []graph.Entity{{Kind: graph.KindUser, Name: "0"}, {Kind: graph.KindUser, Name: "2"}}},
		{"kind order", []graph.Entity{{Kind: graph.KindDish, Name: "a"}, {Kind: graph.KindUser, Name: "0"}}},
		{"duplicate", []graph.Entity{{Kind: graph.KindDish, Name: "a"}, {Kind: graph.KindDish, Name: "a"}}},
		{"unknown kind", []graph.Entity{{Kind: "Restaurant", Name: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewCatalog(tt.entities); err == nil {
				t.Error("NewCatalog succeeded, want error")
			}
		})
	}
}

func TestNewSnapshotShapeMismatch(t *testing.T) {
	t.Parallel()

	cat, err := BuildCatalog(testEntities())
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}
	_, err = NewSnapshot(1, time.Now(), NewMatrix(cat.Len()-1, 2), NewMatrix(3, 2), cat)
	if !errors.Is(err, ErrCatalogMismatch) {
		t.Errorf("err = %v, want ErrCatalogMismatch", err)
	}
	if _, err := NewSnapshot(1, time.Now(), NewMatrix(cat.Len(), 2), NewMatrix(2, 2), cat); err == nil {
		t.Error("wrong relation row count accepted")
	}
	if _, err := NewSnapshot(1, time.Now(), NewMatrix(cat.Len(), 2), NewMatrix(3, 4), cat); err == nil {
		t.Error("dimension mismatch accepted")
	}
}

func TestTopItems(t *testing.T) {
	t.Parallel()

	snap := testSnapshot(t)
	top := snap.TopItems(0, graph.Interacted, 2, nil)
	if len(top) != 2 {
		t.Fatalf("len = %d, want 2", len(top))
	}
	if got := snap.Catalog().Name(top[0].Index); got != "tofu soup" {
		t.Errorf("user 0 top-1 = %q, want tofu soup", got)
	}
	if top[0].Score < top[1].Score {
		t.Errorf("scores not descending: %v", top)
	}

	top = snap.TopItems(1, graph.Interacted, 1, nil)
	if got := snap.Catalog().Name(top[0].Index); got != "mapo tofu" {
		t.Errorf("user 1 top-1 = %q, want mapo tofu", got)
	}

	top = snap.TopItems(1, graph.Interacted, 5, map[int]bool{2: true})
	if len(top) != 1 || top[0].Index != 3 {
		t.Errorf("excluded TopItems = %v, want only index 3", top)
	}
}

func TestTopKTiesAndOrder(t *testing.T) {
	t.Parallel()

	scores := []float64{-1, -0.5, -0.5, -3, 0}
	got := TopK(scores, 10, 3, nil)
	want := []int{14, 11, 12}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, idx := range want {
		if got[i].Index != idx {
			t.Errorf("TopK[%d] = %d, want %d (all %v)", i, got[i].Index, idx, got)
		}
	}
	if TopK(scores, 0, 0, nil) != nil {
		t.Error("k=0 should return nil")
	}
	if n := len(TopK(scores, 0, 50, nil)); n != len(scores) {
		t.Errorf("k>len returned %d items, want %d", n, len(scores))
	}
}

func TestHolderSwap(t *testing.T) {
	t.Parallel()

	var h Holder
	if h.Load() != nil {
		t.Fatal("empty holder returned a snapshot")
	}
	snap := testSnapshot(t)
	if prev := h.Swap(snap); prev != nil {
		t.Errorf("first Swap returned %v, want nil", prev)
	}
	if h.Load() != snap {
		t.Error("Load did not return the swapped snapshot")
	}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if v := store.LatestVersion(); v != 0 {
		t.Errorf("LatestVersion on empty store = %d, want 0", v)
	}
	if _, _, err := store.LoadSnapshot(ctx, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadSnapshot on empty store err = %v, want ErrNotFound", err)
	}

	snap := testSnapshot(t)
	if err := store.SaveSnapshot(ctx, snap, Metadata{Epoch: 7, Loss: 0.25}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if v := store.LatestVersion(); v != 1 {
		t.Errorf("LatestVersion = %d, want 1", v)
	}
	if v := store.NextVersion(); v != 2 {
		t.Errorf("NextVersion = %d, want 2", v)
	}

	loaded, meta, err := store.LoadSnapshot(ctx, 0)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if meta.Epoch != 7 || meta.Loss != 0.25 || meta.NumUsers != 2 || meta.Dim != 2 {
		t.Errorf("metadata = %+v", meta)
	}
	if !loaded.Catalog().Equal(snap.Catalog()) {
		t.Error("catalog changed across round trip")
	}
	if !loaded.TrainedAt().Equal(snap.TrainedAt()) {
		t.Errorf("TrainedAt = %v, want %v", loaded.TrainedAt(), snap.TrainedAt())
	}
	for i, v := range snap.Entities().Data {
		if loaded.Entities().Data[i] != v {
			t.Fatalf("entity data[%d] = %v, want %v", i, loaded.Entities().Data[i], v)
		}
	}

	// A reopened store sees the same version.
	reopened, err := NewStore(store.Dir())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v := reopened.LatestVersion(); v != 1 {
		t.Errorf("reopened LatestVersion = %d, want 1", v)
	}
}

func TestStoreChecksumMismatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.SaveSnapshot(ctx, testSnapshot(t), Metadata{}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	// Rewrite the relation blob with a forged checksum.
	var sf storedFile
	path := filepath.Join(dir, "relation_embeddings_v1.gob.gz")
	if err := decodeFile(path, &sf); err != nil {
		t.Fatalf("decode: %v", err)
	}
	sf.Metadata.Checksum = "deadbeef"
	if err := encodeFile(path, sf); err != nil {
		t.Fatalf("encode: %v", err)
	}

	if _, _, err := store.LoadSnapshot(ctx, 1); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("err = %v, want ErrChecksumMismatch", err)
	}
}

func TestValidateAgainst(t *testing.T) {
	t.Parallel()

	snap := testSnapshot(t)
	if err := snap.ValidateAgainst(snap.Catalog()); err != nil {
		t.Errorf("ValidateAgainst(self) = %v", err)
	}
	grown, err := BuildCatalog(append(testEntities(), graph.Entity{Kind: graph.KindDish, Name: "fried rice"}))
	if err != nil {
		t.Fatalf("BuildCatalog: %v", err)
	}
	if err := snap.ValidateAgainst(grown); !errors.Is(err, ErrCatalogMismatch) {
		t.Errorf("err = %v, want ErrCatalogMismatch", err)
	}
}

func TestStorePrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	base := testSnapshot(t)
	for v := 1; v <= 3; v++ {
		snap, err := NewSnapshot(v, base.TrainedAt(), base.Entities().Clone(), base.Relations().Clone(), base.Catalog())
		if err != nil {
			t.Fatalf("NewSnapshot: %v", err)
		}
		if err := store.SaveSnapshot(ctx, snap, Metadata{Epoch: v}); err != nil {
			t.Fatalf("SaveSnapshot v%d: %v", v, err)
		}
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 || list[0].Version != 3 {
		t.Fatalf("List = %+v, want 3 entries newest first", list)
	}

	removed, err := store.Prune(ctx, 1)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 6 {
		t.Errorf("removed = %d, want 6", removed)
	}
	if v := store.LatestVersion(); v != 3 {
		t.Errorf("LatestVersion after prune = %d, want 3", v)
	}
	entries, err := os.ReadDir(store.Dir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("files after prune = %d, want 3", len(entries))
	}
}

func TestStoreRefresh(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	writer, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	reader, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if err := writer.SaveSnapshot(ctx, testSnapshot(t), Metadata{}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if v := reader.LatestVersion(); v != 0 {
		t.Errorf("LatestVersion before Refresh = %d, want 0", v)
	}
	if err := reader.Refresh(); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if v := reader.LatestVersion(); v != 1 {
		t.Errorf("LatestVersion after Refresh = %d, want 1", v)
	}
}

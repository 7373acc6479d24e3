// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package embedding

import (
	"container/heap"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tomtom215/kgrec/internal/graph"
)

// Snapshot is one immutable, versioned set of trained vectors together
// with the catalog that names their rows. Callers must treat every slice
// returned by a Snapshot as read-only.
type Snapshot struct {
	version   int
	trainedAt time.Time
	entities  Matrix
	relations Matrix
	catalog   *Catalog
}

// NewSnapshot validates shapes and takes ownership of both matrices.
func NewSnapshot(version int, trainedAt time.Time, entities, relations Matrix, catalog *Catalog) (*Snapshot, error) {
	if catalog == nil {
		return nil, fmt.Errorf("new snapshot: catalog is required")
	}
	if err := entities.Validate(); err != nil {
		return nil, fmt.Errorf("entity embeddings: %w", err)
	}
	if err := relations.Validate(); err != nil {
		return nil, fmt.Errorf("relation embeddings: %w", err)
	}
	if entities.Rows != catalog.Len() {
		return nil, fmt.Errorf("%w: %d entity rows, catalog has %d entries", ErrCatalogMismatch, entities.Rows, catalog.Len())
	}
	if relations.Rows != len(graph.Relations) {
		return nil, fmt.Errorf("relation embeddings: %d rows, want %d", relations.Rows, len(graph.Relations))
	}
	if entities.Cols != relations.Cols {
		return nil, fmt.Errorf("dimension mismatch: entities %d, relations %d", entities.Cols, relations.Cols)
	}
	return &Snapshot{
		version:   version,
		trainedAt: trainedAt,
		entities:  entities,
		relations: relations,
		catalog:   catalog,
	}, nil
}

// Version is the checkpoint version.
func (s *Snapshot) Version() int { return s.version }

// TrainedAt is when training produced the vectors.
func (s *Snapshot) TrainedAt() time.Time { return s.trainedAt }

// Dim is the embedding dimension.
func (s *Snapshot) Dim() int { return s.entities.Cols }

// Catalog returns the index-name table.
func (s *Snapshot) Catalog() *Catalog { return s.catalog }

// NumUsers is the partition boundary.
func (s *Snapshot) NumUsers() int { return s.catalog.NumUsers() }

// EntityVector returns row idx.
func (s *Snapshot) EntityVector(idx int) []float64 { return s.entities.Row(idx) }

// Entities exposes the entity matrix for persistence.
func (s *Snapshot) Entities() Matrix { return s.entities }

// Relations exposes the relation matrix for persistence.
func (s *Snapshot) Relations() Matrix { return s.relations }

// ValidateAgainst checks that the snapshot fits the given live catalog.
func (s *Snapshot) ValidateAgainst(live *Catalog) error {
	if live == nil {
		return nil
	}
	if live.Len() != s.entities.Rows {
		return fmt.Errorf("%w: snapshot has %d entities, graph has %d", ErrCatalogMismatch, s.entities.Rows, live.Len())
	}
	if !s.catalog.Equal(live) {
		return fmt.Errorf("%w: entity order differs from the graph", ErrCatalogMismatch)
	}
	return nil
}

// ScoreItem scores one (user, rel, item) triple by entity index.
func (s *Snapshot) ScoreItem(user int, rel graph.Relation, item int) float64 {
	return Score(s.entities.Row(user), s.relations.Row(int(rel)), s.entities.Row(item))
}

// ScoreItems scores every dish for user. out[i] is the score of index lo+i.
func (s *Snapshot) ScoreItems(user int, rel graph.Relation) []float64 {
	lo, hi := s.catalog.ItemRange()
	u := s.entities.Row(user)
	r := s.relations.Row(int(rel))
	out := make([]float64, hi-lo)
	for i := lo; i < hi; i++ {
		out[i-lo] = Score(u, r, s.entities.Row(i))
	}
	return out
}

// ScoredItem is an entity index with its score.
type ScoredItem struct {
	Index int
	Score float64
}

// TopItems returns the k best dishes for user in descending score order.
// Ties break toward the lower index. Indices in exclude are skipped.
func (s *Snapshot) TopItems(user int, rel graph.Relation, k int, exclude map[int]bool) []ScoredItem {
	lo, _ := s.catalog.ItemRange()
	return TopK(s.ScoreItems(user, rel), lo, k, exclude)
}

// TopK selects the k highest scores. scores[i] belongs to index offset+i.
func TopK(scores []float64, offset, k int, exclude map[int]bool) []ScoredItem {
	if k <= 0 {
		return nil
	}
	h := make(minHeap, 0, k+1)
	for i, sc := range scores {
		idx := offset + i
		if exclude[idx] {
			continue
		}
		item := ScoredItem{Index: idx, Score: sc}
		if len(h) < k {
			heap.Push(&h, item)
			continue
		}
		if better(item, h[0]) {
			h[0] = item
			heap.Fix(&h, 0)
		}
	}
	out := make([]ScoredItem, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(ScoredItem)
	}
	return out
}

func better(a, b ScoredItem) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Index < b.Index
}

// minHeap keeps the worst retained item at the root.
type minHeap []ScoredItem

func (h minHeap) Len() int           { return len(h) }
func (h minHeap) Less(i, j int) bool { return better(h[j], h[i]) }
func (h minHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x any)        { *h = append(*h, x.(ScoredItem)) }
func (h *minHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Holder publishes the current snapshot to concurrent readers.
type Holder struct {
	p atomic.Pointer[Snapshot]
}

// Load returns the current snapshot or nil.
func (h *Holder) Load() *Snapshot { return h.p.Load() }

// Swap publishes s and returns the previous snapshot.
func (h *Holder) Swap(s *Snapshot) *Snapshot { return h.p.Swap(s) }

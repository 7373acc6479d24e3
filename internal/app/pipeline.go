// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/kgrec/internal/config"
	"github.com/tomtom215/kgrec/internal/embedding"
	"github.com/tomtom215/kgrec/internal/graph"
	"github.com/tomtom215/kgrec/internal/train"
)

// Export file names written by ExportGraph.
const (
	TriplesFile = "triples.csv"
	CatalogFile = "catalog.json"
)

// LoadCatalog reads every entity from the graph and orders it into the
// catalog layout.
func LoadCatalog(ctx context.Context, store graph.Store) (*embedding.Catalog, error) {
	entities, err := store.Entities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	cat, err := embedding.BuildCatalog(entities)
	if err != nil {
		return nil, err
	}
	return cat, nil
}

// LoadPositives reads positive pairs from train.samples_path when set, and
// from the graph's interaction edges otherwise. Rows outside the catalog
// are dropped and logged.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func LoadPositives(ctx context.Context, cfg *config.Config, store graph.Store, cat *embedding.Catalog, logger zerolog.Logger) (train.Positives, error) {
	var (
		pos     train.Positives
		dropped int
		source  string
	)
	if path := cfg.Train.SamplesPath; path != "" {
		samples, err := train.LoadSamplesCSV(path)
		if err != nil {
			return nil, err
		}
		pos, dropped = train.PositivesFromSamples(samples, cat)
		source = path
	} else {
		interactions, err := store.Interactions(ctx)
		if err != nil {
			return nil, fmt.Errorf("list interactions: %w", err)
		}
		pos, dropped = train.PositivesFromInteractions(interactions, cat)
		source = "graph"
	}

	ev := logger.Info()
	if dropped > 0 {
		ev = logger.Warn()
	}
	ev.Str("source", source).
		Int("positives", pos.Len()).
		Int("users", len(pos.Users())).
		Int("dropped", dropped).
		Msg("Positives loaded")
	return pos, nil
}

// ExportGraph writes the graph as id triples and the catalog that names the
// ids, the format the trainer consumes offline. It returns the number of
// triples written. Edges touching entities outside the catalog are skipped.
func ExportGraph(ctx context.Context, store graph.Store, cat *embedding.Catalog, dir string) (int, error) {
	triples, err := store.Triples(ctx)
	if err != nil {
		return 0, fmt.Errorf("list triples: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, fmt.Errorf("create export directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, TriplesFile)) //nolint:gosec // path comes from operator flags
	if err != nil {
		return 0, fmt.Errorf("create triples file: %w", err)
	}
	n, werr := WriteTriplesCSV(f, triples, cat)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return 0, werr
	}

	data, err := json.MarshalIndent(cat.Entities(), "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal catalog: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, CatalogFile), data, 0o600); err != nil {
		return 0, fmt.Errorf("write catalog: %w", err)
	}
	return n, nil
}

// WriteTriplesCSV writes head_id,tail_id,rel rows, rel being the relation
// id. It returns the number of rows written.
func WriteTriplesCSV(w io.Writer, triples []graph.Triple, cat *embedding.Catalog) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"head_id", "tail_id", "rel"}); err != nil {
		return 0, err
	}
	n := 0
	for _, t := range triples {
		h, ok := cat.Index(t.Head.Kind, t.Head.Name)
		if !ok {
			continue
		}
		tl, ok := cat.Index(t.Tail.Kind, t.Tail.Name)
		if !ok {
			continue
		}
		if err := cw.Write([]string{strconv.Itoa(h), strconv.Itoa(tl), strconv.Itoa(int(t.Relation))}); err != nil {
			return n, err
		}
		n++
	}
	cw.Flush()
	return n, cw.Error()
}

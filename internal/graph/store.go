// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package graph

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the graph store cannot be reached within
// the configured attempts or the circuit breaker is open.
var ErrUnavailable = errors.New("graph store unavailable")

// Store is the read-only view of the knowledge graph.
type Store interface {
	// UserHistory returns the user's rated interactions, most recent first.
	UserHistory(ctx context.Context, userID int) ([]HistoryEntry, error)

	// MatchPaths returns at most q.Limit simple paths matching q.
	MatchPaths(ctx context.Context, q PathQuery) ([]Path, error)

	// ItemAttributes fetches display attributes for the named dishes in one
	// round trip. Unknown names are absent from the result.
	ItemAttributes(ctx context.Context, names []string) (map[string]ItemAttributes, error)

	// Entities lists every User, Dish, Tag and Ingredient node.
	Entities(ctx context.Context) ([]Entity, error)

	// Interactions lists every INTERACTED edge.
	Interactions(ctx context.Context) ([]Interaction, error)

	// Triples lists every edge of the three known relation types.
	Triples(ctx context.Context) ([]Triple, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	Close(ctx context.Context) error
}

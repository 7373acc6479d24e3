// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

/*
Package testinfra starts real backing services for integration tests.

The helpers wrap testcontainers-go so the graph and cache packages can be
tested against the same Neo4j and Redis servers they talk to in production.
Everything here is behind the integration build tag:

	go test -tags integration ./internal/graph/... ./internal/cache/...

# Containers

  - NewNeo4jContainer: Neo4j community with Bolt exposed; Seed and
    DishGraphSeed load a small dish graph
  - NewRedisContainer: Redis for the shared response cache

# Usage

	func TestNeo4jStore(t *testing.T) {
	    testinfra.SkipIfNoDocker(t)
	    ctx := context.Background()

	    neo, err := testinfra.NewNeo4jContainer(ctx)
	    if err != nil {
	        t.Fatal(err)
	    }
	    testinfra.CleanupContainer(t, neo)

	    if err := neo.Seed(ctx, testinfra.DishGraphSeed...); err != nil {
	        t.Fatal(err)
	    }
	    // graph.NewNeo4jStore(ctx, graph.Neo4jConfig{URI: neo.URI, ...})
	}

Tests skip when Docker is unavailable. The first run pulls images.
*/
package testinfra

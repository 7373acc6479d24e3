// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

/*
Package main is the KGRec recommendation server.

It serves explainable dish recommendations from the newest embedding
checkpoint and the knowledge graph behind it.

# Supervision

	RootSupervisor ("kgrec")
	├── ModelSupervisor ("model-layer")
	│   └── snapshot-reload (publishes new checkpoints, flushes the cache)
	└── APISupervisor ("api-layer")
	    └── http-server (chi router, /api/v1 and /metrics)

Initialization order:

 1. Configuration: Koanf v2 defaults, config.yaml, KGREC_* variables
 2. Logging: zerolog, JSON or console
 3. Graph store: Neo4j or a JSON fixture, behind retries and a breaker
 4. Response cache: memory, Redis or Badger
 5. Experiment: group map and the DuckDB feedback log
 6. Engine: scoring, enrichment, explanations
 7. Supervisor tree and HTTP server

The server starts before a model exists. /api/v1/health/ready reports 503
until the first checkpoint is loaded; train one with `kgrec train`.

# Signals

SIGINT and SIGTERM cancel the root context. The HTTP server drains in-flight
requests for server.shutdown_timeout, then stores are closed.

# Example

	export KGREC_NEO4J_URI=bolt://neo4j:7687
	export KGREC_NEO4J_PASSWORD=secret
	export KGREC_CACHE_BACKEND=redis
	export KGREC_REDIS_ADDR=redis:6379
	export KGREC_MODEL_DIR=/data/models
	./kgrec-server
*/
package main

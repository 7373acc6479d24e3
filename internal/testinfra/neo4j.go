// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultNeo4jImage is the Neo4j community image used by integration tests.
	DefaultNeo4jImage = "neo4j:5.26-community"

	// DefaultNeo4jPassword is set through NEO4J_AUTH at container start.
	DefaultNeo4jPassword = "kgrec-test-password"

	neo4jBoltPort = "7687/tcp"
)

// Neo4jContainer is a running Neo4j instance.
type Neo4jContainer struct {
	testcontainers.Container
	URI      string
	Username string
	Password string
}

// Neo4jOption configures the Neo4j container.
type Neo4jOption func(*neo4jConfig)

type neo4jConfig struct {
	image        string
	password     string
	startTimeout time.Duration
}

// WithNeo4jStartTimeout sets how long to wait for Bolt to come up.
func WithNeo4jStartTimeout(timeout time.Duration) Neo4jOption {
	return func(c *neo4jConfig) { c.startTimeout = timeout }
}

// NewNeo4jContainer starts Neo4j and waits until Bolt accepts connections.
//
// Example:
//
//	neo, err := testinfra.NewNeo4jContainer(ctx)
//	if err != nil {
//	    t.Fatal(err)
//	}
//	testinfra.CleanupContainer(t, neo)
//	store, err := graph.NewNeo4jStore(ctx, graph.Neo4jConfig{
//	    URI: neo.URI, Username: neo.Username, Password: neo.Password,
//	})
func NewNeo4jContainer(ctx context.Context, opts ...Neo4jOption) (*Neo4jContainer, error) {
	cfg := &neo4jConfig{
		image:        DefaultNeo4jImage,
		password:     DefaultNeo4jPassword,
		startTimeout: 120 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{neo4jBoltPort},
		Env: map[string]string{
			"NEO4J_AUTH": "neo4j/" + cfg.password,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("Started."),
			wait.ForListeningPort(neo4jBoltPort),
		).WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start neo4j container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("neo4j host: %w", err)
	}
	port, err := container.MappedPort(ctx, neo4jBoltPort)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("neo4j port: %w", err)
	}
	endpoint := host + ":" + port.Port()

	return &Neo4jContainer{
		Container: container,
		URI:       "bolt://" + endpoint,
		Username:  "neo4j",
		Password:  cfg.password,
	}, nil
}

// SeedStatement is one Cypher write with its parameters.
type SeedStatement struct {
	Query  string
	Params map[string]any
}

// Seed runs statements in order against the container's default database.
func (c *Neo4jContainer) Seed(ctx context.Context, statements ...SeedStatement) error {
	driver, err := neo4j.NewDriverWithContext(c.URI, neo4j.BasicAuth(c.Username, c.Password, ""))
	if err != nil {
		return fmt.Errorf("seed driver: %w", err)
	}
	defer driver.Close(ctx)

	for i, st := range statements {
		if _, err := neo4j.ExecuteQuery(ctx, driver, st.Query, st.Params, neo4j.EagerResultTransformer); err != nil {
			return fmt.Errorf("seed statement %d: %w", i, err)
		}
	}
	return nil
}

// DishGraphSeed creates a small dish graph: two users, three dishes, their
// tags and ingredients.
var DishGraphSeed = []SeedStatement{
	{Query: `
CREATE (u0:User {user_id: 0}), (u1:User {user_id: 1})
CREATE (mapo:Dish {name: "mapo tofu", price: 28.0, file: "mapo.jpg"}),
       (kp:Dish {name: "kung pao chicken", price: 32.0, file: "kp.jpg"}),
       (fish:Dish {name: "steamed fish", price: 58.0, file: "fish.jpg"})
CREATE (spicy:Tag {name: "spicy"}), (light:Tag {name: "light"})
CREATE (tofu:Ingredient {name: "tofu"}), (chicken:Ingredient {name: "chicken"}),
       (peanut:Ingredient {name: "peanut"}), (fishI:Ingredient {name: "fish"})
CREATE (mapo)-[:HAS_TAG]->(spicy), (kp)-[:HAS_TAG]->(spicy), (fish)-[:HAS_TAG]->(light)
CREATE (mapo)-[:CONTAINS]->(tofu), (kp)-[:CONTAINS]->(chicken), (kp)-[:CONTAINS]->(peanut),
       (fish)-[:CONTAINS]->(fishI)
CREATE (u0)-[:INTERACTED {rating: 5, timestamp: "2024-03-01 12:00:00"}]->(mapo)
CREATE (u1)-[:INTERACTED {rating: 4, timestamp: "2024-03-01 12:00:00"}]->(mapo)
CREATE (u1)-[:INTERACTED {rating: 5, timestamp: "2024-03-01 13:00:00"}]->(kp)`},
}

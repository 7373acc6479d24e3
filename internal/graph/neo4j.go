// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package graph

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jConfig holds connection settings for Neo4jStore.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jStore implements Store against a Neo4j database.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore connects and verifies connectivity.
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return &Neo4jStore{driver: driver, database: cfg.Database}, nil
}

func (s *Neo4jStore) read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

const userHistoryQuery = `
MATCH (u:User {user_id: $user_id})-[r:INTERACTED]->(d:Dish)
RETURN d.name AS dish_name, r.rating AS rating, r.timestamp AS ts
ORDER BY r.timestamp DESC`

// UserHistory returns the user's rated dishes, most recent first.
func (s *Neo4jStore) UserHistory(ctx context.Context, userID int) ([]HistoryEntry, error) {
	records, err := s.read(ctx, userHistoryQuery, map[string]any{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("user history: %w", err)
	}
	out := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		name := stringValue(rec, "dish_name")
		if name == "" {
			continue
		}
		out = append(out, HistoryEntry{
			Item:      name,
			Rating:    floatValue(rec, "rating"),
			Timestamp: timeValue(rec, "ts"),
		})
	}
	return out, nil
}

// buildPathQuery renders a PathQuery as a Cypher MATCH. Node variables are
// n0..nk for dishes and a1..ak for attributes.
func buildPathQuery(q PathQuery) string {
	var b strings.Builder
	b.WriteString("MATCH (n0:Dish {name: $start})")
	pairs := len(q.Relations) / 2
	for i := 0; i < pairs; i++ {
		out, back := q.Relations[2*i], q.Relations[2*i+1]
		kind, _ := attributeKind(out)
		next := fmt.Sprintf("n%d:Dish", i+1)
		if i == pairs-1 {
			next += " {name: $end}"
		}
		fmt.Fprintf(&b, "-[:%s]->(a%d:%s)<-[:%s]-(%s)", out, i+1, kind, back, next)
	}

	var conds []string
	for i := 0; i <= pairs; i++ {
		for j := i + 1; j <= pairs; j++ {
			conds = append(conds, fmt.Sprintf("n%d <> n%d", i, j))
		}
	}
	for i := 1; i <= pairs; i++ {
		for j := i + 1; j <= pairs; j++ {
			conds = append(conds, fmt.Sprintf("a%d <> a%d", i, j))
		}
	}
	b.WriteString("\nWHERE ")
	b.WriteString(strings.Join(conds, " AND "))

	b.WriteString("\nRETURN [")
	for i := 0; i <= pairs; i++ {
		if i > 0 {
			fmt.Fprintf(&b, ", a%d.name, ", i)
		}
		fmt.Fprintf(&b, "n%d.name", i)
	}
	b.WriteString("] AS entities\nLIMIT $limit")
	return b.String()
}

// MatchPaths runs one pattern query.
func (s *Neo4jStore) MatchPaths(ctx context.Context, q PathQuery) ([]Path, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	records, err := s.read(ctx, buildPathQuery(q), map[string]any{
		"start": q.Start,
		"end":   q.End,
		"limit": q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("match paths: %w", err)
	}

	out := make([]Path, 0, len(records))
	for _, rec := range records {
		entities := stringsValue(rec, "entities")
		if len(entities) != len(q.Relations)+1 {
			continue
		}
		p := Path{Start: entities[0], Hops: make([]Hop, len(q.Relations))}
		for i, rel := range q.Relations {
			p.Hops[i] = Hop{Relation: rel, Entity: entities[i+1]}
		}
		out = append(out, p)
	}
	return out, nil
}

const itemAttributesQuery = `
MATCH (d:Dish)
WHERE d.name IN $names
OPTIONAL MATCH (d)-[:HAS_TAG]->(t:Tag)
OPTIONAL MATCH (d)-[:CONTAINS]->(i:Ingredient)
RETURN d.name AS name, d.price AS price, d.file AS photo,
       collect(DISTINCT t.name) AS tags, collect(DISTINCT i.name) AS ingredients`

// ItemAttributes fetches name, price, photo, tags and ingredients.
func (s *Neo4jStore) ItemAttributes(ctx context.Context, names []string) (map[string]ItemAttributes, error) {
	out := make(map[string]ItemAttributes, len(names))
	if len(names) == 0 {
		return out, nil
	}
	records, err := s.read(ctx, itemAttributesQuery, map[string]any{"names": names})
	if err != nil {
		return nil, fmt.Errorf("item attributes: %w", err)
	}
	for _, rec := range records {
		name := stringValue(rec, "name")
		if name == "" {
			continue
		}
		out[name] = ItemAttributes{
			Name:        name,
			Price:       floatValue(rec, "price"),
			Photo:       stringValue(rec, "photo"),
			Tags:        stringsValue(rec, "tags"),
			Ingredients: stringsValue(rec, "ingredients"),
		}
	}
	return out, nil
}

const entitiesQuery = `
MATCH (n)
WHERE n:User OR n:Dish OR n:Tag OR n:Ingredient
RETURN labels(n) AS labels, n.name AS name, n.user_id AS user_id
ORDER BY n.user_id, n.name`

// Entities lists User, Dish, Tag and Ingredient nodes.
func (s *Neo4jStore) Entities(ctx context.Context) ([]Entity, error) {
	records, err := s.read(ctx, entitiesQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("entities: %w", err)
	}
	out := make([]Entity, 0, len(records))
	for _, rec := range records {
		kind := kindFromLabels(stringsValue(rec, "labels"))
		if kind == "" {
			continue
		}
		name := stringValue(rec, "name")
		if kind == KindUser {
			id, ok := intValue(rec, "user_id")
			if !ok {
				continue
			}
			name = strconv.Itoa(id)
		}
		if name == "" {
			continue
		}
		out = append(out, Entity{Kind: kind, Name: name})
	}
	return out, nil
}

const interactionsQuery = `
MATCH (u:User)-[r:INTERACTED]->(d:Dish)
RETURN u.user_id AS user_id, d.name AS dish_name, r.rating AS rating, r.timestamp AS ts
ORDER BY u.user_id`

// Interactions lists every INTERACTED edge.
func (s *Neo4jStore) Interactions(ctx context.Context) ([]Interaction, error) {
	records, err := s.read(ctx, interactionsQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("interactions: %w", err)
	}
	out := make([]Interaction, 0, len(records))
	for _, rec := range records {
		id, ok := intValue(rec, "user_id")
		name := stringValue(rec, "dish_name")
		if !ok || name == "" {
			continue
		}
		out = append(out, Interaction{
			UserID:    id,
			Item:      name,
			Rating:    floatValue(rec, "rating"),
			Timestamp: timeValue(rec, "ts"),
		})
	}
	return out, nil
}

const triplesQuery = `
MATCH (h)-[r:INTERACTED|HAS_TAG|CONTAINS]->(t)
RETURN labels(h) AS head_labels, coalesce(h.name, toString(h.user_id)) AS head,
       type(r) AS rel,
       labels(t) AS tail_labels, coalesce(t.name, toString(t.user_id)) AS tail`

// Triples lists every edge of a known relation type.
func (s *Neo4jStore) Triples(ctx context.Context) ([]Triple, error) {
	records, err := s.read(ctx, triplesQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("triples: %w", err)
	}
	out := make([]Triple, 0, len(records))
	for _, rec := range records {
		rel, err := ParseRelation(stringValue(rec, "rel"))
		if err != nil {
			continue
		}
		head := Entity{Kind: kindFromLabels(stringsValue(rec, "head_labels")), Name: stringValue(rec, "head")}
		tail := Entity{Kind: kindFromLabels(stringsValue(rec, "tail_labels")), Name: stringValue(rec, "tail")}
		if head.Kind == "" || tail.Kind == "" || head.Name == "" || tail.Name == "" {
			continue
		}
		out = append(out, Triple{Head: head, Relation: rel, Tail: tail})
	}
	return out, nil
}

// Ping verifies connectivity.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

// Close releases the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func kindFromLabels(labels []string) Kind {
	for _, l := range labels {
		switch Kind(l) {
		case KindUser, KindDish, KindTag, KindIngredient:
			return Kind(l)
		}
	}
	return ""
}

func stringValue(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func stringsValue(rec *neo4j.Record, key string) []string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func floatValue(rec *neo4j.Record, key string) float64 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	}
	return 0
}

func intValue(rec *neo4j.Record, key string) (int, bool) {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	}
	return 0, false
}

// timeValue accepts native temporal values, RFC 3339 strings and unix seconds.
func timeValue(rec *neo4j.Record, key string) time.Time {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return time.Time{}
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case neo4j.LocalDateTime:
		return t.Time()
	case neo4j.Date:
		return t.Time()
	case int64:
		return time.Unix(t, 0).UTC()
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed
		}
		if parsed, err := time.Parse("2006-01-02 15:04:05", t); err == nil {
			return parsed
		}
	}
	return time.Time{}
}

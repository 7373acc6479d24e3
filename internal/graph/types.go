// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

// Package graph is the adapter layer for the dish knowledge graph.
//
// The graph holds four node kinds (User, Dish, Tag, Ingredient) and three
// relation types. Users point at dishes through INTERACTED, dishes point at
// tags through HAS_TAG and at ingredients through CONTAINS. Callers depend
// on the Store interface only; the Cypher lives in Neo4jStore.
package graph

import (
	"fmt"
	"strings"
	"time"
)

// Relation is a relation type. Values are persisted with embedding
// checkpoints and must never be renumbered.
type Relation int

const (
	Interacted Relation = iota
	HasTag
	Contains
)

// Relations lists every relation type in id order.
var Relations = []Relation{Interacted, HasTag, Contains}

// String returns the relationship type name used in the graph.
func (r Relation) String() string {
	switch r {
	case Interacted:
		return "INTERACTED"
	case HasTag:
		return "HAS_TAG"
	case Contains:
		return "CONTAINS"
	default:
		return fmt.Sprintf("Relation(%d)", int(r))
	}
}

// ParseRelation maps a relationship type name to a Relation.
func ParseRelation(s string) (Relation, error) {
	switch strings.ToUpper(s) {
	case "INTERACTED":
		return Interacted, nil
	case "HAS_TAG":
		return HasTag, nil
	case "CONTAINS":
		return Contains, nil
	}
	return 0, fmt.Errorf("unknown relation type %q", s)
}

// Kind is a node label.
type Kind string

const (
	KindUser       Kind = "User"
	KindDish       Kind = "Dish"
	KindTag        Kind = "Tag"
	KindIngredient Kind = "Ingredient"
)

// attributeKind is the node kind a dish reaches through rel.
func attributeKind(rel Relation) (Kind, bool) {
	switch rel {
	case HasTag:
		return KindTag, true
	case Contains:
		return KindIngredient, true
	}
	return "", false
}

// Entity identifies a node. Users are named by their decimal user_id.
type Entity struct {
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
}

// Triple is one directed edge of the graph.
type Triple struct {
	Head     Entity   `json:"head"`
	Relation Relation `json:"relation"`
	Tail     Entity   `json:"tail"`
}

// Hop is one step of a path: the relation traversed and the entity reached.
type Hop struct {
	Relation Relation `json:"relation"`
	Entity   string   `json:"entity"`
}

// Path connects Start to the entity of its last hop. A 2-hop path has two
// hops (dish, attribute, dish); a 3-hop path has four.
type Path struct {
	Start string `json:"start"`
	Hops  []Hop  `json:"hops"`
}

// Pattern is the relation sequence joined with "->". It ignores entities.
func (p Path) Pattern() string {
	names := make([]string, len(p.Hops))
	for i, h := range p.Hops {
		names[i] = h.Relation.String()
	}
	return strings.Join(names, "->")
}

// End returns the final entity, or "" for an empty path.
func (p Path) End() string {
	if len(p.Hops) == 0 {
		return ""
	}
	return p.Hops[len(p.Hops)-1].Entity
}

// Entities returns Start followed by every hop entity.
func (p Path) Entities() []string {
	out := make([]string, 0, len(p.Hops)+1)
	out = append(out, p.Start)
	for _, h := range p.Hops {
		out = append(out, h.Entity)
	}
	return out
}

// RelationNames returns the relation of every hop as a string.
func (p Path) RelationNames() []string {
	out := make([]string, len(p.Hops))
	for i, h := range p.Hops {
		out[i] = h.Relation.String()
	}
	return out
}

// PathQuery asks for simple paths from Start to End whose hops follow
// Relations exactly. Relations comes in pairs: each pair leaves a dish to a
// shared attribute and comes back to the next dish.
type PathQuery struct {
	Start     string
	End       string
	Relations []Relation
	Limit     int
}

// Validate checks the query shape.
func (q PathQuery) Validate() error {
	if q.Start == "" || q.End == "" {
		return fmt.Errorf("path query: start and end are required")
	}
	if q.Start == q.End {
		return fmt.Errorf("path query: start and end must differ")
	}
	if n := len(q.Relations); n != 2 && n != 4 {
		return fmt.Errorf("path query: expected 2 or 4 relations, got %d", n)
	}
	for _, r := range q.Relations {
		if _, ok := attributeKind(r); !ok {
			return fmt.Errorf("path query: relation %s does not link dishes to attributes", r)
		}
	}
	if q.Limit <= 0 {
		return fmt.Errorf("path query: limit must be positive, got %d", q.Limit)
	}
	return nil
}

// HistoryEntry is one rated interaction of a user.
type HistoryEntry struct {
	Item      string    `json:"item"`
	Rating    float64   `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// Interaction is a user-dish edge as exported for training.
type Interaction struct {
	UserID    int       `json:"user_id"`
	Item      string    `json:"item"`
	Rating    float64   `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// ItemAttributes are the display attributes of a dish.
type ItemAttributes struct {
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Photo       string   `json:"photo"`
	Tags        []string `json:"tags"`
	Ingredients []string `json:"ingredients"`
}

// Complete reports whether the attributes are usable in a response.
func (a ItemAttributes) Complete() bool {
	return a.Name != "" && a.Price > 0
}

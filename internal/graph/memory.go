// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package graph

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// MemoryStore is an in-process Store. It backs tests and the "memory"
// graph driver, which loads a JSON fixture instead of connecting to Neo4j.
type MemoryStore struct {
	mu        sync.RWMutex
	dishes    map[string]*dishNode
	dishOrder []string
	history   map[int][]HistoryEntry
	attrOrder map[Kind][]string
	// reverse[rel][attribute] lists the dishes pointing at attribute via rel.
	reverse map[Relation]map[string][]string
}

type dishNode struct {
	attrs ItemAttributes
	links map[Relation][]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		dishes:    make(map[string]*dishNode),
		history:   make(map[int][]HistoryEntry),
		attrOrder: make(map[Kind][]string),
		reverse: map[Relation]map[string][]string{
			HasTag:   {},
			Contains: {},
		},
	}
}

// AddDish inserts or replaces a dish together with its tag and ingredient edges.
func (m *MemoryStore) AddDish(attrs ItemAttributes) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.dishes[attrs.Name]; ok {
		for rel, targets := range old.links {
			for _, t := range targets {
				m.reverse[rel][t] = removeString(m.reverse[rel][t], attrs.Name)
			}
		}
	} else {
		m.dishOrder = append(m.dishOrder, attrs.Name)
	}

	node := &dishNode{
		attrs: ItemAttributes{
			Name:        attrs.Name,
			Price:       attrs.Price,
			Photo:       attrs.Photo,
			Tags:        uniqueStrings(attrs.Tags),
			Ingredients: uniqueStrings(attrs.Ingredients),
		},
		links: make(map[Relation][]string, 2),
	}
	node.links[HasTag] = node.attrs.Tags
	node.links[Contains] = node.attrs.Ingredients

	for rel, targets := range node.links {
		kind, _ := attributeKind(rel)
		for _, t := range targets {
			if _, seen := m.reverse[rel][t]; !seen {
				m.attrOrder[kind] = append(m.attrOrder[kind], t)
			}
			m.reverse[rel][t] = append(m.reverse[rel][t], attrs.Name)
		}
	}
	m.dishes[attrs.Name] = node
}

// AddUser registers a user with no interactions.
func (m *MemoryStore) AddUser(userID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.history[userID]; !ok {
		m.history[userID] = nil
	}
}

// AddInteraction records a rated INTERACTED edge.
func (m *MemoryStore) AddInteraction(userID int, dish string, rating float64, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[userID] = append(m.history[userID], HistoryEntry{Item: dish, Rating: rating, Timestamp: ts})
}

// UserHistory returns the user's interactions, most recent first.
func (m *MemoryStore) UserHistory(ctx context.Context, userID int) ([]HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := append([]HistoryEntry(nil), m.history[userID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// MatchPaths enumerates simple paths in insertion order.
func (m *MemoryStore) MatchPaths(ctx context.Context, q PathQuery) ([]Path, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.dishes[q.Start]; !ok {
		return nil, nil
	}
	if _, ok := m.dishes[q.End]; !ok {
		return nil, nil
	}

	w := &pathWalker{
		store:   m,
		query:   q,
		visited: map[string]bool{entityKey(KindDish, q.Start): true},
		hops:    make([]Hop, 0, len(q.Relations)),
	}
	w.walk(q.Start, 0)
	return w.out, nil
}

type pathWalker struct {
	store   *MemoryStore
	query   PathQuery
	visited map[string]bool
	hops    []Hop
	out     []Path
}

// walk extends the current path from dish using relation pair step.
// It returns false once the limit is reached.
func (w *pathWalker) walk(dish string, step int) bool {
	out, back := w.query.Relations[step], w.query.Relations[step+1]
	outKind, _ := attributeKind(out)
	backKind, _ := attributeKind(back)
	if outKind != backKind {
		return true
	}
	last := step+2 == len(w.query.Relations)

	for _, attr := range w.store.dishes[dish].links[out] {
		akey := entityKey(outKind, attr)
		if w.visited[akey] {
			continue
		}
		w.visited[akey] = true

		for _, next := range w.store.reverse[back][attr] {
			if last != (next == w.query.End) {
				continue
			}
			nkey := entityKey(KindDish, next)
			if w.visited[nkey] {
				continue
			}
			w.hops = append(w.hops, Hop{Relation: out, Entity: attr}, Hop{Relation: back, Entity: next})
			if last {
				w.out = append(w.out, Path{Start: w.query.Start, Hops: append([]Hop(nil), w.hops...)})
				if len(w.out) >= w.query.Limit {
					return false
				}
			} else {
				w.visited[nkey] = true
				more := w.walk(next, step+2)
				delete(w.visited, nkey)
				if !more {
					return false
				}
			}
			w.hops = w.hops[:len(w.hops)-2]
		}

		delete(w.visited, akey)
	}
	return true
}

// ItemAttributes returns copies of the stored attributes.
func (m *MemoryStore) ItemAttributes(ctx context.Context, names []string) (map[string]ItemAttributes, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]ItemAttributes, len(names))
	for _, name := range names {
		node, ok := m.dishes[name]
		if !ok {
			continue
		}
		a := node.attrs
		a.Tags = append([]string(nil), a.Tags...)
		a.Ingredients = append([]string(nil), a.Ingredients...)
		out[name] = a
	}
	return out, nil
}

// Entities lists users by id, then dishes, tags and ingredients in insertion order.
func (m *MemoryStore) Entities(ctx context.Context) ([]Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entity
	for _, id := range m.userIDs() {
		out = append(out, Entity{Kind: KindUser, Name: fmt.Sprint(id)})
	}
	for _, d := range m.dishOrder {
		out = append(out, Entity{Kind: KindDish, Name: d})
	}
	for _, kind := range []Kind{KindTag, KindIngredient} {
		for _, a := range m.attrOrder[kind] {
			out = append(out, Entity{Kind: kind, Name: a})
		}
	}
	return out, nil
}

// Interactions lists every interaction ordered by user id.
func (m *MemoryStore) Interactions(ctx context.Context) ([]Interaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Interaction
	for _, id := range m.userIDs() {
		for _, h := range m.history[id] {
			out = append(out, Interaction{UserID: id, Item: h.Item, Rating: h.Rating, Timestamp: h.Timestamp})
		}
	}
	return out, nil
}

// Triples lists INTERACTED, HAS_TAG and CONTAINS edges.
func (m *MemoryStore) Triples(ctx context.Context) ([]Triple, error) {
	inter, err := m.Interactions(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Triple, 0, len(inter))
	for _, i := range inter {
		out = append(out, Triple{
			Head:     Entity{Kind: KindUser, Name: fmt.Sprint(i.UserID)},
			Relation: Interacted,
			Tail:     Entity{Kind: KindDish, Name: i.Item},
		})
	}
	for _, d := range m.dishOrder {
		node := m.dishes[d]
		for _, rel := range []Relation{HasTag, Contains} {
			kind, _ := attributeKind(rel)
			for _, t := range node.links[rel] {
				out = append(out, Triple{
					Head:     Entity{Kind: KindDish, Name: d},
					Relation: rel,
					Tail:     Entity{Kind: kind, Name: t},
				})
			}
		}
	}
	return out, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (m *MemoryStore) Close(context.Context) error { return nil }

func (m *MemoryStore) userIDs() []int {
	ids := make([]int, 0, len(m.history))
	for id := range m.history {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Fixture is the JSON document accepted by LoadFixture.
type Fixture struct {
	Users  []FixtureUser    `json:"users"`
	Dishes []ItemAttributes `json:"dishes"`
}

// FixtureUser lists one user's interactions.
type FixtureUser struct {
	UserID       int                  `json:"user_id"`
	Interactions []FixtureInteraction `json:"interactions"`
}

// FixtureInteraction is one rated dish.
type FixtureInteraction struct {
	Dish      string    `json:"dish"`
	Rating    float64   `json:"rating"`
	Timestamp time.Time `json:"timestamp"`
}

// LoadFixture builds a MemoryStore from a JSON fixture file.
func LoadFixture(path string) (*MemoryStore, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read graph fixture: %w", err)
	}
	var fx Fixture
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse graph fixture: %w", err)
	}
	return FromFixture(&fx), nil
}

// FromFixture builds a MemoryStore from a decoded fixture.
func FromFixture(fx *Fixture) *MemoryStore {
	m := NewMemoryStore()
	for _, d := range fx.Dishes {
		m.AddDish(d)
	}
	for _, u := range fx.Users {
		m.AddUser(u.UserID)
		for _, it := range u.Interactions {
			m.AddInteraction(u.UserID, it.Dish, it.Rating, it.Timestamp)
		}
	}
	return m
}

func entityKey(kind Kind, name string) string {
	return string(kind) + ":" + name
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func removeString(in []string, s string) []string {
	out := in[:0]
	for _, v := range in {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

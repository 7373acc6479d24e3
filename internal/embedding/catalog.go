// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package embedding

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/tomtom215/kgrec/internal/graph"
)

// ErrCatalogMismatch means a checkpoint does not fit the entity table it is
// being paired with.
var ErrCatalogMismatch = errors.New("embedding catalog mismatch")

// Catalog is the bidirectional table between embedding row indices and
// graph entities. Layout: users [0, NumUsers) with index == user_id, then
// dishes, then tags, then ingredients.
type Catalog struct {
	entities  []graph.Entity
	index     map[graph.Entity]int
	numUsers  int
	numDishes int
}

var kindOrder = map[graph.Kind]int{
	graph.KindUser:       0,
	graph.KindDish:       1,
	graph.KindTag:        2,
	graph.KindIngredient: 3,
}

// BuildCatalog orders raw graph entities into the catalog layout. Within a
// kind the input order is preserved; users are sorted by id. User ids must
// be exactly 0..n-1.
func BuildCatalog(entities []graph.Entity) (*Catalog, error) {
	seen := make(map[graph.Entity]bool, len(entities))
	ordered := make([]graph.Entity, 0, len(entities))
	for _, e := range entities {
		if _, ok := kindOrder[e.Kind]; !ok {
			return nil, fmt.Errorf("build catalog: unknown entity kind %q", e.Kind)
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		ordered = append(ordered, e)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		ki, kj := kindOrder[ordered[i].Kind], kindOrder[ordered[j].Kind]
		if ki != kj {
			return ki < kj
		}
		if ordered[i].Kind == graph.KindUser {
			a, _ := strconv.Atoi(ordered[i].Name)
			b, _ := strconv.Atoi(ordered[j].Name)
			return a < b
		}
		return false
	})
	return NewCatalog(ordered)
}

// NewCatalog wraps entities that are already in catalog layout.
func NewCatalog(entities []graph.Entity) (*Catalog, error) {
	c := &Catalog{
		entities: append([]graph.Entity(nil), entities...),
		index:    make(map[graph.Entity]int, len(entities)),
	}
	prev := -1
	for i, e := range c.entities {
		rank, ok := kindOrder[e.Kind]
		if !ok {
			return nil, fmt.Errorf("catalog: unknown entity kind %q at %d", e.Kind, i)
		}
		if rank < prev {
			return nil, fmt.Errorf("catalog: %s %q at %d is out of kind order", e.Kind, e.Name, i)
		}
		prev = rank
		if _, dup := c.index[e]; dup {
			return nil, fmt.Errorf("catalog: duplicate %s %q", e.Kind, e.Name)
		}
		c.index[e] = i

		switch e.Kind {
		case graph.KindUser:
			id, err := strconv.Atoi(e.Name)
			if err != nil || id != i {
				return nil, fmt.Errorf("catalog: user at index %d has id %q; user ids must be contiguous from 0", i, e.Name)
			}
			c.numUsers++
		case graph.KindDish:
			c.numDishes++
		}
	}
	return c, nil
}

// Len is the number of entities.
func (c *Catalog) Len() int { return len(c.entities) }

// NumUsers is the user/item partition boundary.
func (c *Catalog) NumUsers() int { return c.numUsers }

// NumItems is the number of dishes.
func (c *Catalog) NumItems() int { return c.numDishes }

// ItemRange returns the half-open index range of dishes.
func (c *Catalog) ItemRange() (lo, hi int) {
	return c.numUsers, c.numUsers + c.numDishes
}

// IsItem reports whether idx is a dish index.
func (c *Catalog) IsItem(idx int) bool {
	lo, hi := c.ItemRange()
	return idx >= lo && idx < hi
}

// Entity returns the entity at idx.
func (c *Catalog) Entity(idx int) (graph.Entity, bool) {
	if idx < 0 || idx >= len(c.entities) {
		return graph.Entity{}, false
	}
	return c.entities[idx], true
}

// Name returns the entity name at idx, or "" when out of range.
func (c *Catalog) Name(idx int) string {
	e, _ := c.Entity(idx)
	return e.Name
}

// Index looks up an entity.
func (c *Catalog) Index(kind graph.Kind, name string) (int, bool) {
	i, ok := c.index[graph.Entity{Kind: kind, Name: name}]
	return i, ok
}

// ItemIndex looks up a dish by name.
func (c *Catalog) ItemIndex(name string) (int, bool) {
	return c.Index(graph.KindDish, name)
}

// Entities returns a copy of the table in index order.
func (c *Catalog) Entities() []graph.Entity {
	return append([]graph.Entity(nil), c.entities...)
}

// Equal reports whether both catalogs have identical layout.
func (c *Catalog) Equal(other *Catalog) bool {
	if other == nil || len(c.entities) != len(other.entities) {
		return false
	}
	for i := range c.entities {
		if c.entities[i] != other.entities[i] {
			return false
		}
	}
	return true
}

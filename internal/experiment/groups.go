// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

// Package experiment holds the A/B experiment around explanations: the
// user-to-group map read by the recommendation engine, a deterministic
// assignment helper, and the DuckDB feedback log with its per-group
// analysis.
package experiment

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
)

// Group labels.
const (
	GroupA       = "A"
	GroupB       = "B"
	GroupUnknown = "unknown"
)

// GroupMap assigns users to experiment groups. It is never mutated after
// loading.
type GroupMap map[int]string

// Group returns the user's label, or "" when the user is not enrolled.
func (g GroupMap) Group(userID int) string {
	return g[userID]
}

// Counts returns the number of users per label.
func (g GroupMap) Counts() map[string]int {
	out := make(map[string]int, 2)
	for _, label := range g {
		out[label]++
	}
	return out
}

// LoadGroupMap reads a JSON object of the form {"<user_id>": "A"}.
func LoadGroupMap(path string) (GroupMap, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("read group map: %w", err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse group map: %w", err)
	}
	out := make(GroupMap, len(raw))
	for k, v := range raw {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("parse group map: user id %q is not an integer", k)
		}
		out[id] = v
	}
	return out, nil
}

// Save writes the map as indented JSON, creating parent directories.
func (g GroupMap) Save(path string) error {
	raw := make(map[string]string, len(g))
	for id, label := range g {
		raw[strconv.Itoa(id)] = label
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode group map: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create group map directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write group map: %w", err)
	}
	return nil
}

// AssignGroups shuffles userIDs with seed and puts the first half in A and
// the rest in B. The input is sorted first so the result depends only on
// the set of ids and the seed.
func AssignGroups(userIDs []int, seed int64) GroupMap {
	ids := append([]int(nil), userIDs...)
	sort.Ints(ids)
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // assignment only needs to be reproducible
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	mid := len(ids) / 2
	out := make(GroupMap, len(ids))
	for i, id := range ids {
		if i < mid {
			out[id] = GroupA
		} else {
			out[id] = GroupB
		}
	}
	return out
}

// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package train

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/tomtom215/kgrec/internal/embedding"
	"github.com/tomtom215/kgrec/internal/graph"
)

// Sample is one labelled (user, item) row. User and Item are catalog
// indices; Label is 1 for an observed interaction and 0 otherwise.
type Sample struct {
	User  int
	Item  int
	Label int
}

// Triplet is one pairwise training example.
type Triplet struct {
	User int
	Pos  int
	Neg  int
}

// Positives maps a user index to the set of item indices they interacted with.
type Positives map[int]map[int]struct{}

// Add records a positive pair.
func (p Positives) Add(user, item int) {
	set, ok := p[user]
	if !ok {
		set = make(map[int]struct{})
		p[user] = set
	}
	set[item] = struct{}{}
}

// Has reports whether (user, item) is positive.
func (p Positives) Has(user, item int) bool {
	_, ok := p[user][item]
	return ok
}

// Len is the number of positive pairs.
func (p Positives) Len() int {
	n := 0
	for _, set := range p {
		n += len(set)
	}
	return n
}

// Users returns the user indices in ascending order.
func (p Positives) Users() []int {
	users := make([]int, 0, len(p))
	for u := range p {
		users = append(users, u)
	}
	sort.Ints(users)
	return users
}

// Items returns one user's items in ascending order.
func (p Positives) Items(user int) []int {
	items := make([]int, 0, len(p[user]))
	for i := range p[user] {
		items = append(items, i)
	}
	sort.Ints(items)
	return items
}

// PositivesFromSamples keeps the label-1 rows that fall inside the
// catalog's user and item ranges. It returns the number of rows dropped.
func PositivesFromSamples(samples []Sample, cat *embedding.Catalog) (Positives, int) {
	pos := make(Positives)
	dropped := 0
	for _, s := range samples {
		if s.Label != 1 {
			continue
		}
		if s.User < 0 || s.User >= cat.NumUsers() || !cat.IsItem(s.Item) {
			dropped++
			continue
		}
		pos.Add(s.User, s.Item)
	}
	return pos, dropped
}

// PositivesFromInteractions maps graph interactions through the catalog.
// Interactions naming unknown users or dishes are counted and skipped.
func PositivesFromInteractions(interactions []graph.Interaction, cat *embedding.Catalog) (Positives, int) {
	pos := make(Positives)
	dropped := 0
	for _, it := range interactions {
		item, ok := cat.ItemIndex(it.Item)
		if !ok || it.UserID < 0 || it.UserID >= cat.NumUsers() {
			dropped++
			continue
		}
		pos.Add(it.UserID, item)
	}
	return pos, dropped
}

// SplitHoldout moves a fraction of every user's positives into a test set.
// Users with a single positive keep it for training. The split is
// deterministic for a given seed.
func SplitHoldout(pos Positives, fraction float64, seed int64) (trainSet, testSet Positives) {
	trainSet, testSet = make(Positives), make(Positives)
	//nolint:gosec // G404: math/rand is acceptable for data splitting (not security)
	rng := rand.New(rand.NewSource(seed))
	for _, u := range pos.Users() {
		items := pos.Items(u)
		rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })

		n := int(float64(len(items)) * fraction)
		if n == 0 && fraction > 0 && len(items) > 1 {
			n = 1
		}
		if n >= len(items) {
			n = len(items) - 1
		}
		for k, item := range items {
			if k < n {
				testSet.Add(u, item)
			} else {
				trainSet.Add(u, item)
			}
		}
	}
	return trainSet, testSet
}

// MakeSamples draws perUser distinct random dishes for every user as
// synthetic positives. It is used to bootstrap a model before real
// interaction data exists.
func MakeSamples(cat *embedding.Catalog, perUser int, seed int64) []Sample {
	lo, hi := cat.ItemRange()
	n := hi - lo
	if perUser > n {
		perUser = n
	}
	//nolint:gosec // G404: math/rand is acceptable for sample generation (not security)
	rng := rand.New(rand.NewSource(seed))
	out := make([]Sample, 0, cat.NumUsers()*perUser)
	for u := 0; u < cat.NumUsers(); u++ {
		for _, off := range rng.Perm(n)[:perUser] {
			out = append(out, Sample{User: u, Item: lo + off, Label: 1})
		}
	}
	return out
}

var csvHeader = []string{"user", "item", "label"}

// ReadSamplesCSV parses "user,item,label" rows. A header row is optional.
func ReadSamplesCSV(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []Sample
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read samples line %d: %w", line, err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "user") {
			continue
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("samples line %d: expected user,item[,label], got %d fields", line, len(rec))
		}
		s := Sample{Label: 1}
		if s.User, err = parseIndex(rec[0]); err != nil {
			return nil, fmt.Errorf("samples line %d user: %w", line, err)
		}
		if s.Item, err = parseIndex(rec[1]); err != nil {
			return nil, fmt.Errorf("samples line %d item: %w", line, err)
		}
		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			if s.Label, err = strconv.Atoi(strings.TrimSpace(rec[2])); err != nil {
				return nil, fmt.Errorf("samples line %d label: %w", line, err)
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// parseIndex accepts integers and integral floats such as "12.0".
func parseIndex(s string) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return int(f), nil
}

// LoadSamplesCSV reads a samples file.
func LoadSamplesCSV(path string) ([]Sample, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("open samples: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadSamplesCSV(f)
}

// WriteSamplesCSV writes samples with a header row.
func WriteSamplesCSV(w io.Writer, samples []Sample) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, s := range samples {
		if err := cw.Write([]string{strconv.Itoa(s.User), strconv.Itoa(s.Item), strconv.Itoa(s.Label)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

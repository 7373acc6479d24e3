// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package experiment

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"

	"github.com/tomtom215/kgrec/internal/validation"
)

// InMemory opens a feedback store that lives only as long as the process.
const InMemory = ":memory:"

const schema = `
CREATE TABLE IF NOT EXISTS feedback (
	ts      TIMESTAMP NOT NULL,
	user_id INTEGER   NOT NULL,
	grp     VARCHAR   NOT NULL,
	item_id INTEGER   NOT NULL,
	rating  INTEGER   NOT NULL,
	clicked BOOLEAN   NOT NULL,
	comment VARCHAR   NOT NULL DEFAULT ''
)`

// Resolver maps a user to a group label. GroupMap implements it.
type Resolver interface {
	Group(userID int) string
}

// Feedback is one satisfaction rating of a recommended dish.
type Feedback struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    int       `json:"user_id" validate:"gte=0"`
	Group     string    `json:"group"`
	ItemID    int       `json:"dish_id" validate:"gte=0"`
	Rating    int       `json:"rating" validate:"min=1,max=5"`
	Clicked   bool      `json:"clicked"`
	Comment   string    `json:"comment" validate:"max=1000"`
}

// FeedbackStore appends feedback to a DuckDB table and summarizes it.
type FeedbackStore struct {
	db     *sql.DB
	groups Resolver
	now    func() time.Time
	logger zerolog.Logger
}

// OpenFeedbackStore opens (or creates) the feedback database at path.
// InMemory or "" keeps the data in memory.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func OpenFeedbackStore(ctx context.Context, path string, groups Resolver, logger zerolog.Logger) (*FeedbackStore, error) {
	if path == "" {
		path = InMemory
	}
	if path != InMemory {
		if dir := filepath.Dir(path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create feedback directory %s: %w", dir, err)
			}
		}
	}

	connStr := path + "?autoinstall_known_extensions=false&autoload_known_extensions=false"
	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("open feedback database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create feedback table: %w", err)
	}

	return &FeedbackStore{
		db:     db,
		groups: groups,
		now:    time.Now,
		logger: logger.With().Str("component", "feedback").Logger(),
	}, nil
}

// Close closes the database.
func (s *FeedbackStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *FeedbackStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Record validates fb, stamps it with the current time and the user's
// group, and appends it. Users outside the group map are logged as
// GroupUnknown. The stored record is returned.
func (s *FeedbackStore) Record(ctx context.Context, fb Feedback) (Feedback, error) {
	if verr := validation.ValidateStruct(&fb); verr != nil {
		return Feedback{}, verr
	}

	fb.Timestamp = s.now().UTC()
	fb.Group = GroupUnknown
	if s.groups != nil {
		if g := s.groups.Group(fb.UserID); g != "" {
			fb.Group = g
		}
	}
	fb.Comment = strings.TrimSpace(fb.Comment)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback (ts, user_id, grp, item_id, rating, clicked, comment) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fb.Timestamp, fb.UserID, fb.Group, fb.ItemID, fb.Rating, fb.Clicked, fb.Comment)
	if err != nil {
		return Feedback{}, fmt.Errorf("insert feedback: %w", err)
	}

	s.logger.Debug().
		Int("user_id", fb.UserID).
		Str("group", fb.Group).
		Int("item_id", fb.ItemID).
		Int("rating", fb.Rating).
		Msg("Feedback recorded")
	return fb, nil
}

// GroupStats summarizes the ratings of one group.
type GroupStats struct {
	Group     string  `json:"group"`
	Count     int     `json:"count"`
	Mean      float64 `json:"mean"`
	Median    float64 `json:"median"`
	StdDev    float64 `json:"std_dev"`
	ClickRate float64 `json:"click_rate"`
	// Distribution[i] counts ratings of i+1 stars.
	Distribution [5]int   `json:"distribution"`
	Comments     []string `json:"comments,omitempty"`
}

// Comparison contrasts the explained group A with the plain group B.
type Comparison struct {
	MeanA        float64 `json:"mean_a"`
	MeanB        float64 `json:"mean_b"`
	Difference   float64 `json:"difference"`
	RelativeLift float64 `json:"relative_lift"`
}

// Summary is the experiment analysis. Comparison is nil until both groups
// have feedback.
type Summary struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Total       int          `json:"total"`
	Groups      []GroupStats `json:"groups"`
	Comparison  *Comparison  `json:"comparison,omitempty"`
}

const summaryQuery = `
SELECT grp,
       count(*),
       avg(rating)::DOUBLE,
       median(rating)::DOUBLE,
       coalesce(stddev_samp(rating), 0)::DOUBLE,
       avg(CASE WHEN clicked THEN 1 ELSE 0 END)::DOUBLE,
       count(*) FILTER (WHERE rating = 1),
       count(*) FILTER (WHERE rating = 2),
       count(*) FILTER (WHERE rating = 3),
       count(*) FILTER (WHERE rating = 4),
       count(*) FILTER (WHERE rating = 5)
FROM feedback
GROUP BY grp
ORDER BY grp`

// Summary computes per-group statistics. commentLimit caps the comments
// kept per group, newest first; zero keeps none.
func (s *FeedbackStore) Summary(ctx context.Context, commentLimit int) (*Summary, error) {
	rows, err := s.db.QueryContext(ctx, summaryQuery)
	if err != nil {
		return nil, fmt.Errorf("query feedback summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sum := &Summary{GeneratedAt: s.now().UTC(), Groups: []GroupStats{}}
	for rows.Next() {
		var (
			gs    GroupStats
			count int64
			dist  [5]int64
		)
		if err := rows.Scan(&gs.Group, &count, &gs.Mean, &gs.Median, &gs.StdDev, &gs.ClickRate,
			&dist[0], &dist[1], &dist[2], &dist[3], &dist[4]); err != nil {
			return nil, fmt.Errorf("scan feedback summary: %w", err)
		}
		gs.Count = int(count)
		for i, n := range dist {
			gs.Distribution[i] = int(n)
		}
		sum.Total += gs.Count
		sum.Groups = append(sum.Groups, gs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read feedback summary: %w", err)
	}

	if commentLimit > 0 {
		for i := range sum.Groups {
			comments, err := s.comments(ctx, sum.Groups[i].Group, commentLimit)
			if err != nil {
				return nil, err
			}
			sum.Groups[i].Comments = comments
		}
	}

	sum.Comparison = compare(sum.Groups)
	return sum, nil
}

func (s *FeedbackStore) comments(ctx context.Context, group string, limit int) ([]string, error) {
	query := fmt.Sprintf(`SELECT comment FROM feedback WHERE grp = ? AND comment <> '' ORDER BY ts DESC LIMIT %d`, limit)
	rows, err := s.db.QueryContext(ctx, query, group)
	if err != nil {
		return nil, fmt.Errorf("query feedback comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan feedback comment: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func compare(groups []GroupStats) *Comparison {
	var a, b *GroupStats
	for i := range groups {
		switch groups[i].Group {
		case GroupA:
			a = &groups[i]
		case GroupB:
			b = &groups[i]
		}
	}
	if a == nil || b == nil || a.Count == 0 || b.Count == 0 {
		return nil
	}
	c := &Comparison{MeanA: a.Mean, MeanB: b.Mean, Difference: a.Mean - b.Mean}
	if b.Mean > 0 {
		c.RelativeLift = c.Difference / b.Mean
	}
	return c
}

// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package recommend

import (
	"time"

	"github.com/tomtom215/kgrec/internal/graph"
)

// Request asks for the top k dishes for one user.
type Request struct {
	UserID int `json:"user_id" validate:"gte=0"`

	// TopK defaults to Config.DefaultTopK when zero.
	TopK int `json:"topk" validate:"min=1,max=50"`
}

// Response is the recommendation list returned (and cached) for a request.
type Response struct {
	UserID          int      `json:"user_id"`
	RequestedTopK   int      `json:"requested_topk"`
	TopK            int      `json:"topk"`
	FromCache       bool     `json:"from_cache"`
	ExperimentGroup string   `json:"experiment_group"`
	ShowExplanation bool     `json:"show_explanation"`
	Shortfall       int      `json:"shortfall"`
	Recommendations []Item   `json:"recommendations"`
	Metadata        Metadata `json:"metadata"`
}

// Item is one recommended dish.
type Item struct {
	ItemID      int        `json:"item_id"`
	Name        string     `json:"dish_name"`
	Price       float64    `json:"price"`
	Tags        []string   `json:"tags"`
	Ingredients []string   `json:"ingredients"`
	Photo       string     `json:"photo"`
	Score       float64    `json:"score"`
	Explanation string     `json:"explanation"`
	Paths       []PathView `json:"paths"`
}

// PathView is the display form of an explanation path. Relations[i]
// leads to Entities[i]; Start is the history dish the path leaves from.
type PathView struct {
	Pattern   string   `json:"pattern"`
	Start     string   `json:"start"`
	Relations []string `json:"relations"`
	Entities  []string `json:"entities"`
}

// NewPathView converts a graph path for display.
func NewPathView(p graph.Path) PathView {
	entities := make([]string, len(p.Hops))
	for i, h := range p.Hops {
		entities[i] = h.Entity
	}
	return PathView{
		Pattern:   p.Pattern(),
		Start:     p.Start,
		Relations: p.RelationNames(),
		Entities:  entities,
	}
}

// Metadata describes how a response was produced.
type Metadata struct {
	ModelVersion int       `json:"model_version"`
	GeneratedAt  time.Time `json:"generated_at"`
	Candidates   int       `json:"candidates"`
	Dropped      int       `json:"dropped"`
	LatencyMS    int64     `json:"latency_ms"`
}

// DishDetail is the single-dish view with an arm-conditioned explanation.
type DishDetail struct {
	ItemID          int        `json:"item_id"`
	Name            string     `json:"dish_name"`
	Price           float64    `json:"price"`
	Photo           string     `json:"photo"`
	Tags            []string   `json:"tags"`
	Ingredients     []string   `json:"ingredients"`
	// Score is the user's model score for the dish; nil without a loaded
	// snapshot or when the dish is not in its catalog.
	Score           *float64   `json:"score,omitempty"`
	ExperimentGroup string     `json:"experiment_group"`
	ShowExplanation bool       `json:"show_explanation"`
	Explanation     string     `json:"explanation"`
	Paths           []PathView `json:"paths"`
}

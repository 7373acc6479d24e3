// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package recommend

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tomtom215/kgrec/internal/graph"
)

// Experiment group labels.
const (
	GroupExplained = "A"
	GroupPlain     = "B"
)

// Explanation texts.
const (
	ExplainGeneric     = "Recommended by knowledge-graph similarity"
	ExplainHistory     = "Recommended based on your history"
	ExplainTags        = "Shares taste tags with dishes you liked"
	ExplainIngredients = "Contains ingredients similar to dishes you liked"
	ExplainBoth        = "Shares flavor tags and similar ingredients with dishes you liked"
)

// PathSampler mines explanation paths for a user and a target dish.
// *paths.Sampler implements it.
type PathSampler interface {
	SampleForUserItem(ctx context.Context, userID int, target string) ([]graph.Path, error)
}

// GroupResolver maps a user to an experiment group label.
type GroupResolver interface {
	Group(userID int) string
}

// Explanation is the text and supporting paths attached to an item.
type Explanation struct {
	Text  string
	Paths []PathView
	// Degraded is set when sampling failed and Text is the generic
	// fallback. Degraded explanations are served but never cached.
	Degraded bool
}

// ExperimentArm decides whether explanations are computed and shown.
type ExperimentArm interface {
	Group() string
	ShowExplanation() bool
	Explain(ctx context.Context, userID int, item string) Explanation
}

// PlainArm never samples paths.
type PlainArm struct{}

// Group returns GroupPlain.
func (PlainArm) Group() string { return GroupPlain }

// ShowExplanation returns false.
func (PlainArm) ShowExplanation() bool { return false }

// Explain returns the generic text and no paths.
func (PlainArm) Explain(context.Context, int, string) Explanation {
	return Explanation{Text: ExplainGeneric, Paths: []PathView{}}
}

// ExplainedArm samples graph paths from the user's history to the item.
type ExplainedArm struct {
	sampler  PathSampler
	maxPaths int
	logger   zerolog.Logger
}

// NewExplainedArm returns an arm that attaches up to maxPaths paths.
func NewExplainedArm(sampler PathSampler, maxPaths int, logger zerolog.Logger) *ExplainedArm {
	return &ExplainedArm{sampler: sampler, maxPaths: maxPaths, logger: logger}
}

// Group returns GroupExplained.
func (a *ExplainedArm) Group() string { return GroupExplained }

// ShowExplanation returns true.
func (a *ExplainedArm) ShowExplanation() bool { return true }

// Explain never fails: sampling errors degrade to the generic text.
func (a *ExplainedArm) Explain(ctx context.Context, userID int, item string) Explanation {
	found, err := a.sampler.SampleForUserItem(ctx, userID, item)
	if err != nil {
		a.logger.Warn().Err(err).Int("user_id", userID).Str("item", item).Msg("Path sampling failed")
		return Explanation{Text: ExplainGeneric, Paths: []PathView{}, Degraded: true}
	}
	return ExplainPaths(found, a.maxPaths)
}

// ExplainPaths picks the explanation text from the relation patterns of
// found and keeps the first maxPaths paths for display.
func ExplainPaths(found []graph.Path, maxPaths int) Explanation {
	if len(found) == 0 {
		return Explanation{Text: ExplainGeneric, Paths: []PathView{}}
	}

	var tags, ingredients bool
	for _, p := range found {
		pattern := p.Pattern()
		if strings.Contains(pattern, graph.HasTag.String()) {
			tags = true
		}
		if strings.Contains(pattern, graph.Contains.String()) {
			ingredients = true
		}
	}

	text := ExplainHistory
	switch {
	case tags && ingredients:
		text = ExplainBoth
	case tags:
		text = ExplainTags
	case ingredients:
		text = ExplainIngredients
	}

	n := min(maxPaths, len(found))
	views := make([]PathView, 0, n)
	for _, p := range found[:n] {
		views = append(views, NewPathView(p))
	}
	return Explanation{Text: text, Paths: views}
}

// armFor resolves the arm of userID. Unknown and missing labels fall back
// to the plain arm.
func (e *Engine) armFor(userID int) ExperimentArm {
	if e.groups != nil && e.groups.Group(userID) == GroupExplained && e.explained != nil {
		return e.explained
	}
	return PlainArm{}
}

// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/kgrec/internal/experiment"
	"github.com/tomtom215/kgrec/internal/recommend"
	"github.com/tomtom215/kgrec/internal/validation"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Recommender is the scoring engine. *recommend.Engine implements it.
type Recommender interface {
	Recommend(ctx context.Context, req recommend.Request) (*recommend.Response, error)
	Detail(ctx context.Context, userID int, name string) (*recommend.DishDetail, error)
	Ready() error
	ModelVersion() int
}

// FeedbackLog records and summarizes experiment feedback.
// *experiment.FeedbackStore implements it.
type FeedbackLog interface {
	Record(ctx context.Context, fb experiment.Feedback) (experiment.Feedback, error)
	Summary(ctx context.Context, commentLimit int) (*experiment.Summary, error)
	Ping(ctx context.Context) error
}

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the recommendation API.
type Handler struct {
	engine   Recommender
	feedback FeedbackLog
	checks   map[string]Pinger
}

// NewHandler creates a handler. feedback may be nil, which disables the
// feedback and experiment endpoints. checks are pinged by HealthReady.
func NewHandler(engine Recommender, feedback FeedbackLog, checks map[string]Pinger) *Handler {
	if checks == nil {
		checks = map[string]Pinger{}
	}
	return &Handler{engine: engine, feedback: feedback, checks: checks}
}

// recRequest is the POST /api/v1/rec body.
type recRequest struct {
	UserID *int `json:"user_id" validate:"required,gte=0"`
	TopK   int  `json:"topk" validate:"omitempty,min=1,max=50"`
}

// Recommend handles POST /api/v1/rec.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req recRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := h.engine.Recommend(r.Context(), recommend.Request{UserID: *req.UserID, TopK: req.TopK})
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, resp, start, resp.FromCache)
}

// Dish handles GET /api/v1/dish/{name}?user_id=N.
func (h *Handler) Dish(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || strings.TrimSpace(name) == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "dish name is required", err)
		return
	}
	raw := r.URL.Query().Get("user_id")
	userID, err := strconv.Atoi(raw)
	if err != nil || userID < 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "user_id must be a non-negative integer", nil)
		return
	}

	detail, err := h.engine.Detail(r.Context(), userID, name)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondSuccess(w, r, http.StatusOK, detail, start, false)
}

// feedbackRequest is the POST /api/v1/feedback body.
type feedbackRequest struct {
	UserID  *int   `json:"user_id" validate:"required,gte=0"`
	ItemID  *int   `json:"dish_id" validate:"required,gte=0"`
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Clicked bool   `json:"clicked"`
	Comment string `json:"comment" validate:"max=1000"`
}

// Feedback handles POST /api/v1/feedback.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.feedback == nil {
		respondError(w, http.StatusServiceUnavailable, "FEEDBACK_DISABLED", "Feedback collection is not configured", nil)
		return
	}

	var req feedbackRequest
	if !decodeBody(w, r, &req) {
		return
	}

	stored, err := h.feedback.Record(r.Context(), experiment.Feedback{
		UserID:  *req.UserID,
		ItemID:  *req.ItemID,
		Rating:  req.Rating,
		Clicked: req.Clicked,
		Comment: req.Comment,
	})
	if err != nil {
		var verr *validation.RequestValidationError
		if errors.As(err, &verr) {
			respondAPIError(w, http.StatusBadRequest, validationAPIError(verr), nil)
			return
		}
		respondError(w, http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE", "Failed to record feedback", err)
		return
	}
	respondSuccess(w, r, http.StatusCreated, stored, start, false)
}

// ExperimentSummary handles GET /api/v1/experiment/summary?comments=N.
func (h *Handler) ExperimentSummary(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.feedback == nil {
		respondError(w, http.StatusServiceUnavailable, "FEEDBACK_DISABLED", "Feedback collection is not configured", nil)
		return
	}

	comments := 5
	if raw := r.URL.Query().Get("comments"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 100 {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "comments must be between 0 and 100", nil)
			return
		}
		comments = n
	}

	sum, err := h.feedback.Summary(r.Context(), comments)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE", "Failed to summarize feedback", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, sum, start, false)
}

// HealthLive always answers 200 while the process serves HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]string{"status": "alive"}, time.Now(), false)
}

// ReadyStatus is the readiness probe body.
type ReadyStatus struct {
	Status       string            `json:"status"`
	ModelVersion int               `json:"model_version"`
	Checks       map[string]string `json:"checks"`
}

// HealthReady answers 200 when a model is loaded and every dependency
// responds, 503 otherwise.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := ReadyStatus{
		Status:       "ready",
		ModelVersion: h.engine.ModelVersion(),
		Checks:       make(map[string]string, len(h.checks)+2),
	}
	record := func(name string, err error) {
		if err != nil {
			status.Status = "not_ready"
			status.Checks[name] = err.Error()
			return
		}
		status.Checks[name] = "ok"
	}

	record("model", h.engine.Ready())
	if h.feedback != nil {
		record("feedback", h.feedback.Ping(ctx))
	}
	for name, p := range h.checks {
		record(name, p.Ping(ctx))
	}

	code := http.StatusOK
	if status.Status != "ready" {
		code = http.StatusServiceUnavailable
	}
	respondSuccess(w, r, code, status, start, false)
}

// decodeBody reads and validates a JSON body into v. It writes the error
// response and returns false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Request body must be a JSON object", nil)
		return false
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		respondAPIError(w, http.StatusBadRequest, validationAPIError(verr), nil)
		return false
	}
	return true
}

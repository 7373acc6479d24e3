// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package api

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/kgrec/internal/experiment"
	"github.com/tomtom215/kgrec/internal/graph"
	"github.com/tomtom215/kgrec/internal/recommend"
)

type fakeEngine struct {
	mu       sync.Mutex
	requests []recommend.Request
	recErr   error
	detail   *recommend.DishDetail
	detErr   error
	ready    error
	cached   bool
}

func (f *fakeEngine) Recommend(_ context.Context, req recommend.Request) (*recommend.Response, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.recErr != nil {
		return nil, f.recErr
	}
	return &recommend.Response{
		UserID:          req.UserID,
		RequestedTopK:   req.TopK,
		TopK:            1,
		FromCache:       f.cached,
		ExperimentGroup: "B",
		Recommendations: []recommend.Item{{ItemID: 4, Name: "mapo tofu", Price: 28}},
	}, nil
}

func (f *fakeEngine) Detail(_ context.Context, userID int, name string) (*recommend.DishDetail, error) {
	if f.detErr != nil {
		return nil, f.detErr
	}
	if f.detail != nil {
		return f.detail, nil
	}
	return &recommend.DishDetail{ItemID: 4, Name: name, ExperimentGroup: "A", ShowExplanation: userID == 1}, nil
}

func (f *fakeEngine) Ready() error      { return f.ready }
func (f *fakeEngine) ModelVersion() int { return 3 }

type fakeFeedback struct {
	recorded []experiment.Feedback
	pingErr  error
}

func (f *fakeFeedback) Record(_ context.Context, fb experiment.Feedback) (experiment.Feedback, error) {
	fb.Group = "A"
	f.recorded = append(f.recorded, fb)
	return fb, nil
}

func (f *fakeFeedback) Summary(_ context.Context, commentLimit int) (*experiment.Summary, error) {
	return &experiment.Summary{Total: len(f.recorded), Groups: []experiment.GroupStats{{Group: "A", Count: commentLimit}}}, nil
}

func (f *fakeFeedback) Ping(context.Context) error { return f.pingErr }

type pingFunc func(context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

type envelope struct {
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data"`
	Metadata Metadata        `json:"metadata"`
	Error    *APIError       `json:"error"`
}

func newTestRouter(engine Recommender, fb FeedbackLog, checks map[string]Pinger) http.Handler {
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitDisabled = true
	return NewRouter(NewHandler(engine, fb, checks), NewChiMiddleware(cfg))
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode body %q: %v", method, target, rec.Body.String(), err)
	}
	return rec, env
}

func TestRecommendHandler(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{cached: true}
	router := newTestRouter(engine, nil, nil)

	rec, env := do(t, router, http.MethodPost, "/api/v1/rec", `{"user_id": 7, "topk": 5}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if env.Status != "success" || !env.Metadata.Cached {
		t.Errorf("envelope = %+v, want success and cached", env)
	}
	if rec.Header().Get("X-Request-Id") == "" || env.Metadata.RequestID == "" {
		t.Error("request id not propagated")
	}

	var resp recommend.Response
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if resp.UserID != 7 || len(resp.Recommendations) != 1 || resp.Recommendations[0].Name != "mapo tofu" {
		t.Errorf("response = %+v", resp)
	}
	if got := engine.requests[0]; got != (recommend.Request{UserID: 7, TopK: 5}) {
		t.Errorf("engine request = %+v", got)
	}
}

func TestRecommendHandler_TopKDefaultsInEngine(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{}
	router := newTestRouter(engine, nil, nil)

	rec, _ := do(t, router, http.MethodPost, "/api/v1/rec", `{"user_id": 0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if engine.requests[0].TopK != 0 {
		t.Errorf("TopK = %d, want 0 for the engine default", engine.requests[0].TopK)
	}
}

func TestRecommendHandler_BadRequests(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&fakeEngine{}, nil, nil)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", `{`, "INVALID_JSON"},
		{"missing user", `{"topk": 3}`, "VALIDATION_ERROR"},
		{"negative user", `{"user_id": -1}`, "VALIDATION_ERROR"},
		{"topk too large", `{"user_id": 1, "topk": 51}`, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec, env := do(t, router, http.MethodPost, "/api/v1/rec", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
			if env.Error == nil || env.Error.Code != tt.code {
				t.Errorf("error = %+v, want code %s", env.Error, tt.code)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	t.Parallel()

	kindErr := func(kind recommend.ErrorKind, err error) error {
		return &recommend.Error{Kind: kind, Op: "recommend", Err: err}
	}
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", kindErr(recommend.KindValidation, recommend.ErrUserOutOfRange), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"model not loaded", kindErr(recommend.KindConfiguration, recommend.ErrModelNotLoaded), http.StatusInternalServerError, "MODEL_NOT_LOADED"},
		{"configuration", kindErr(recommend.KindConfiguration, errors.New("bad")), http.StatusInternalServerError, "CONFIGURATION_ERROR"},
		{"data incomplete", kindErr(recommend.KindDataIncomplete, recommend.ErrInsufficientResults), http.StatusServiceUnavailable, "DATA_INCOMPLETE"},
		{"dependency", kindErr(recommend.KindDependencyUnavailable, graph.ErrUnavailable), http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE"},
		{"dish not found", kindErr(recommend.KindDataIncomplete, fmt.Errorf("%w: %q", recommend.ErrDishNotFound, "x")), http.StatusNotFound, "NOT_FOUND"},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			status, apiErr := classifyError(tt.err)
			if status != tt.status || apiErr.Code != tt.code {
				t.Errorf("classifyError = %d %s, want %d %s", status, apiErr.Code, tt.status, tt.code)
			}
		})
	}
}

func TestRecommendHandler_EngineError(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{recErr: &recommend.Error{
		Kind: recommend.KindDependencyUnavailable,
		Op:   "recommend",
		Err:  graph.ErrUnavailable,
	}}
	rec, env := do(t, newTestRouter(engine, nil, nil), http.MethodPost, "/api/v1/rec", `{"user_id": 1}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if env.Status != "error" || env.Error.Code != "DEPENDENCY_UNAVAILABLE" {
		t.Errorf("envelope = %+v", env)
	}
}

func TestDishHandler(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&fakeEngine{}, nil, nil)

	rec, env := do(t, router, http.MethodGet, "/api/v1/dish/%E9%BA%BB%E5%A9%86%E8%B1%86%E8%85%90?user_id=1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var d recommend.DishDetail
	if err := json.Unmarshal(env.Data, &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.Name != "麻婆豆腐" || !d.ShowExplanation {
		t.Errorf("detail = %+v", d)
	}

	for _, target := range []string{"/api/v1/dish/tofu", "/api/v1/dish/tofu?user_id=x", "/api/v1/dish/tofu?user_id=-2"} {
		if rec, _ := do(t, router, http.MethodGet, target, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

func TestDishHandler_NotFound(t *testing.T) {
	t.Parallel()
	engine := &fakeEngine{detErr: &recommend.Error{
		Kind: recommend.KindDataIncomplete,
		Op:   "detail",
		Err:  recommend.ErrDishNotFound,
	}}
	rec, env := do(t, newTestRouter(engine, nil, nil), http.MethodGet, "/api/v1/dish/ghost?user_id=0", "")
	if rec.Code != http.StatusNotFound || env.Error.Code != "NOT_FOUND" {
		t.Errorf("status = %d error = %+v, want 404 NOT_FOUND", rec.Code, env.Error)
	}
}

func TestFeedbackHandler(t *testing.T) {
	t.Parallel()
	fb := &fakeFeedback{}
	router := newTestRouter(&fakeEngine{}, fb, nil)

	rec, env := do(t, router, http.MethodPost, "/api/v1/feedback",
		`{"user_id": 2, "dish_id": 4, "rating": 5, "clicked": true, "comment": "good reasons"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var stored experiment.Feedback
	if err := json.Unmarshal(env.Data, &stored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stored.Group != "A" || stored.ItemID != 4 || !stored.Clicked {
		t.Errorf("stored = %+v", stored)
	}

	for _, body := range []string{
		`{"user_id": 2, "dish_id": 4, "rating": 6}`,
		`{"user_id": 2, "dish_id": 4}`,
		`{"dish_id": 4, "rating": 3}`,
	} {
		if rec, env := do(t, router, http.MethodPost, "/api/v1/feedback", body); rec.Code != http.StatusBadRequest || env.Error.Code != "VALIDATION_ERROR" {
			t.Errorf("%s: status = %d error = %+v, want 400", body, rec.Code, env.Error)
		}
	}
	if len(fb.recorded) != 1 {
		t.Errorf("recorded = %d, want 1", len(fb.recorded))
	}
}

func TestFeedbackDisabled(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&fakeEngine{}, nil, nil)
	for _, tc := range []struct{ method, target string }{
		{http.MethodPost, "/api/v1/feedback"},
		{http.MethodGet, "/api/v1/experiment/summary"},
	} {
		rec, env := do(t, router, tc.method, tc.target, `{}`)
		if rec.Code != http.StatusServiceUnavailable || env.Error.Code != "FEEDBACK_DISABLED" {
			t.Errorf("%s %s: status = %d error = %+v", tc.method, tc.target, rec.Code, env.Error)
		}
	}
}

func TestExperimentSummaryHandler(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&fakeEngine{}, &fakeFeedback{}, nil)

	rec, env := do(t, router, http.MethodGet, "/api/v1/experiment/summary?comments=2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sum experiment.Summary
	if err := json.Unmarshal(env.Data, &sum); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sum.Groups) != 1 || sum.Groups[0].Count != 2 {
		t.Errorf("summary = %+v, want comment limit 2 passed through", sum)
	}

	if rec, _ := do(t, router, http.MethodGet, "/api/v1/experiment/summary?comments=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("live", func(t *testing.T) {
		t.Parallel()
		rec, _ := do(t, newTestRouter(&fakeEngine{ready: recommend.ErrModelNotLoaded}, nil, nil), http.MethodGet, "/api/v1/health/live", "")
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("ready", func(t *testing.T) {
		t.Parallel()
		checks := map[string]Pinger{"graph": pingFunc(func(context.Context) error { return nil })}
		rec, env := do(t, newTestRouter(&fakeEngine{}, &fakeFeedback{}, checks), http.MethodGet, "/api/v1/health/ready", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var st ReadyStatus
		if err := json.Unmarshal(env.Data, &st); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if st.Status != "ready" || st.ModelVersion != 3 || st.Checks["graph"] != "ok" || st.Checks["feedback"] != "ok" {
			t.Errorf("status = %+v", st)
		}
	})

	t.Run("not ready", func(t *testing.T) {
		t.Parallel()
		checks := map[string]Pinger{"graph": pingFunc(func(context.Context) error { return graph.ErrUnavailable })}
		rec, env := do(t, newTestRouter(&fakeEngine{ready: recommend.ErrModelNotLoaded}, nil, checks), http.MethodGet, "/api/v1/health/ready", "")
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
		var st ReadyStatus
		if err := json.Unmarshal(env.Data, &st); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if st.Status != "not_ready" || st.Checks["model"] == "ok" || st.Checks["graph"] == "ok" {
			t.Errorf("status = %+v", st)
		}
	})
}

func TestRouterFallbacks(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&fakeEngine{}, nil, nil)

	if rec, env := do(t, router, http.MethodGet, "/api/v1/nope", ""); rec.Code != http.StatusNotFound || env.Error.Code != "NOT_FOUND" {
		t.Errorf("unknown route: status = %d", rec.Code)
	}
	if rec, _ := do(t, router, http.MethodGet, "/api/v1/rec", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /rec: status = %d, want 405", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	cfg := DefaultChiMiddlewareConfig()
	cfg.RateLimitRequests = 1
	router := NewRouter(NewHandler(&fakeEngine{}, nil, nil), NewChiMiddleware(cfg))

	if rec, _ := do(t, router, http.MethodPost, "/api/v1/rec", `{"user_id": 1}`); rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec, env := do(t, router, http.MethodPost, "/api/v1/rec", `{"user_id": 1}`)
	if rec.Code != http.StatusTooManyRequests || env.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("second request status = %d error = %+v, want 429", rec.Code, env.Error)
	}
	// probes bypass the limiter
	if rec, _ := do(t, router, http.MethodGet, "/api/v1/health/live", ""); rec.Code != http.StatusOK {
		t.Errorf("live status = %d, want 200", rec.Code)
	}
}

func TestSanitizeLogValue(t *testing.T) {
	t.Parallel()
	if got := sanitizeLogValue("a\nb\tc"); got != `a\x0ab\x09c` {
		t.Errorf("sanitizeLogValue = %q", got)
	}
}

func TestRecommendHandler_Gzip(t *testing.T) {
	t.Parallel()
	router := newTestRouter(&fakeEngine{}, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rec", strings.NewReader(`{"user_id": 2}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	defer zr.Close()
	var env envelope
	if err := json.NewDecoder(zr).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Status != "success" {
		t.Errorf("status = %q, want success", env.Status)
	}
}

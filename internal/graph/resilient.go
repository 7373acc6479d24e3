// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/kgrec/internal/metrics"
)

// ResilienceConfig bounds how hard the adapter tries.
type ResilienceConfig struct {
	// MaxAttempts per call, including the first. Values < 1 mean 1.
	MaxAttempts int

	// AttemptTimeout caps each attempt. Zero disables the per-attempt deadline.
	AttemptTimeout time.Duration

	// QueriesPerSecond caps the call rate. Zero disables the limiter.
	QueriesPerSecond float64
	Burst            int

	// BreakerTimeout is how long the breaker stays open before probing.
	BreakerTimeout time.Duration

	// BreakerMinRequests and BreakerFailureRatio decide when to trip.
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
}

// ResilientStore decorates a Store with bounded retries, a rate limiter
// and a circuit breaker. Exhausted retries and open-breaker rejections
// both wrap ErrUnavailable.
type ResilientStore struct {
	next    Store
	cfg     ResilienceConfig
	cb      *gobreaker.CircuitBreaker[any]
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewResilientStore wraps next.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewResilientStore(next Store, cfg ResilienceConfig, logger zerolog.Logger) *ResilientStore {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BreakerMinRequests == 0 {
		cfg.BreakerMinRequests = 10
	}
	if cfg.BreakerFailureRatio <= 0 || cfg.BreakerFailureRatio > 1 {
		cfg.BreakerFailureRatio = 0.6
	}

	const name = "graph-store"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	s := &ResilientStore{next: next, cfg: cfg, logger: logger.With().Str("component", "graph").Logger()}
	if cfg.QueriesPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.QueriesPerSecond), burst)
	}
	s.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("Graph store circuit breaker transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		// Caller cancellation says nothing about store health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return s
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// State returns the breaker state name.
func (s *ResilientStore) State() string {
	return s.cb.State().String()
}

// call runs fn with retries inside the breaker.
func call[T any](ctx context.Context, s *ResilientStore, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	start := time.Now()

	result, err := s.cb.Execute(func() (any, error) {
		var lastErr error
		for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return nil, err
				}
			}

			attemptCtx, cancel := ctx, context.CancelFunc(func() {})
			if s.cfg.AttemptTimeout > 0 {
				attemptCtx, cancel = context.WithTimeout(ctx, s.cfg.AttemptTimeout)
			}
			v, err := fn(attemptCtx)
			cancel()
			if err == nil {
				return v, nil
			}
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			s.logger.Debug().Err(err).Str("operation", op).Int("attempt", attempt).Msg("Graph store call failed")
		}
		return nil, lastErr
	})
	metrics.RecordGraphQuery(op, time.Since(start), err)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
		}
		if errors.Is(err, context.Canceled) {
			return zero, err
		}
		return zero, fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	typed, ok := result.(T)
	if !ok && result != nil {
		return zero, fmt.Errorf("%s: unexpected result type %T", op, result)
	}
	return typed, nil
}

// UserHistory implements Store.
func (s *ResilientStore) UserHistory(ctx context.Context, userID int) ([]HistoryEntry, error) {
	return call(ctx, s, "user_history", func(ctx context.Context) ([]HistoryEntry, error) {
		return s.next.UserHistory(ctx, userID)
	})
}

// MatchPaths implements Store. Malformed queries are rejected before the
// breaker so they never count as store failures.
func (s *ResilientStore) MatchPaths(ctx context.Context, q PathQuery) ([]Path, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return call(ctx, s, "match_paths", func(ctx context.Context) ([]Path, error) {
		return s.next.MatchPaths(ctx, q)
	})
}

// ItemAttributes implements Store.
func (s *ResilientStore) ItemAttributes(ctx context.Context, names []string) (map[string]ItemAttributes, error) {
	return call(ctx, s, "item_attributes", func(ctx context.Context) (map[string]ItemAttributes, error) {
		return s.next.ItemAttributes(ctx, names)
	})
}

// Entities implements Store.
func (s *ResilientStore) Entities(ctx context.Context) ([]Entity, error) {
	return call(ctx, s, "entities", s.next.Entities)
}

// Interactions implements Store.
func (s *ResilientStore) Interactions(ctx context.Context) ([]Interaction, error) {
	return call(ctx, s, "interactions", s.next.Interactions)
}

// Triples implements Store.
func (s *ResilientStore) Triples(ctx context.Context) ([]Triple, error) {
	return call(ctx, s, "triples", s.next.Triples)
}

// Ping bypasses retries so health checks report the real state.
func (s *ResilientStore) Ping(ctx context.Context) error {
	return s.next.Ping(ctx)
}

// Close closes the wrapped store.
func (s *ResilientStore) Close(ctx context.Context) error {
	return s.next.Close(ctx)
}

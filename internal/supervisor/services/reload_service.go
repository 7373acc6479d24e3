// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/kgrec/internal/embedding"
	"github.com/tomtom215/kgrec/internal/graph"
	"github.com/tomtom215/kgrec/internal/metrics"
)

// SnapshotSource is the checkpoint store. *embedding.Store satisfies it.
type SnapshotSource interface {
	Refresh() error
	LatestVersion() int
	LoadSnapshot(ctx context.Context, version int) (*embedding.Snapshot, *embedding.Metadata, error)
}

// EntitySource lists the live graph's entities. graph.Store satisfies it.
type EntitySource interface {
	Entities(ctx context.Context) ([]graph.Entity, error)
}

// CacheFlusher drops cached responses computed from an older model.
type CacheFlusher interface {
	FlushCache(ctx context.Context) error
}

// SnapshotReloadConfig controls snapshot polling.
type SnapshotReloadConfig struct {
	// Interval between checks for a newer checkpoint. Zero loads once.
	Interval time.Duration

	// PinnedVersion serves exactly this version and never follows newer
	// checkpoints. Zero follows the latest.
	PinnedVersion int

	// LoadTimeout bounds one checkpoint load. Default: 2m.
	LoadTimeout time.Duration

	// StrictCatalog refuses a checkpoint whose catalog differs from the
	// live graph. Otherwise the mismatch is logged and the checkpoint served.
	StrictCatalog bool
}

// SnapshotReloadService publishes new embedding snapshots to the serving
// Holder without restarting the process.
type SnapshotReloadService struct {
	source  SnapshotSource
	holder  *embedding.Holder
	flusher CacheFlusher
	graph   EntitySource
	config  SnapshotReloadConfig
	logger  zerolog.Logger
	name    string
}

// NewSnapshotReloadService creates the service. flusher and entities may be
// nil; without entities no catalog check is made.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSnapshotReloadService(source SnapshotSource, holder *embedding.Holder, flusher CacheFlusher, entities EntitySource, cfg SnapshotReloadConfig, logger zerolog.Logger) *SnapshotReloadService {
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 2 * time.Minute
	}
	return &SnapshotReloadService{
		source:  source,
		holder:  holder,
		flusher: flusher,
		graph:   entities,
		config:  cfg,
		logger:  logger.With().Str("service", "snapshot-reload").Logger(),
		name:    "snapshot-reload",
	}
}

// Serve implements suture.Service. Load failures are logged and retried on
// the next tick; the previous snapshot keeps serving.
func (s *SnapshotReloadService) Serve(ctx context.Context) error {
	s.logger.Info().
		Dur("interval", s.config.Interval).
		Int("pinned_version", s.config.PinnedVersion).
		Msg("Snapshot reload service starting")

	if _, err := s.Reload(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Initial snapshot load failed")
	}

	if s.config.Interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Reload(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Snapshot reload failed")
			}
		}
	}
}

// Reload loads the wanted checkpoint if it differs from the one being
// served. It reports whether a new snapshot was published.
func (s *SnapshotReloadService) Reload(ctx context.Context) (bool, error) {
	want := s.config.PinnedVersion
	if want == 0 {
		if err := s.source.Refresh(); err != nil {
			metrics.ModelReloads.WithLabelValues("error").Inc()
			return false, fmt.Errorf("refresh checkpoints: %w", err)
		}
		want = s.source.LatestVersion()
		if want == 0 {
			s.logger.Debug().Msg("No complete checkpoint available yet")
			return false, nil
		}
	}

	current := s.holder.Load()
	if current != nil && current.Version() == want {
		return false, nil
	}

	loadCtx, cancel := context.WithTimeout(ctx, s.config.LoadTimeout)
	defer cancel()

	start := time.Now()
	snap, meta, err := s.source.LoadSnapshot(loadCtx, want)
	if err != nil {
		metrics.ModelReloads.WithLabelValues("error").Inc()
		return false, fmt.Errorf("load snapshot v%d: %w", want, err)
	}
	if err := s.checkCatalog(loadCtx, snap); err != nil {
		metrics.ModelReloads.WithLabelValues("catalog_mismatch").Inc()
		return false, fmt.Errorf("snapshot v%d: %w", want, err)
	}

	previous := s.holder.Swap(snap)
	metrics.ModelReloads.WithLabelValues("ok").Inc()
	metrics.ModelVersion.Set(float64(snap.Version()))

	ev := s.logger.Info().
		Int("version", snap.Version()).
		Int("users", snap.NumUsers()).
		Int("dim", snap.Dim()).
		Float64("loss", meta.Loss).
		Dur("load_duration", time.Since(start))
	if previous != nil {
		ev = ev.Int("previous_version", previous.Version())
	}
	ev.Msg("Embedding snapshot published")

	if s.flusher != nil && previous != nil {
		if err := s.flusher.FlushCache(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to flush response cache after reload")
		}
	}
	return true, nil
}

// checkCatalog compares the snapshot's entity table with the live graph.
// Only a mismatch under StrictCatalog is returned; an unreachable graph
// never blocks a reload.
func (s *SnapshotReloadService) checkCatalog(ctx context.Context, snap *embedding.Snapshot) error {
	if s.graph == nil {
		return nil
	}
	entities, err := s.graph.Entities(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Int("version", snap.Version()).Msg("Skipping catalog check, graph unavailable")
		return nil
	}
	live, err := embedding.BuildCatalog(entities)
	if err != nil {
		s.logger.Warn().Err(err).Int("version", snap.Version()).Msg("Skipping catalog check, graph entities invalid")
		return nil
	}
	err = snap.ValidateAgainst(live)
	if err == nil {
		return nil
	}
	if s.config.StrictCatalog {
		return err
	}
	s.logger.Warn().Err(err).Int("version", snap.Version()).Msg("Snapshot catalog differs from the live graph")
	return nil
}

func (s *SnapshotReloadService) String() string {
	return s.name
}

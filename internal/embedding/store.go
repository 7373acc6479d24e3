// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package embedding

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tomtom215/kgrec/internal/graph"
)

// Blob names. Entity and relation vectors are persisted separately so each
// can be inspected or replaced on its own.
const (
	BlobEntities  = "entity_embeddings"
	BlobRelations = "relation_embeddings"
	BlobCatalog   = "catalog"
)

var (
	// ErrNotFound means no checkpoint exists for the requested version.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrChecksumMismatch means a blob failed integrity verification.
	ErrChecksumMismatch = errors.New("checkpoint checksum mismatch")
)

// Metadata describes one persisted blob.
type Metadata struct {
	Name               string    `json:"name"`
	Version            int       `json:"version"`
	TrainedAt          time.Time `json:"trained_at"`
	SavedAt            time.Time `json:"saved_at"`
	Epoch              int       `json:"epoch"`
	Loss               float64   `json:"loss"`
	NumEntities        int       `json:"num_entities"`
	NumUsers           int       `json:"num_users"`
	Dim                int       `json:"dim"`
	Checksum           string    `json:"checksum"`
	SizeBytes          int64     `json:"size_bytes"`
	TrainingDurationMS int64     `json:"training_duration_ms"`
}

// storedFile is the on-disk envelope of one blob.
type storedFile struct {
	Metadata       Metadata
	CompressedData []byte
}

// catalogState is the gob form of a Catalog.
type catalogState struct {
	Entities []graph.Entity
}

// Store persists versioned checkpoints under one directory as
// {blob}_v{version}.gob.gz files.
type Store struct {
	baseDir  string
	mu       sync.RWMutex
	versions map[string]int
}

// NewStore opens (creating if needed) a checkpoint directory.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	s := &Store{baseDir: baseDir, versions: make(map[string]int)}
	if err := s.scan(); err != nil {
		return nil, fmt.Errorf("scan checkpoints: %w", err)
	}
	return s, nil
}

// Dir returns the checkpoint directory.
func (s *Store) Dir() string { return s.baseDir }

// scan rebuilds the latest-version table from the directory listing.
func (s *Store) scan() error {
	versions, err := s.listVersions()
	if err != nil {
		return err
	}
	s.versions = make(map[string]int)
	for name, vs := range versions {
		s.versions[name] = vs[len(vs)-1]
	}
	return nil
}

// Refresh rescans the directory so versions written by another process
// become visible.
func (s *Store) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scan()
}

// listVersions returns every version per blob name, ascending.
func (s *Store) listVersions() (map[string][]int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]int)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".gob.gz") {
			continue
		}
		name, version := parseFilename(strings.TrimSuffix(entry.Name(), ".gob.gz"))
		if name == "" {
			continue
		}
		out[name] = append(out[name], version)
	}
	for _, vs := range out {
		sort.Ints(vs)
	}
	return out, nil
}

// parseFilename splits "entity_embeddings_v3" into name and version.
func parseFilename(base string) (string, int) {
	i := strings.LastIndex(base, "_v")
	if i <= 0 {
		return "", 0
	}
	var version int
	if _, err := fmt.Sscanf(base[i+2:], "%d", &version); err != nil || version <= 0 {
		return "", 0
	}
	return base[:i], version
}

func (s *Store) path(name string, version int) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s_v%d.gob.gz", name, version))
}

// LatestVersion returns the newest version that has every blob, or 0.
func (s *Store) LatestVersion() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestCompleteLocked()
}

func (s *Store) latestCompleteLocked() int {
	latest := 0
	for i, name := range []string{BlobEntities, BlobRelations, BlobCatalog} {
		v, ok := s.versions[name]
		if !ok {
			return 0
		}
		if i == 0 || v < latest {
			latest = v
		}
	}
	return latest
}

// NextVersion returns one past the highest version of any blob.
func (s *Store) NextVersion() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	next := 1
	for _, v := range s.versions {
		if v >= next {
			next = v + 1
		}
	}
	return next
}

// saveBlob gob-encodes data, checksums and gzips it, and writes it
// atomically via a temp file and rename. Callers hold s.mu.
//
//nolint:gocritic // meta passed by value is acceptable for this write operation
func (s *Store) saveBlob(name string, version int, data any, meta Metadata) error {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(data); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	sum := sha256.Sum256(raw.Bytes())
	meta.Checksum = hex.EncodeToString(sum[:])

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw.Bytes()); err != nil {
		return fmt.Errorf("compress %s: %w", name, err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", name, err)
	}

	meta.Name = name
	meta.Version = version
	meta.SizeBytes = int64(compressed.Len())
	meta.SavedAt = time.Now().UTC()

	final := s.path(name, version)
	tmp, err := os.CreateTemp(s.baseDir, ".tmp-"+name+"-*")
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := gob.NewEncoder(tmp).Encode(storedFile{Metadata: meta, CompressedData: compressed.Bytes()}); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return fmt.Errorf("publish %s: %w", name, err)
	}

	if version > s.versions[name] {
		s.versions[name] = version
	}
	return nil
}

// loadBlob reads, verifies and decodes one blob into target.
func (s *Store) loadBlob(name string, version int, target any) (*Metadata, error) {
	f, err := os.Open(s.path(name, version))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s v%d", ErrNotFound, name, version)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()

	var sf storedFile
	if err := gob.NewDecoder(f).Decode(&sf); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	gzr, err := gzip.NewReader(bytes.NewReader(sf.CompressedData))
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", name, err)
	}
	defer func() { _ = gzr.Close() }()

	raw, err := io.ReadAll(gzr)
	if err != nil {
		return nil, fmt.Errorf("read decompressed %s: %w", name, err)
	}
	sum := sha256.Sum256(raw)
	if got := hex.EncodeToString(sum[:]); got != sf.Metadata.Checksum {
		return nil, fmt.Errorf("%w: %s v%d expected %s, got %s", ErrChecksumMismatch, name, version, sf.Metadata.Checksum, got)
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(target); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return &sf.Metadata, nil
}

// SaveSnapshot writes the three blobs of snap under snap.Version().
// The catalog is written last so a reader never sees a complete version
// whose vectors are still being written.
//
//nolint:gocritic // meta passed by value is acceptable for this write operation
func (s *Store) SaveSnapshot(ctx context.Context, snap *Snapshot, meta Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.Version() <= 0 {
		return fmt.Errorf("save snapshot: version must be positive, got %d", snap.Version())
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	meta.TrainedAt = snap.TrainedAt()
	meta.NumEntities = snap.Catalog().Len()
	meta.NumUsers = snap.NumUsers()
	meta.Dim = snap.Dim()

	if err := s.saveBlob(BlobEntities, snap.Version(), snap.Entities(), meta); err != nil {
		return err
	}
	if err := s.saveBlob(BlobRelations, snap.Version(), snap.Relations(), meta); err != nil {
		return err
	}
	return s.saveBlob(BlobCatalog, snap.Version(), catalogState{Entities: snap.Catalog().Entities()}, meta)
}

// LoadSnapshot loads a version (0 = latest complete) and validates it.
func (s *Store) LoadSnapshot(ctx context.Context, version int) (*Snapshot, *Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if version == 0 {
		version = s.latestCompleteLocked()
		if version == 0 {
			return nil, nil, fmt.Errorf("%w in %s", ErrNotFound, s.baseDir)
		}
	}

	var entities, relations Matrix
	meta, err := s.loadBlob(BlobEntities, version, &entities)
	if err != nil {
		return nil, nil, err
	}
	if _, err := s.loadBlob(BlobRelations, version, &relations); err != nil {
		return nil, nil, err
	}
	var cs catalogState
	if _, err := s.loadBlob(BlobCatalog, version, &cs); err != nil {
		return nil, nil, err
	}
	catalog, err := NewCatalog(cs.Entities)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog v%d: %w", version, err)
	}
	if meta.NumUsers != catalog.NumUsers() {
		return nil, nil, fmt.Errorf("%w: checkpoint records %d users, catalog has %d", ErrCatalogMismatch, meta.NumUsers, catalog.NumUsers())
	}
	snap, err := NewSnapshot(version, meta.TrainedAt, entities, relations, catalog)
	if err != nil {
		return nil, nil, fmt.Errorf("load snapshot v%d: %w", version, err)
	}
	return snap, meta, nil
}

// List returns entity-blob metadata for every stored version, newest first.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions, err := s.listVersions()
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	vs := versions[BlobEntities]
	out := make([]Metadata, 0, len(vs))
	for i := len(vs) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f, err := os.Open(s.path(BlobEntities, vs[i]))
		if err != nil {
			continue
		}
		var sf storedFile
		decErr := gob.NewDecoder(f).Decode(&sf)
		_ = f.Close()
		if decErr != nil {
			continue
		}
		out = append(out, sf.Metadata)
	}
	return out, nil
}

// Prune deletes all but the newest keep versions of every blob.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	versions, err := s.listVersions()
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	removed := 0
	for name, vs := range versions {
		for i := 0; i < len(vs)-keep; i++ {
			if err := ctx.Err(); err != nil {
				return removed, err
			}
			if err := os.Remove(s.path(name, vs[i])); err == nil {
				removed++
			}
		}
	}
	return removed, s.scan()
}

//nolint:gochecknoinits // gob.Register must be called in init for type registration
func init() {
	gob.Register(Matrix{})
	gob.Register(catalogState{})
	gob.Register(storedFile{})
}

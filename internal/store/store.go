package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

const (
	indexFileName = "vectors.hnsw"
	metaFileName  = "index.db"

	stateKeyDimensions = "embedding_dimensions"
	stateKeyModel      = "embedding_model"

	// filterOversample is how many extra candidates the vector search
	// fetches when a metadata filter applies. The HNSW graph knows
	// nothing about metadata, so filtering happens after the fact and
	// needs headroom.
	filterOversample = 8
)

// Config configures a Store.
type Config struct {
	DataDir    string
	Dimensions int
	Model      string
}

// Store is the persistent index: vectors in an HNSW graph, record
// metadata and build bookkeeping in SQLite. The embedding width and
// model are pinned on first open; reopening with a different
// configuration is an error rather than a silently mixed index.
type Store struct {
	mu      sync.RWMutex
	meta    *metaDB
	vectors *vectorIndex
	cfg     Config
	dirty   bool
	closed  bool
}

// Batch groups records and manifest entries that must become visible
// together. ReplacePaths lists the relative paths whose existing
// records the batch supersedes: they are removed in the same
// transaction, so a re-indexed file that now yields fewer items does
// not leave its removed items behind.
type Batch struct {
	Records      []IndexRecord
	Manifest     map[string]string // rel_path -> content hash
	ReplacePaths []string
}

// Open opens or creates the store under cfg.DataDir.
func Open(cfg Config) (*Store, error) {
	if cfg.Dimensions <= 0 {
		return nil, pkgerr.New(pkgerr.ErrCodeConfigInvalid,
			"store requires a positive embedding dimension", nil)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, pkgerr.StoreUnavailable("creating data directory", err)
	}

	meta, err := openMetaDB(filepath.Join(cfg.DataDir, metaFileName))
	if err != nil {
		return nil, err
	}

	if err := checkPin(meta, stateKeyDimensions, strconv.Itoa(cfg.Dimensions)); err != nil {
		meta.close()
		return nil, err
	}
	if err := checkPin(meta, stateKeyModel, cfg.Model); err != nil {
		meta.close()
		return nil, err
	}

	vectors := newVectorIndex(cfg.Dimensions)
	if err := vectors.load(filepath.Join(cfg.DataDir, indexFileName)); err != nil {
		meta.close()
		return nil, err
	}

	slog.Debug("store opened",
		slog.String("data_dir", cfg.DataDir),
		slog.Int("dimensions", cfg.Dimensions),
		slog.Int("vectors", vectors.count()))

	return &Store{meta: meta, vectors: vectors, cfg: cfg}, nil
}

// PinnedConfig reads the embedding configuration an existing index was
// built with, without opening the vector graph. It returns an error
// when no index exists under dataDir.
func PinnedConfig(dataDir string) (Config, error) {
	metaPath := filepath.Join(dataDir, metaFileName)
	if _, err := os.Stat(metaPath); err != nil {
		return Config{}, pkgerr.StoreUnavailable(
			"no index found, run 'packmcp index' first", err)
	}

	meta, err := openMetaDB(metaPath)
	if err != nil {
		return Config{}, err
	}
	defer func() { _ = meta.close() }()

	dims, err := meta.getState(stateKeyDimensions)
	if err != nil {
		return Config{}, err
	}
	model, err := meta.getState(stateKeyModel)
	if err != nil {
		return Config{}, err
	}
	if dims == "" {
		return Config{}, pkgerr.StoreUnavailable(
			"index exists but has no embedding pin, rebuild it", nil)
	}

	dimensions, err := strconv.Atoi(dims)
	if err != nil {
		return Config{}, pkgerr.New(pkgerr.ErrCodeStoreCorrupt,
			"invalid pinned dimensions: "+dims, err)
	}

	return Config{DataDir: dataDir, Dimensions: dimensions, Model: model}, nil
}

// checkPin verifies a state value against the configured one, writing
// the pin on first open.
func checkPin(meta *metaDB, key, want string) error {
	existing, err := meta.getState(key)
	if err != nil {
		return err
	}
	if existing == "" {
		return meta.setState(key, want)
	}
	if existing != want {
		return pkgerr.New(pkgerr.ErrCodeDimensionMismatch,
			"index was built with a different embedding configuration", nil).
			WithDetail("pinned", existing).
			WithDetail("requested", want)
	}
	return nil
}

// Apply upserts a batch. The batch becomes visible to readers
// atomically; a concurrent Query sees all of it or none of it.
func (s *Store) Apply(ctx context.Context, batch Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return pkgerr.StoreUnavailable("store is closed", nil)
	}

	keys := make([]string, len(batch.Records))
	vectors := make([][]float32, len(batch.Records))
	for i, r := range batch.Records {
		if len(r.Vector) != s.cfg.Dimensions {
			return pkgerr.New(pkgerr.ErrCodeDimensionMismatch,
				"record vector width does not match index", nil).
				WithDetail("identity_key", r.IdentityKey)
		}
		keys[i] = r.IdentityKey
		vectors[i] = r.Vector
	}

	removed, err := s.meta.apply(batch.Records, batch.Manifest, batch.ReplacePaths)
	if err != nil {
		return err
	}
	// Superseded keys leave the vector side first; keys the batch
	// re-produces are added right back with their fresh vectors.
	s.vectors.delete(removed)
	if err := s.vectors.add(keys, vectors); err != nil {
		return err
	}
	s.dirty = true
	return nil
}

// Delete removes records by identity key.
func (s *Store) Delete(ctx context.Context, identityKeys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return pkgerr.StoreUnavailable("store is closed", nil)
	}

	if err := s.meta.deleteByKeys(identityKeys); err != nil {
		return err
	}
	s.vectors.delete(identityKeys)
	s.dirty = true
	return nil
}

// Prune removes every record and manifest entry whose source relative
// path is in relPaths. It returns the identity keys removed.
func (s *Store) Prune(ctx context.Context, relPaths []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, pkgerr.StoreUnavailable("store is closed", nil)
	}

	keys, err := s.meta.deleteByRelPaths(relPaths)
	if err != nil {
		return nil, err
	}
	s.vectors.delete(keys)
	if len(keys) > 0 {
		s.dirty = true
	}
	return keys, nil
}

// Query returns the topK records nearest to the query vector that
// match the filter, best first.
func (s *Store) Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]QueryMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, pkgerr.StoreUnavailable("store is closed", nil)
	}

	fetch := topK
	if filter.restrictive() {
		fetch = topK * filterOversample
	}
	if total := s.vectors.count(); fetch > total {
		fetch = total
	}
	if fetch == 0 {
		return nil, nil
	}

	keys, scores, err := s.vectors.search(vector, fetch)
	if err != nil {
		return nil, err
	}

	records, err := s.meta.getByKeys(keys)
	if err != nil {
		return nil, err
	}

	matches := make([]QueryMatch, 0, topK)
	for i, key := range keys {
		record, ok := records[key]
		if !ok {
			slog.Warn("vector without metadata record", slog.String("identity_key", key))
			continue
		}
		if !filter.matches(&record) {
			continue
		}
		matches = append(matches, QueryMatch{Record: record, Score: scores[i]})
		if len(matches) == topK {
			break
		}
	}
	return matches, nil
}

// Manifest returns the rel_path -> content hash map from the last
// completed builds.
func (s *Store) Manifest() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, pkgerr.StoreUnavailable("store is closed", nil)
	}
	return s.meta.manifest()
}

// Stats summarizes the index contents per content type.
func (s *Store) Stats() (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, pkgerr.StoreUnavailable("store is closed", nil)
	}

	perType, err := s.meta.stats()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		PerType:        perType,
		EmbeddingModel: s.cfg.Model,
		Dimensions:     s.cfg.Dimensions,
	}
	for _, ts := range perType {
		stats.TotalDocuments += ts.Documents
		stats.TotalChunks += ts.Chunks
	}
	return stats, nil
}

// Flush persists the vector graph to disk. SQLite data is durable at
// transaction commit and needs no flushing.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return pkgerr.StoreUnavailable("store is closed", nil)
	}
	if !s.dirty {
		return nil
	}
	if err := s.vectors.save(filepath.Join(s.cfg.DataDir, indexFileName)); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Close flushes and releases the store.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.dirty {
		if err := s.vectors.save(filepath.Join(s.cfg.DataDir, indexFileName)); err != nil {
			s.mu.Unlock()
			return err
		}
		s.dirty = false
	}
	s.closed = true
	s.mu.Unlock()

	s.vectors.close()
	return s.meta.close()
}

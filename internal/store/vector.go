package store

import (
	"bufio"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	pkgerr "github.com/packmcp/packmcp/internal/errors"
)

const (
	hnswM        = 16
	hnswEfSearch = 20
)

// vectorIndex wraps a coder/hnsw graph with string identity keys and
// atomic persistence. Deletion is lazy: the node stays in the graph
// but loses its key mapping, so it never surfaces in results.
type vectorIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	dims    int
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
	closed  bool
}

// vectorMeta is the gob-persisted sidecar holding key mappings.
type vectorMeta struct {
	IDMap      map[string]uint64
	NextKey    uint64
	Dimensions int
}

func newVectorIndex(dims int) *vectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = hnswM
	graph.EfSearch = hnswEfSearch
	graph.Ml = 0.25

	return &vectorIndex{
		graph:  graph,
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// add inserts or replaces vectors by identity key.
func (v *vectorIndex) add(keys []string, vectors [][]float32) error {
	if len(keys) != len(vectors) {
		return pkgerr.New(pkgerr.ErrCodeInternal, "keys and vectors length mismatch", nil)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return pkgerr.StoreUnavailable("vector index is closed", nil)
	}

	for _, vec := range vectors {
		if len(vec) != v.dims {
			return pkgerr.New(pkgerr.ErrCodeDimensionMismatch,
				"vector width does not match index", nil)
		}
	}

	for i, key := range keys {
		if oldKey, exists := v.idMap[key]; exists {
			delete(v.keyMap, oldKey)
			delete(v.idMap, key)
		}

		internal := v.nextKey
		v.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeInPlace(vec)

		v.graph.Add(hnsw.MakeNode(internal, vec))
		v.idMap[key] = internal
		v.keyMap[internal] = key
	}
	return nil
}

// search returns up to k nearest identity keys with similarity scores.
func (v *vectorIndex) search(query []float32, k int) ([]string, []float32, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return nil, nil, pkgerr.StoreUnavailable("vector index is closed", nil)
	}
	if len(query) != v.dims {
		return nil, nil, pkgerr.New(pkgerr.ErrCodeDimensionMismatch,
			"query vector width does not match index", nil)
	}
	if v.graph.Len() == 0 {
		return nil, nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := v.graph.Search(normalized, k)
	keys := make([]string, 0, len(nodes))
	scores := make([]float32, 0, len(nodes))
	for _, node := range nodes {
		id, ok := v.keyMap[node.Key]
		if !ok {
			// lazily deleted node
			continue
		}
		keys = append(keys, id)
		scores = append(scores, distanceToScore(v.graph.Distance(normalized, node.Value)))
	}
	return keys, scores, nil
}

func (v *vectorIndex) delete(keys []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, key := range keys {
		if internal, exists := v.idMap[key]; exists {
			delete(v.keyMap, internal)
			delete(v.idMap, key)
		}
	}
}

func (v *vectorIndex) count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

// save persists the graph and its key mappings with temp-file-and-
// rename so a crash never leaves a torn index on disk.
func (v *vectorIndex) save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return pkgerr.StoreUnavailable("vector index is closed", nil)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return pkgerr.StoreUnavailable("creating index directory", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return pkgerr.StoreUnavailable("creating index file", err)
	}
	if err := v.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return pkgerr.StoreUnavailable("exporting vector graph", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return pkgerr.StoreUnavailable("closing index file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return pkgerr.StoreUnavailable("replacing index file", err)
	}

	return v.saveMeta(path + ".meta")
}

func (v *vectorIndex) saveMeta(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return pkgerr.StoreUnavailable("creating index metadata file", err)
	}

	meta := vectorMeta{IDMap: v.idMap, NextKey: v.nextKey, Dimensions: v.dims}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return pkgerr.StoreUnavailable("encoding index metadata", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return pkgerr.StoreUnavailable("closing index metadata file", err)
	}
	return os.Rename(tmpPath, path)
}

// load restores a previously saved graph. A missing file is not an
// error; the index simply starts empty.
func (v *vectorIndex) load(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return pkgerr.StoreUnavailable("opening index metadata", err)
	}
	var meta vectorMeta
	decodeErr := gob.NewDecoder(metaFile).Decode(&meta)
	metaFile.Close()
	if decodeErr != nil {
		return pkgerr.New(pkgerr.ErrCodeStoreCorrupt, "decoding index metadata", decodeErr)
	}
	if meta.Dimensions != v.dims {
		return pkgerr.New(pkgerr.ErrCodeDimensionMismatch,
			"persisted index has a different embedding width", nil)
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return pkgerr.StoreUnavailable("opening index file", err)
	}
	defer file.Close()

	// coder/hnsw Import needs an io.ByteReader.
	if err := v.graph.Import(bufio.NewReader(file)); err != nil {
		return pkgerr.New(pkgerr.ErrCodeStoreCorrupt, "importing vector graph", err)
	}

	v.idMap = meta.IDMap
	v.nextKey = meta.NextKey
	v.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		v.keyMap[key] = id
	}
	return nil
}

func (v *vectorIndex) close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.graph = nil
}

func normalizeInPlace(vec []float32) {
	var sumSquares float64
	for _, val := range vec {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return
	}
	for i, val := range vec {
		vec[i] = float32(float64(val) / magnitude)
	}
}

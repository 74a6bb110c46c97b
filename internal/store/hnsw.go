package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/Aman-CERP/hybridrag/internal/errors"
)

// SourceLookup returns the source of a chunk id.
type SourceLookup func(id int) (string, bool)

// HNSWIndex is a dense index held in memory by coder/hnsw. Graph keys are
// chunk ids. The graph file is produced by the indexing job with Save.
type HNSWIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	dims    int
	model   string
	sources SourceLookup
	closed  bool
}

// hnswMetadata is persisted next to the graph with a .meta suffix.
type hnswMetadata struct {
	Dimensions int
	Model      string
	Count      int
}

// NewHNSWIndex creates an empty cosine-distance index for vectors of dims
// dimensions. sources resolves source filters; it may be nil when no
// filtered search is issued.
func NewHNSWIndex(dims int, model string, sources SourceLookup) *HNSWIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:   graph,
		dims:    dims,
		model:   model,
		sources: sources,
	}
}

// LoadHNSWIndex loads a graph saved at path.
func LoadHNSWIndex(path string, sources SourceLookup) (*HNSWIndex, error) {
	meta, err := readHNSWMetadata(path + ".meta")
	if err != nil {
		return nil, errors.IndexNotLoaded("dense index", path, err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, errors.IndexNotLoaded("dense index", path, err)
	}
	defer file.Close()

	h := NewHNSWIndex(meta.Dimensions, meta.Model, sources)
	// coder/hnsw Import requires io.ByteReader
	if err := h.graph.Import(bufio.NewReader(file)); err != nil {
		return nil, errors.IndexNotLoaded("dense index", path, fmt.Errorf("import graph: %w", err))
	}
	if h.graph.Len() != meta.Count {
		slog.Warn("hnsw_count_mismatch",
			slog.String("path", path),
			slog.Int("graph", h.graph.Len()),
			slog.Int("meta", meta.Count))
	}

	slog.Info("dense_index_loaded",
		slog.String("backend", BackendHNSW),
		slog.String("path", path),
		slog.Int("vectors", h.graph.Len()),
		slog.Int("dimensions", meta.Dimensions))
	return h, nil
}

func readHNSWMetadata(path string) (hnswMetadata, error) {
	var meta hnswMetadata
	file, err := os.Open(path)
	if err != nil {
		return meta, fmt.Errorf("open metadata file: %w", err)
	}
	defer file.Close()

	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return meta, fmt.Errorf("decode hnsw metadata: %w", err)
	}
	return meta, nil
}

// Add inserts the vector of chunk id.
func (h *HNSWIndex) Add(id int, vector []float32) error {
	if id < 0 {
		return fmt.Errorf("negative chunk id %d", id)
	}
	if len(vector) != h.dims {
		return errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("vector for chunk %d has %d dimensions, index expects %d", id, len(vector), h.dims), nil)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("index is closed")
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	h.graph.Add(hnsw.MakeNode(uint64(id), vec))
	return nil
}

// Save writes the graph to path and its metadata to path.meta, each
// through a temp file and rename.
func (h *HNSWIndex) Save(path string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return fmt.Errorf("index is closed")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := writeAtomic(path, func(f *os.File) error { return h.graph.Export(f) }); err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}
	meta := hnswMetadata{Dimensions: h.dims, Model: h.model, Count: h.graph.Len()}
	if err := writeAtomic(path+".meta", func(f *os.File) error { return gob.NewEncoder(f).Encode(meta) }); err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(file); err != nil {
		file.Close()
		os.Remove(tmp)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Search returns the nearest chunks. With a source filter it oversamples
// the graph until topN matching chunks are found or the graph is exhausted.
func (h *HNSWIndex) Search(ctx context.Context, vector []float32, topN int, source string) ([]Scored, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) != h.dims {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query vector has %d dimensions, index expects %d", len(vector), h.dims), nil)
	}
	total := h.graph.Len()
	if total == 0 || topN <= 0 {
		return []Scored{}, nil
	}
	if source != "" && h.sources == nil {
		return nil, fmt.Errorf("source filter %q needs a source lookup", source)
	}

	k := topN
	if source != "" {
		k = topN * 4
	}
	for {
		if k > total {
			k = total
		}
		results := h.collect(vector, k, topN, source)
		if len(results) >= topN || k == total {
			return results, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		k *= 2
	}
}

func (h *HNSWIndex) collect(vector []float32, k, topN int, source string) []Scored {
	nodes := h.graph.Search(vector, k)
	results := make([]Scored, 0, min(topN, len(nodes)))
	for _, node := range nodes {
		id := int(node.Key)
		if source != "" {
			if src, ok := h.sources(id); !ok || src != source {
				continue
			}
		}
		distance := h.graph.Distance(vector, node.Value)
		results = append(results, Scored{ChunkID: id, Score: 1 - float64(distance)})
		if len(results) == topN {
			break
		}
	}
	return results
}

// Len returns the number of vectors.
func (h *HNSWIndex) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return 0
	}
	return h.graph.Len()
}

// Dimensions returns the vector size.
func (h *HNSWIndex) Dimensions() int {
	return h.dims
}

// Backend implements DenseIndex.
func (h *HNSWIndex) Backend() string {
	return BackendHNSW
}

// Close releases the graph.
func (h *HNSWIndex) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.graph = nil
	return nil
}

var _ DenseIndex = (*HNSWIndex)(nil)

package vectordb

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/diffsec/govern/internal/compliance"
	"github.com/viterin/vek/vek32"
)

// HNSWStore is a vector store façade backed by an in-memory brute-force
// cosine index and a SQLite metadata store. For the collection sizes a
// compliance catalogue produces (low hundreds of chunks), an exhaustive
// scan is simpler than a graph-based index and fast enough, so Search
// just ranks every stored vector rather than navigating a neighbor graph.
type HNSWStore struct {
	config *StoreConfig
	meta   *SQLiteMetaStore
	mu     sync.RWMutex

	vectors  [][]float32
	nextIdx  int
	freeList []int
}

// NewHNSWStore opens (or creates) a store rooted at config.Path.
func NewHNSWStore(config *StoreConfig) (*HNSWStore, error) {
	if err := os.MkdirAll(config.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	meta, err := NewSQLiteMetaStore(filepath.Join(config.Path, "meta.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}

	s := &HNSWStore{config: config, meta: meta}
	if err := s.loadVectors(); err != nil {
		_ = meta.Close()
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	return s, nil
}

func (s *HNSWStore) vectorsPath() string {
	return filepath.Join(s.config.Path, "vectors.bin")
}

// Insert adds a chunk with its embedding.
func (s *HNSWStore) Insert(c *compliance.Chunk, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(c, embedding)
}

func (s *HNSWStore) insertLocked(c *compliance.Chunk, embedding []float32) error {
	if len(embedding) != s.config.Dimension {
		return fmt.Errorf("embedding dimension %d does not match store dimension %d", len(embedding), s.config.Dimension)
	}

	idx := s.allocIndex()
	s.setVector(idx, embedding)

	if err := s.meta.Insert(c, idx); err != nil {
		return fmt.Errorf("failed to insert metadata: %w", err)
	}
	return s.saveVectors()
}

// InsertBatch adds multiple chunks with their embeddings.
func (s *HNSWStore) InsertBatch(chunks []*compliance.Chunk, embeddings [][]float32) error {
	if len(chunks) != len(embeddings) {
		return fmt.Errorf("chunks (%d) and embeddings (%d) length mismatch", len(chunks), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range chunks {
		if len(embeddings[i]) != s.config.Dimension {
			return fmt.Errorf("embedding dimension %d does not match store dimension %d", len(embeddings[i]), s.config.Dimension)
		}
		idx := s.allocIndex()
		s.setVector(idx, embeddings[i])
		if err := s.meta.Insert(c, idx); err != nil {
			return fmt.Errorf("failed to insert metadata for chunk %s: %w", c.ID, err)
		}
	}
	return s.saveVectors()
}

func (s *HNSWStore) allocIndex() int {
	if n := len(s.freeList); n > 0 {
		idx := s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		return idx
	}
	idx := s.nextIdx
	s.nextIdx++
	return idx
}

func (s *HNSWStore) setVector(idx int, v []float32) {
	for len(s.vectors) <= idx {
		s.vectors = append(s.vectors, nil)
	}
	stored := make([]float32, len(v))
	copy(stored, v)
	s.vectors[idx] = stored
}

// Search finds the k nearest chunks to query.
func (s *HNSWStore) Search(query []float32, k int, filter *Filter) (*SearchResults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(query) != s.config.Dimension {
		return nil, fmt.Errorf("query dimension %d does not match store dimension %d", len(query), s.config.Dimension)
	}

	var allowed map[int]bool
	if filter != nil {
		var err error
		allowed, err = s.meta.FilteredChunkIDs(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to apply filter: %w", err)
		}
	}

	type scored struct {
		idx      int
		distance float32
		chunk    *compliance.Chunk
	}
	var candidates []scored
	for idx, v := range s.vectors {
		if v == nil {
			continue
		}
		if allowed != nil && !allowed[idx] {
			continue
		}
		c, err := s.meta.GetByVectorIdx(idx)
		if err != nil {
			continue
		}
		candidates = append(candidates, scored{idx: idx, distance: cosineDistance(query, v), chunk: c})
	}

	// Ties are broken by chunk id ascending, not by the internal vector-array
	// index, so result order is stable across inserts/deletes that reassign
	// indices.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].chunk.ID < candidates[j].chunk.ID
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	if k < 0 {
		k = 0
	}

	results := make([]*SearchResult, 0, k)
	for _, cand := range candidates[:k] {
		if filter != nil && filter.MinScore > 0 {
			score := 1 - cand.distance
			if score < filter.MinScore {
				continue
			}
		}
		results = append(results, &SearchResult{
			Chunk:    cand.chunk,
			Score:    1 - cand.distance,
			Distance: cand.distance,
		})
	}

	return &SearchResults{Results: results, Total: len(candidates)}, nil
}

// Update replaces an existing chunk's embedding.
func (s *HNSWStore) Update(c *compliance.Chunk, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, idx, err := s.meta.Get(c.ID); err == nil {
		if err := s.meta.Delete(c.ID); err != nil {
			return err
		}
		s.releaseIndex(idx)
	}
	return s.insertLocked(c, embedding)
}

// Delete removes a chunk by id.
func (s *HNSWStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, idx, err := s.meta.Get(id)
	if err != nil {
		return err
	}
	if err := s.meta.Delete(c.ID); err != nil {
		return err
	}
	s.releaseIndex(idx)
	return s.saveVectors()
}

// DeleteByControlID removes every chunk belonging to controlID.
func (s *HNSWStore) DeleteByControlID(controlID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	indices, err := s.meta.DeleteByControlID(controlID)
	if err != nil {
		return err
	}
	for _, idx := range indices {
		s.releaseIndex(idx)
	}
	return s.saveVectors()
}

func (s *HNSWStore) releaseIndex(idx int) {
	if idx < len(s.vectors) {
		s.vectors[idx] = nil
	}
	s.freeList = append(s.freeList, idx)
}

// Get retrieves a chunk by id.
func (s *HNSWStore) Get(id string) (*compliance.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, _, err := s.meta.Get(id)
	return c, err
}

// GetByControlID retrieves all chunks for a control.
func (s *HNSWStore) GetByControlID(controlID string) ([]*compliance.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.GetByControlID(controlID)
}

// Count returns the total number of chunks.
func (s *HNSWStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.Count()
}

// CountByFramework returns the number of chunks for a framework.
func (s *HNSWStore) CountByFramework(framework compliance.Framework) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.CountByFramework(framework)
}

// Frameworks returns every framework with at least one chunk.
func (s *HNSWStore) Frameworks() ([]compliance.Framework, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.Frameworks()
}

// Clear removes all data from the store.
func (s *HNSWStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.meta.Clear(); err != nil {
		return err
	}
	s.vectors = nil
	s.nextIdx = 0
	s.freeList = nil
	return s.saveVectors()
}

// Close flushes and closes the store.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.Close()
}

func cosineDistance(a, b []float32) float32 {
	dot := vek32.Dot(a, b)
	normA := float32(math.Sqrt(float64(vek32.Dot(a, a))))
	normB := float32(math.Sqrt(float64(vek32.Dot(b, b))))
	if normA == 0 || normB == 0 {
		return 1
	}
	similarity := dot / (normA * normB)
	if similarity > 1 {
		similarity = 1
	} else if similarity < -1 {
		similarity = -1
	}
	return 1 - similarity
}

// vectorsMagic identifies the vectors.bin format: magic, dimension,
// nextIdx, free-list length/entries, then vector count and each vector's
// presence flag and data, all little-endian.
const vectorsMagic uint32 = 0x56_44_42_31 // "VDB1"

func (s *HNSWStore) saveVectors() error {
	f, err := os.Create(s.vectorsPath())
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.LittleEndian, vectorsMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(s.config.Dimension)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(s.nextIdx)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s.freeList))); err != nil {
		return err
	}
	for _, idx := range s.freeList {
		if err := binary.Write(w, binary.LittleEndian, uint64(idx)); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(s.vectors))); err != nil {
		return err
	}
	for _, v := range s.vectors {
		present := v != nil
		if err := binary.Write(w, binary.LittleEndian, present); err != nil {
			return err
		}
		if present {
			if err := binary.Write(w, binary.LittleEndian, v); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

func (s *HNSWStore) loadVectors() error {
	f, err := os.Open(s.vectorsPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return err
	}
	if magic != vectorsMagic {
		return fmt.Errorf("invalid vectors file header")
	}

	var dimension uint32
	if err := binary.Read(r, binary.LittleEndian, &dimension); err != nil {
		return err
	}
	if s.config.Dimension == 0 {
		s.config.Dimension = int(dimension)
	}

	var nextIdx uint64
	if err := binary.Read(r, binary.LittleEndian, &nextIdx); err != nil {
		return err
	}
	s.nextIdx = int(nextIdx)

	var freeListLen uint64
	if err := binary.Read(r, binary.LittleEndian, &freeListLen); err != nil {
		return err
	}
	s.freeList = make([]int, freeListLen)
	for i := range s.freeList {
		var idx uint64
		if err := binary.Read(r, binary.LittleEndian, &idx); err != nil {
			return err
		}
		s.freeList[i] = int(idx)
	}

	var vectorCount uint64
	if err := binary.Read(r, binary.LittleEndian, &vectorCount); err != nil {
		return err
	}
	s.vectors = make([][]float32, vectorCount)
	for i := range s.vectors {
		var present bool
		if err := binary.Read(r, binary.LittleEndian, &present); err != nil {
			return err
		}
		if present {
			v := make([]float32, dimension)
			if err := binary.Read(r, binary.LittleEndian, v); err != nil {
				return err
			}
			s.vectors[i] = v
		}
	}
	return nil
}

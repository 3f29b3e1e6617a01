// Package vectordb is the vector store façade: it persists compliance
// chunks alongside their embeddings and answers top-k cosine-similarity
// queries. The store is embedding-model agnostic; the dimension is fixed by
// whichever embedding provider produced the vectors it holds.
package vectordb

import (
	"github.com/diffsec/govern/internal/compliance"
)

// Filter narrows a Search call to a subset of the collection.
type Filter struct {
	// Frameworks restricts results to these compliance frameworks.
	Frameworks []compliance.Framework
	// ControlIDs restricts results to these control ids.
	ControlIDs []string
	// MinScore drops results below this similarity score.
	MinScore float32
}

// SearchResult is a single hit from a Search call.
type SearchResult struct {
	Chunk    *compliance.Chunk
	Score    float32
	Distance float32
}

// SearchResults bundles the hits from a single Search call.
type SearchResults struct {
	Results []*SearchResult
	Total   int
	Query   string
}

// Store is the vector store façade's interface: upsert, query, count, and
// the housekeeping every façade implementation needs (delete, reset).
type Store interface {
	// Insert adds a chunk with its embedding to the store.
	Insert(c *compliance.Chunk, embedding []float32) error

	// InsertBatch adds multiple chunks with their embeddings (upsert).
	InsertBatch(chunks []*compliance.Chunk, embeddings [][]float32) error

	// Search finds the k most similar chunks to the query embedding. k is
	// capped at the smaller of the requested value and the collection size;
	// ties are broken by chunk id ascending.
	Search(query []float32, k int, filter *Filter) (*SearchResults, error)

	// Update replaces an existing chunk's embedding.
	Update(c *compliance.Chunk, embedding []float32) error

	// Delete removes a chunk by id.
	Delete(id string) error

	// DeleteByControlID removes all chunks for a control.
	DeleteByControlID(controlID string) error

	// Get retrieves a chunk by id.
	Get(id string) (*compliance.Chunk, error)

	// GetByControlID retrieves all chunks for a control.
	GetByControlID(controlID string) ([]*compliance.Chunk, error)

	// Count returns the total number of chunks (the admin `count()` op).
	Count() (int, error)

	// CountByFramework returns the number of chunks for a framework.
	CountByFramework(framework compliance.Framework) (int, error)

	// Frameworks returns every framework with at least one chunk.
	Frameworks() ([]compliance.Framework, error)

	// Clear removes all data from the store (the admin `reset()` op).
	Clear() error

	// Close closes the store and releases resources.
	Close() error
}

// StoreConfig configures a Store implementation.
type StoreConfig struct {
	// Path is the directory for store data.
	Path string
	// Dimension is the embedding dimension (producer-specified).
	Dimension int
	// M, EfConstruction, EfSearch are graph-index tuning parameters; the
	// brute-force HNSWStore does not read them.
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultStoreConfig returns a reasonable default configuration.
func DefaultStoreConfig(path string, dimension int) *StoreConfig {
	return &StoreConfig{
		Path:           path,
		Dimension:      dimension,
		M:              16,
		EfConstruction: 200,
		EfSearch:       50,
	}
}

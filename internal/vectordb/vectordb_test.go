package vectordb

import (
	"path/filepath"
	"testing"

	"github.com/diffsec/govern/internal/compliance"
)

func newTestStore(t *testing.T) *HNSWStore {
	t.Helper()
	cfg := DefaultStoreConfig(t.TempDir(), 4)
	s, err := NewHNSWStore(cfg)
	if err != nil {
		t.Fatalf("NewHNSWStore failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestInsertAndSearchReturnsClosestFirst(t *testing.T) {
	s := newTestStore(t)

	a := compliance.NewChunk(compliance.NISTCSF, "PR.AC-4", "Access Permissions", "text a", 0, nil)
	b := compliance.NewChunk(compliance.NISTCSF, "PR.AC-1", "Identity Management", "text b", 0, nil)

	if err := s.Insert(a, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := s.Insert(b, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("insert b: %v", err)
	}

	results, err := s.Search([]float32{1, 0, 0, 0}, 1, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results.Results))
	}
	if results.Results[0].Chunk.ControlID != "PR.AC-4" {
		t.Errorf("expected closest match PR.AC-4, got %s", results.Results[0].Chunk.ControlID)
	}
}

func TestSearchKCappedAtCollectionSize(t *testing.T) {
	s := newTestStore(t)
	c := compliance.NewChunk(compliance.ISO27001, "A.9.1.1", "t", "x", 0, nil)
	if err := s.Insert(c, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	results, err := s.Search([]float32{1, 0, 0, 0}, 5, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results.Results) != 1 {
		t.Fatalf("expected k capped at 1, got %d", len(results.Results))
	}
}

func TestSearchTiesBrokenByChunkIDAscending(t *testing.T) {
	s := newTestStore(t)

	a := compliance.NewChunk(compliance.NISTCSF, "PR.AC-4", "t", "x", 0, nil)
	b := compliance.NewChunk(compliance.NISTCSF, "PR.AC-1", "t", "x", 0, nil)

	// Identical embeddings put both chunks at the same distance from the
	// query, so the tie must be broken by id rather than insertion order.
	if err := s.Insert(a, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := s.Insert(b, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("insert b: %v", err)
	}

	results, err := s.Search([]float32{1, 0, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results.Results) != 2 {
		t.Fatalf("expected 2 tied results, got %d", len(results.Results))
	}

	wantFirst, wantSecond := a.ID, b.ID
	if b.ID < a.ID {
		wantFirst, wantSecond = b.ID, a.ID
	}
	if results.Results[0].Chunk.ID != wantFirst || results.Results[1].Chunk.ID != wantSecond {
		t.Errorf("tie order = [%s, %s], want [%s, %s]",
			results.Results[0].Chunk.ID, results.Results[1].Chunk.ID, wantFirst, wantSecond)
	}
}

func TestSearchFilterByFramework(t *testing.T) {
	s := newTestStore(t)
	nist := compliance.NewChunk(compliance.NISTCSF, "PR.AC-4", "t", "x", 0, nil)
	iso := compliance.NewChunk(compliance.ISO27001, "A.9.1.1", "t", "x", 0, nil)

	if err := s.Insert(nist, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("insert nist: %v", err)
	}
	if err := s.Insert(iso, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("insert iso: %v", err)
	}

	results, err := s.Search([]float32{1, 0, 0, 0}, 10, &Filter{Frameworks: []compliance.Framework{compliance.ISO27001}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results.Results) != 1 || results.Results[0].Chunk.Framework != compliance.ISO27001 {
		t.Fatalf("expected only ISO 27001 results, got %+v", results.Results)
	}
}

func TestDeleteByControlIDFreesIndexForReuse(t *testing.T) {
	s := newTestStore(t)
	c := compliance.NewChunk(compliance.NISTCSF, "PR.AC-4", "t", "x", 0, nil)
	if err := s.Insert(c, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.DeleteByControlID("PR.AC-4"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	count, err := s.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 chunks after delete, got %d", count)
	}

	c2 := compliance.NewChunk(compliance.NISTCSF, "PR.AC-5", "t2", "x2", 0, nil)
	if err := s.Insert(c2, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	got, err := s.Get(c2.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ControlID != "PR.AC-5" {
		t.Fatalf("expected PR.AC-5, got %s", got.ControlID)
	}
}

func TestSearchResultsPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultStoreConfig(dir, 4)

	s1, err := NewHNSWStore(cfg)
	if err != nil {
		t.Fatalf("open 1: %v", err)
	}
	chunks := []*compliance.Chunk{
		compliance.NewChunk(compliance.NISTCSF, "PR.AC-4", "t1", "x1", 0, nil),
		compliance.NewChunk(compliance.NISTCSF, "PR.AC-1", "t2", "x2", 0, nil),
	}
	embeddings := [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}
	if err := s1.InsertBatch(chunks, embeddings); err != nil {
		t.Fatalf("insert batch: %v", err)
	}
	first, err := s1.Search([]float32{1, 0, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("search 1: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("close 1: %v", err)
	}

	cfg2 := DefaultStoreConfig(dir, 4)
	s2, err := NewHNSWStore(cfg2)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })

	second, err := s2.Search([]float32{1, 0, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("search 2: %v", err)
	}
	if len(first.Results) != len(second.Results) {
		t.Fatalf("result counts differ across reopen: %d vs %d", len(first.Results), len(second.Results))
	}
	for i := range first.Results {
		if first.Results[i].Chunk.ID != second.Results[i].Chunk.ID {
			t.Errorf("result %d id differs across reopen: %s vs %s", i, first.Results[i].Chunk.ID, second.Results[i].Chunk.ID)
		}
	}
}

func TestMetaDBPathIsNested(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultStoreConfig(filepath.Join(dir, "store"), 4)
	s, err := NewHNSWStore(cfg)
	if err != nil {
		t.Fatalf("NewHNSWStore: %v", err)
	}
	defer func() { _ = s.Close() }()
}

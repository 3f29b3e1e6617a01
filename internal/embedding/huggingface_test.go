package embedding

import (
	"encoding/json"
	"testing"
)

func TestDecodeHuggingFaceSentenceBatch(t *testing.T) {
	raw := json.RawMessage(`[[1,2],[3,4]]`)
	embeddings, err := decodeHuggingFaceEmbeddings(raw, 2)
	if err != nil {
		t.Fatalf("decode returned error: %v", err)
	}
	if len(embeddings) != 2 || embeddings[1][0] != 3 {
		t.Errorf("embeddings = %v, want [[1 2] [3 4]]", embeddings)
	}
}

func TestDecodeHuggingFaceSingleVector(t *testing.T) {
	raw := json.RawMessage(`[1,2,3]`)
	embeddings, err := decodeHuggingFaceEmbeddings(raw, 1)
	if err != nil {
		t.Fatalf("decode returned error: %v", err)
	}
	if len(embeddings) != 1 || len(embeddings[0]) != 3 {
		t.Errorf("embeddings = %v, want one 3-wide vector", embeddings)
	}
}

func TestDecodeHuggingFaceTokenMatrixForSingleInputIsPooled(t *testing.T) {
	// Three token vectors for one input; the pooled vector is their mean.
	raw := json.RawMessage(`[[1,1],[2,2],[3,3]]`)
	embeddings, err := decodeHuggingFaceEmbeddings(raw, 1)
	if err != nil {
		t.Fatalf("decode returned error: %v", err)
	}
	if len(embeddings) != 1 {
		t.Fatalf("len(embeddings) = %d, want 1", len(embeddings))
	}
	if embeddings[0][0] != 2 || embeddings[0][1] != 2 {
		t.Errorf("pooled vector = %v, want [2 2]", embeddings[0])
	}
}

func TestDecodeHuggingFaceTokenBatchIsPooledPerInput(t *testing.T) {
	raw := json.RawMessage(`[[[1,1],[3,3]],[[5,5],[7,7]]]`)
	embeddings, err := decodeHuggingFaceEmbeddings(raw, 2)
	if err != nil {
		t.Fatalf("decode returned error: %v", err)
	}
	if len(embeddings) != 2 {
		t.Fatalf("len(embeddings) = %d, want 2", len(embeddings))
	}
	if embeddings[0][0] != 2 || embeddings[1][0] != 6 {
		t.Errorf("pooled vectors = %v, want means [2 2] and [6 6]", embeddings)
	}
}

func TestDecodeHuggingFaceRowCountMismatch(t *testing.T) {
	raw := json.RawMessage(`[[1,2],[3,4],[5,6]]`)
	if _, err := decodeHuggingFaceEmbeddings(raw, 2); err == nil {
		t.Fatal("expected error when row count matches neither input count nor a single token matrix")
	}
}

func TestDecodeHuggingFaceUnknownShape(t *testing.T) {
	raw := json.RawMessage(`{"error":"loading"}`)
	if _, err := decodeHuggingFaceEmbeddings(raw, 1); err == nil {
		t.Fatal("expected error for unknown response shape")
	}
}

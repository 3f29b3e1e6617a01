package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const huggingFaceInferenceURL = "https://router.huggingface.co/hf-inference/models/"

// huggingFaceTimeout is longer than the shared default because the
// Inference API cold-starts models; the first ingestion batch after a quiet
// period can wait on model load.
const huggingFaceTimeout = 120 * time.Second

// HuggingFaceProvider embeds through the Hugging Face Inference API.
// Depending on the model, the API answers with sentence-level vectors or
// token-level matrices; token-level responses are mean-pooled down to one
// vector per input.
type HuggingFaceProvider struct {
	model  string
	apiKey string
	dim    int
	batch  int
	client *http.Client
}

type huggingFaceRequest struct {
	Inputs  any            `json:"inputs"`
	Options map[string]any `json:"options,omitempty"`
}

func newHuggingFace(cfg Config, apiKey string) *HuggingFaceProvider {
	return &HuggingFaceProvider{
		model:  cfg.Model,
		apiKey: apiKey,
		dim:    cfg.Dimension,
		batch:  cfg.IngestBatchSize,
		client: newHTTPClient(huggingFaceTimeout),
	}
}

func (p *HuggingFaceProvider) Name() string { return "huggingface" }

func (p *HuggingFaceProvider) Dimension() int { return p.dim }

func (p *HuggingFaceProvider) Close() error { return nil }

// Embed generates an embedding for a single text.
func (p *HuggingFaceProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.embedSlice(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch embeds texts in IngestBatchSize-bounded requests, preserving
// input order.
func (p *HuggingFaceProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += p.batch {
		end := start + p.batch
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.embedSlice(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		copy(embeddings[start:end], batch)
	}
	return embeddings, nil
}

func (p *HuggingFaceProvider) embedSlice(ctx context.Context, texts []string) ([][]float32, error) {
	var input any = texts
	if len(texts) == 1 {
		input = texts[0]
	}
	req := huggingFaceRequest{
		Inputs: input,
		// wait_for_model holds the request through a cold start instead of
		// failing with a 503 the caller would have to retry.
		Options: map[string]any{"wait_for_model": true},
	}

	var raw json.RawMessage
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	if err := postJSON(ctx, p.client, "huggingface", huggingFaceInferenceURL+p.model, headers, req, &raw); err != nil {
		return nil, err
	}

	embeddings, err := decodeHuggingFaceEmbeddings(raw, len(texts))
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding: huggingface: got %d embeddings for %d inputs", len(embeddings), len(texts))
	}
	return embeddings, nil
}

// decodeHuggingFaceEmbeddings tries the response shapes the Inference API
// produces across models: a 2D batch of sentence vectors, a single 1D
// vector, or token-level matrices (3D batch, or 2D for a single input)
// that are mean-pooled. A 2D response is ambiguous between "batch of
// sentence vectors" and "token matrix for one input"; want (the input
// count) disambiguates.
func decodeHuggingFaceEmbeddings(raw json.RawMessage, want int) ([][]float32, error) {
	var matrix [][]float64
	if err := json.Unmarshal(raw, &matrix); err == nil && len(matrix) > 0 && len(matrix[0]) > 0 {
		if len(matrix) == want {
			embeddings := make([][]float32, len(matrix))
			for i, row := range matrix {
				embeddings[i] = toFloat32(row)
			}
			return embeddings, nil
		}
		if want == 1 {
			return [][]float32{meanPool(matrix)}, nil
		}
		return nil, fmt.Errorf("embedding: huggingface: got %d rows for %d inputs", len(matrix), want)
	}

	var single []float64
	if err := json.Unmarshal(raw, &single); err == nil && len(single) > 0 {
		return [][]float32{toFloat32(single)}, nil
	}

	var tokenBatch [][][]float64
	if err := json.Unmarshal(raw, &tokenBatch); err == nil && len(tokenBatch) > 0 {
		embeddings := make([][]float32, len(tokenBatch))
		for i, tokens := range tokenBatch {
			embeddings[i] = meanPool(tokens)
		}
		return embeddings, nil
	}

	return nil, fmt.Errorf("embedding: huggingface: response matched no known embedding shape")
}

// meanPool averages token-level embeddings into one sentence vector.
func meanPool(tokens [][]float64) []float32 {
	if len(tokens) == 0 {
		return nil
	}
	dim := len(tokens[0])
	pooled := make([]float32, dim)
	for _, token := range tokens {
		for i, v := range token {
			if i < dim {
				pooled[i] += float32(v)
			}
		}
	}
	n := float32(len(tokens))
	for i := range pooled {
		pooled[i] /= n
	}
	return pooled
}

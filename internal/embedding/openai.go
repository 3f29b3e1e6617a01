package embedding

import (
	"context"
	"fmt"
	"net/http"
)

const openAIEmbedURL = "https://api.openai.com/v1/embeddings"

// OpenAIProvider embeds through OpenAI's embeddings API. Catalogue
// ingestion sends chunk texts in batches of IngestBatchSize per request;
// the API returns rows tagged with their input index, which is used to
// restore input order.
type OpenAIProvider struct {
	model  string
	apiKey string
	dim    int
	batch  int
	client *http.Client
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

func newOpenAI(cfg Config, apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		model:  cfg.Model,
		apiKey: apiKey,
		dim:    cfg.Dimension,
		batch:  cfg.IngestBatchSize,
		client: newHTTPClient(defaultHTTPTimeout),
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Dimension() int { return p.dim }

// Embed generates an embedding for a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.embedSlice(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch embeds texts in IngestBatchSize-bounded requests, preserving
// input order.
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

func (p *OpenAIProvider) embedSlice(ctx context.Context, texts []string) ([][]float32, error) {
	var resp openAIEmbedResponse
	req := openAIEmbedRequest{Model: p.model, Input: texts}
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	if err := postJSON(ctx, p.client, "openai", openAIEmbedURL, headers, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding: openai: got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, row := range resp.Data {
		if row.Index < 0 || row.Index >= len(texts) {
			return nil, fmt.Errorf("embedding: openai: response index %d out of range", row.Index)
		}
		embeddings[row.Index] = toFloat32(row.Embedding)
	}
	return embeddings, nil
}

func (p *OpenAIProvider) Close() error { return nil }

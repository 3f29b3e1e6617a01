package embedding

import (
	"context"
	"fmt"
	"net/http"
)

// OllamaProvider embeds through a local Ollama server. Ollama has no batch
// endpoint, so catalogue ingestion iterates chunk by chunk; for the few
// hundred chunks a catalogue produces that is acceptable against a local
// backend.
type OllamaProvider struct {
	model    string
	endpoint string
	dim      int
	client   *http.Client
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func newOllama(cfg Config) *OllamaProvider {
	return &OllamaProvider{
		model:    cfg.Model,
		endpoint: cfg.Endpoint,
		dim:      cfg.Dimension,
		client:   newHTTPClient(defaultHTTPTimeout),
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Dimension() int { return p.dim }

// Embed generates an embedding for a single text.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp ollamaEmbedResponse
	req := ollamaEmbedRequest{Model: p.model, Prompt: text}
	if err := postJSON(ctx, p.client, "ollama", p.endpoint+"/api/embeddings", nil, req, &resp); err != nil {
		return nil, err
	}
	return toFloat32(resp.Embedding), nil
}

// EmbedBatch embeds texts sequentially, checking for cancellation between
// requests so a long catalogue ingest can be interrupted.
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		embedding, err := p.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding: ollama: text %d of %d: %w", i+1, len(texts), err)
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

func (p *OllamaProvider) Close() error { return nil }

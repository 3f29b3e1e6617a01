// Package embedding provides the pluggable text-embedding backends the
// pipeline uses in two places: embedding one retrieval query per
// vulnerability during generation, and bulk-embedding compliance catalogue
// chunks during an admin ingest. Backends differ in transport, auth, and
// batch shape; the Provider interface hides all three.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
)

// ErrProviderUnavailable wraps any transport failure or non-2xx response
// from a backend (connection refused, timeout, API error body), so callers
// can distinguish "the backend rejected/could not be reached" from a local
// configuration mistake without parsing message text.
var ErrProviderUnavailable = errors.New("embedding: provider unavailable")

// Provider embeds text into the fixed-dimension vector space the vector
// store indexes. Embed serves per-vulnerability retrieval queries;
// EmbedBatch serves catalogue ingestion.
type Provider interface {
	// Name returns the backend name.
	Name() string
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch generates embeddings for multiple texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimension is the width of the vectors this provider produces. The
	// vector store is opened at this dimension.
	Dimension() int
	// Close releases any resources.
	Close() error
}

// Config selects and tunes a backend.
type Config struct {
	// Backend is "ollama", "openai", or "huggingface".
	Backend string
	// Model overrides the backend's default embedding model.
	Model string
	// Endpoint overrides the backend's default URL (ollama only).
	Endpoint string
	// APIKeyEnv names the environment variable holding the API key, for
	// backends that need one.
	APIKeyEnv string
	// Dimension overrides the model's known vector width.
	Dimension int
	// IngestBatchSize caps how many catalogue chunks are embedded per
	// request during ingestion. A full two-framework catalogue chunks to a
	// few hundred rows, so even small caps finish ingestion in a handful
	// of requests; the defaults stay conservative to bound payload size.
	IngestBatchSize int
}

var backendDefaults = map[string]Config{
	"ollama": {
		Backend:         "ollama",
		Model:           "nomic-embed-text",
		Endpoint:        "http://localhost:11434",
		Dimension:       768,
		IngestBatchSize: 1, // no batch API; chunks are embedded one by one
	},
	"openai": {
		Backend:         "openai",
		Model:           "text-embedding-3-small",
		APIKeyEnv:       "OPENAI_API_KEY",
		Dimension:       1536,
		IngestBatchSize: 100,
	},
	"huggingface": {
		Backend:         "huggingface",
		Model:           "BAAI/bge-small-en-v1.5",
		APIKeyEnv:       "HF_API_KEY",
		Dimension:       384,
		IngestBatchSize: 32,
	},
}

// Backends returns the supported backend names.
func Backends() []string {
	return []string{"ollama", "openai", "huggingface"}
}

// New builds a Provider from cfg, filling unset fields from the backend's
// defaults. Backends that need an API key fail here, not at first use, so a
// misconfigured ingest aborts before any chunking work happens.
func New(cfg *Config) (Provider, error) {
	defaults, ok := backendDefaults[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("embedding: unknown backend %q", cfg.Backend)
	}

	resolved := *cfg
	if resolved.Model == "" {
		resolved.Model = defaults.Model
	}
	if resolved.Endpoint == "" {
		resolved.Endpoint = defaults.Endpoint
	}
	if resolved.APIKeyEnv == "" {
		resolved.APIKeyEnv = defaults.APIKeyEnv
	}
	if resolved.Dimension == 0 {
		resolved.Dimension = defaults.Dimension
	}
	if resolved.IngestBatchSize == 0 {
		resolved.IngestBatchSize = ingestBatchSizeFromEnv(defaults.IngestBatchSize)
	}

	switch resolved.Backend {
	case "ollama":
		return newOllama(resolved), nil
	case "openai":
		key, err := apiKeyFromEnv(resolved.APIKeyEnv)
		if err != nil {
			return nil, fmt.Errorf("embedding: openai: %w", err)
		}
		return newOpenAI(resolved, key), nil
	default:
		key, err := apiKeyFromEnv(resolved.APIKeyEnv)
		if err != nil {
			return nil, fmt.Errorf("embedding: huggingface: %w", err)
		}
		return newHuggingFace(resolved, key), nil
	}
}

// NewDefault builds a Provider for backend using its default configuration.
func NewDefault(backend string) (Provider, error) {
	return New(&Config{Backend: backend})
}

func apiKeyFromEnv(envVar string) (string, error) {
	key := os.Getenv(envVar)
	if key == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	return key, nil
}

// ingestBatchSizeFromEnv applies the GOVERN_INGEST_BATCH_SIZE override, for
// operators re-ingesting unusually large catalogue manifests.
func ingestBatchSizeFromEnv(fallback int) int {
	if raw := os.Getenv("GOVERN_INGEST_BATCH_SIZE"); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil && size > 0 {
			return size
		}
	}
	return fallback
}

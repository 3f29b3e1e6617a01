package embedding

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPostJSONDecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("Authorization = %q, want Bearer k", r.Header.Get("Authorization"))
		}
		_, _ = w.Write([]byte(`{"embedding":[0.5,1.5]}`))
	}))
	t.Cleanup(srv.Close)

	var resp ollamaEmbedResponse
	headers := map[string]string{"Authorization": "Bearer k"}
	err := postJSON(context.Background(), srv.Client(), "test", srv.URL, headers, map[string]string{"input": "x"}, &resp)
	if err != nil {
		t.Fatalf("postJSON returned error: %v", err)
	}
	if len(resp.Embedding) != 2 || resp.Embedding[0] != 0.5 {
		t.Errorf("decoded embedding = %v, want [0.5 1.5]", resp.Embedding)
	}
}

func TestPostJSONNon2xxWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	var out map[string]any
	err := postJSON(context.Background(), srv.Client(), "test", srv.URL, nil, nil, &out)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want wrapping ErrProviderUnavailable", err)
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("err = %v, want response body echoed", err)
	}
}

func TestPostJSONTransportFailureWrapsSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	var out map[string]any
	err := postJSON(context.Background(), newHTTPClient(defaultHTTPTimeout), "test", srv.URL, nil, nil, &out)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("err = %v, want wrapping ErrProviderUnavailable", err)
	}
}

func TestOllamaEmbedBatchPreservesOrder(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// Distinguishable vectors per call so order is observable.
		if calls == 1 {
			_, _ = w.Write([]byte(`{"embedding":[1,0]}`))
		} else {
			_, _ = w.Write([]byte(`{"embedding":[0,1]}`))
		}
	}))
	t.Cleanup(srv.Close)

	p := newOllama(Config{Model: "m", Endpoint: srv.URL, Dimension: 2, IngestBatchSize: 1})
	embeddings, err := p.EmbedBatch(context.Background(), []string{"first", "second"})
	if err != nil {
		t.Fatalf("EmbedBatch returned error: %v", err)
	}
	if len(embeddings) != 2 {
		t.Fatalf("len(embeddings) = %d, want 2", len(embeddings))
	}
	if embeddings[0][0] != 1 || embeddings[1][1] != 1 {
		t.Errorf("embeddings out of order: %v", embeddings)
	}
}

func TestOllamaEmbedBatchStopsOnCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[1]}`))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newOllama(Config{Model: "m", Endpoint: srv.URL, Dimension: 1, IngestBatchSize: 1})
	if _, err := p.EmbedBatch(ctx, []string{"a", "b"}); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

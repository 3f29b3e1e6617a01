package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultHTTPTimeout bounds a single embedding request. Ingestion embeds
// batches sequentially, so a hung backend stalls the admin command, never a
// pipeline run; retrieval queries are one short text each.
const defaultHTTPTimeout = 60 * time.Second

// maxErrorBodyBytes bounds how much of an error response body is echoed
// into the wrapped error message.
const maxErrorBodyBytes = 512

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// postJSON marshals reqBody, POSTs it to url, and decodes the 2xx response
// into out. Transport failures and non-2xx statuses wrap
// ErrProviderUnavailable with the backend name and a bounded slice of the
// response body.
func postJSON(ctx context.Context, client *http.Client, backend, url string, headers map[string]string, reqBody, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("embedding: %s: marshaling request: %w", backend, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("embedding: %s: building request: %w", backend, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrProviderUnavailable, backend, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("embedding: %s: reading response: %w", backend, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := respBody
		if len(snippet) > maxErrorBodyBytes {
			snippet = snippet[:maxErrorBodyBytes]
		}
		return fmt.Errorf("%w: %s returned status %d: %s", ErrProviderUnavailable, backend, resp.StatusCode, string(snippet))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("embedding: %s: decoding response: %w", backend, err)
	}
	return nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

// Package llmclient defines the minimal synchronous generation contract the
// orchestrator uses to drive policy generation, and ships a deterministic
// mock implementation for tests and local runs where no real model backend
// is configured. The concrete HTTP client for a real provider is an
// external collaborator this package only defines the interface for.
package llmclient

import (
	"context"
	"errors"
	"fmt"
)

// ErrGenerationFailed is returned (wrapped with provider detail) on any
// transport failure or timeout, so the orchestrator can attribute the
// failure to a single finding without aborting the run.
var ErrGenerationFailed = errors.New("llmclient: generation failed")

// DefaultTimeout is the per-call timeout an implementation should apply
// when the caller's context carries no deadline.
const DefaultTimeout = 60 // seconds

// Client is the synchronous generation interface. Implementations are not
// required to be deterministic for the same prompt/parameters; they must
// respect ctx cancellation and surface transport failures as errors
// wrapping ErrGenerationFailed.
type Client interface {
	// Generate produces policy text from the given prompts and sampling
	// parameters.
	Generate(ctx context.Context, userPrompt, systemPrompt string, temperature float64, maxTokens int) (string, error)

	// Label returns an informational model label recorded on PolicyResult.
	Label() string
}

// MockClient is a deterministic stand-in used by tests and local `govern
// run` invocations with no backend configured: it returns the prompt it
// received with a fixed suffix, so callers can assert on prompt assembly
// without depending on a real model's output.
type MockClient struct {
	// ModelLabel is returned by Label and recorded on PolicyResult.
	ModelLabel string
	// FailAlways, when set, makes every Generate call fail, exercising
	// the orchestrator's per-finding error isolation.
	FailAlways bool
	// FailOn, when non-nil, reports whether a given user prompt should fail,
	// for tests that need one specific finding to fail mid-run.
	FailOn func(userPrompt string) bool
}

// NewMockClient builds a MockClient labelled label.
func NewMockClient(label string) *MockClient {
	return &MockClient{ModelLabel: label}
}

// Generate returns userPrompt concatenated with the literal "||POLICY"
// marker, so tests can assert on exactly what was assembled upstream.
func (m *MockClient) Generate(ctx context.Context, userPrompt, systemPrompt string, temperature float64, maxTokens int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if m.FailAlways || (m.FailOn != nil && m.FailOn(userPrompt)) {
		return "", fmt.Errorf("%w: mock client configured to fail", ErrGenerationFailed)
	}
	return userPrompt + "||POLICY", nil
}

// Label returns the mock's configured label.
func (m *MockClient) Label() string {
	if m.ModelLabel == "" {
		return "mock"
	}
	return m.ModelLabel
}

// Package llmresult holds the data-model types shared across the pipeline's
// back half (PolicyResult, the progress event, per-type parse counts) so
// that the orchestrator, coverage analyser, comparator, and renderers can
// all depend on them without an import cycle back into the orchestrator
// itself.
package llmresult

import (
	"github.com/diffsec/govern/internal/vuln"
)

// PolicyResult ties one generated governance policy to exactly one source
// finding. Exactly one of PolicyText/Error is non-empty.
type PolicyResult struct {
	Vulnerability     vuln.Vulnerability `json:"vulnerability"`
	VulnType          vuln.Type          `json:"vuln_type"`
	PolicyText        string             `json:"policy_text,omitempty"`
	ModelLabel        string             `json:"model_label"`
	ComplianceContext string             `json:"compliance_context"`
	Error             string             `json:"error,omitempty"`
}

// Phase is a stage of the orchestrator's pipeline state machine.
type Phase string

const (
	PhaseParsing              Phase = "parsing"
	PhaseRAG                  Phase = "rag"
	PhaseLLMGeneration        Phase = "llm_generation"
	PhaseComplianceValidation Phase = "compliance_validation"
	PhaseSaving               Phase = "saving"
	PhaseComplete             Phase = "complete"
	PhaseError                Phase = "error"
)

// Status is the outcome reported alongside a Phase.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusWarning    Status = "warning"
)

// Progress is a single pipeline event. Events are monotonic per phase in
// enqueue order.
type Progress struct {
	Phase   Phase          `json:"phase"`
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Sink is the progress callback the orchestrator drives. Implementations
// must not block the caller; the orchestrator treats a panicking/erroring
// sink as non-fatal.
type Sink func(Progress)

// ParsedCounts is the per-type finding count recorded on a RunResult.
type ParsedCounts struct {
	SAST int `json:"sast"`
	SCA  int `json:"sca"`
	DAST int `json:"dast"`
}

// Package orchestrator drives the end-to-end pipeline: parse the present
// inputs, retrieve compliance context per finding, generate a policy via
// the routed LLM client, analyse catalogue coverage, and (if a renderer is
// wired) save the result, broadcasting progress throughout.
//
// The pipeline is logically single-threaded per run (parse → retrieve →
// generate → analyse is linear). Parsing the three input types runs in
// parallel goroutines since the parsers share no state; generation is
// strictly sequential so PolicyResult order matches the work-list's
// enqueue order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/diffsec/govern/internal/compare"
	"github.com/diffsec/govern/internal/compliance"
	"github.com/diffsec/govern/internal/coverage"
	"github.com/diffsec/govern/internal/llmclient"
	"github.com/diffsec/govern/internal/llmresult"
	"github.com/diffsec/govern/internal/parse/dast"
	"github.com/diffsec/govern/internal/parse/sast"
	"github.com/diffsec/govern/internal/parse/sca"
	"github.com/diffsec/govern/internal/prompt"
	"github.com/diffsec/govern/internal/rag"
	"github.com/diffsec/govern/internal/severity"
	"github.com/diffsec/govern/internal/vuln"
)

// ErrEmptyInput is returned immediately when none of sast/sca/dast sources
// are supplied.
var ErrEmptyInput = errors.New("orchestrator: no input supplied")

// ErrCancelled is recorded (as an error progress event reason) when ctx is
// cancelled at one of the four suspension points.
var ErrCancelled = errors.New("orchestrator: run cancelled")

// Renderer is the external report-renderer collaborator: it receives an
// immutable RunResult and returns the file paths it wrote. PDF/HTML/TXT
// style is entirely the renderer's concern; this package only specifies the
// schema it consumes.
type Renderer interface {
	Render(result *RunResult) ([]string, error)
}

// RunResult is the immutable value produced by a run and handed to
// renderers.
type RunResult struct {
	RunID        string                   `json:"run_id"`
	Results      []llmresult.PolicyResult `json:"results"`
	ParsedCounts llmresult.ParsedCounts   `json:"parsed_counts"`
	Coverage     coverage.Report          `json:"coverage"`
	Timestamp    time.Time                `json:"timestamp"`
	// Comparison is nil unless a caller runs the optional policy-comparator
	// step and attaches its result; the orchestrator itself never invokes
	// the comparator.
	Comparison *compare.Report `json:"comparison,omitempty"`
}

// Config wires every collaborator the orchestrator drives. SASTSource,
// SCASource, DASTSource are raw input blobs; a nil slice means "absent".
type Config struct {
	SASTSource []byte
	SCASource  []byte
	DASTSource []byte

	MaxPerType int

	LargeClient llmclient.Client // routed SAST, SCA
	SmallClient llmclient.Client // routed DAST

	Retriever *rag.Retriever
	Catalogue *compliance.Catalogue

	// Renderer is optional; when nil, the SAVING phase is a no-op beyond
	// its progress events.
	Renderer Renderer

	Emit llmresult.Sink

	// Temperature and MaxTokens are passed through to every Generate call.
	Temperature float64
	MaxTokens   int
}

func (c *Config) emit(p llmresult.Progress) {
	if c.Emit == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("orchestrator: progress sink panicked: %v", r)
		}
	}()
	c.Emit(p)
}

// analyseCoverage runs coverage analysis and, when the catalogue is missing,
// emits a warning event instead of letting the gap pass silently. The
// returned report is always safe to assign to RunResult.Coverage.
func (c *Config) analyseCoverage(results []llmresult.PolicyResult) coverage.Report {
	c.emit(llmresult.Progress{
		Phase:   llmresult.PhaseComplianceValidation,
		Status:  llmresult.StatusInProgress,
		Message: "analysing catalogue coverage",
	})
	report, err := coverage.Analyse(results, c.Catalogue)
	if err != nil {
		c.emit(llmresult.Progress{
			Phase:   llmresult.PhaseComplianceValidation,
			Status:  llmresult.StatusWarning,
			Message: err.Error(),
		})
		return report
	}
	c.emit(llmresult.Progress{
		Phase:   llmresult.PhaseComplianceValidation,
		Status:  llmresult.StatusCompleted,
		Message: "coverage analysis complete",
		Data: map[string]any{
			"nist_csf_percentage":  report.NIST.CoveragePercentage,
			"iso_27001_percentage": report.ISO.CoveragePercentage,
			"overall_score":        report.OverallScore,
		},
	})
	return report
}

// Run drives the full pipeline and always returns a RunResult (partial
// results included). When no input is supplied at all it fails immediately
// with ErrEmptyInput, alongside an empty RunResult.
func Run(ctx context.Context, cfg *Config) (*RunResult, error) {
	if len(cfg.SASTSource) == 0 && len(cfg.SCASource) == 0 && len(cfg.DASTSource) == 0 {
		cfg.emit(llmresult.Progress{Phase: llmresult.PhaseError, Status: llmresult.StatusError, Message: ErrEmptyInput.Error()})
		return &RunResult{RunID: newRunID(), Timestamp: now()}, ErrEmptyInput
	}

	runID := newRunID()

	sastFindings, scaFindings, dastFindings := parseAll(ctx, cfg)

	result := &RunResult{
		RunID:     runID,
		Timestamp: now(),
		ParsedCounts: llmresult.ParsedCounts{
			SAST: len(sastFindings),
			SCA:  len(scaFindings),
			DAST: len(dastFindings),
		},
	}

	// RAG_READY: a pure barrier event so observers can paint UI state.
	cfg.emit(llmresult.Progress{Phase: llmresult.PhaseRAG, Status: llmresult.StatusCompleted, Message: "ready for retrieval-augmented generation"})

	if ctx.Err() != nil {
		cfg.emit(llmresult.Progress{Phase: llmresult.PhaseError, Status: llmresult.StatusError, Message: ErrCancelled.Error()})
		return result, fmt.Errorf("%w", ErrCancelled)
	}

	workList := buildWorkList(sastFindings, scaFindings, dastFindings, cfg.MaxPerType)

	if len(workList) == 0 {
		cfg.emit(llmresult.Progress{
			Phase:   llmresult.PhaseComplete,
			Status:  llmresult.StatusWarning,
			Message: "no findings to process",
		})
		result.Coverage = cfg.analyseCoverage(nil)
		return result, nil
	}

	results, cancelled := generate(ctx, cfg, workList)
	result.Results = results

	if cancelled {
		cfg.emit(llmresult.Progress{Phase: llmresult.PhaseError, Status: llmresult.StatusError, Message: ErrCancelled.Error()})
		result.Coverage = cfg.analyseCoverage(result.Results)
		return result, fmt.Errorf("%w", ErrCancelled)
	}

	result.Coverage = cfg.analyseCoverage(result.Results)

	if err := save(cfg, result); err != nil {
		cfg.emit(llmresult.Progress{Phase: llmresult.PhaseSaving, Status: llmresult.StatusWarning, Message: fmt.Sprintf("save failed: %v", err)})
	}

	cfg.emit(llmresult.Progress{
		Phase:   llmresult.PhaseComplete,
		Status:  llmresult.StatusCompleted,
		Message: "run complete",
		Data:    map[string]any{"result": result},
	})

	return result, nil
}

func newRunID() string { return uuid.NewString() }

// now is a seam so callers embedding this in a deterministic test harness
// can observe the same wall-clock call site; it simply wraps time.Now.
func now() time.Time { return time.Now() }

// parseAll invokes the three parsers in parallel; per-type failures are
// fatal only for that type (empty slice + warning event), never for the run.
func parseAll(ctx context.Context, cfg *Config) ([]*vuln.SASTFinding, []*vuln.SCAFinding, []*vuln.DASTFinding) {
	var sastFindings []*vuln.SASTFinding
	var scaFindings []*vuln.SCAFinding
	var dastFindings []*vuln.DASTFinding

	type parseJob struct {
		label string
		run   func()
	}

	jobs := []parseJob{
		{"sast", func() {
			if len(cfg.SASTSource) == 0 {
				return
			}
			cfg.emit(llmresult.Progress{Phase: llmresult.PhaseParsing, Status: llmresult.StatusInProgress, Message: "parsing SAST report"})
			findings, err := sast.Parse(cfg.SASTSource)
			if err != nil {
				cfg.emit(llmresult.Progress{Phase: llmresult.PhaseParsing, Status: llmresult.StatusWarning, Message: fmt.Sprintf("SAST parse failed: %v", err)})
				return
			}
			sastFindings = findings
		}},
		{"sca", func() {
			if len(cfg.SCASource) == 0 {
				return
			}
			cfg.emit(llmresult.Progress{Phase: llmresult.PhaseParsing, Status: llmresult.StatusInProgress, Message: "parsing SCA report"})
			findings, err := sca.Parse(cfg.SCASource)
			if err != nil {
				cfg.emit(llmresult.Progress{Phase: llmresult.PhaseParsing, Status: llmresult.StatusWarning, Message: fmt.Sprintf("SCA parse failed: %v", err)})
				return
			}
			scaFindings = findings
		}},
		{"dast", func() {
			if len(cfg.DASTSource) == 0 {
				return
			}
			cfg.emit(llmresult.Progress{Phase: llmresult.PhaseParsing, Status: llmresult.StatusInProgress, Message: "parsing DAST report"})
			findings, err := dast.Parse(cfg.DASTSource)
			if err != nil {
				cfg.emit(llmresult.Progress{Phase: llmresult.PhaseParsing, Status: llmresult.StatusWarning, Message: fmt.Sprintf("DAST parse failed: %v", err)})
				return
			}
			dastFindings = findings
		}},
	}

	done := make(chan struct{}, len(jobs))
	for _, j := range jobs {
		go func(j parseJob) {
			defer func() { done <- struct{}{} }()
			j.run()
		}(j)
	}
	for range jobs {
		<-done
	}

	cfg.emit(llmresult.Progress{
		Phase:   llmresult.PhaseParsing,
		Status:  llmresult.StatusCompleted,
		Message: "parsing complete",
		Data: map[string]any{
			"sast": len(sastFindings),
			"sca":  len(scaFindings),
			"dast": len(dastFindings),
		},
	})

	return sastFindings, scaFindings, dastFindings
}

// workItem is one entry in the bounded, type-ordered work list.
type workItem struct {
	vulnerability vuln.Vulnerability
	client        llmclient.Client
}

// buildWorkList constructs sast[:max] ++ sca[:max] ++ dast[:max], applying
// the per-type cap by prefix: the parsers' own output order is preserved.
// Severity-first selection is available via SelectBySeverity but is not the
// default.
func buildWorkList(sastFindings []*vuln.SASTFinding, scaFindings []*vuln.SCAFinding, dastFindings []*vuln.DASTFinding, maxPerType int) []workItem {
	var items []workItem

	for _, f := range prefix(sastFindings, maxPerType) {
		items = append(items, workItem{vulnerability: vuln.NewSAST(f)})
	}
	for _, f := range prefix(scaFindings, maxPerType) {
		items = append(items, workItem{vulnerability: vuln.NewSCA(f)})
	}
	for _, f := range prefix(dastFindings, maxPerType) {
		items = append(items, workItem{vulnerability: vuln.NewDAST(f)})
	}

	return items
}

func prefix[T any](s []T, n int) []T {
	if n < 0 {
		n = 0
	}
	if n >= len(s) {
		return s
	}
	return s[:n]
}

// SelectBySeverity is the severity-first alternative to buildWorkList's
// prefix selection. It groups vulnerabilities by type, sorts each group by
// descending severity (ties broken by the group's original order), and
// takes the top maxPerType from each group, concatenated SAST, then SCA,
// then DAST. Run itself never calls this (it stays prefix-ordered so a
// run's output is reproducible across identical input), but a caller
// building its own work list ahead of Run can use it instead.
func SelectBySeverity(vulnerabilities []vuln.Vulnerability, maxPerType int) []vuln.Vulnerability {
	var sast, sca, dast []vuln.Vulnerability
	for _, v := range vulnerabilities {
		switch v.Kind {
		case vuln.SAST:
			sast = append(sast, v)
		case vuln.SCA:
			sca = append(sca, v)
		case vuln.DAST:
			dast = append(dast, v)
		}
	}

	sortBySeverityDesc(sast)
	sortBySeverityDesc(sca)
	sortBySeverityDesc(dast)

	selected := make([]vuln.Vulnerability, 0, len(vulnerabilities))
	selected = append(selected, prefix(sast, maxPerType)...)
	selected = append(selected, prefix(sca, maxPerType)...)
	selected = append(selected, prefix(dast, maxPerType)...)
	return selected
}

func sortBySeverityDesc(vulnerabilities []vuln.Vulnerability) {
	sort.SliceStable(vulnerabilities, func(i, j int) bool {
		return severity.Less(vulnerabilities[i].Severity(), vulnerabilities[j].Severity())
	})
}

// generate runs the GENERATING phase: strictly sequential so PolicyResults
// preserve work-list order. Routes SAST/SCA to the large client, DAST to
// the small client; a retrieval or generation failure is recorded on the
// individual PolicyResult, never fatal to the run. Returns (results,
// cancelled).
func generate(ctx context.Context, cfg *Config, workList []workItem) ([]llmresult.PolicyResult, bool) {
	results := make([]llmresult.PolicyResult, 0, len(workList))

	for i, item := range workList {
		if ctx.Err() != nil {
			return results, true
		}

		v := item.vulnerability
		client := cfg.LargeClient
		if v.Kind == vuln.DAST {
			client = cfg.SmallClient
		}

		result := llmresult.PolicyResult{
			Vulnerability: v,
			VulnType:      v.Kind,
		}
		if client != nil {
			result.ModelLabel = client.Label()
		}

		complianceContext := rag.DefaultContext
		if cfg.Retriever != nil {
			retrieved, err := cfg.Retriever.RetrieveForVulnerability(ctx, v)
			if err != nil {
				cfg.emit(llmresult.Progress{
					Phase:   llmresult.PhaseLLMGeneration,
					Status:  llmresult.StatusWarning,
					Message: fmt.Sprintf("retrieval unavailable for %q: %v", v.Title(), err),
				})
			} else {
				if retrieved.UsedDefaultContext {
					cfg.emit(llmresult.Progress{
						Phase:   llmresult.PhaseLLMGeneration,
						Status:  llmresult.StatusWarning,
						Message: fmt.Sprintf("no compliance framework evidence retrieved for %q", v.Title()),
					})
				}
				complianceContext = retrieved.FormattedContext
			}
		}
		result.ComplianceContext = complianceContext

		userPrompt, err := prompt.BuildUserPrompt(v, complianceContext)
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			emitGenerationProgress(cfg, i, len(workList), v)
			continue
		}

		if client == nil {
			result.Error = "no LLM client configured for this vulnerability type"
			results = append(results, result)
			emitGenerationProgress(cfg, i, len(workList), v)
			continue
		}

		policyText, err := client.Generate(ctx, userPrompt, prompt.SystemPrompt, cfg.Temperature, cfg.MaxTokens)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.PolicyText = policyText
		}

		results = append(results, result)
		emitGenerationProgress(cfg, i, len(workList), v)
	}

	return results, false
}

func emitGenerationProgress(cfg *Config, index, total int, v vuln.Vulnerability) {
	cfg.emit(llmresult.Progress{
		Phase:   llmresult.PhaseLLMGeneration,
		Status:  llmresult.StatusInProgress,
		Message: fmt.Sprintf("generated policy %d/%d", index+1, total),
		Data: map[string]any{
			"index": index + 1,
			"total": total,
			"title": v.Title(),
		},
	})
}

func save(cfg *Config, result *RunResult) error {
	cfg.emit(llmresult.Progress{Phase: llmresult.PhaseSaving, Status: llmresult.StatusInProgress, Message: "saving run result"})
	if cfg.Renderer == nil {
		cfg.emit(llmresult.Progress{Phase: llmresult.PhaseSaving, Status: llmresult.StatusCompleted, Message: "no renderer configured"})
		return nil
	}

	paths, err := cfg.Renderer.Render(result)
	if err != nil {
		return err
	}

	sort.Strings(paths)
	cfg.emit(llmresult.Progress{
		Phase:   llmresult.PhaseSaving,
		Status:  llmresult.StatusCompleted,
		Message: "saved run result",
		Data:    map[string]any{"paths": paths},
	})
	return nil
}

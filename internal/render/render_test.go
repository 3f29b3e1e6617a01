package render

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/diffsec/govern/internal/coverage"
	"github.com/diffsec/govern/internal/llmresult"
	"github.com/diffsec/govern/internal/orchestrator"
	"github.com/diffsec/govern/internal/severity"
	"github.com/diffsec/govern/internal/vuln"
)

func sampleRunResult() *orchestrator.RunResult {
	return &orchestrator.RunResult{
		RunID:        "run-123",
		Timestamp:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ParsedCounts: llmresult.ParsedCounts{SAST: 1, SCA: 0, DAST: 0},
		Coverage: coverage.Report{
			NIST: coverage.FrameworkCoverage{TotalControls: 108, CoveragePercentage: 12.5},
			ISO:  coverage.FrameworkCoverage{TotalControls: 114, CoveragePercentage: 0},
		},
		Results: []llmresult.PolicyResult{
			{
				Vulnerability: vuln.NewSAST(&vuln.SASTFinding{Title: "SQL Injection <script>", Severity: severity.Critical}),
				VulnType:      vuln.SAST,
				PolicyText:    "POLICY TEXT <b>bold</b>",
				ModelLabel:    "large",
			},
			{
				Vulnerability: vuln.NewSCA(&vuln.SCAFinding{PackageName: "lodash", Severity: severity.High}),
				VulnType:      vuln.SCA,
				Error:         "generation timed out",
				ModelLabel:    "large",
			},
		},
	}
}

func TestJSONRendererWritesFileAndReturnsPath(t *testing.T) {
	dir := t.TempDir()
	r := NewJSONRenderer(dir)
	result := sampleRunResult()

	paths, err := r.Render(result)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("paths = %v, want 1 entry", paths)
	}

	wantPath := filepath.Join(dir, "run-123.json")
	if paths[0] != wantPath {
		t.Errorf("path = %q, want %q", paths[0], wantPath)
	}

	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}

	var decoded struct {
		Metadata struct {
			Tool string `json:"tool"`
		} `json:"metadata"`
		Result struct {
			RunID string `json:"run_id"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshaling written report: %v", err)
	}
	if decoded.Metadata.Tool != "govern" {
		t.Errorf("tool = %q, want govern", decoded.Metadata.Tool)
	}
	if decoded.Result.RunID != "run-123" {
		t.Errorf("run_id = %q, want run-123", decoded.Result.RunID)
	}
}

func TestHTMLRendererWritesFileAndEscapesContent(t *testing.T) {
	dir := t.TempDir()
	r := NewHTMLRenderer(dir)
	result := sampleRunResult()

	paths, err := r.Render(result)
	if err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if len(paths) != 1 || paths[0] != filepath.Join(dir, "run-123.html") {
		t.Fatalf("paths = %v", paths)
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	html := string(data)

	if strings.Contains(html, "<script>") {
		t.Error("raw <script> tag leaked into HTML output unescaped")
	}
	if !strings.Contains(html, "&lt;script&gt;") {
		t.Error("expected escaped finding title in output")
	}
	if !strings.Contains(html, "Generation failed: generation timed out") {
		t.Error("expected error item to render its failure message")
	}
	if !strings.Contains(html, "12.5") {
		t.Error("expected NIST coverage percentage in summary")
	}
}

func TestJSONRendererCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "output")
	r := NewJSONRenderer(dir)

	if _, err := r.Render(sampleRunResult()); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "run-123.json")); err != nil {
		t.Errorf("expected output file to exist: %v", err)
	}
}

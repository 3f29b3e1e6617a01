// Package render ships default, style-agnostic RunResult renderers: JSON
// (full fidelity) and a minimal HTML summary. Richer presentation (PDF, a
// templated report, etc.) is left to an external collaborator implementing
// orchestrator.Renderer; this package just covers the pair needed for a
// local `govern run` invocation.
package render

import (
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/diffsec/govern/internal/llmresult"
	"github.com/diffsec/govern/internal/orchestrator"
)

var titleCaser = cases.Title(language.English)

// JSONRenderer writes the RunResult verbatim as indented JSON, wrapped in a
// small metadata envelope (tool name/version, generation timestamp).
type JSONRenderer struct {
	// Dir is the directory run output files are written to.
	Dir string
	// ToolName/ToolVersion are informational and recorded in the envelope.
	ToolName    string
	ToolVersion string
}

// NewJSONRenderer builds a JSONRenderer writing into dir.
func NewJSONRenderer(dir string) *JSONRenderer {
	return &JSONRenderer{Dir: dir, ToolName: "govern", ToolVersion: "1.0.0"}
}

type jsonReport struct {
	Metadata jsonMetadata            `json:"metadata"`
	Result   *orchestrator.RunResult `json:"result"`
}

type jsonMetadata struct {
	Tool        string    `json:"tool"`
	Version     string    `json:"version"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Render implements orchestrator.Renderer: writes `<run_id>.json` into Dir
// and returns its path.
func (r *JSONRenderer) Render(result *orchestrator.RunResult) ([]string, error) {
	report := jsonReport{
		Metadata: jsonMetadata{
			Tool:        r.ToolName,
			Version:     r.ToolVersion,
			GeneratedAt: time.Now(),
		},
		Result: result,
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render: marshaling json report: %w", err)
	}

	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("render: creating output dir: %w", err)
	}
	path := filepath.Join(r.Dir, result.RunID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("render: writing %s: %w", path, err)
	}

	return []string{path}, nil
}

// HTMLRenderer writes a minimal human-readable summary: an inline-styled
// page with a stat-card header and a per-policy card for each result.
type HTMLRenderer struct {
	Dir string
}

// NewHTMLRenderer builds an HTMLRenderer writing into dir.
func NewHTMLRenderer(dir string) *HTMLRenderer {
	return &HTMLRenderer{Dir: dir}
}

// Render implements orchestrator.Renderer: writes `<run_id>.html` into Dir
// and returns its path.
func (r *HTMLRenderer) Render(result *orchestrator.RunResult) ([]string, error) {
	var b strings.Builder

	title := fmt.Sprintf("Governance Policy Report: %s", result.RunID)

	b.WriteString(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>` + html.EscapeString(title) + `</title>
    <style>
        :root { --ok: #16a34a; --warn: #ca8a04; --bad: #dc2626; --bg: #f8fafc; --card: #ffffff; --border: #e2e8f0; }
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: var(--bg); padding: 2rem; color: #1e293b; }
        .container { max-width: 1100px; margin: 0 auto; }
        h1 { font-size: 1.75rem; margin-bottom: 0.25rem; }
        .meta { color: #64748b; margin-bottom: 1.5rem; }
        .summary { display: grid; grid-template-columns: repeat(auto-fit, minmax(150px, 1fr)); gap: 1rem; margin-bottom: 2rem; }
        .stat-card { background: var(--card); border: 1px solid var(--border); border-radius: 0.5rem; padding: 1rem; text-align: center; }
        .stat-value { font-size: 1.75rem; font-weight: bold; }
        .stat-label { color: #64748b; font-size: 0.8rem; }
        .item { background: var(--card); border: 1px solid var(--border); border-radius: 0.5rem; margin-bottom: 1rem; padding: 1rem; }
        .item-header { display: flex; gap: 0.75rem; align-items: center; margin-bottom: 0.5rem; }
        .badge { padding: 0.2rem 0.6rem; border-radius: 9999px; font-size: 0.7rem; font-weight: 600; color: #fff; background: #64748b; }
        .policy { white-space: pre-wrap; font-family: ui-monospace, monospace; font-size: 0.85rem; background: var(--bg); border-radius: 0.25rem; padding: 0.75rem; }
        .error { color: var(--bad); }
    </style>
</head>
<body>
    <div class="container">
        <h1>` + html.EscapeString(title) + `</h1>
        <p class="meta">Generated on ` + time.Now().Format("2006-01-02 15:04:05") + `</p>
`)

	b.WriteString(r.renderSummary(result))
	b.WriteString("        <h2>Generated Policies</h2>\n")
	for _, item := range result.Results {
		b.WriteString(r.renderItem(item))
	}

	b.WriteString(`    </div>
</body>
</html>`)

	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("render: creating output dir: %w", err)
	}
	path := filepath.Join(r.Dir, result.RunID+".html")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return nil, fmt.Errorf("render: writing %s: %w", path, err)
	}

	return []string{path}, nil
}

func (r *HTMLRenderer) renderSummary(result *orchestrator.RunResult) string {
	var b strings.Builder
	b.WriteString(`        <div class="summary">
`)
	b.WriteString(statCard(len(result.Results), "Policies Generated"))
	b.WriteString(statCard(result.ParsedCounts.SAST, "SAST Findings"))
	b.WriteString(statCard(result.ParsedCounts.SCA, "SCA Findings"))
	b.WriteString(statCard(result.ParsedCounts.DAST, "DAST Findings"))
	b.WriteString(fmt.Sprintf(`            <div class="stat-card"><div class="stat-value">%.1f%%</div><div class="stat-label">NIST CSF Coverage</div></div>
`, result.Coverage.NIST.CoveragePercentage))
	b.WriteString(fmt.Sprintf(`            <div class="stat-card"><div class="stat-value">%.1f%%</div><div class="stat-label">ISO 27001 Coverage</div></div>
`, result.Coverage.ISO.CoveragePercentage))
	b.WriteString(`        </div>
`)
	return b.String()
}

func statCard(value int, label string) string {
	return fmt.Sprintf(`            <div class="stat-card"><div class="stat-value">%d</div><div class="stat-label">%s</div></div>
`, value, html.EscapeString(label))
}

func (r *HTMLRenderer) renderItem(item llmresult.PolicyResult) string {
	var b strings.Builder

	badgeLabel := titleCaser.String(strings.ToLower(string(item.VulnType)))
	b.WriteString(fmt.Sprintf(`        <div class="item">
            <div class="item-header">
                <span class="badge">%s</span>
                <strong>%s</strong>
                <span style="color:#64748b;font-size:0.8rem">%s</span>
            </div>
`,
		html.EscapeString(badgeLabel),
		html.EscapeString(item.Vulnerability.Title()),
		html.EscapeString(item.ModelLabel),
	))

	if item.Error != "" {
		b.WriteString(fmt.Sprintf(`            <p class="error">Generation failed: %s</p>
`, html.EscapeString(item.Error)))
	} else {
		b.WriteString(fmt.Sprintf(`            <div class="policy">%s</div>
`, html.EscapeString(item.PolicyText)))
	}

	b.WriteString(`        </div>
`)
	return b.String()
}

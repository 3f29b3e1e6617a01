// Package sast detects and parses static-analysis scan reports (Semgrep,
// SonarQube, Bandit dialects) into the unified vulnerability model.
package sast

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/diffsec/govern/internal/severity"
	"github.com/diffsec/govern/internal/vuln"
)

// ErrMalformedInput is returned when a blob cannot be decoded or dispatched
// to a known dialect. Per-file; never aborts a pipeline run.
var ErrMalformedInput = errors.New("sast: malformed input")

// MaxSnippetLines bounds code snippets embedded in prompts: first 10 lines,
// a truncation marker, then the last 10 lines.
const MaxSnippetLines = 20

// cweCategoryMap resolves a CWE number to a human category, used as the
// second tier of the category cascade.
var cweCategoryMap = map[string]string{
	"CWE-89":  "SQL Injection",
	"CWE-79":  "Cross-Site Scripting",
	"CWE-78":  "OS Command Injection",
	"CWE-22":  "Path Traversal",
	"CWE-502": "Insecure Deserialization",
	"CWE-798": "Hardcoded Credentials",
	"CWE-327": "Broken Cryptography",
	"CWE-611": "XML External Entity",
	"CWE-918": "Server-Side Request Forgery",
}

// keywordCategoryMap resolves a keyword found in a check id or message to a
// category, used as the first and third tiers of the cascade.
var keywordCategoryMap = []struct {
	keyword  string
	category string
}{
	{"sql-injection", "SQL Injection"},
	{"sql_injection", "SQL Injection"},
	{"xss", "Cross-Site Scripting"},
	{"command-injection", "OS Command Injection"},
	{"path-traversal", "Path Traversal"},
	{"deserialization", "Insecure Deserialization"},
	{"hardcoded", "Hardcoded Credentials"},
	{"crypto", "Broken Cryptography"},
	{"xxe", "XML External Entity"},
	{"ssrf", "Server-Side Request Forgery"},
}

const defaultCategory = "Code Security Issue"

// resolveCategory implements the priority cascade: keyword in check id →
// CWE-number map → message keyword → default.
func resolveCategory(checkID, message string, cweID string) string {
	lowerID := strings.ToLower(checkID)
	for _, kc := range keywordCategoryMap {
		if strings.Contains(lowerID, kc.keyword) {
			return kc.category
		}
	}
	if cat, ok := cweCategoryMap[cweID]; ok {
		return cat
	}
	lowerMsg := strings.ToLower(message)
	for _, kc := range keywordCategoryMap {
		if strings.Contains(lowerMsg, kc.keyword) {
			return kc.category
		}
	}
	return defaultCategory
}

// truncateSnippet bounds a code snippet to MaxSnippetLines: first 10 lines,
// a marker, then the last 10 lines. Shorter snippets are returned unchanged.
func truncateSnippet(snippet string) string {
	if snippet == "" {
		return snippet
	}
	lines := strings.Split(snippet, "\n")
	if len(lines) <= MaxSnippetLines {
		return snippet
	}
	head := lines[:10]
	tail := lines[len(lines)-10:]
	out := make([]string, 0, 21)
	out = append(out, head...)
	out = append(out, fmt.Sprintf("... (%d lines truncated) ...", len(lines)-20))
	out = append(out, tail...)
	return strings.Join(out, "\n")
}

// Parse detects the dialect of blob and extracts its SAST findings. A
// decode/dispatch failure returns ErrMalformedInput and a nil slice; it is
// never fatal to the pipeline, only to this one file.
func Parse(blob []byte) ([]*vuln.SASTFinding, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(blob, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	switch {
	case probe["results"] != nil:
		return parseSemgrep(blob)
	case probe["issues"] != nil:
		return parseSonarQube(blob)
	case probe["errors"] != nil:
		return parseBandit(blob)
	default:
		return parseGeneric(blob)
	}
}

type semgrepDoc struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
		} `json:"start"`
		Extra struct {
			Severity string `json:"severity"`
			Message  string `json:"message"`
			Metadata struct {
				CWE   []string `json:"cwe"`
				OWASP []string `json:"owasp"`
			} `json:"metadata"`
			Lines string `json:"lines"`
		} `json:"extra"`
	} `json:"results"`
}

func parseSemgrep(blob []byte) ([]*vuln.SASTFinding, error) {
	var doc semgrepDoc
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("%w: semgrep: %v", ErrMalformedInput, err)
	}
	findings := make([]*vuln.SASTFinding, 0, len(doc.Results))
	for _, r := range doc.Results {
		cwe := ""
		if len(r.Extra.Metadata.CWE) > 0 {
			cwe = firstCWEID(r.Extra.Metadata.CWE[0])
		}
		owasp := ""
		if len(r.Extra.Metadata.OWASP) > 0 {
			owasp = r.Extra.Metadata.OWASP[0]
		}
		findings = append(findings, &vuln.SASTFinding{
			Title:          r.CheckID,
			Severity:       severity.FromString(r.Extra.Severity),
			Category:       resolveCategory(r.CheckID, r.Extra.Message, cwe),
			FilePath:       r.Path,
			LineNumber:     r.Start.Line,
			CWEID:          cwe,
			Description:    r.Extra.Message,
			Recommendation: "",
			Confidence:     vuln.ConfidenceMedium,
			OWASPCategory:  owasp,
			CodeSnippet:    truncateSnippet(r.Extra.Lines),
			Metadata:       map[string]any{"tool": "semgrep"},
		})
	}
	return findings, nil
}

type sonarIssue struct {
	Rule      string `json:"rule"`
	Component string `json:"component"`
	Line      int    `json:"line"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
}

type sonarDoc struct {
	Issues []sonarIssue `json:"issues"`
}

func parseSonarQube(blob []byte) ([]*vuln.SASTFinding, error) {
	var doc sonarDoc
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("%w: sonarqube: %v", ErrMalformedInput, err)
	}
	findings := make([]*vuln.SASTFinding, 0, len(doc.Issues))
	for _, iss := range doc.Issues {
		findings = append(findings, &vuln.SASTFinding{
			Title:       iss.Rule,
			Severity:    severity.FromString(iss.Severity),
			Category:    resolveCategory(iss.Rule, iss.Message, ""),
			FilePath:    iss.Component,
			LineNumber:  iss.Line,
			Description: iss.Message,
			Confidence:  vuln.ConfidenceMedium,
			Metadata:    map[string]any{"tool": "sonarqube"},
		})
	}
	return findings, nil
}

type banditError struct {
	Filename      string `json:"filename"`
	TestID        string `json:"test_id"`
	TestName      string `json:"test_name"`
	IssueText     string `json:"issue_text"`
	LineNumber    int    `json:"line_number"`
	IssueSeverity string `json:"issue_severity"`
	CWE           struct {
		ID int `json:"id"`
	} `json:"issue_cwe"`
}

type banditDoc struct {
	Errors []banditError `json:"errors"`
}

func parseBandit(blob []byte) ([]*vuln.SASTFinding, error) {
	var doc banditDoc
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("%w: bandit: %v", ErrMalformedInput, err)
	}
	findings := make([]*vuln.SASTFinding, 0, len(doc.Errors))
	for _, e := range doc.Errors {
		cwe := ""
		if e.CWE.ID > 0 {
			cwe = fmt.Sprintf("CWE-%d", e.CWE.ID)
		}
		findings = append(findings, &vuln.SASTFinding{
			Title:       e.TestName,
			Severity:    severity.FromString(e.IssueSeverity),
			Category:    resolveCategory(e.TestID, e.IssueText, cwe),
			FilePath:    e.Filename,
			LineNumber:  e.LineNumber,
			CWEID:       cwe,
			Description: e.IssueText,
			Confidence:  vuln.ConfidenceMedium,
			Metadata:    map[string]any{"tool": "bandit"},
		})
	}
	return findings, nil
}

type genericRow struct {
	CheckID  string `json:"check_id"`
	Title    string `json:"title"`
	Path     string `json:"path"`
	Line     int    `json:"line"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	CWE      string `json:"cwe"`
}

type genericDoc struct {
	Findings []genericRow `json:"findings"`
}

func parseGeneric(blob []byte) ([]*vuln.SASTFinding, error) {
	var doc genericDoc
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("%w: generic: %v", ErrMalformedInput, err)
	}
	findings := make([]*vuln.SASTFinding, 0, len(doc.Findings))
	for _, r := range doc.Findings {
		title := r.Title
		if title == "" {
			title = r.CheckID
		}
		findings = append(findings, &vuln.SASTFinding{
			Title:       title,
			Severity:    severity.FromString(r.Severity),
			Category:    resolveCategory(r.CheckID, r.Message, r.CWE),
			FilePath:    r.Path,
			LineNumber:  r.Line,
			CWEID:       r.CWE,
			Description: r.Message,
			Confidence:  vuln.ConfidenceMedium,
			Metadata:    map[string]any{"tool": "generic"},
		})
	}
	return findings, nil
}

// firstCWEID normalises a CWE metadata entry (which may already be
// "CWE-89" or just "89") into the canonical "CWE-89" form.
func firstCWEID(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToUpper(raw), "CWE-") {
		return raw
	}
	return "CWE-" + raw
}

// Package vuln defines the unified vulnerability model produced by every
// parser: a discriminated union over SAST, SCA, and DAST findings.
package vuln

import "github.com/diffsec/govern/internal/severity"

// Type tags which variant a Vulnerability holds.
type Type string

const (
	SAST Type = "SAST"
	SCA  Type = "SCA"
	DAST Type = "DAST"
)

// Confidence is shared by SAST and DAST variants.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Method is an HTTP method observed by the DAST scanner.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodOptions Method = "OPTIONS"
	MethodHead    Method = "HEAD"
)

// SASTFinding is a code-level finding from a static analyser.
type SASTFinding struct {
	Title          string
	Severity       severity.Severity
	Category       string
	FilePath       string
	LineNumber     int
	CWEID          string
	Description    string
	Recommendation string
	Confidence     Confidence
	OWASPCategory  string
	CodeSnippet    string
	Metadata       map[string]any
}

// SCAFinding is a dependency-level finding from a composition analyser.
type SCAFinding struct {
	PackageName      string
	CurrentVersion   string
	VulnerableRange  string
	PatchedVersion   string
	AdvisoryID       string
	Severity         severity.Severity
	Description      string
	Exploitability   string
	FixAvailable     bool
	DirectDependency bool
	DependencyChain  []string
	Metadata         map[string]any
}

// DASTFinding is a runtime finding from a dynamic scanner.
type DASTFinding struct {
	URL         string
	Endpoint    string
	Method      Method
	IssueType   string
	RiskLevel   severity.Severity
	Confidence  Confidence
	CWEID       string
	Description string
	Solution    string
	Evidence    string
	Metadata    map[string]any
}

// Vulnerability is the discriminated union consumed by every downstream
// component. Exactly one of SAST/SCA/DAST is populated, matching Kind.
type Vulnerability struct {
	Kind Type
	SAST *SASTFinding
	SCA  *SCAFinding
	DAST *DASTFinding
}

// Title returns a human-readable summary line, independent of variant.
func (v Vulnerability) Title() string {
	switch v.Kind {
	case SAST:
		return v.SAST.Title
	case SCA:
		return v.SCA.PackageName + " " + v.SCA.AdvisoryID
	case DAST:
		return v.DAST.IssueType
	default:
		return ""
	}
}

// Severity returns the variant's severity, independent of variant.
func (v Vulnerability) Severity() severity.Severity {
	switch v.Kind {
	case SAST:
		return v.SAST.Severity
	case SCA:
		return v.SCA.Severity
	case DAST:
		return v.DAST.RiskLevel
	default:
		return severity.Medium
	}
}

// CategoryOrIssueType returns the SAST category, or the DAST issue type, or
// the empty string for SCA (which has no analogous field).
func (v Vulnerability) CategoryOrIssueType() string {
	switch v.Kind {
	case SAST:
		return v.SAST.Category
	case DAST:
		return v.DAST.IssueType
	default:
		return ""
	}
}

// Description returns the variant's description, independent of variant.
func (v Vulnerability) Description() string {
	switch v.Kind {
	case SAST:
		return v.SAST.Description
	case SCA:
		return v.SCA.Description
	case DAST:
		return v.DAST.Description
	default:
		return ""
	}
}

// CWEID returns the variant's CWE identifier, independent of variant.
func (v Vulnerability) CWEID() string {
	switch v.Kind {
	case SAST:
		return v.SAST.CWEID
	case DAST:
		return v.DAST.CWEID
	default:
		return ""
	}
}

// NewSAST constructs a Vulnerability wrapping a SASTFinding.
func NewSAST(f *SASTFinding) Vulnerability { return Vulnerability{Kind: SAST, SAST: f} }

// NewSCA constructs a Vulnerability wrapping an SCAFinding.
func NewSCA(f *SCAFinding) Vulnerability { return Vulnerability{Kind: SCA, SCA: f} }

// NewDAST constructs a Vulnerability wrapping a DASTFinding.
func NewDAST(f *DASTFinding) Vulnerability { return Vulnerability{Kind: DAST, DAST: f} }

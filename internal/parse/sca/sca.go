// Package sca detects and parses software-composition (dependency) scan
// reports (npm-audit, Trivy, pip-audit dialects) into the unified
// vulnerability model.
package sca

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/diffsec/govern/internal/severity"
	"github.com/diffsec/govern/internal/vuln"
)

// ErrMalformedInput is returned when a blob cannot be decoded or dispatched
// to a known dialect.
var ErrMalformedInput = errors.New("sca: malformed input")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// stripBOM removes a leading UTF-8 byte-order mark, if present.
func stripBOM(blob []byte) []byte {
	return bytes.TrimPrefix(blob, utf8BOM)
}

// exploitabilityFromCVSS labels exploitability from a CVSS score, matching
// the severity thresholds but with an explicit UNKNOWN for a missing score.
func exploitabilityFromCVSS(score float64, known bool) string {
	if !known {
		return "UNKNOWN"
	}
	switch {
	case score >= 9:
		return "CRITICAL"
	case score >= 7:
		return "HIGH"
	case score >= 4:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// Parse detects the dialect of blob and extracts its SCA findings.
func Parse(blob []byte) ([]*vuln.SCAFinding, error) {
	blob = stripBOM(blob)

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(blob, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	if raw, ok := probe["vulnerabilities"]; ok {
		trimmed := bytesTrimLeadingSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '{' {
			return parseNpmAudit(blob)
		}
		if len(trimmed) > 0 && trimmed[0] == '[' {
			return parsePipAudit(blob)
		}
	}
	if _, ok := probe["Results"]; ok {
		return parseTrivy(blob)
	}
	return nil, fmt.Errorf("%w: unrecognised SCA dialect", ErrMalformedInput)
}

func bytesTrimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\n' || b[i] == '\t' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

// --- npm-audit dialect ---

type npmVia struct {
	isRef bool
	ref   float64

	Name     string   `json:"name"`
	Title    string   `json:"title"`
	Severity string   `json:"severity"`
	CWE      []string `json:"cwe"`
	URL      string   `json:"url"`
	CVSS     struct {
		Score float64 `json:"score"`
	} `json:"cvss"`
	Range string `json:"range"`
}

func (v *npmVia) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		v.isRef = true
		v.ref = num
		return nil
	}
	type alias npmVia
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*v = npmVia(a)
	return nil
}

type npmFixAvailable struct {
	isBool  bool
	boolVal bool
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (f *npmFixAvailable) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		f.isBool = true
		f.boolVal = b
		return nil
	}
	type alias npmFixAvailable
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*f = npmFixAvailable(a)
	return nil
}

type npmVulnerability struct {
	Name         string           `json:"name"`
	Severity     string           `json:"severity"`
	Via          []npmVia         `json:"via"`
	Effects      []string         `json:"effects"`
	Range        string           `json:"range"`
	FixAvailable *npmFixAvailable `json:"fixAvailable"`
}

type npmAuditDoc struct {
	Vulnerabilities map[string]npmVulnerability `json:"vulnerabilities"`
}

func parseNpmAudit(blob []byte) ([]*vuln.SCAFinding, error) {
	var doc npmAuditDoc
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("%w: npm-audit: %v", ErrMalformedInput, err)
	}

	// Map iteration order is randomised; sort package names so re-parsing
	// the same blob yields an identical finding list.
	pkgNames := make([]string, 0, len(doc.Vulnerabilities))
	for name := range doc.Vulnerabilities {
		pkgNames = append(pkgNames, name)
	}
	sort.Strings(pkgNames)

	findings := make([]*vuln.SCAFinding, 0, len(doc.Vulnerabilities))
	for _, pkgName := range pkgNames {
		v := doc.Vulnerabilities[pkgName]
		direct := !contains(v.Effects, pkgName)

		fixAvailable := false
		patchedVersion := ""
		if v.FixAvailable != nil {
			if v.FixAvailable.isBool {
				fixAvailable = v.FixAvailable.boolVal
			} else {
				fixAvailable = true
				patchedVersion = v.FixAvailable.Version
			}
		}

		for _, via := range v.Via {
			if via.isRef {
				// Scalar via entries are cross-references to other
				// advisories already represented elsewhere; skip.
				continue
			}

			sev := severity.FromString(via.Severity)
			hasCVSS := via.CVSS.Score > 0
			advisoryID := synthesizeAdvisoryID(via.URL)

			findings = append(findings, &vuln.SCAFinding{
				PackageName:      pkgName,
				CurrentVersion:   "",
				VulnerableRange:  via.Range,
				PatchedVersion:   patchedVersion,
				AdvisoryID:       advisoryID,
				Severity:         sev,
				Description:      via.Title,
				Exploitability:   exploitabilityFromCVSS(via.CVSS.Score, hasCVSS),
				FixAvailable:     fixAvailable,
				DirectDependency: direct,
				DependencyChain:  []string{pkgName},
				Metadata:         map[string]any{"tool": "npm-audit", "cwe": via.CWE},
			})
		}
	}
	return findings, nil
}

func contains(set []string, want string) bool {
	for _, s := range set {
		if s == want {
			return true
		}
	}
	return false
}

// synthesizeAdvisoryID derives an advisory id from the via entry's URL when
// present, else returns the empty string.
func synthesizeAdvisoryID(url string) string {
	if url == "" {
		return ""
	}
	idx := lastIndexByte(url, '/')
	if idx < 0 || idx == len(url)-1 {
		return url
	}
	return url[idx+1:]
}

func lastIndexByte(s string, b byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// --- Trivy dialect ---

type trivyVulnerability struct {
	VulnerabilityID  string `json:"VulnerabilityID"`
	PkgName          string `json:"PkgName"`
	InstalledVersion string `json:"InstalledVersion"`
	FixedVersion     string `json:"FixedVersion"`
	Severity         string `json:"Severity"`
	Title            string `json:"Title"`
	Description      string `json:"Description"`
	CVSS             map[string]struct {
		V3Score float64 `json:"V3Score"`
	} `json:"CVSS"`
}

type trivyResult struct {
	Vulnerabilities []trivyVulnerability `json:"Vulnerabilities"`
}

type trivyDoc struct {
	Results []trivyResult `json:"Results"`
}

func parseTrivy(blob []byte) ([]*vuln.SCAFinding, error) {
	var doc trivyDoc
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("%w: trivy: %v", ErrMalformedInput, err)
	}

	var findings []*vuln.SCAFinding
	for _, result := range doc.Results {
		for _, v := range result.Vulnerabilities {
			vulnRange := "all"
			if v.FixedVersion != "" {
				vulnRange = "<" + v.FixedVersion
			}
			score, hasCVSS := bestCVSSScore(v.CVSS)
			desc := v.Description
			if desc == "" {
				desc = v.Title
			}
			findings = append(findings, &vuln.SCAFinding{
				PackageName:      v.PkgName,
				CurrentVersion:   v.InstalledVersion,
				VulnerableRange:  vulnRange,
				PatchedVersion:   v.FixedVersion,
				AdvisoryID:       v.VulnerabilityID,
				Severity:         severity.FromString(v.Severity),
				Description:      desc,
				Exploitability:   exploitabilityFromCVSS(score, hasCVSS),
				FixAvailable:     v.FixedVersion != "",
				DirectDependency: true,
				DependencyChain:  []string{v.PkgName},
				Metadata:         map[string]any{"tool": "trivy"},
			})
		}
	}
	return findings, nil
}

func bestCVSSScore(cvss map[string]struct {
	V3Score float64 `json:"V3Score"`
}) (float64, bool) {
	var best float64
	found := false
	for _, v := range cvss {
		if !found || v.V3Score > best {
			best = v.V3Score
			found = true
		}
	}
	return best, found
}

// --- pip-audit dialect ---

type pipVulnerability struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	ID          string   `json:"id"`
	FixVersions []string `json:"fix_versions"`
	Description string   `json:"description"`
}

type pipAuditDoc struct {
	Vulnerabilities []pipVulnerability `json:"vulnerabilities"`
}

func parsePipAudit(blob []byte) ([]*vuln.SCAFinding, error) {
	var doc pipAuditDoc
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("%w: pip-audit: %v", ErrMalformedInput, err)
	}

	findings := make([]*vuln.SCAFinding, 0, len(doc.Vulnerabilities))
	for _, v := range doc.Vulnerabilities {
		patched := ""
		vulnRange := "all"
		if len(v.FixVersions) > 0 {
			patched = v.FixVersions[0]
			vulnRange = "<" + patched
		}
		findings = append(findings, &vuln.SCAFinding{
			PackageName:      v.Name,
			CurrentVersion:   v.Version,
			VulnerableRange:  vulnRange,
			PatchedVersion:   patched,
			AdvisoryID:       v.ID,
			Severity:         severity.Medium,
			Description:      v.Description,
			Exploitability:   "UNKNOWN",
			FixAvailable:     patched != "",
			DirectDependency: true,
			DependencyChain:  []string{v.Name},
			Metadata:         map[string]any{"tool": "pip-audit"},
		})
	}
	return findings, nil
}

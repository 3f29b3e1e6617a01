// Package dast detects and parses dynamic-application-testing scan reports
// (ZAP markup, Nuclei JSON, generic JSON dialects) into the unified
// vulnerability model.
package dast

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/diffsec/govern/internal/severity"
	"github.com/diffsec/govern/internal/vuln"
)

// ErrMalformedInput is returned when a blob cannot be decoded or dispatched
// to a known dialect.
var ErrMalformedInput = errors.New("dast: malformed input")

var (
	uuidRunRegexp   = regexp.MustCompile(`[0-9a-f-]{32,}`)
	numericIDRegexp = regexp.MustCompile(`/[0-9]+`)
)

// canonicaliseEndpoint extracts the URL path, lowercases it, and replaces
// numeric ids and hex-or-dash UUID-like runs with placeholders, per the
// shared rule applied in every dialect.
func canonicaliseEndpoint(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}
	path = strings.ToLower(path)
	path = uuidRunRegexp.ReplaceAllString(path, "{uuid}")
	path = numericIDRegexp.ReplaceAllString(path, "/{id}")
	if path == "" {
		return "/"
	}
	return path
}

// Parse detects the dialect of blob and extracts its DAST findings.
func Parse(blob []byte) ([]*vuln.DASTFinding, error) {
	trimmed := strings.TrimSpace(string(blob))
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedInput)
	}

	if strings.HasPrefix(trimmed, "<") {
		return parseZAP([]byte(trimmed))
	}

	if strings.HasPrefix(trimmed, "[") {
		return parseNuclei([]byte(trimmed))
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	if _, ok := probe["vulnerabilities"]; ok {
		return parseGeneric([]byte(trimmed))
	}
	return nil, fmt.Errorf("%w: unrecognised DAST dialect", ErrMalformedInput)
}

// --- ZAP markup dialect ---

type zapReport struct {
	XMLName xml.Name  `xml:"OWASPZAPReport"`
	Sites   []zapSite `xml:"site"`
}

type zapSite struct {
	Alerts []zapAlertItem `xml:"alerts>alertitem"`
}

type zapAlertItem struct {
	PluginID   string        `xml:"pluginid"`
	Alert      string        `xml:"alert"`
	RiskCode   int           `xml:"riskcode"`
	Confidence int           `xml:"confidence"`
	CWEID      string        `xml:"cweid"`
	Desc       string        `xml:"desc"`
	Solution   string        `xml:"solution"`
	Instances  []zapInstance `xml:"instances>instance"`
}

type zapInstance struct {
	URI      string `xml:"uri"`
	Method   string `xml:"method"`
	Evidence string `xml:"evidence"`
}

func zapConfidence(c int) vuln.Confidence {
	switch c {
	case 3:
		return vuln.ConfidenceHigh
	case 2:
		return vuln.ConfidenceMedium
	default:
		return vuln.ConfidenceLow
	}
}

func parseZAP(blob []byte) ([]*vuln.DASTFinding, error) {
	var report zapReport
	if err := xml.Unmarshal(blob, &report); err != nil {
		return nil, fmt.Errorf("%w: zap: %v", ErrMalformedInput, err)
	}

	var findings []*vuln.DASTFinding
	for _, site := range report.Sites {
		for _, alert := range site.Alerts {
			cwe := ""
			if alert.CWEID != "" {
				cwe = "CWE-" + alert.CWEID
			}
			for _, inst := range alert.Instances {
				findings = append(findings, &vuln.DASTFinding{
					URL:         inst.URI,
					Endpoint:    canonicaliseEndpoint(inst.URI),
					Method:      normaliseMethod(inst.Method),
					IssueType:   alert.Alert,
					RiskLevel:   severity.FromCode(alert.RiskCode),
					Confidence:  zapConfidence(alert.Confidence),
					CWEID:       cwe,
					Description: alert.Desc,
					Solution:    alert.Solution,
					Evidence:    inst.Evidence,
					Metadata:    map[string]any{"tool": "zap", "plugin_id": alert.PluginID},
				})
			}
		}
	}
	return findings, nil
}

func normaliseMethod(m string) vuln.Method {
	switch strings.ToUpper(strings.TrimSpace(m)) {
	case "POST":
		return vuln.MethodPost
	case "PUT":
		return vuln.MethodPut
	case "DELETE":
		return vuln.MethodDelete
	case "PATCH":
		return vuln.MethodPatch
	case "OPTIONS":
		return vuln.MethodOptions
	case "HEAD":
		return vuln.MethodHead
	default:
		return vuln.MethodGet
	}
}

// --- Nuclei JSON dialect ---

type nucleiEntry struct {
	Info struct {
		Severity       string `json:"severity"`
		Classification struct {
			CWEID []string `json:"cwe-id"`
		} `json:"classification"`
	} `json:"info"`
	MatchedAt        string          `json:"matched-at"`
	Host             string          `json:"host"`
	CurlCommand      string          `json:"curl-command"`
	ExtractedResults json.RawMessage `json:"extracted-results"`
	TemplateID       string          `json:"template-id"`
}

func parseNuclei(blob []byte) ([]*vuln.DASTFinding, error) {
	var entries []nucleiEntry
	if err := json.Unmarshal(blob, &entries); err != nil {
		return nil, fmt.Errorf("%w: nuclei: %v", ErrMalformedInput, err)
	}

	findings := make([]*vuln.DASTFinding, 0, len(entries))
	for _, e := range entries {
		target := e.MatchedAt
		if target == "" {
			target = e.Host
		}
		cwe := ""
		if len(e.Info.Classification.CWEID) > 0 {
			id := e.Info.Classification.CWEID[0]
			if strings.HasPrefix(strings.ToUpper(id), "CWE-") {
				cwe = id
			} else {
				cwe = "CWE-" + id
			}
		}
		evidence := ""
		if len(e.ExtractedResults) > 0 {
			evidence = string(e.ExtractedResults)
		}
		findings = append(findings, &vuln.DASTFinding{
			URL:         target,
			Endpoint:    canonicaliseEndpoint(target),
			Method:      inferMethodFromCurl(e.CurlCommand),
			IssueType:   e.TemplateID,
			RiskLevel:   severity.FromString(e.Info.Severity),
			Confidence:  vuln.ConfidenceMedium,
			CWEID:       cwe,
			Description: e.TemplateID,
			Evidence:    evidence,
			Metadata:    map[string]any{"tool": "nuclei"},
		})
	}
	return findings, nil
}

func inferMethodFromCurl(curl string) vuln.Method {
	switch {
	case strings.Contains(curl, "-X POST"):
		return vuln.MethodPost
	case strings.Contains(curl, "-X PUT"):
		return vuln.MethodPut
	case strings.Contains(curl, "-X DELETE"):
		return vuln.MethodDelete
	default:
		return vuln.MethodGet
	}
}

// --- generic JSON dialect ---

type genericVuln struct {
	URL         string `json:"url"`
	Method      string `json:"method"`
	IssueType   string `json:"issue_type"`
	Severity    string `json:"severity"`
	Confidence  string `json:"confidence"`
	CWEID       string `json:"cwe_id"`
	Description string `json:"description"`
	Solution    string `json:"solution"`
	Evidence    string `json:"evidence"`
}

type genericDoc struct {
	Vulnerabilities []genericVuln `json:"vulnerabilities"`
}

func parseGeneric(blob []byte) ([]*vuln.DASTFinding, error) {
	var doc genericDoc
	if err := json.Unmarshal(blob, &doc); err != nil {
		return nil, fmt.Errorf("%w: generic: %v", ErrMalformedInput, err)
	}

	findings := make([]*vuln.DASTFinding, 0, len(doc.Vulnerabilities))
	for _, v := range doc.Vulnerabilities {
		findings = append(findings, &vuln.DASTFinding{
			URL:         v.URL,
			Endpoint:    canonicaliseEndpoint(v.URL),
			Method:      normaliseMethod(v.Method),
			IssueType:   v.IssueType,
			RiskLevel:   severity.FromString(v.Severity),
			Confidence:  confidenceFromString(v.Confidence),
			CWEID:       v.CWEID,
			Description: v.Description,
			Solution:    v.Solution,
			Evidence:    v.Evidence,
			Metadata:    map[string]any{"tool": "generic"},
		})
	}
	return findings, nil
}

func confidenceFromString(s string) vuln.Confidence {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return vuln.ConfidenceHigh
	case "LOW":
		return vuln.ConfidenceLow
	default:
		return vuln.ConfidenceMedium
	}
}

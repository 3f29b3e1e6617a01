// Package coverage measures how much of a compliance catalogue a set of
// generated policies actually covers: it extracts control identifiers from
// the policy text, validates them against the static catalogue, and groups
// coverage by function/domain.
package coverage

import (
	"errors"
	"regexp"
	"sort"

	"github.com/diffsec/govern/internal/compliance"
	"github.com/diffsec/govern/internal/llmresult"
)

// ErrCatalogueMissing is returned when Analyse is invoked with no catalogue
// loaded. The caller gets a zero-valued Report back alongside it (every
// TotalControls/CoveragePercentage/OverallScore field is zero) so a run can
// still complete and report the gap as a warning rather than aborting.
var ErrCatalogueMissing = errors.New("coverage: no catalogue loaded")

// nistIDRegexp matches NIST CSF subcategory ids (e.g. PR.AC-4), anchored on
// whitespace/punctuation boundaries so embedded ids inside longer tokens are
// not matched.
var nistIDRegexp = regexp.MustCompile(`\b[A-Z]{2}\.[A-Z]{2}-\d+\b`)

// isoIDRegexp matches ISO 27001 Annex A ids (e.g. A.9.1.1).
var isoIDRegexp = regexp.MustCompile(`\bA\.\d+(?:\.\d+){0,2}\b`)

// GroupCoverage is the coverage stats for a single function (NIST) or
// domain (ISO) grouping.
type GroupCoverage struct {
	Total      int     `json:"total"`
	Covered    int     `json:"covered"`
	Percentage float64 `json:"percentage"`
}

// FrameworkCoverage is the coverage report for a single framework.
type FrameworkCoverage struct {
	TotalControls      int                      `json:"total_controls"`
	CoveredControls    []string                 `json:"covered_controls"`
	CoveragePercentage float64                  `json:"coverage_percentage"`
	ByGroup            map[string]GroupCoverage `json:"by_group"`
	Gaps               []string                 `json:"gaps"`
}

// Report is the CoverageReport produced by Analyse: per-framework coverage
// plus an overall score.
type Report struct {
	NIST         FrameworkCoverage `json:"nist_csf"`
	ISO          FrameworkCoverage `json:"iso_27001"`
	OverallScore float64           `json:"overall_score"`
}

// ExtractControlIDs scans text for recognisable control ids of both
// frameworks and returns them deduplicated, framework-tagged.
func ExtractControlIDs(text string) (nist []string, iso []string) {
	nistSet := make(map[string]bool)
	for _, m := range nistIDRegexp.FindAllString(text, -1) {
		nistSet[m] = true
	}
	isoSet := make(map[string]bool)
	for _, m := range isoIDRegexp.FindAllString(text, -1) {
		isoSet[m] = true
	}
	for id := range nistSet {
		nist = append(nist, id)
	}
	for id := range isoSet {
		iso = append(iso, id)
	}
	sort.Strings(nist)
	sort.Strings(iso)
	return nist, iso
}

// Analyse builds a Report from a set of policy results. Control ids are
// extracted from the policy text itself rather than any caller-supplied
// mapping, since a mapping field on a result reflects what the model claims
// rather than what it actually wrote.
//
// Analyse requires a loaded catalogue. If catalogue is nil, it returns a
// zero-valued Report (total_controls and overall_score both 0) alongside
// ErrCatalogueMissing so the caller can surface the gap instead of silently
// grading against a substitute catalogue.
func Analyse(results []llmresult.PolicyResult, catalogue *compliance.Catalogue) (Report, error) {
	if catalogue == nil {
		return Report{}, ErrCatalogueMissing
	}

	nistCovered := make(map[string]bool)
	nistGroupCovered := make(map[string]map[string]bool)
	isoCovered := make(map[string]bool)
	isoGroupCovered := make(map[string]map[string]bool)

	for _, r := range results {
		if r.PolicyText == "" {
			continue
		}
		nistIDs, isoIDs := ExtractControlIDs(r.PolicyText)
		for _, id := range nistIDs {
			if !catalogue.IsValid(compliance.NISTCSF, id) {
				continue
			}
			nistCovered[id] = true
			group := compliance.NISTFunction(id)
			if nistGroupCovered[group] == nil {
				nistGroupCovered[group] = make(map[string]bool)
			}
			nistGroupCovered[group][id] = true
		}
		for _, id := range isoIDs {
			if !catalogue.IsValid(compliance.ISO27001, id) {
				continue
			}
			isoCovered[id] = true
			group := compliance.ISODomain(id)
			if isoGroupCovered[group] == nil {
				isoGroupCovered[group] = make(map[string]bool)
			}
			isoGroupCovered[group][id] = true
		}
	}

	nistFC := buildFrameworkCoverage(catalogue, compliance.NISTCSF, nistCovered, nistGroupCovered, nistFunctionOf)
	isoFC := buildFrameworkCoverage(catalogue, compliance.ISO27001, isoCovered, isoGroupCovered, compliance.ISODomain)

	return Report{
		NIST:         nistFC,
		ISO:          isoFC,
		OverallScore: round1((nistFC.CoveragePercentage + isoFC.CoveragePercentage) / 2),
	}, nil
}

// nistFunctionOf adapts compliance.NISTFunction to the groupOf signature
// shared with ISODomain.
func nistFunctionOf(controlID string) string { return compliance.NISTFunction(controlID) }

func buildFrameworkCoverage(
	catalogue *compliance.Catalogue,
	framework compliance.Framework,
	covered map[string]bool,
	groupCovered map[string]map[string]bool,
	groupOf func(string) string,
) FrameworkCoverage {
	total := catalogue.Total(framework)

	coveredIDs := make([]string, 0, len(covered))
	for id := range covered {
		coveredIDs = append(coveredIDs, id)
	}
	sort.Strings(coveredIDs)

	var gaps []string
	groupTotals := make(map[string]int)
	for _, id := range catalogue.ControlIDs(framework) {
		groupTotals[groupOf(id)]++
		if !covered[id] {
			gaps = append(gaps, id)
		}
	}
	sort.Strings(gaps)

	byGroup := make(map[string]GroupCoverage, len(groupTotals))
	for group, groupTotal := range groupTotals {
		coveredInGroup := len(groupCovered[group])
		byGroup[group] = GroupCoverage{
			Total:      groupTotal,
			Covered:    coveredInGroup,
			Percentage: percentage(coveredInGroup, groupTotal),
		}
	}

	return FrameworkCoverage{
		TotalControls:      total,
		CoveredControls:    coveredIDs,
		CoveragePercentage: percentage(len(coveredIDs), total),
		ByGroup:            byGroup,
		Gaps:               gaps,
	}
}

func percentage(covered, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(100 * float64(covered) / float64(total))
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}

// Package compare implements the policy comparator: BLEU-4, ROUGE-L, and
// security-lexicon coverage between a reference policy and the generated
// policy set, combined into a weighted score and letter grade.
//
// BLEU and ROUGE are implemented directly against their published formulas,
// since no off-the-shelf Go implementation is pulled in elsewhere in this
// module. The two sub-steps that do have solid library support, locale-
// stable casing and stemming, are wired to golang.org/x/text/cases and
// go-porterstemmer respectively.
package compare

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	porterstemmer "github.com/blevesearch/go-porterstemmer"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/diffsec/govern/internal/llmresult"
)

// ErrTooShort is returned when the reference or generated text is below the
// 50-character floor after trimming.
var ErrTooShort = errors.New("compare: text below minimum length")

// MinLength is the minimum trimmed-character floor for comparator inputs.
const MinLength = 50

// Grade is a letter grade derived from OverallSimilarity.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// TextStats is the word/character/section-count block computed over the
// raw (non-preprocessed) text.
type TextStats struct {
	WordCount    int `json:"word_count"`
	CharCount    int `json:"char_count"`
	SectionCount int `json:"section_count"`
}

// Report is the ComparisonReport produced by Compare.
type Report struct {
	BLEUScore         float64   `json:"bleu_score"`
	ROUGELFMeasure    float64   `json:"rouge_l_fmeasure"`
	KeyTermsCoverage  float64   `json:"key_terms_coverage"`
	OverallSimilarity float64   `json:"overall_similarity"`
	Grade             Grade     `json:"grade"`
	ReferenceStats    TextStats `json:"reference_stats"`
	GeneratedStats    TextStats `json:"generated_stats"`
	Interpretation    string    `json:"interpretation"`
	ReferenceFilename string    `json:"reference_filename,omitempty"`
}

// CombineGeneratedText joins the non-empty policy texts of a run's results,
// separated by a blank line, into the single generated-side input Compare
// expects. Results that carry an error (and so no policy text) are skipped.
func CombineGeneratedText(results []llmresult.PolicyResult) string {
	var texts []string
	for _, r := range results {
		if r.PolicyText != "" {
			texts = append(texts, r.PolicyText)
		}
	}
	return strings.Join(texts, "\n\n")
}

// securityTerms is the fixed lexicon used for key-terms coverage. Roughly
// 60 entries spanning AppSec, compliance, and ops vocabulary.
var securityTerms = []string{
	"authentication", "authorisation", "authorization", "access control",
	"encryption", "vulnerability", "patch", "firewall", "injection", "xss",
	"csrf", "compliance", "audit", "monitoring", "logging", "certificate",
	"tls", "ssl", "encryption key", "key management", "least privilege",
	"segregation of duties", "incident response", "risk assessment",
	"threat model", "penetration test", "remediation", "mitigation",
	"hardening", "sanitisation", "sanitization", "validation", "input validation",
	"output encoding", "session management", "password policy",
	"multi-factor", "mfa", "rbac", "role-based access control", "data protection",
	"data classification", "backup", "disaster recovery", "business continuity",
	"vulnerability management", "patch management", "secure development",
	"code review", "static analysis", "dynamic analysis", "dependency scanning",
	"supply chain", "zero trust", "network segmentation", "intrusion detection",
	"anomaly detection", "log retention", "audit trail", "compliance mapping",
	"control objective", "security control", "policy enforcement", "governance",
	"third-party risk", "vendor risk",
}

var (
	nonAlphaNumSpaceHyphen = regexp.MustCompile(`[^a-z0-9\s-]`)
	whitespaceRun          = regexp.MustCompile(`\s+`)
	tokenRegexp            = regexp.MustCompile(`[a-z0-9]+(?:-[a-z0-9]+)*`)
	allCapsHeaderRegexp    = regexp.MustCompile(`(?m)^[A-Z][A-Z \t]{2,}$`)
	numberedSectionRegexp  = regexp.MustCompile(`(?m)^\d+\.`)
	titlePatternRegexp     = regexp.MustCompile(`(?m)^[A-Za-z][A-Za-z \t]*:`)
)

var titleCaser = cases.Title(language.English)

// preprocess lowercases, keeps only [a-z0-9\s-], and collapses whitespace.
// The raw text still feeds TextStats.
func preprocess(s string) string {
	s = cases.Lower(language.English).String(s)
	s = nonAlphaNumSpaceHyphen.ReplaceAllString(s, "")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func tokenize(s string) []string {
	return tokenRegexp.FindAllString(s, -1)
}

// Compare computes a ComparisonReport comparing referenceText against
// generatedText (the caller's concatenation of policy_texts, separated by a
// blank line). Rejects inputs shorter than MinLength characters after trim.
func Compare(referenceText, generatedText string) (*Report, error) {
	refTrimmed := strings.TrimSpace(referenceText)
	genTrimmed := strings.TrimSpace(generatedText)
	if len(refTrimmed) < MinLength || len(genTrimmed) < MinLength {
		return nil, fmt.Errorf("%w: reference=%d generated=%d chars, need >= %d",
			ErrTooShort, len(refTrimmed), len(genTrimmed), MinLength)
	}

	refPre := preprocess(refTrimmed)
	genPre := preprocess(genTrimmed)

	refTokens := tokenize(refPre)
	genTokens := tokenize(genPre)

	bleu := safeMetric(func() float64 { return bleu4(refTokens, genTokens) })
	rouge := safeMetric(func() float64 { return rougeLFMeasure(refTokens, genTokens) })
	lexicon := keyTermsCoverage(refPre, genPre)

	overall := 100 * (0.4*bleu + 0.4*rouge + 0.2*lexicon)
	if overall > 100 {
		overall = 100
	}
	if overall < 0 {
		overall = 0
	}

	report := &Report{
		BLEUScore:         bleu,
		ROUGELFMeasure:    rouge,
		KeyTermsCoverage:  lexicon,
		OverallSimilarity: round2(overall),
		Grade:             gradeFor(overall),
		ReferenceStats:    computeStats(refTrimmed),
		GeneratedStats:    computeStats(genTrimmed),
	}
	report.Interpretation = interpret(report)
	return report, nil
}

// CompareWithReference is Compare plus the reference file's name, recorded
// informationally on the report. Extracting reference text from a binary
// container (a document file, say) is the caller's concern.
func CompareWithReference(referenceText, generatedText, referenceFilename string) (*Report, error) {
	report, err := Compare(referenceText, generatedText)
	if err != nil {
		return nil, err
	}
	report.ReferenceFilename = referenceFilename
	return report, nil
}

// safeMetric runs a metric computation and returns 0.0 if it panics (e.g.
// on an empty token stream edge case in the n-gram counting logic) rather
// than failing the whole comparison over one metric.
func safeMetric(f func() float64) (result float64) {
	defer func() {
		if r := recover(); r != nil {
			result = 0.0
		}
	}()
	return f()
}

func gradeFor(overall float64) Grade {
	switch {
	case overall >= 90:
		return GradeA
	case overall >= 80:
		return GradeB
	case overall >= 70:
		return GradeC
	case overall >= 60:
		return GradeD
	default:
		return GradeF
	}
}

// ngramCounts builds an n-gram frequency table over tokens.
func ngramCounts(tokens []string, n int) map[string]int {
	counts := make(map[string]int)
	if len(tokens) < n {
		return counts
	}
	for i := 0; i+n <= len(tokens); i++ {
		key := strings.Join(tokens[i:i+n], " ")
		counts[key]++
	}
	return counts
}

// bleu4 computes corpus-BLEU with a single reference and single hypothesis,
// averaging 1- through 4-gram modified precisions with a brevity penalty,
// per the standard "13a"-style formulation (already-tokenised here; the
// comparator's preprocessing step stands in for 13a tokenisation).
func bleu4(reference, hypothesis []string) float64 {
	if len(hypothesis) == 0 || len(reference) == 0 {
		return 0.0
	}

	var logPrecisionSum float64
	validOrders := 0
	for n := 1; n <= 4; n++ {
		refCounts := ngramCounts(reference, n)
		hypCounts := ngramCounts(hypothesis, n)
		if len(hypCounts) == 0 {
			continue
		}

		var clippedMatches, total int
		for gram, count := range hypCounts {
			total += count
			if refCount, ok := refCounts[gram]; ok {
				if count < refCount {
					clippedMatches += count
				} else {
					clippedMatches += refCount
				}
			}
		}
		if total == 0 {
			continue
		}
		precision := float64(clippedMatches) / float64(total)
		if precision == 0 {
			// A single zero-precision order collapses the geometric mean;
			// treat as a very small epsilon rather than -Inf so shorter
			// hypotheses still get a non-zero (if tiny) score.
			precision = 1e-9
		}
		logPrecisionSum += math.Log(precision)
		validOrders++
	}
	if validOrders == 0 {
		return 0.0
	}

	geoMean := math.Exp(logPrecisionSum / float64(validOrders))

	brevityPenalty := 1.0
	if len(hypothesis) < len(reference) {
		brevityPenalty = math.Exp(1 - float64(len(reference))/float64(len(hypothesis)))
	}

	score := brevityPenalty * geoMean
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}

// stem applies the Porter stemmer to every token so ROUGE-L's LCS match
// ignores inflectional differences (e.g. "encrypting" vs "encrypted").
func stem(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = porterstemmer.StemString(t)
	}
	return out
}

// lcsLength computes the longest-common-subsequence length between a and b.
func lcsLength(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

// rougeLFMeasure computes ROUGE-L F-measure between stemmed reference and
// hypothesis token streams.
func rougeLFMeasure(reference, hypothesis []string) float64 {
	if len(reference) == 0 || len(hypothesis) == 0 {
		return 0.0
	}
	ref := stem(reference)
	hyp := stem(hypothesis)

	lcs := lcsLength(ref, hyp)
	if lcs == 0 {
		return 0.0
	}

	recall := float64(lcs) / float64(len(ref))
	precision := float64(lcs) / float64(len(hyp))
	if recall+precision == 0 {
		return 0.0
	}

	const beta = 1.2 // favors recall slightly, standard ROUGE-L default
	fMeasure := ((1 + beta*beta) * recall * precision) / (recall + beta*beta*precision)
	if fMeasure > 1 {
		return 1
	}
	return fMeasure
}

// keyTermsCoverage returns the fraction of security-lexicon terms present
// in the (preprocessed) reference that are also present in the (preprocessed)
// generated text. Vacuously 1.0 when the reference contains no listed term.
func keyTermsCoverage(refPre, genPre string) float64 {
	var refTerms, matched int
	for _, term := range securityTerms {
		if strings.Contains(refPre, term) {
			refTerms++
			if strings.Contains(genPre, term) {
				matched++
			}
		}
	}
	if refTerms == 0 {
		return 1.0
	}
	return float64(matched) / float64(refTerms)
}

// computeStats computes the word/char/section-count block over raw
// (non-preprocessed) text, clamped to a minimum section count of 1.
func computeStats(text string) TextStats {
	words := strings.Fields(text)
	charCount := 0
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		charCount++
	}

	sections := countSections(text)
	if sections < 1 {
		sections = 1
	}

	return TextStats{
		WordCount:    len(words),
		CharCount:    charCount,
		SectionCount: sections,
	}
}

// countSections counts lines matching any of three section-header
// heuristics: an all-caps header line, a `^\d+.` numbered line, or a
// `Title:` pattern line.
func countSections(text string) int {
	seen := make(map[int]bool)
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if allCapsHeaderRegexp.MatchString(line) || numberedSectionRegexp.MatchString(trimmed) || titlePatternRegexp.MatchString(trimmed) {
			seen[i] = true
		}
	}
	return len(seen)
}

// interpret composes the interpretation text from four short rubrics
// (overall, BLEU band, ROUGE band, lexicon band) using fixed sentence
// templates; no NLG.
func interpret(r *Report) string {
	var b strings.Builder

	b.WriteString(overallRubric(r.OverallSimilarity))
	b.WriteString(" ")
	b.WriteString(bandRubric("N-gram precision (BLEU-4)", r.BLEUScore))
	b.WriteString(" ")
	b.WriteString(bandRubric("Structural similarity (ROUGE-L)", r.ROUGELFMeasure))
	b.WriteString(" ")
	b.WriteString(lexiconRubric(r.KeyTermsCoverage))

	return titleCaser.String(b.String()[:1]) + b.String()[1:]
}

func overallRubric(overall float64) string {
	switch {
	case overall >= 90:
		return "Overall similarity is excellent (grade A): the generated policy closely matches the reference."
	case overall >= 80:
		return "Overall similarity is good (grade B): the generated policy is broadly consistent with the reference."
	case overall >= 70:
		return "Overall similarity is acceptable (grade C): the generated policy covers the reference's ground but diverges in places."
	case overall >= 60:
		return "Overall similarity is weak (grade D): the generated policy only partially reflects the reference."
	default:
		return "Overall similarity is poor (grade F): the generated policy diverges substantially from the reference."
	}
}

func bandRubric(label string, score float64) string {
	switch {
	case score >= 0.7:
		return fmt.Sprintf("%s is high (%.2f).", label, score)
	case score >= 0.4:
		return fmt.Sprintf("%s is moderate (%.2f).", label, score)
	default:
		return fmt.Sprintf("%s is low (%.2f).", label, score)
	}
}

func lexiconRubric(coverage float64) string {
	switch {
	case coverage >= 0.8:
		return fmt.Sprintf("Security-lexicon coverage is strong (%.0f%% of reference terms present).", coverage*100)
	case coverage >= 0.5:
		return fmt.Sprintf("Security-lexicon coverage is partial (%.0f%% of reference terms present).", coverage*100)
	default:
		return fmt.Sprintf("Security-lexicon coverage is sparse (%.0f%% of reference terms present).", coverage*100)
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

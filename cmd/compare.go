package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/diffsec/govern/internal/compare"
	"github.com/diffsec/govern/internal/llmresult"
)

var (
	compareReferenceFile string
	compareGeneratedFile string
	compareRunFile       string
)

// compareCmd compares generated policies against a user-supplied reference
// policy document using BLEU-4, ROUGE-L, and security-lexicon coverage.
var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare generated policies against a reference policy document",
	Long: `Compare a reference policy (plain text) against generated output: either a
plain-text file of policy documents, or the JSON run output written by
'govern run', whose policy texts are concatenated for comparison.`,
	RunE: compareRunE,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().StringVar(&compareReferenceFile, "reference", "", "path to the reference policy text file (required)")
	compareCmd.Flags().StringVar(&compareGeneratedFile, "generated", "", "path to a generated policy text file")
	compareCmd.Flags().StringVar(&compareRunFile, "run", "", "path to a run output JSON file written by 'govern run'")
	_ = compareCmd.MarkFlagRequired("reference")
}

// runReportFile is the subset of the JSON renderer's envelope the compare
// command needs back out of a run output file.
type runReportFile struct {
	Result struct {
		Results []llmresult.PolicyResult `json:"results"`
	} `json:"result"`
}

func compareRunE(cmd *cobra.Command, args []string) error {
	if (compareGeneratedFile == "") == (compareRunFile == "") {
		return fmt.Errorf("exactly one of --generated or --run is required")
	}

	reference, err := os.ReadFile(compareReferenceFile)
	if err != nil {
		return fmt.Errorf("reading reference: %w", err)
	}

	var generated string
	if compareGeneratedFile != "" {
		data, err := os.ReadFile(compareGeneratedFile)
		if err != nil {
			return fmt.Errorf("reading generated text: %w", err)
		}
		generated = string(data)
	} else {
		data, err := os.ReadFile(compareRunFile)
		if err != nil {
			return fmt.Errorf("reading run output: %w", err)
		}
		var report runReportFile
		if err := json.Unmarshal(data, &report); err != nil {
			return fmt.Errorf("decoding run output %s: %w", compareRunFile, err)
		}
		generated = compare.CombineGeneratedText(report.Result.Results)
	}

	result, err := compare.CompareWithReference(string(reference), generated, filepath.Base(compareReferenceFile))
	if err != nil {
		exitErrorJSON(err)
		return nil
	}

	output(result, func(data any) string {
		r := data.(*compare.Report)
		return fmt.Sprintf(`comparison against %s
  BLEU-4:            %.3f
  ROUGE-L F-measure: %.3f
  lexicon coverage:  %.3f
  overall:           %.1f (grade %s)

%s
`, r.ReferenceFilename, r.BLEUScore, r.ROUGELFMeasure, r.KeyTermsCoverage, r.OverallSimilarity, r.Grade, r.Interpretation)
	})
	return nil
}

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/diffsec/govern/internal/compliance"
	"github.com/diffsec/govern/internal/embedding"
	"github.com/diffsec/govern/internal/llmclient"
	"github.com/diffsec/govern/internal/llmresult"
	"github.com/diffsec/govern/internal/orchestrator"
	"github.com/diffsec/govern/internal/rag"
	"github.com/diffsec/govern/internal/render"
	"github.com/diffsec/govern/internal/vectordb"
)

var (
	runSASTFile      string
	runSCAFile       string
	runDASTFile      string
	runMaxPerType    int
	runStorePath     string
	runProvider      string
	runOutputDir     string
	runNoVectorStore bool
)

// runCmd invokes the orchestrator end to end over local scan-report files,
// printing progress to stdout. A real deployment would front this with an
// HTTP/WebSocket transport; this command is the local, flag-driven
// equivalent for scripting and local runs.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the governance policy pipeline over local scan reports",
	Long: `Parse the supplied SAST/SCA/DAST scan report files, retrieve compliance
context for each finding, generate a governance policy per finding, analyse
catalogue coverage, and save the result.

At least one of --sast, --sca, --dast is required.`,
	RunE: runRunE,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runSASTFile, "sast", "", "path to a SAST scan report file")
	runCmd.Flags().StringVar(&runSCAFile, "sca", "", "path to an SCA scan report file")
	runCmd.Flags().StringVar(&runDASTFile, "dast", "", "path to a DAST scan report file")
	runCmd.Flags().IntVar(&runMaxPerType, "max-per-type", 10, "maximum findings processed per vulnerability type")
	runCmd.Flags().StringVar(&runStorePath, "store", ".govern/vectordb", "vector store directory")
	runCmd.Flags().StringVar(&runProvider, "provider", "ollama", "embedding provider: ollama, openai, huggingface")
	runCmd.Flags().StringVar(&runOutputDir, "output", ".govern/runs", "directory to write run output files")
	runCmd.Flags().BoolVar(&runNoVectorStore, "no-vector-store", false, "skip retrieval entirely (every finding gets the default context)")
}

func runRunE(cmd *cobra.Command, args []string) error {
	cfg := &orchestrator.Config{
		MaxPerType:  runMaxPerType,
		LargeClient: llmclient.NewMockClient("large"),
		SmallClient: llmclient.NewMockClient("small"),
		Catalogue:   compliance.NewCatalogue(),
		Renderer:    render.NewJSONRenderer(runOutputDir),
		Temperature: 0.2,
		MaxTokens:   2048,
		Emit: func(p llmresult.Progress) {
			fmt.Fprintf(os.Stdout, "[%s] %s: %s\n", p.Phase, p.Status, p.Message)
			if verbose && len(p.Data) > 0 {
				for k, v := range p.Data {
					if k == "result" {
						continue
					}
					fmt.Fprintf(os.Stdout, "    %s=%v\n", k, v)
				}
			}
		},
	}

	var err error
	if cfg.SASTSource, err = readOptional(runSASTFile); err != nil {
		return err
	}
	if cfg.SCASource, err = readOptional(runSCAFile); err != nil {
		return err
	}
	if cfg.DASTSource, err = readOptional(runDASTFile); err != nil {
		return err
	}

	if !runNoVectorStore {
		provider, err := embedding.NewDefault(runProvider)
		if err != nil {
			return fmt.Errorf("creating embedding provider: %w", err)
		}
		store, err := vectordb.NewHNSWStore(vectordb.DefaultStoreConfig(runStorePath, provider.Dimension()))
		if err != nil {
			return fmt.Errorf("opening vector store: %w", err)
		}
		cfg.Retriever = rag.New(store, provider, rag.DefaultTopK, rag.DefaultScoreFloor)
	}

	result, err := orchestrator.Run(context.Background(), cfg)
	if err != nil {
		exitErrorJSON(err)
		return nil
	}

	output(result, func(data any) string {
		r := data.(*orchestrator.RunResult)
		return fmt.Sprintf("\nrun %s complete: %d policies generated, NIST CSF coverage %.1f%%, ISO 27001 coverage %.1f%%\n",
			r.RunID, len(r.Results), r.Coverage.NIST.CoveragePercentage, r.Coverage.ISO.CoveragePercentage)
	})
	return nil
}

func readOptional(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

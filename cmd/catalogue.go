package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diffsec/govern/internal/compliance"
	"github.com/diffsec/govern/internal/embedding"
	"github.com/diffsec/govern/internal/vectordb"
)

var (
	catalogueStorePath string
	catalogueSourceDir string
	catalogueProvider  string
)

// catalogueCmd is the admin subcommand group over the compliance catalogue
// vector store: ingest, reset, and status operations.
var catalogueCmd = &cobra.Command{
	Use:   "catalogue",
	Short: "Manage the compliance framework catalogue vector store",
	Long: `Manage the compliance framework (NIST CSF, ISO 27001 Annex A) vector store
that the retriever queries during policy generation.

Catalogue management commands:
  ingest   - Load catalogue manifests from a directory, chunk, embed, upsert
  reset    - Clear the vector store (admin operation; must not run
             concurrently with queries)
  status   - Show chunk counts per framework`,
}

func init() {
	rootCmd.AddCommand(catalogueCmd)
	catalogueCmd.AddCommand(catalogueIngestCmd)
	catalogueCmd.AddCommand(catalogueResetCmd)
	catalogueCmd.AddCommand(catalogueStatusCmd)

	catalogueCmd.PersistentFlags().StringVar(&catalogueStorePath, "store", ".govern/vectordb", "vector store directory")
	catalogueIngestCmd.Flags().StringVar(&catalogueSourceDir, "source", "./catalogue", "directory of framework YAML manifests")
	catalogueIngestCmd.Flags().StringVar(&catalogueProvider, "provider", "ollama", "embedding provider: ollama, openai, huggingface")
}

var catalogueIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load, chunk, embed, and upsert a compliance catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		chunks, err := compliance.LoadDirectory(catalogueSourceDir)
		if err != nil {
			return fmt.Errorf("loading catalogue source: %w", err)
		}
		if len(chunks) == 0 {
			return fmt.Errorf("no chunks produced from %s", catalogueSourceDir)
		}

		provider, err := embedding.NewDefault(catalogueProvider)
		if err != nil {
			return fmt.Errorf("creating embedding provider: %w", err)
		}
		defer func() { _ = provider.Close() }()

		store, err := vectordb.NewHNSWStore(vectordb.DefaultStoreConfig(catalogueStorePath, provider.Dimension()))
		if err != nil {
			return fmt.Errorf("opening vector store: %w", err)
		}
		defer func() { _ = store.Close() }()

		ctx := context.Background()
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Title + "\n" + c.Text
		}

		embeddings, err := provider.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embedding catalogue chunks: %w", err)
		}

		if err := store.InsertBatch(chunks, embeddings); err != nil {
			return fmt.Errorf("upserting chunks: %w", err)
		}

		output(map[string]any{"ingested": len(chunks), "source": catalogueSourceDir, "store": catalogueStorePath}, func(data any) string {
			m := data.(map[string]any)
			return fmt.Sprintf("ingested %d chunks from %s into %s\n", m["ingested"], m["source"], m["store"])
		})
		return nil
	},
}

var catalogueResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear the vector store",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := vectordb.NewHNSWStore(vectordb.DefaultStoreConfig(catalogueStorePath, 0))
		if err != nil {
			return fmt.Errorf("opening vector store: %w", err)
		}
		defer func() { _ = store.Close() }()

		if err := store.Clear(); err != nil {
			return fmt.Errorf("clearing vector store: %w", err)
		}

		output(map[string]any{"reset": true, "store": catalogueStorePath}, func(data any) string {
			return fmt.Sprintf("cleared %s\n", catalogueStorePath)
		})
		return nil
	},
}

var catalogueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chunk counts per compliance framework",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := vectordb.NewHNSWStore(vectordb.DefaultStoreConfig(catalogueStorePath, 0))
		if err != nil {
			return fmt.Errorf("opening vector store: %w", err)
		}
		defer func() { _ = store.Close() }()

		total, err := store.Count()
		if err != nil {
			return fmt.Errorf("counting store: %w", err)
		}
		nist, err := store.CountByFramework(compliance.NISTCSF)
		if err != nil {
			return fmt.Errorf("counting NIST CSF chunks: %w", err)
		}
		iso, err := store.CountByFramework(compliance.ISO27001)
		if err != nil {
			return fmt.Errorf("counting ISO 27001 chunks: %w", err)
		}

		status := map[string]any{"total": total, "nist_csf": nist, "iso_27001": iso}
		output(status, func(data any) string {
			m := data.(map[string]any)
			return fmt.Sprintf("total chunks: %v\n  NIST CSF:   %v\n  ISO 27001:  %v\n", m["total"], m["nist_csf"], m["iso_27001"])
		})
		return nil
	},
}

package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docqa/docqa-go/internal/embedder"
	"github.com/docqa/docqa-go/internal/ingestion"
	"github.com/docqa/docqa-go/internal/logging"
)

// NewIngestCmd constructs the `docqa ingest` command, which indexes local PDF
// files into the vector store without going through the HTTP API.
func NewIngestCmd() *cobra.Command {
	var user string
	var session string

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Index local PDF files into the vector store",
		Long: `Extract, chunk, embed, and index local PDF files into the Qdrant vector store.

Indexed documents become available to 'docqa serve' question answering for
the same user and session scope.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: docqa-chunks)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  EMBEDDING_PROVIDER   Embedding backend: gemini, openai, azure, ollama (default: gemini)
  EMBEDDING_*          Provider-specific overrides (see README)

Examples:
  docqa ingest --user alice --session research report.pdf
  docqa ingest --user alice --session research docs/*.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if user == "" || session == "" {
				return fmt.Errorf("ingest: --user and --session are required")
			}

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised", slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", "gemini")))

			store, err := buildStore(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer store.Close()

			registry := buildRegistry(log)
			if registry != nil {
				defer registry.Close()
			}

			pipeline, err := ingestion.NewPipeline(emb, store, registry, &ingestion.Config{
				ChunkSize:      getEnvInt("CHUNK_SIZE", 0),
				ChunkOverlap:   getEnvInt("CHUNK_OVERLAP", 0),
				EmbedBatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", 0),
			})
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			files := make([]ingestion.File, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ingest: failed to read %s: %w", path, err)
				}
				files = append(files, ingestion.File{
					Name: filepath.Base(path),
					Data: data,
				})
			}

			results := pipeline.IndexFiles(ctx, user, session, files)

			failed := 0
			for _, r := range results {
				if r.Status == ingestion.StatusSuccess {
					fmt.Printf("✓ %s: %d chunks indexed\n", r.Filename, r.IndexedChunks)
				} else {
					failed++
					fmt.Printf("✗ %s: %s\n", r.Filename, r.Detail)
				}
			}

			if failed == len(results) {
				return fmt.Errorf("ingest: all %d files failed", failed)
			}
			if failed > 0 {
				fmt.Printf("done with errors: %d of %d files failed\n", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "", "User the documents belong to (required)")
	cmd.Flags().StringVarP(&session, "session", "s", "", "Session the documents belong to (required)")

	return cmd
}

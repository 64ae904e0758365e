package commands

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/docqa/docqa-go/internal/answer"
	"github.com/docqa/docqa-go/internal/embedder"
	"github.com/docqa/docqa-go/internal/ingestion"
	"github.com/docqa/docqa-go/internal/logging"
	"github.com/docqa/docqa-go/internal/provider"
	"github.com/docqa/docqa-go/internal/server"
	"github.com/docqa/docqa-go/internal/tracing"
)

// NewServeCmd constructs the `docqa serve` command, which starts the HTTP
// API for document indexing and question answering.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the docqa HTTP API",
		Long: `Start the docqa HTTP server on localhost.

The server exposes a REST API for uploading PDF documents and asking
questions about their content. Documents are scoped per user and session.

Examples:
  docqa serve
  docqa serve --port 9090
  MODEL_PROVIDER=azure docqa serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			emb, err := embedder.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}
			log.Info("embedder initialised", slog.String("provider", getEnvOrDefault("EMBEDDING_PROVIDER", "gemini")))

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised", slog.String("provider", getEnvOrDefault("MODEL_PROVIDER", "gemini")))

			store, err := buildStore(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer store.Close()

			registry := buildRegistry(log)
			if registry != nil {
				defer registry.Close()
			}

			pipeline, err := ingestion.NewPipeline(emb, store, registry, &ingestion.Config{
				ChunkSize:          getEnvInt("CHUNK_SIZE", 0),
				ChunkOverlap:       getEnvInt("CHUNK_OVERLAP", 0),
				EmbedBatchSize:     getEnvInt("EMBEDDING_BATCH_SIZE", 0),
				MaxConcurrentFiles: getEnvInt("INGEST_MAX_CONCURRENT_FILES", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create ingestion pipeline: %w", err)
			}

			ask, err := answer.New(&answer.Config{
				ChatModel:        chatModel,
				Embedder:         emb,
				Store:            store,
				TopK:             getEnvInt("RETRIEVAL_TOP_K", 0),
				MinScore:         float32(getEnvFloat("RETRIEVAL_MIN_SCORE", 0)),
				MaxContextTokens: getEnvInt("RETRIEVAL_MAX_CONTEXT_TOKENS", 0),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create answer pipeline: %w", err)
			}

			pingers := []server.Pinger{
				server.NewDependencyPinger(store, "qdrant"),
				server.NewLLMPinger(chatModel, "llm"),
			}
			if registry != nil {
				pingers = append(pingers, server.NewDependencyPinger(registry, "registry"))
			}

			// Env vars only apply when the flag was not set explicitly.
			if !cmd.Flags().Changed("host") {
				host = getEnvOrDefault("DOCQA_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = getEnvInt("DOCQA_PORT", port)
			}

			srv, err := server.New(pipeline, ask, store, &server.Config{
				Host:           host,
				Port:           port,
				RequestTimeout: time.Duration(getEnvInt("DOCQA_REQUEST_TIMEOUT", 0)) * time.Second,
				MaxUploadBytes: int64(getEnvInt("DOCQA_MAX_UPLOAD_BYTES", 0)),
				Logger:         log,
				Pingers:        pingers,
				RateLimit:      getEnvFloat("DOCQA_RATE_LIMIT", 0),
				RateBurst:      getEnvInt("DOCQA_RATE_BURST", 0),
				APIKey:         os.Getenv("DOCQA_API_KEY"),
				CORSOrigin:     os.Getenv("DOCQA_CORS_ORIGIN"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}

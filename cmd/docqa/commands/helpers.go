package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/docqa/docqa-go/internal/docstore"
	"github.com/docqa/docqa-go/internal/embedder"
)

// buildStore connects to Qdrant using the QDRANT_* environment variables.
// The collection's vector size is derived from the configured embedding
// backend so that the collection is created with matching dimensionality.
func buildStore(ctx context.Context, log *slog.Logger) (*docstore.QdrantStore, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", "docqa-chunks")

	backend := getEnvOrDefault("EMBEDDING_PROVIDER", "gemini")
	vectorSize := uint64(embedder.DefaultDimensions(backend)) //nolint:gosec // dimensions are bounded

	store, err := docstore.NewQdrantStore(ctx, &docstore.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}

	log.Info("qdrant store ready",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("collection", collection),
		slog.Uint64("vector_size", vectorSize),
	)

	return store, nil
}

// buildRegistry opens the session registry database. DOCQA_REGISTRY_DB
// overrides the default path (~/.docqa/registry.db); "disabled" turns the
// registry off. A registry failure is never fatal — the service degrades to
// operating without session bookkeeping.
func buildRegistry(log *slog.Logger) *docstore.SQLiteRegistry {
	dbPath := os.Getenv("DOCQA_REGISTRY_DB")
	if dbPath == "disabled" {
		log.Info("registry: disabled via DOCQA_REGISTRY_DB=disabled")
		return nil
	}
	if dbPath == "" {
		var err error
		dbPath, err = docstore.DefaultRegistryPath()
		if err != nil {
			log.Warn("registry: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
	}

	reg, err := docstore.OpenRegistry(dbPath)
	if err != nil {
		log.Warn("registry: failed to open, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("registry: opened", slog.String("path", dbPath))
	return reg
}

// getEnvOrDefault returns the env var value or a fallback when unset.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or a fallback when unset or
// unparseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvFloat returns the env var parsed as float64, or a fallback when unset
// or unparseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

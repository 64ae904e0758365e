// Package embedder provides implementations of the rag.Embedder interface
// for converting text into dense vector embeddings. The primary backend is
// the Gemini embedding API (which distinguishes document and query
// embedding intents); OpenAI-compatible and Ollama backends are available
// over plain HTTP for local or alternative deployments.
package embedder

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/docqa/docqa-go/internal/rag"
)

// GeminiEmbedder implements rag.Embedder using the Gemini embedding API.
// It is safe for concurrent use.
type GeminiEmbedder struct {
	// client is the shared Gemini API client.
	client *genai.Client
	// model is the embedding model name (e.g. "gemini-embedding-001").
	model string
	// dimensions is the requested output vector length.
	dimensions int32
}

// GeminiConfig holds the settings for constructing a GeminiEmbedder.
type GeminiConfig struct {
	// APIKey is the Google API key. Required.
	APIKey string
	// Model is the embedding model name (default: "gemini-embedding-001").
	Model string
	// Dimensions is the requested output vector length (default: 768).
	Dimensions int
}

// NewGeminiEmbedder constructs a GeminiEmbedder from the given config.
func NewGeminiEmbedder(ctx context.Context, cfg *GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedder: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = defaultGeminiDimensions
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: create client: %w", err)
	}

	return &GeminiEmbedder{
		client:     client,
		model:      cfg.Model,
		dimensions: int32(cfg.Dimensions),
	}, nil
}

// geminiTaskType maps the pipeline's embedding intent to the Gemini API's
// task type vocabulary.
func geminiTaskType(task rag.EmbedTask) string {
	if task == rag.TaskQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

// Embed converts a batch of texts into their corresponding embeddings.
// The returned slice is parallel to the input slice.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string, task rag.EmbedTask) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, &genai.EmbedContentConfig{
		TaskType:             geminiTaskType(task),
		OutputDimensionality: genai.Ptr(e.dimensions),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: embed content: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embedder: expected %d embeddings, got %d", len(texts), len(resp.Embeddings))
	}

	out := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("gemini embedder: empty embedding at index %d", i)
		}
		out[i] = emb.Values
	}
	return out, nil
}

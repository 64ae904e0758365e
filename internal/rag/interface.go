// Package rag defines the shared types and collaborator interfaces of the
// retrieval pipeline: embedded document chunks, the chunk store, and the
// embedding service. Concrete implementations (Qdrant, Gemini, etc.) satisfy
// these interfaces so the ingestion and answer pipelines never depend on a
// specific backend.
package rag

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by store operations that matched no records:
// deleting an unknown filename, or streaming a scope that was never
// ingested into.
var ErrNotFound = errors.New("rag: not found")

// Chunk is the atomic stored unit: a bounded slice of a document's extracted
// text together with its embedding vector. Chunks live inside a
// (user, session) scope and are grouped into documents by Filename.
type Chunk struct {
	// ID is the unique identifier assigned when the chunk is persisted.
	ID string

	// Filename identifies the source document within the scope.
	Filename string

	// Text is the chunk's extracted text. Never empty for a persisted chunk.
	Text string

	// Vector is the embedding of Text, of the configured dimensionality.
	Vector []float32

	// CreatedAt is when the chunk was persisted.
	CreatedAt time.Time

	// Active marks the chunk as eligible for retrieval.
	Active bool
}

// ScoredChunk is a Chunk annotated with its similarity to a question vector.
type ScoredChunk struct {
	Chunk

	// Score is the cosine similarity to the question vector (-1.0–1.0).
	Score float32
}

// FileSummary describes one document within a session listing.
type FileSummary struct {
	// Filename is the document's name within the session.
	Filename string `json:"filename"`
	// ChunkCount is the number of chunks stored for this document.
	ChunkCount int `json:"chunk_count"`
}

// SessionSummary groups a session's documents for the listing API.
type SessionSummary struct {
	// Session is the session identifier.
	Session string `json:"session_id"`
	// Files lists the distinct documents and their chunk counts.
	Files []FileSummary `json:"files"`
}

// EmbedTask distinguishes the two embedding intents. Document and query
// embeddings are asymmetric for retrieval models — ingestion must use
// TaskDocument and question answering TaskQuery.
type EmbedTask string

const (
	// TaskDocument embeds text that will be stored and retrieved against.
	TaskDocument EmbedTask = "document"
	// TaskQuery embeds a question that retrieves against stored documents.
	TaskQuery EmbedTask = "query"
)

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings
	// using the given task intent. The returned slice is parallel to the
	// input slice.
	Embed(ctx context.Context, texts []string, task EmbedTask) ([][]float32, error)
}

// ChunkStore is the document store collaborator. It owns all persisted chunk
// records; pipelines only construct chunks and request reads and writes.
// Implementations must be safe to call from multiple goroutines.
type ChunkStore interface {
	// UpsertChunks persists all chunks of one document as a single atomic
	// batch within the (user, session) scope: either every chunk lands or
	// none do. Chunk IDs must be populated by the caller before the write.
	UpsertChunks(ctx context.Context, user, session, filename string, chunks []Chunk) error

	// DeleteByFilename removes every chunk whose filename matches within the
	// scope and returns the number removed. Returns ErrNotFound when no
	// chunk matched.
	DeleteByFilename(ctx context.Context, user, session, filename string) (int, error)

	// ListByUser returns, per session of the given user, the distinct
	// filenames and their chunk counts.
	ListByUser(ctx context.Context, user string) ([]SessionSummary, error)

	// ScopeChunks streams every active chunk in the (user, session) scope to
	// visit, one page at a time, so callers never hold the full scope
	// resident. Returns ErrNotFound when the scope contains no chunks.
	// Iteration stops early when visit returns an error.
	ScopeChunks(ctx context.Context, user, session string, visit func(Chunk) error) error

	// Close releases any resources held by the store.
	Close() error
}

// Package ingestion implements the document indexing pipeline.
// It extracts text from uploaded PDF files, chunks the content, embeds each
// chunk in bounded batches, and upserts the results into the chunk store
// under the request's (user, session) scope. One request may carry many
// files; each file succeeds or fails independently.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/docqa/docqa-go/internal/chunker"
	"github.com/docqa/docqa-go/internal/docstore"
	"github.com/docqa/docqa-go/internal/embedder"
	"github.com/docqa/docqa-go/internal/logging"
	"github.com/docqa/docqa-go/internal/rag"
)

// File statuses reported per uploaded file.
const (
	// StatusSuccess marks a file whose chunks were all persisted.
	StatusSuccess = "success"
	// StatusError marks a file that failed; nothing of it was persisted.
	StatusError = "error"
)

// defaultMaxConcurrentFiles bounds how many uploaded files are processed at
// once within a single request.
const defaultMaxConcurrentFiles = 4

// File is one uploaded document: its name and raw bytes.
type File struct {
	// Name is the uploaded filename, used to group the resulting chunks.
	Name string

	// Data is the raw file content.
	Data []byte
}

// FileResult is the per-file outcome of an indexing request. Every input
// file produces exactly one result, in input order.
type FileResult struct {
	// Filename echoes the input file's name.
	Filename string `json:"filename"`

	// Status is StatusSuccess or StatusError.
	Status string `json:"status"`

	// Detail carries the failure reason when Status is StatusError.
	Detail string `json:"detail,omitempty"`

	// IndexedChunks is the number of chunks persisted for this file.
	IndexedChunks int `json:"indexed_chunks,omitempty"`

	// DocumentIDs lists the IDs of the persisted chunks.
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// Config holds the configuration for the indexing pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to chunker.DefaultChunkSize if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared between consecutive
	// chunks. Defaults to chunker.DefaultOverlap when ChunkSize is also
	// zero; an explicit ChunkSize with zero overlap is honoured as-is.
	ChunkOverlap int

	// EmbedBatchSize caps how many chunk texts one embedding call carries.
	// Defaults to embedder.DefaultBatchSize if zero.
	EmbedBatchSize int

	// MaxConcurrentFiles bounds per-request file parallelism.
	// Defaults to 4 if zero.
	MaxConcurrentFiles int
}

// Pipeline orchestrates the extract → chunk → embed → upsert flow for a
// batch of uploaded files.
type Pipeline struct {
	// embedder converts chunk texts into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.ChunkStore

	// registry tracks which (user, session) scopes have been written to.
	// May be nil when scope bookkeeping is not configured.
	registry docstore.Registry

	// splitter produces overlapping chunks from extracted text.
	splitter *chunker.Chunker

	// extract converts raw file bytes into plain text. Defaults to
	// ExtractPDFText; tests substitute a stub.
	extract func([]byte) (string, error)

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(emb rag.Embedder, store rag.ChunkStore, registry docstore.Registry, cfg *Config) (*Pipeline, error) {
	if emb == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = embedder.DefaultBatchSize
	}
	if cfg.MaxConcurrentFiles <= 0 {
		cfg.MaxConcurrentFiles = defaultMaxConcurrentFiles
	}

	splitter, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("ingestion: %w", err)
	}

	return &Pipeline{
		embedder: emb,
		store:    store,
		registry: registry,
		splitter: splitter,
		extract:  ExtractPDFText,
		cfg:      cfg,
	}, nil
}

// IndexFiles processes every uploaded file under the (user, session) scope
// and returns one result per file, in input order. Files are independent:
// a corrupt file yields an error result without affecting its neighbors,
// and a failed file persists nothing.
func (p *Pipeline) IndexFiles(ctx context.Context, user, session string, files []File) []FileResult {
	log := logging.FromContext(ctx)
	results := make([]FileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrentFiles)

	for i, f := range files {
		g.Go(func() error {
			results[i] = p.indexFile(gctx, user, session, f)
			if results[i].Status == StatusError {
				log.Warn("ingestion: file failed",
					slog.String("filename", f.Name),
					slog.String("detail", results[i].Detail),
				)
			} else {
				log.Info("ingestion: file indexed",
					slog.String("filename", f.Name),
					slog.Int("chunks", results[i].IndexedChunks),
				)
			}
			// Per-file failures are reported in the result, never as a
			// group error, so sibling files keep processing.
			return nil
		})
	}
	_ = g.Wait()

	if p.registry != nil && anySucceeded(results) {
		if err := p.registry.Touch(ctx, user, session); err != nil {
			log.Warn("ingestion: failed to update scope registry", slog.Any("error", err))
		}
	}

	return results
}

// indexFile runs one file through the full pipeline and reports its outcome.
func (p *Pipeline) indexFile(ctx context.Context, user, session string, f File) FileResult {
	res := FileResult{Filename: f.Name, Status: StatusError}

	if len(f.Data) == 0 {
		res.Detail = "empty file"
		return res
	}

	text, err := p.extract(f.Data)
	if err != nil {
		res.Detail = err.Error()
		return res
	}

	texts := p.splitter.Split(text)
	if len(texts) == 0 {
		res.Detail = "document contains no text"
		return res
	}

	vectors, err := embedder.EmbedBatches(ctx, p.embedder, texts, p.cfg.EmbedBatchSize, rag.TaskDocument)
	if err != nil {
		res.Detail = fmt.Sprintf("embedding failed: %v", err)
		return res
	}

	now := time.Now().UTC()
	chunks := make([]rag.Chunk, len(texts))
	ids := make([]string, len(texts))
	for i, t := range texts {
		id := uuid.NewString()
		ids[i] = id
		chunks[i] = rag.Chunk{
			ID:        id,
			Filename:  f.Name,
			Text:      t,
			Vector:    vectors[i],
			CreatedAt: now,
			Active:    true,
		}
	}

	if err := p.store.UpsertChunks(ctx, user, session, f.Name, chunks); err != nil {
		res.Detail = fmt.Sprintf("storing chunks failed: %v", err)
		return res
	}

	res.Status = StatusSuccess
	res.IndexedChunks = len(chunks)
	res.DocumentIDs = ids
	res.Detail = ""
	return res
}

// anySucceeded reports whether at least one file was fully indexed.
func anySucceeded(results []FileResult) bool {
	for _, r := range results {
		if r.Status == StatusSuccess {
			return true
		}
	}
	return false
}

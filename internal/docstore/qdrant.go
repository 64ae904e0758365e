// Package docstore provides the persistent storage backends of the document
// pipeline: a Qdrant-backed chunk store holding embedded document chunks
// inside (user, session) scopes, and a SQLite-backed session registry that
// tracks which scopes exist and when they were last written.
package docstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/docqa/docqa-go/internal/rag"
)

// scrollPageSize bounds how many chunk records one scroll page carries.
// Scope reads stream page by page so a large session never has to be
// resident in memory all at once.
const scrollPageSize = 256

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements rag.ChunkStore backed by a Qdrant instance. Every
// chunk is one point whose payload carries the owning user, session and
// filename, so all reads and writes are scoped with payload filters.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// and its payload indexes exist, and returns a ready-to-use chunk store.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	clientCfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	}

	client, err := qdrant.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("docstore: failed to create qdrant client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already
// exist, along with keyword indexes on the scope fields that every query
// filters on.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("docstore: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("docstore: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	for _, field := range []string{"user", "session", "filename"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.cfg.Collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("docstore: failed to index payload field %q: %w", field, err)
		}
	}

	return nil
}

// scopeFilter builds the payload filter for a (user, session) scope,
// optionally narrowed to one filename.
func scopeFilter(user, session, filename string) *qdrant.Filter {
	must := []*qdrant.Condition{
		qdrant.NewMatch("user", user),
		qdrant.NewMatch("session", session),
	}
	if filename != "" {
		must = append(must, qdrant.NewMatch("filename", filename))
	}
	return &qdrant.Filter{Must: must}
}

// UpsertChunks persists all chunks of one document as a single waited batch.
// Qdrant applies a batched upsert atomically per request, so either every
// chunk of the document lands or none do.
func (s *QdrantStore) UpsertChunks(ctx context.Context, user, session, filename string, chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("docstore: chunk for %q has no ID", filename)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectors(c.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"user":       user,
				"session":    session,
				"filename":   filename,
				"text":       c.Text,
				"created_at": c.CreatedAt.Unix(),
				"active":     c.Active,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("docstore: upsert %d chunks for %q: %w", len(chunks), filename, err)
	}

	return nil
}

// DeleteByFilename removes every chunk of the named document within the scope
// and returns how many were removed. Returns rag.ErrNotFound when the scope
// holds no chunks for that filename.
func (s *QdrantStore) DeleteByFilename(ctx context.Context, user, session, filename string) (int, error) {
	filter := scopeFilter(user, session, filename)

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("docstore: count chunks for %q: %w", filename, err)
	}
	if count == 0 {
		return 0, fmt.Errorf("docstore: no chunks for %q in scope: %w", filename, rag.ErrNotFound)
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("docstore: delete chunks for %q: %w", filename, err)
	}

	return int(count), nil
}

// ListByUser returns, per session of the given user, the distinct filenames
// and their chunk counts. Sessions and files are each sorted by name so the
// listing is stable across calls.
func (s *QdrantStore) ListByUser(ctx context.Context, user string) ([]rag.SessionSummary, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("user", user)},
	}

	// session -> filename -> chunk count
	counts := make(map[string]map[string]int)

	err := s.scroll(ctx, filter, false, func(p *qdrant.RetrievedPoint) error {
		payload := p.GetPayload()
		session := payload["session"].GetStringValue()
		filename := payload["filename"].GetStringValue()
		if counts[session] == nil {
			counts[session] = make(map[string]int)
		}
		counts[session][filename]++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: list documents for user: %w", err)
	}

	summaries := make([]rag.SessionSummary, 0, len(counts))
	for session, files := range counts {
		summary := rag.SessionSummary{
			Session: session,
			Files:   make([]rag.FileSummary, 0, len(files)),
		}
		for filename, n := range files {
			summary.Files = append(summary.Files, rag.FileSummary{
				Filename:   filename,
				ChunkCount: n,
			})
		}
		sort.Slice(summary.Files, func(i, j int) bool {
			return summary.Files[i].Filename < summary.Files[j].Filename
		})
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Session < summaries[j].Session
	})

	return summaries, nil
}

// ScopeChunks streams every active chunk in the (user, session) scope to
// visit, one scroll page at a time. Returns rag.ErrNotFound when the scope
// contains no active chunks.
func (s *QdrantStore) ScopeChunks(ctx context.Context, user, session string, visit func(rag.Chunk) error) error {
	filter := scopeFilter(user, session, "")
	filter.Must = append(filter.Must, qdrant.NewMatchBool("active", true))

	seen := 0
	err := s.scroll(ctx, filter, true, func(p *qdrant.RetrievedPoint) error {
		seen++
		return visit(pointToChunk(p))
	})
	if err != nil {
		return fmt.Errorf("docstore: scan scope: %w", err)
	}
	if seen == 0 {
		return fmt.Errorf("docstore: scope has no documents: %w", rag.ErrNotFound)
	}
	return nil
}

// scroll pages through every point matching filter, invoking visit per point.
// The high-level client's Scroll helper discards the next-page offset, so
// this goes through the raw points client to follow the pagination cursor.
func (s *QdrantStore) scroll(ctx context.Context, filter *qdrant.Filter, withVectors bool, visit func(*qdrant.RetrievedPoint) error) error {
	points := s.client.GetPointsClient()

	req := &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(scrollPageSize)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(withVectors),
	}

	for {
		resp, err := points.Scroll(ctx, req)
		if err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		for _, p := range resp.GetResult() {
			if err := visit(p); err != nil {
				return err
			}
		}
		next := resp.GetNextPageOffset()
		if next == nil {
			return nil
		}
		req.Offset = next
	}
}

// pointToChunk converts a retrieved Qdrant point back into a rag.Chunk.
func pointToChunk(p *qdrant.RetrievedPoint) rag.Chunk {
	payload := p.GetPayload()
	c := rag.Chunk{
		ID:       p.GetId().GetUuid(),
		Filename: payload["filename"].GetStringValue(),
		Text:     payload["text"].GetStringValue(),
		Active:   payload["active"].GetBoolValue(),
	}
	if ts := payload["created_at"].GetIntegerValue(); ts != 0 {
		c.CreatedAt = time.Unix(ts, 0)
	}
	if v := p.GetVectors().GetVector(); v != nil {
		c.Vector = v.GetData()
	}
	return c
}

// Ping reports whether the Qdrant instance is reachable. Used by the
// readiness probe.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("docstore: qdrant health check: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

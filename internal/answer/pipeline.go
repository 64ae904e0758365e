// Package answer implements the question-answering pipeline: embed the
// question, stream the session's chunks through cosine ranking, assemble a
// bounded prompt from the strongest chunks, and generate a grounded answer
// with the configured chat model.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/docqa/docqa-go/internal/budget"
	"github.com/docqa/docqa-go/internal/logging"
	"github.com/docqa/docqa-go/internal/rag"
)

// Sentinel errors callers map onto API responses.
var (
	// ErrEmptyQuestion is returned when the question is blank.
	ErrEmptyQuestion = errors.New("answer: question cannot be empty")

	// ErrNoDocuments is returned when the (user, session) scope has never
	// been ingested into. Distinct from ErrNoRelevantContext so callers can
	// tell "upload something first" apart from "nothing matched".
	ErrNoDocuments = errors.New("answer: no documents in session")

	// ErrNoRelevantContext is returned when documents exist but none scored
	// above the similarity floor. The chat model is never invoked in this
	// case.
	ErrNoRelevantContext = errors.New("answer: no relevant information found")
)

// systemPrompt constrains the model to the retrieved context.
const systemPrompt = `You are a document question-answering assistant.
Answer the user's question using ONLY the provided document excerpts.
If the excerpts do not contain the information needed to answer, say so
plainly instead of guessing. Be concise and factual. When the excerpts
disagree, say which document says what.`

// ChatModel is the narrow slice of an eino chat model the pipeline needs.
type ChatModel interface {
	// Generate produces a single completion for the given messages.
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Source identifies one chunk that grounded the answer.
type Source struct {
	// ID is the chunk's store identifier.
	ID string `json:"id"`
	// Filename is the document the chunk came from.
	Filename string `json:"filename"`
	// Score is the chunk's cosine similarity to the question.
	Score float32 `json:"score"`
}

// Answer is the pipeline's result: the generated text and the chunks that
// grounded it, ordered best-first.
type Answer struct {
	// Text is the generated answer.
	Text string `json:"data"`
	// Sources lists the chunks used to build the prompt.
	Sources []Source `json:"sources,omitempty"`
}

// Config holds the dependencies and tuning knobs of the answer pipeline.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel ChatModel

	// Embedder embeds the question. Must be the same backend and
	// dimensionality as the one used at ingestion time.
	Embedder rag.Embedder

	// Store streams the session's chunks.
	Store rag.ChunkStore

	// TopK caps how many chunks are retrieved per question.
	// Defaults to rag.DefaultTopK if zero.
	TopK int

	// MinScore is the cosine similarity floor; chunks scoring below it are
	// never shown to the model.
	MinScore float32

	// MaxContextTokens is the estimated token budget for the full prompt.
	// Weakest retrieved chunks are dropped to fit. Defaults to
	// budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Pipeline answers questions against a (user, session) document scope.
type Pipeline struct {
	chatModel ChatModel
	embedder  rag.Embedder
	store     rag.ChunkStore
	ranker    *rag.Ranker

	// maxContextTokens is the estimated token budget for the full prompt.
	maxContextTokens int
}

// New constructs a Pipeline from the provided Config.
func New(cfg *Config) (*Pipeline, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("answer: ChatModel must not be nil")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("answer: Embedder must not be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("answer: Store must not be nil")
	}

	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}

	return &Pipeline{
		chatModel: cfg.ChatModel,
		embedder:  cfg.Embedder,
		store:     cfg.Store,
		ranker: rag.NewRanker(&rag.RankerConfig{
			TopK:     cfg.TopK,
			MinScore: cfg.MinScore,
		}),
		maxContextTokens: maxCtx,
	}, nil
}

// Ask answers a question using only the documents of the (user, session)
// scope. It returns ErrEmptyQuestion for a blank question, ErrNoDocuments
// when the scope has never been ingested into, and ErrNoRelevantContext when
// nothing scored above the similarity floor.
func (p *Pipeline) Ask(ctx context.Context, user, session, question string) (*Answer, error) {
	log := logging.FromContext(ctx)

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	vectors, err := p.embedder.Embed(ctx, []string{question}, rag.TaskQuery)
	if err != nil {
		return nil, fmt.Errorf("answer: embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("answer: embedder returned %d vectors for one question", len(vectors))
	}

	selection := p.ranker.NewSelection(vectors[0])
	err = p.store.ScopeChunks(ctx, user, session, func(c rag.Chunk) error {
		selection.Add(c)
		return nil
	})
	if err != nil {
		if errors.Is(err, rag.ErrNotFound) {
			return nil, ErrNoDocuments
		}
		return nil, fmt.Errorf("answer: scan session documents: %w", err)
	}
	if skipped := selection.Skipped(); skipped > 0 {
		log.Warn("answer: skipped chunks with mismatched vector size",
			slog.Int("skipped", skipped),
		)
	}

	ranked := selection.Results()
	if len(ranked) == 0 {
		return nil, ErrNoRelevantContext
	}

	fixedTokens := budget.Estimate(systemPrompt) + budget.Estimate(question) + 16
	retained := budget.TrimChunks(ranked, fixedTokens, p.maxContextTokens)
	if len(retained) < len(ranked) {
		log.Debug("answer: trimmed retrieval context to fit token budget",
			slog.Int("retrieved", len(ranked)),
			slog.Int("retained", len(retained)),
		)
	}

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.SystemMessage(buildContext(retained)),
		schema.UserMessage(question),
	}

	if est := budget.EstimateMessages(messages); est > p.maxContextTokens {
		// Only possible when the single best chunk alone exceeds the budget;
		// it is still sent so the question gets its strongest grounding.
		log.Warn("answer: prompt exceeds configured token budget",
			slog.Int("estimated_tokens", est),
			slog.Int("budget", p.maxContextTokens),
		)
	}

	resp, err := p.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("answer: generate: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, ErrNoRelevantContext
	}

	sources := make([]Source, len(retained))
	for i, c := range retained {
		sources[i] = Source{ID: c.ID, Filename: c.Filename, Score: c.Score}
	}

	return &Answer{Text: resp.Content, Sources: sources}, nil
}

// buildContext formats the retained chunks into a single context message,
// best-ranked first, each excerpt labelled with its source document.
func buildContext(chunks []rag.ScoredChunk) string {
	var sb strings.Builder
	sb.WriteString("Document excerpts, most relevant first:\n")
	for i, c := range chunks {
		fmt.Fprintf(&sb, "\n[%d] (from %s)\n%s\n", i+1, c.Filename, c.Text)
	}
	return sb.String()
}

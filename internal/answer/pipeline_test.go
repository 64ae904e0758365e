package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/docqa/docqa-go/internal/rag"
)

// fakeChatModel returns a canned reply and records the messages it saw.
type fakeChatModel struct {
	reply string
	err   error
	seen  []*schema.Message
	calls int
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.calls++
	f.seen = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

// queryEmbedder returns a fixed query vector.
type queryEmbedder struct {
	vector []float32
	err    error
}

func (f *queryEmbedder) Embed(_ context.Context, texts []string, task rag.EmbedTask) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	if task != rag.TaskQuery {
		return nil, errors.New("question must be embedded with the query task")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vector
	}
	return out, nil
}

// chunkSource streams a fixed chunk list; empty means a never-ingested scope.
type chunkSource struct {
	chunks []rag.Chunk
}

func (f *chunkSource) UpsertChunks(context.Context, string, string, string, []rag.Chunk) error {
	return nil
}

func (f *chunkSource) DeleteByFilename(context.Context, string, string, string) (int, error) {
	return 0, rag.ErrNotFound
}

func (f *chunkSource) ListByUser(context.Context, string) ([]rag.SessionSummary, error) {
	return nil, nil
}

func (f *chunkSource) ScopeChunks(_ context.Context, _, _ string, visit func(rag.Chunk) error) error {
	if len(f.chunks) == 0 {
		return rag.ErrNotFound
	}
	for _, c := range f.chunks {
		if err := visit(c); err != nil {
			return err
		}
	}
	return nil
}

func (f *chunkSource) Close() error { return nil }

func newTestPipeline(t *testing.T, cm ChatModel, store rag.ChunkStore) *Pipeline {
	t.Helper()
	p, err := New(&Config{
		ChatModel: cm,
		Embedder:  &queryEmbedder{vector: []float32{1, 0}},
		Store:     store,
		TopK:      3,
		MinScore:  0.2,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func Test_Ask_AnswersFromContext(t *testing.T) {
	t.Parallel()

	store := &chunkSource{chunks: []rag.Chunk{
		{ID: "c1", Filename: "a.pdf", Text: "relevant passage", Vector: []float32{1, 0}},
		{ID: "c2", Filename: "b.pdf", Text: "orthogonal passage", Vector: []float32{0, 1}},
	}}
	cm := &fakeChatModel{reply: "the answer"}
	p := newTestPipeline(t, cm, store)

	ans, err := p.Ask(context.Background(), "alice", "s1", "what does it say?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if ans.Text != "the answer" {
		t.Errorf("want %q, got %q", "the answer", ans.Text)
	}
	// c2 scores 0.0, below the 0.2 floor; only c1 grounds the answer.
	if len(ans.Sources) != 1 || ans.Sources[0].ID != "c1" {
		t.Fatalf("want sources [c1], got %v", ans.Sources)
	}
	if ans.Sources[0].Filename != "a.pdf" {
		t.Errorf("source filename: want a.pdf, got %q", ans.Sources[0].Filename)
	}

	if len(cm.seen) != 3 {
		t.Fatalf("want 3 prompt messages, got %d", len(cm.seen))
	}
	if !strings.Contains(cm.seen[1].Content, "relevant passage") {
		t.Error("context message should carry the retained chunk text")
	}
	if strings.Contains(cm.seen[1].Content, "orthogonal passage") {
		t.Error("chunks below the similarity floor must not reach the model")
	}
	if cm.seen[2].Content != "what does it say?" {
		t.Errorf("user message: got %q", cm.seen[2].Content)
	}
}

func Test_Ask_OversizedBestChunkStillAnswers(t *testing.T) {
	t.Parallel()

	// One chunk far larger than the token budget: trimming retains it anyway
	// and the model is still called with the full prompt.
	store := &chunkSource{chunks: []rag.Chunk{
		{ID: "c1", Filename: "a.pdf", Text: strings.Repeat("long passage ", 200), Vector: []float32{1, 0}},
	}}
	cm := &fakeChatModel{reply: "the answer"}
	p, err := New(&Config{
		ChatModel:        cm,
		Embedder:         &queryEmbedder{vector: []float32{1, 0}},
		Store:            store,
		MinScore:         0.2,
		MaxContextTokens: 50,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	ans, err := p.Ask(context.Background(), "alice", "s1", "what does it say?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if ans.Text != "the answer" {
		t.Errorf("answer: want %q, got %q", "the answer", ans.Text)
	}
	if cm.calls != 1 {
		t.Errorf("model calls: want 1, got %d", cm.calls)
	}
	if len(ans.Sources) != 1 || ans.Sources[0].ID != "c1" {
		t.Errorf("sources: want the single oversized chunk, got %+v", ans.Sources)
	}
}

func Test_Ask_EmptyQuestion(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{reply: "x"}
	p := newTestPipeline(t, cm, &chunkSource{})

	if _, err := p.Ask(context.Background(), "alice", "s1", "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("want ErrEmptyQuestion, got %v", err)
	}
	if cm.calls != 0 {
		t.Error("chat model must not be called for a blank question")
	}
}

func Test_Ask_NoDocuments(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{reply: "x"}
	p := newTestPipeline(t, cm, &chunkSource{})

	_, err := p.Ask(context.Background(), "alice", "s1", "anything?")
	if !errors.Is(err, ErrNoDocuments) {
		t.Fatalf("want ErrNoDocuments, got %v", err)
	}
	if cm.calls != 0 {
		t.Error("chat model must not be called for an empty scope")
	}
}

func Test_Ask_NoRelevantContext(t *testing.T) {
	t.Parallel()

	// All chunks orthogonal to the question vector: scores below the floor.
	store := &chunkSource{chunks: []rag.Chunk{
		{ID: "c1", Filename: "a.pdf", Text: "unrelated", Vector: []float32{0, 1}},
	}}
	cm := &fakeChatModel{reply: "x"}
	p := newTestPipeline(t, cm, store)

	_, err := p.Ask(context.Background(), "alice", "s1", "anything?")
	if !errors.Is(err, ErrNoRelevantContext) {
		t.Fatalf("want ErrNoRelevantContext, got %v", err)
	}
	if cm.calls != 0 {
		t.Error("chat model must not be called when nothing scored above the floor")
	}
}

func Test_Ask_EmptyGeneration(t *testing.T) {
	t.Parallel()

	store := &chunkSource{chunks: []rag.Chunk{
		{ID: "c1", Filename: "a.pdf", Text: "passage", Vector: []float32{1, 0}},
	}}
	p := newTestPipeline(t, &fakeChatModel{reply: "  "}, store)

	_, err := p.Ask(context.Background(), "alice", "s1", "anything?")
	if !errors.Is(err, ErrNoRelevantContext) {
		t.Fatalf("want ErrNoRelevantContext for empty generation, got %v", err)
	}
}

func Test_Ask_GenerateError(t *testing.T) {
	t.Parallel()

	store := &chunkSource{chunks: []rag.Chunk{
		{ID: "c1", Filename: "a.pdf", Text: "passage", Vector: []float32{1, 0}},
	}}
	p := newTestPipeline(t, &fakeChatModel{err: errors.New("backend down")}, store)

	if _, err := p.Ask(context.Background(), "alice", "s1", "anything?"); err == nil {
		t.Fatal("want error from chat backend")
	}
}

func Test_New_Validation(t *testing.T) {
	t.Parallel()

	emb := &queryEmbedder{vector: []float32{1}}
	store := &chunkSource{}
	cm := &fakeChatModel{}

	if _, err := New(&Config{Embedder: emb, Store: store}); err == nil {
		t.Error("nil chat model should be rejected")
	}
	if _, err := New(&Config{ChatModel: cm, Store: store}); err == nil {
		t.Error("nil embedder should be rejected")
	}
	if _, err := New(&Config{ChatModel: cm, Embedder: emb}); err == nil {
		t.Error("nil store should be rejected")
	}
}

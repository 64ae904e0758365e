package embedder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/docqa/docqa-go/internal/rag"
)

// indexEmbedder is a fake that maps each text "t<i>" to the vector [i].
// It records how many calls it received and the size of each batch.
type indexEmbedder struct {
	mu         sync.Mutex
	calls      int
	batchSizes []int
	failBatch  int // fail the nth call (1-based); 0 = never fail
}

func (f *indexEmbedder) Embed(_ context.Context, texts []string, _ rag.EmbedTask) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.batchSizes = append(f.batchSizes, len(texts))
	f.mu.Unlock()

	if f.failBatch != 0 && call == f.failBatch {
		return nil, errors.New("backend unavailable")
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		var idx float32
		if _, err := fmt.Sscanf(t, "t%f", &idx); err != nil {
			return nil, fmt.Errorf("unexpected text %q", t)
		}
		out[i] = []float32{idx}
	}
	return out, nil
}

func makeTexts(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}
	return texts
}

func Test_EmbedBatches_PreservesOrder(t *testing.T) {
	t.Parallel()

	fake := &indexEmbedder{}
	texts := makeTexts(1000)

	got, err := EmbedBatches(context.Background(), fake, texts, 250, rag.TaskDocument)
	if err != nil {
		t.Fatalf("EmbedBatches: %v", err)
	}
	if len(got) != 1000 {
		t.Fatalf("expected 1000 vectors, got %d", len(got))
	}
	for i, vec := range got {
		if len(vec) != 1 || vec[0] != float32(i) {
			t.Fatalf("vector %d: expected [%d], got %v", i, i, vec)
		}
	}
	if fake.calls != 4 {
		t.Errorf("expected 4 batches, got %d", fake.calls)
	}
	for _, size := range fake.batchSizes {
		if size != 250 {
			t.Errorf("expected batch size 250, got %d", size)
		}
	}
}

func Test_EmbedBatches_UnevenFinalBatch(t *testing.T) {
	t.Parallel()

	fake := &indexEmbedder{}
	texts := makeTexts(520)

	got, err := EmbedBatches(context.Background(), fake, texts, 250, rag.TaskDocument)
	if err != nil {
		t.Fatalf("EmbedBatches: %v", err)
	}
	if len(got) != 520 {
		t.Fatalf("expected 520 vectors, got %d", len(got))
	}
	if got[519][0] != 519 {
		t.Errorf("last vector: expected [519], got %v", got[519])
	}
	if fake.calls != 3 {
		t.Errorf("expected 3 batches, got %d", fake.calls)
	}
}

func Test_EmbedBatches_MatchesSingleBatch(t *testing.T) {
	t.Parallel()

	texts := makeTexts(37)

	batched, err := EmbedBatches(context.Background(), &indexEmbedder{}, texts, 10, rag.TaskDocument)
	if err != nil {
		t.Fatalf("batched: %v", err)
	}
	whole, err := EmbedBatches(context.Background(), &indexEmbedder{}, texts, 1000, rag.TaskDocument)
	if err != nil {
		t.Fatalf("single batch: %v", err)
	}

	for i := range texts {
		if batched[i][0] != whole[i][0] {
			t.Fatalf("vector %d differs: batched=%v whole=%v", i, batched[i], whole[i])
		}
	}
}

func Test_EmbedBatches_FailureDiscardsAll(t *testing.T) {
	t.Parallel()

	fake := &indexEmbedder{failBatch: 2}
	texts := makeTexts(500)

	got, err := EmbedBatches(context.Background(), fake, texts, 250, rag.TaskDocument)
	if err == nil {
		t.Fatal("expected error when a batch fails")
	}
	if got != nil {
		t.Fatalf("expected nil result on failure, got %d vectors", len(got))
	}
}

func Test_EmbedBatches_Empty(t *testing.T) {
	t.Parallel()

	fake := &indexEmbedder{}
	got, err := EmbedBatches(context.Background(), fake, nil, 250, rag.TaskDocument)
	if err != nil {
		t.Fatalf("EmbedBatches: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", got)
	}
	if fake.calls != 0 {
		t.Errorf("embedder should not be called for empty input, got %d calls", fake.calls)
	}
}

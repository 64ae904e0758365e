package embedder

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/docqa/docqa-go/internal/rag"
)

// DefaultBatchSize is the maximum number of texts sent to the embedding
// service in a single request. The Gemini embedding API caps batch size at
// 250 inputs; the batcher is responsible for respecting that cap.
const DefaultBatchSize = 250

// EmbedBatches partitions texts into consecutive batches of at most
// batchSize items, issues all batch calls concurrently, and reassembles the
// vectors in the original text order — batch i's vectors map 1:1, in order,
// to batch i's texts. Passing batchSize <= 0 selects DefaultBatchSize.
//
// Failure is atomic at the call level: if any batch fails, the sibling
// batches are cancelled and no partial result is returned. Empty input
// returns an empty slice without invoking the embedder.
func EmbedBatches(ctx context.Context, e rag.Embedder, texts []string, batchSize int, task rag.EmbedTask) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	out := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)

	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g.Go(func() error {
			vectors, err := e.Embed(gCtx, texts[start:end], task)
			if err != nil {
				return fmt.Errorf("embedder: batch [%d:%d): %w", start, end, err)
			}
			if len(vectors) != end-start {
				return fmt.Errorf("embedder: batch [%d:%d): expected %d vectors, got %d", start, end, end-start, len(vectors))
			}
			// Each goroutine writes a disjoint range of out, so no lock is
			// needed and completion order never affects result order.
			copy(out[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

package rag

import (
	"container/heap"
	"math"
)

// Default selection policy. The reference system forwarded every stored
// vector to the answer model unfiltered; a bounded top-K keeps the prompt
// size deterministic regardless of how much a session has ingested.
const (
	// DefaultTopK is the number of chunks kept when no explicit limit is set.
	DefaultTopK = 12

	// scoreTolerance is the band within which two similarity scores are
	// considered equal for tie-breaking purposes.
	scoreTolerance = 1e-6
)

// RankerConfig holds the relevance selection policy.
type RankerConfig struct {
	// TopK is the maximum number of chunks to select. Defaults to
	// DefaultTopK if zero.
	TopK int

	// MinScore is the minimum cosine similarity a chunk must reach to be
	// selected. Zero keeps every non-negatively correlated chunk.
	MinScore float32
}

// Ranker scores stored chunks against a question embedding and selects the
// most relevant subset. It is stateless and safe for concurrent use; each
// question gets its own Selection.
type Ranker struct {
	// topK is the maximum number of chunks to keep per selection.
	topK int
	// minScore is the similarity cutoff below which chunks are dropped.
	minScore float32
}

// NewRanker constructs a Ranker from the given config. A nil config selects
// the defaults.
func NewRanker(cfg *RankerConfig) *Ranker {
	if cfg == nil {
		cfg = &RankerConfig{}
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Ranker{topK: topK, minScore: cfg.MinScore}
}

// Rank scores candidates against the question vector and returns the
// selected chunks ordered most-to-least relevant. Candidates with a vector
// of a different dimensionality than the question are skipped, not fatal.
// An empty candidate list yields an empty result.
func (r *Ranker) Rank(question []float32, candidates []Chunk) []ScoredChunk {
	sel := r.NewSelection(question)
	for _, c := range candidates {
		sel.Add(c)
	}
	return sel.Results()
}

// NewSelection starts a single-pass bounded selection against the question
// vector. Feed candidates with Add as they stream from the store; at most
// TopK of them are held in memory at any time.
func (r *Ranker) NewSelection(question []float32) *Selection {
	return &Selection{
		question: question,
		topK:     r.topK,
		minScore: r.minScore,
	}
}

// Selection accumulates the top-K most similar chunks seen so far.
// It is not safe for concurrent use; a Selection belongs to one question.
type Selection struct {
	// question is the embedding every candidate is scored against.
	question []float32
	// topK bounds the number of retained candidates.
	topK int
	// minScore is the similarity cutoff.
	minScore float32
	// h is a min-heap whose root is the weakest retained candidate.
	h scoredHeap
	// seq numbers candidates in arrival order for stable tie-breaking.
	seq int
	// skipped counts candidates excluded for dimensionality mismatch.
	skipped int
}

// Add scores one candidate and retains it if it ranks among the top-K seen
// so far. Candidates whose vector length differs from the question's are
// counted as skipped and never retained.
func (s *Selection) Add(c Chunk) {
	if len(c.Vector) != len(s.question) {
		s.skipped++
		return
	}
	score := Cosine(s.question, c.Vector)
	seq := s.seq
	s.seq++

	if score < s.minScore {
		return
	}

	item := scoredItem{chunk: ScoredChunk{Chunk: c, Score: score}, seq: seq}
	if s.h.Len() < s.topK {
		heap.Push(&s.h, item)
		return
	}
	// Replace the weakest retained candidate only when the newcomer is
	// strictly better; on a tie the earlier candidate wins.
	if weakerThan(s.h[0], item) {
		s.h[0] = item
		heap.Fix(&s.h, 0)
	}
}

// Results drains the selection and returns the retained chunks ordered
// most-to-least relevant, ties broken by arrival order. The Selection must
// not be reused afterwards.
func (s *Selection) Results() []ScoredChunk {
	out := make([]ScoredChunk, s.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&s.h).(scoredItem).chunk
	}
	return out
}

// Skipped returns the number of candidates excluded because their vector
// dimensionality did not match the question's.
func (s *Selection) Skipped() int { return s.skipped }

// Cosine returns the cosine similarity between a and b. The slices must be
// the same length. Returns 0 when either vector has zero magnitude.
func Cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// scoredItem is a heap entry: a scored chunk plus its arrival sequence.
type scoredItem struct {
	chunk ScoredChunk
	seq   int
}

// weakerThan reports whether a ranks strictly below b: a lower score, or an
// equal score (within tolerance) with a later arrival.
func weakerThan(a, b scoredItem) bool {
	d := float64(a.chunk.Score) - float64(b.chunk.Score)
	if math.Abs(d) <= scoreTolerance {
		return a.seq > b.seq
	}
	return d < 0
}

// scoredHeap is a min-heap of scoredItem ordered weakest-first.
type scoredHeap []scoredItem

func (h scoredHeap) Len() int            { return len(h) }
func (h scoredHeap) Less(i, j int) bool  { return weakerThan(h[i], h[j]) }
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(scoredItem)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

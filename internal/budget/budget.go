// Package budget provides token budget estimation and retrieval context
// trimming for the answer pipeline. Because the service supports multiple LLM
// backends with different tokenizers, this package uses a conservative
// character-based heuristic: 1 token ≈ 4 characters (English prose). This
// deliberately under-estimates token counts to leave headroom for
// model-specific overhead.
package budget

import (
	"github.com/cloudwego/eino/schema"

	"github.com/docqa/docqa-go/internal/rag"
)

const (
	// charsPerToken is the conservative character-to-token ratio used for
	// estimation. 4 chars/token is standard for English prose; using 3
	// would be more aggressive but risks overflowing context windows.
	charsPerToken = 4

	// DefaultMaxContextTokens is the default input context budget in tokens.
	// Conservative enough to fit within 8k-context models while leaving room
	// for the answer. Override via configuration.
	DefaultMaxContextTokens = 6000
)

// Estimate returns a rough token count for s using the character heuristic.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateMessages returns the estimated total token count for a slice of
// schema.Message values, summing role + content for each message.
func EstimateMessages(msgs []*schema.Message) int {
	total := 0
	for _, m := range msgs {
		// Each message has a small per-message overhead (~4 tokens in most APIs).
		total += 4
		total += Estimate(string(m.Role))
		total += Estimate(m.Content)
	}
	return total
}

// TrimChunks drops the lowest-ranked retrieved chunks until the estimated
// token count of fixedTokens plus the retained chunk texts fits within
// maxTokens. chunks must be ordered best-first, as returned by retrieval;
// trimming removes from the tail so the strongest evidence survives.
//
// Returns the retained prefix. If even the single best chunk exceeds the
// budget it is retained alone — an answer grounded in one oversized chunk
// beats refusing to answer at all.
func TrimChunks(chunks []rag.ScoredChunk, fixedTokens, maxTokens int) []rag.ScoredChunk {
	if len(chunks) == 0 {
		return chunks
	}

	kept := len(chunks)
	for kept > 1 {
		total := fixedTokens
		for _, c := range chunks[:kept] {
			total += Estimate(c.Text)
		}
		if total <= maxTokens {
			break
		}
		kept--
	}
	return chunks[:kept]
}

package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	"github.com/docqa/docqa-go/internal/answer"
)

// pingable is anything with a context-aware reachability check. Both the
// Qdrant chunk store and the SQLite registry satisfy it.
type pingable interface {
	Ping(ctx context.Context) error
}

// DependencyPinger adapts any pingable dependency to the Pinger interface
// under a fixed label. Used for the chunk store ("qdrant") and the session
// registry ("registry").
type DependencyPinger struct {
	// dep is the dependency to probe.
	dep pingable
	// name identifies the dependency in readiness responses.
	name string
}

// NewDependencyPinger constructs a DependencyPinger for the given dependency
// and label.
func NewDependencyPinger(dep pingable, name string) *DependencyPinger {
	return &DependencyPinger{dep: dep, name: name}
}

// Name returns the dependency label used in readiness responses.
func (p *DependencyPinger) Name() string { return p.name }

// Ping delegates to the dependency's own reachability check.
func (p *DependencyPinger) Ping(ctx context.Context) error {
	if err := p.dep.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// LLMPinger probes an LLM backend by sending a minimal single-message
// generate request. It satisfies the Pinger interface and is used by
// GET /api/ready. Each probe consumes a few tokens, so readiness checks
// against paid backends should be polled sparingly.
type LLMPinger struct {
	// model is the chat model to probe.
	model answer.ChatModel
	// name identifies the backend in readiness responses (e.g. "gemini").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
func NewLLMPinger(m answer.ChatModel, name string) *LLMPinger {
	return &LLMPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends a single-token generate request to the backend.
// Returns nil if the backend responds, or a descriptive error otherwise.
func (p *LLMPinger) Ping(ctx context.Context) error {
	msgs := []*schema.Message{
		schema.UserMessage("ping"),
	}
	resp, err := p.model.Generate(ctx, msgs)
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

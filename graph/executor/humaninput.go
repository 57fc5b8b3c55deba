package executor

import (
	"context"

	"github.com/google/uuid"

	"github.com/flowforge/agentgraph/graph"
)

// humanInputWrapper always routes through interruptBefore (the runtime
// checks NodeWrapperMeta.InterruptBefore and halts before calling
// Execute). When the runtime resumes past the gate, the resumed input's
// user content has already been placed on RunConfig by the caller; this
// executor promotes it into messages.
type humanInputWrapper struct {
	baseWrapper
}

func newHumanInputFactory(_ graph.NodeDef, _ *Services) (Wrapper, error) {
	return &humanInputWrapper{baseWrapper: baseWrapper{writes: []string{graph.FieldMessages}}}, nil
}

func (h *humanInputWrapper) Execute(_ context.Context, _ *graph.State, cfg map[string]any) graph.NodeResult {
	content, _ := cfg["__resumeContent"].(string)
	if content == "" {
		return graph.Update(nil)
	}
	msg := graph.Message{ID: uuid.NewString(), Role: graph.RoleUser, Content: content}
	return graph.Update(map[string]any{graph.FieldMessages: []any{msg}})
}

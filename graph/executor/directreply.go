package executor

import (
	"context"
	"fmt"
	"regexp"

	"github.com/google/uuid"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/resolve"
)

var templateVarRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.]+)\s*\}\}`)

type directReplyWrapper struct {
	baseWrapper
	template string
}

func newDirectReplyFactory(def graph.NodeDef, _ *Services) (Wrapper, error) {
	template, _ := def.Config["template"].(string)
	if template == "" {
		return nil, fmt.Errorf("direct_reply node %q: missing config.template", def.ID)
	}
	return &directReplyWrapper{
		baseWrapper: baseWrapper{writes: []string{graph.FieldMessages}},
		template:    template,
	}, nil
}

func (d *directReplyWrapper) Execute(_ context.Context, state *graph.State, _ map[string]any) graph.NodeResult {
	snap := state.Snapshot()
	rendered := templateVarRe.ReplaceAllStringFunc(d.template, func(m string) string {
		sub := templateVarRe.FindStringSubmatch(m)[1]
		cfg := map[string]any{"v": "state." + sub}
		resolved := resolve.Resolve(cfg, snap)
		return fmt.Sprintf("%v", resolved["v"])
	})
	msg := graph.Message{ID: uuid.NewString(), Role: graph.RoleAssistant, Content: rendered}
	return graph.Update(map[string]any{graph.FieldMessages: []any{msg}})
}

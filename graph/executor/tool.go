package executor

import (
	"context"
	"fmt"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/errs"
)

type toolWrapper struct {
	baseWrapper
	toolRef string
	services *Services
}

func newToolFactory(def graph.NodeDef, services *Services) (Wrapper, error) {
	ref, _ := def.Config["tool"].(string)
	if ref == "" {
		return nil, fmt.Errorf("tool node %q: missing config.tool", def.ID)
	}
	return &toolWrapper{
		baseWrapper: baseWrapper{writes: []string{graph.FieldContext}},
		toolRef:     ref,
		services:    services,
	}, nil
}

func (t *toolWrapper) Execute(ctx context.Context, state *graph.State, cfg map[string]any) graph.NodeResult {
	if t.services == nil || t.services.ToolRegistry == nil {
		return graph.Fail(errs.New(errs.KindInternalError, "", "no tool registry configured", nil))
	}
	handle, err := t.services.ToolRegistry.Resolve(t.toolRef)
	if err != nil {
		return graph.Fail(errs.New(errs.KindParamError, "", err.Error(), err))
	}

	input := map[string]interface{}{}
	if mapping, ok := cfg["input_mapping"].([]any); ok {
		snap := state.Snapshot()
		for _, entry := range mapping {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			key, _ := m["key"].(string)
			if value, ok := m["value"]; ok {
				input[key] = value
				continue
			}
			if path, ok := m["fromState"].(string); ok {
				if v, ok := snap[path]; ok {
					input[key] = v
				}
			}
		}
	}

	result, err := handle.Call(ctx, input)
	if err != nil {
		return graph.Fail(errs.New(errs.KindExternalError, "", err.Error(), err))
	}

	delta := map[string]any{}
	if mapping, ok := cfg["output_mapping"].([]any); ok {
		delta[graph.FieldContext] = mapHTTPOutput(mapping, result)
	}
	return graph.Update(delta)
}

package executor

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/errs"
	"github.com/flowforge/agentgraph/graph/tool"
)

type httpWrapper struct {
	baseWrapper
	client     *tool.HTTPTool
	maxRetries int
}

func newHTTPFactory(def graph.NodeDef, _ *Services) (Wrapper, error) {
	maxRetries := 3
	if v, ok := def.Config["maxRetries"].(int); ok && v >= 0 {
		maxRetries = v
	}
	return &httpWrapper{
		baseWrapper: baseWrapper{writes: []string{graph.FieldContext}},
		client:      tool.NewHTTPTool(),
		maxRetries:  maxRetries,
	}, nil
}

func (h *httpWrapper) Execute(ctx context.Context, _ *graph.State, cfg map[string]any) graph.NodeResult {
	input := map[string]interface{}{}
	for _, k := range []string{"method", "url", "headers", "body"} {
		if v, ok := cfg[k]; ok {
			input[k] = v
		}
	}

	var result map[string]interface{}
	var err error
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		result, err = h.client.Call(ctx, input)
		if err == nil {
			if status, ok := result["status_code"].(int); !ok || status < 500 {
				break
			}
		}
		if attempt == h.maxRetries {
			break
		}
		backoff := graph.ComputeBackoff(attempt, time.Second, 30*time.Second, rng)
		select {
		case <-ctx.Done():
			return graph.Fail(errs.New(errs.KindCancelled, "", ctx.Err().Error(), ctx.Err()))
		case <-time.After(backoff):
		}
	}
	if err != nil {
		return graph.Fail(errs.New(errs.KindExternalError, "", fmt.Sprintf("http request: %v", err), err))
	}

	delta := map[string]any{}
	if mapping, ok := cfg["output_mapping"].([]any); ok {
		delta[graph.FieldContext] = mapHTTPOutput(mapping, result)
	}
	return graph.Update(delta)
}

func mapHTTPOutput(mapping []any, result map[string]interface{}) map[string]any {
	out := map[string]any{}
	for _, entry := range mapping {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		from, _ := m["from"].(string)
		to, _ := m["to"].(string)
		if to == "" {
			continue
		}
		if v, ok := result[from]; ok {
			out[to] = v
		}
	}
	return out
}

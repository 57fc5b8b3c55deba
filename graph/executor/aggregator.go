package executor

import (
	"context"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/errs"
)

const (
	errorStrategyFailFast   = "fail_fast"
	errorStrategyBestEffort = "best_effort"
)

// aggregatorWrapper implements the fan-in barrier. The
// barrier wait itself (waiting for every expected task_results entry) is
// the concurrency coordinator's responsibility (graph/runtime); this
// wrapper is invoked only once the barrier has been satisfied, and
// combines the already-collected task_results.
type aggregatorWrapper struct {
	baseWrapper
	errorStrategy   string
	method          string
	sourceVariables []string
	targetVariable  string
}

func newAggregatorFactory(def graph.NodeDef, _ *Services) (Wrapper, error) {
	strategy, _ := def.Config["error_strategy"].(string)
	if strategy == "" {
		strategy = errorStrategyBestEffort
	}
	method, _ := def.Config["method"].(string)
	var sourceVars []string
	if raw, ok := def.Config["source_variables"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				sourceVars = append(sourceVars, s)
			}
		}
	}
	targetVar, _ := def.Config["target_variable"].(string)
	return &aggregatorWrapper{
		baseWrapper:     baseWrapper{reads: []string{graph.FieldTaskResults}, writes: []string{graph.FieldContext}},
		errorStrategy:   strategy,
		method:          method,
		sourceVariables: sourceVars,
		targetVariable:  targetVar,
	}, nil
}

func (a *aggregatorWrapper) Execute(_ context.Context, state *graph.State, _ map[string]any) graph.NodeResult {
	resultsVal, _ := state.Get(graph.FieldTaskResults)
	results, _ := resultsVal.([]any)

	successCount, errorCount := 0, 0
	var successes, errorsList []any
	for _, r := range results {
		m, ok := r.(map[string]any)
		if !ok {
			continue
		}
		if status, _ := m["status"].(string); status == "error" {
			errorCount++
			errorsList = append(errorsList, m)
			continue
		}
		successCount++
		successes = append(successes, m)
	}

	if a.errorStrategy == errorStrategyFailFast && errorCount > 0 {
		return graph.Fail(errs.New(errs.KindAggregatedFailure, "", "one or more parallel branches failed under fail_fast", nil))
	}

	ctxDelta := map[string]any{
		"status":        "success",
		"success_count": successCount,
		"error_count":   errorCount,
		"results":       successes,
		"errors":        errorsList,
	}

	if a.method != "" {
		combined := combine(a.method, a.sourceVariables, state)
		if a.targetVariable != "" {
			ctxDelta[a.targetVariable] = combined
		}
	}

	return graph.Update(map[string]any{graph.FieldContext: ctxDelta})
}

func combine(method string, sourceVars []string, state *graph.State) any {
	ctxVal, _ := state.Get(graph.FieldContext)
	ctxMap, _ := ctxVal.(map[string]any)
	switch method {
	case "append":
		var out []any
		for _, v := range sourceVars {
			if val, ok := ctxMap[v]; ok {
				out = append(out, val)
			}
		}
		return out
	case "sum":
		sum := 0.0
		for _, v := range sourceVars {
			switch n := ctxMap[v].(type) {
			case int:
				sum += float64(n)
			case float64:
				sum += n
			}
		}
		return sum
	case "merge":
		out := map[string]any{}
		for _, v := range sourceVars {
			if sub, ok := ctxMap[v].(map[string]any); ok {
				for k, vv := range sub {
					out[k] = vv
				}
			}
		}
		return out
	case "latest":
		if len(sourceVars) == 0 {
			return nil
		}
		return ctxMap[sourceVars[len(sourceVars)-1]]
	default:
		return nil
	}
}

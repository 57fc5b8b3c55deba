package executor

import (
	"context"
	"fmt"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/errs"
	"github.com/flowforge/agentgraph/graph/expr"
)

const (
	conditionWhile   = "while"
	conditionDoWhile = "doWhile"
	conditionForEach = "forEach"

	routeContinue = "continue"
	routeExit     = "exit"

	defaultMaxIterations = 5
)

type loopWrapper struct {
	baseWrapper
	conditionType string
	condition     string
	listVariable  string
	maxIterations int
}

func newLoopFactory(def graph.NodeDef, _ *Services) (Wrapper, error) {
	condType, _ := def.Config["conditionType"].(string)
	if condType == "" {
		condType = conditionWhile
	}
	maxIter := defaultMaxIterations
	if v, ok := def.Config["maxIterations"].(int); ok && v > 0 {
		maxIter = v
	}
	l := &loopWrapper{
		baseWrapper: baseWrapper{
			reads:  []string{graph.FieldLoopStates, graph.FieldContext},
			writes: []string{graph.FieldLoopStates, graph.FieldLoopConditionMet, graph.FieldRouteDecision},
		},
		conditionType: condType,
		maxIterations: maxIter,
	}
	switch condType {
	case conditionWhile, conditionDoWhile:
		cond, _ := def.Config["condition"].(string)
		if cond == "" {
			return nil, fmt.Errorf("loop node %q: %s requires config.condition", def.ID, condType)
		}
		l.condition = cond
	case conditionForEach:
		listVar, _ := def.Config["listVariable"].(string)
		if listVar == "" {
			return nil, fmt.Errorf("loop node %q: forEach requires config.listVariable", def.ID)
		}
		l.listVariable = listVar
	default:
		return nil, fmt.Errorf("loop node %q: unknown conditionType %q", def.ID, condType)
	}
	return l, nil
}

// scopedLoopState returns the {loop_count, index?} sub-map for loopID from
// state.loop_states, initializing it if absent.
func scopedLoopState(state *graph.State, loopID string) map[string]any {
	loopStatesVal, _ := state.Get(graph.FieldLoopStates)
	loopStates, _ := loopStatesVal.(map[string]any)
	if loopStates == nil {
		return map[string]any{"loop_count": 0}
	}
	if sub, ok := loopStates[loopID].(map[string]any); ok {
		return sub
	}
	return map[string]any{"loop_count": 0}
}

func (l *loopWrapper) Execute(_ context.Context, state *graph.State, cfg map[string]any) graph.NodeResult {
	loopID, _ := cfg["__nodeId"].(string)
	scope := scopedLoopState(state, loopID)
	count, _ := scope["loop_count"].(int)

	if count >= l.maxIterations {
		return l.exit(loopID, scope, count, false)
	}

	switch l.conditionType {
	case conditionForEach:
		return l.execForEach(state, loopID, scope, count)
	case conditionWhile:
		ok, err := expr.EvalBool(l.condition, state.Snapshot())
		if err != nil {
			return graph.Fail(err)
		}
		if !ok {
			return l.exit(loopID, scope, count, true)
		}
		return l.continueLoop(loopID, scope, count)
	case conditionDoWhile:
		ok, err := expr.EvalBool(l.condition, state.Snapshot())
		if err != nil {
			return graph.Fail(err)
		}
		if count > 0 && !ok {
			return l.exit(loopID, scope, count, true)
		}
		return l.continueLoop(loopID, scope, count)
	default:
		return graph.Fail(errs.New(errs.KindInternalError, loopID, "unknown loop conditionType", nil))
	}
}

func (l *loopWrapper) execForEach(state *graph.State, loopID string, scope map[string]any, count int) graph.NodeResult {
	ctxVal, _ := state.Get(graph.FieldContext)
	ctxMap, _ := ctxVal.(map[string]any)
	list, _ := ctxMap[l.listVariable].([]any)
	if count >= len(list) {
		return l.exit(loopID, scope, count, count >= l.maxIterations)
	}
	newScope := map[string]any{"loop_count": count + 1, "index": count}
	return graph.NodeResult{Delta: map[string]any{
		graph.FieldLoopStates:       map[string]any{loopID: newScope},
		graph.FieldLoopConditionMet: true,
		graph.FieldRouteDecision:    routeContinue,
	}}
}

func (l *loopWrapper) continueLoop(loopID string, scope map[string]any, count int) graph.NodeResult {
	newScope := map[string]any{"loop_count": count + 1}
	for k, v := range scope {
		if k != "loop_count" {
			newScope[k] = v
		}
	}
	return graph.NodeResult{Delta: map[string]any{
		graph.FieldLoopStates:       map[string]any{loopID: newScope},
		graph.FieldLoopConditionMet: true,
		graph.FieldRouteDecision:    routeContinue,
	}}
}

func (l *loopWrapper) exit(loopID string, scope map[string]any, count int, conditionMet bool) graph.NodeResult {
	return graph.NodeResult{Delta: map[string]any{
		graph.FieldLoopStates:       map[string]any{loopID: scope},
		graph.FieldLoopConditionMet: conditionMet,
		graph.FieldRouteDecision:    routeExit,
	}}
}

package executor

import (
	"context"
	"sort"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/errs"
	"github.com/flowforge/agentgraph/graph/expr"
)

// routerRule is one entry of router_node's sorted rule list.
type routerRule struct {
	Condition    string
	TargetEdgeKey string
	Priority     int
}

type routerWrapper struct {
	baseWrapper
	rules        []routerRule
	defaultRoute string
}

func newRouterFactory(def graph.NodeDef, _ *Services) (Wrapper, error) {
	var rules []routerRule
	if raw, ok := def.Config["rules"].([]any); ok {
		for _, r := range raw {
			m, ok := r.(map[string]any)
			if !ok {
				continue
			}
			cond, _ := m["condition"].(string)
			key, _ := m["targetEdgeKey"].(string)
			prio, _ := m["priority"].(int)
			rules = append(rules, routerRule{Condition: cond, TargetEdgeKey: key, Priority: prio})
		}
	}
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })
	defaultRoute, _ := def.Config["defaultRoute"].(string)
	return &routerWrapper{
		baseWrapper:  baseWrapper{writes: []string{graph.FieldRouteDecision, graph.FieldRouteHistory}},
		rules:        rules,
		defaultRoute: defaultRoute,
	}, nil
}

func (r *routerWrapper) Execute(_ context.Context, state *graph.State, _ map[string]any) graph.NodeResult {
	snap := state.Snapshot()
	for _, rule := range r.rules {
		ok, err := expr.EvalBool(rule.Condition, snap)
		if err != nil {
			return graph.Fail(err)
		}
		if ok {
			return graph.Update(map[string]any{
				graph.FieldRouteDecision: rule.TargetEdgeKey,
				graph.FieldRouteHistory:  []any{rule.TargetEdgeKey},
			})
		}
	}
	if r.defaultRoute != "" {
		return graph.Update(map[string]any{
			graph.FieldRouteDecision: r.defaultRoute,
			graph.FieldRouteHistory:  []any{r.defaultRoute},
		})
	}
	return graph.Fail(errs.New(errs.KindParamError, "", "router matched no rule and no defaultRoute is set", nil))
}

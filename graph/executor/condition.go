package executor

import (
	"context"
	"fmt"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/errs"
	"github.com/flowforge/agentgraph/graph/expr"
	"github.com/flowforge/agentgraph/graph/model"
)

type conditionWrapper struct {
	baseWrapper
	expression string
}

func newConditionFactory(def graph.NodeDef, _ *Services) (Wrapper, error) {
	expression, _ := def.Config["expression"].(string)
	if expression == "" {
		return nil, fmt.Errorf("condition node %q: missing config.expression", def.ID)
	}
	return &conditionWrapper{
		baseWrapper: baseWrapper{writes: []string{graph.FieldRouteDecision, graph.FieldRouteHistory}},
		expression:  expression,
	}, nil
}

func (c *conditionWrapper) Execute(_ context.Context, state *graph.State, _ map[string]any) graph.NodeResult {
	ok, err := expr.EvalBool(c.expression, state.Snapshot())
	if err != nil {
		return graph.Fail(err)
	}
	decision := "false"
	if ok {
		decision = "true"
	}
	return graph.Update(map[string]any{
		graph.FieldRouteDecision: decision,
		graph.FieldRouteHistory: []any{decision},
	})
}

// conditionAgentWrapper calls an LLM with a fixed schema and routes among a
// fixed option list.
type conditionAgentWrapper struct {
	baseWrapper
	services *Services
	options  []string
}

func newConditionAgentFactory(def graph.NodeDef, services *Services) (Wrapper, error) {
	var options []string
	if raw, ok := def.Config["options"].([]any); ok {
		for _, o := range raw {
			if s, ok := o.(string); ok {
				options = append(options, s)
			}
		}
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("condition_agent node %q: missing config.options", def.ID)
	}
	return &conditionAgentWrapper{
		baseWrapper: baseWrapper{reads: []string{graph.FieldMessages}, writes: []string{graph.FieldRouteDecision, graph.FieldRouteHistory}},
		services:    services,
		options:     options,
	}, nil
}

func (c *conditionAgentWrapper) Execute(ctx context.Context, state *graph.State, cfg map[string]any) graph.NodeResult {
	modelHandle, _ := cfg["model"].(string)
	if c.services == nil || c.services.LLMClientFactory == nil {
		return graph.Fail(errs.New(errs.KindInternalError, "", "no LLM client factory configured", nil))
	}
	client, err := c.services.LLMClientFactory(modelHandle)
	if err != nil {
		return graph.Fail(errs.New(errs.KindExternalError, "", err.Error(), err))
	}
	prompt := fmt.Sprintf("Choose exactly one of %v and respond with only that option.", c.options)
	out, err := client.Chat(ctx, []model.Message{{Role: model.RoleSystem, Content: prompt}}, nil)
	if err != nil {
		return graph.Fail(errs.New(errs.KindExternalError, "", err.Error(), err))
	}
	choice := out.Text
	for _, o := range c.options {
		if o == choice {
			return graph.Update(map[string]any{
				graph.FieldRouteDecision: choice,
				graph.FieldRouteHistory:  []any{choice},
			})
		}
	}
	return graph.Update(map[string]any{
		graph.FieldRouteDecision: c.options[0],
		graph.FieldRouteHistory:  []any{c.options[0]},
	})
}

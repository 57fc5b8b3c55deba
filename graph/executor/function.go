package executor

import (
	"context"
	"fmt"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/errs"
	"github.com/flowforge/agentgraph/graph/expr"
)

// predefinedFunctions implements the named functions available to
// function nodes (add, multiply, concat, get, set) over arbitrary operands.
var predefinedFunctions = map[string]func(args []any) (any, error){
	"add": func(args []any) (any, error) {
		sum := 0.0
		for _, a := range args {
			sum += toFloat(a)
		}
		return sum, nil
	},
	"multiply": func(args []any) (any, error) {
		product := 1.0
		for _, a := range args {
			product *= toFloat(a)
		}
		return product, nil
	},
	"concat": func(args []any) (any, error) {
		out := ""
		for _, a := range args {
			out += fmt.Sprintf("%v", a)
		}
		return out, nil
	},
	"get": func(args []any) (any, error) {
		if len(args) < 2 {
			return nil, fmt.Errorf("get requires (dict, key[, default])")
		}
		m, _ := args[0].(map[string]any)
		key, _ := args[1].(string)
		if v, ok := m[key]; ok {
			return v, nil
		}
		if len(args) > 2 {
			return args[2], nil
		}
		return nil, nil
	},
	"set": func(args []any) (any, error) {
		if len(args) < 3 {
			return nil, fmt.Errorf("set requires (dict, key, value)")
		}
		m, _ := args[0].(map[string]any)
		if m == nil {
			m = map[string]any{}
		}
		key, _ := args[1].(string)
		out := map[string]any{}
		for k, v := range m {
			out[k] = v
		}
		out[key] = args[2]
		return out, nil
	},
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case float64:
		return t
	default:
		return 0
	}
}

type functionWrapper struct {
	baseWrapper
	name       string
	args       []any
	expression string
	targetVar  string
}

func newFunctionFactory(def graph.NodeDef, _ *Services) (Wrapper, error) {
	target, _ := def.Config["target_variable"].(string)
	if target == "" {
		return nil, fmt.Errorf("function node %q: missing config.target_variable", def.ID)
	}
	w := &functionWrapper{
		baseWrapper: baseWrapper{writes: []string{graph.FieldContext}},
		targetVar:   target,
	}
	if name, ok := def.Config["function"].(string); ok && name != "" {
		if _, known := predefinedFunctions[name]; !known {
			return nil, fmt.Errorf("function node %q: unknown predefined function %q", def.ID, name)
		}
		w.name = name
		if args, ok := def.Config["args"].([]any); ok {
			w.args = args
		}
		return w, nil
	}
	expression, _ := def.Config["expression"].(string)
	if expression == "" {
		return nil, fmt.Errorf("function node %q: requires config.function or config.expression", def.ID)
	}
	w.expression = expression
	return w, nil
}

func (f *functionWrapper) Execute(_ context.Context, state *graph.State, _ map[string]any) graph.NodeResult {
	var result any
	var err error
	if f.name != "" {
		result, err = predefinedFunctions[f.name](f.args)
	} else {
		result, err = expr.Eval(f.expression, state.Snapshot())
	}
	if err != nil {
		return graph.Fail(errs.New(errs.KindUserExpressionError, "", err.Error(), err))
	}
	return graph.Update(map[string]any{graph.FieldContext: map[string]any{f.targetVar: result}})
}

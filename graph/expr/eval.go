// Package expr implements the restricted expression evaluator required by
// condition/router/function nodes and the variable resolver's validation
// mode. It is grounded on
// go.starlark.net: a single Starlark expression is evaluated with only a
// `state` name predeclared and Starlark's builtin functions rejected at
// resolution, so there is no path to arbitrary function calls, imports,
// or attribute assignment.
package expr

import (
	"fmt"

	"go.starlark.net/resolve"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/flowforge/agentgraph/graph/errs"
)

// Eval evaluates a restricted boolean/arithmetic/comparison/membership
// expression against a read-only view of state, supporting
// "state.get(\"k\", default)" and "state.k" accessors.
//
// Only `state` and the constants True, False and None resolve; every other
// name, including Starlark builtins such as len, is rejected, so arbitrary
// function calls are impossible. Returns errs.KindUserExpressionError on
// any parse, resolution, or type error.
func Eval(expression string, state map[string]any) (any, error) {
	v, err := evalStarlark(expression, state)
	if err != nil {
		return nil, err
	}
	return unwrap(v), nil
}

// EvalBool evaluates an expression and coerces the result to bool using
// Starlark truthiness rules.
func EvalBool(expression string, state map[string]any) (bool, error) {
	v, err := evalStarlark(expression, state)
	if err != nil {
		return false, err
	}
	return bool(v.Truth()), nil
}

func evalStarlark(expression string, state map[string]any) (starlark.Value, error) {
	if parsed, perr := syntax.ParseExpr("<expr>", expression, 0); perr == nil {
		isState := func(name string) bool { return name == "state" }
		isConst := func(name string) bool { return name == "True" || name == "False" || name == "None" }
		if _, rerr := resolve.Expr(parsed, isState, isConst); rerr != nil {
			return nil, errs.New(errs.KindUserExpressionError, "", fmt.Sprintf("expression %q: %v", expression, rerr), rerr)
		}
	}
	thread := &starlark.Thread{Name: "condition-eval"}
	predeclared := starlark.StringDict{
		"state": newStateValue(state),
	}
	v, err := starlark.Eval(thread, "<expr>", expression, predeclared)
	if err != nil {
		return nil, errs.New(errs.KindUserExpressionError, "", fmt.Sprintf("expression %q: %v", expression, err), err)
	}
	return v, nil
}

// stateValue wraps a state map as a Starlark value supporting both
// `state.field` attribute access and a bound `state.get(key, default)`
// builtin.
type stateValue struct {
	data map[string]any
}

func newStateValue(data map[string]any) *stateValue {
	return &stateValue{data: data}
}

var _ starlark.HasAttrs = (*stateValue)(nil)

func (s *stateValue) String() string        { return "state" }
func (s *stateValue) Type() string          { return "state" }
func (s *stateValue) Freeze()               {}
func (s *stateValue) Truth() starlark.Bool  { return starlark.Bool(len(s.data) > 0) }
func (s *stateValue) Hash() (uint32, error) { return 0, fmt.Errorf("state is not hashable") }

func (s *stateValue) Attr(name string) (starlark.Value, error) {
	if name == "get" {
		return starlark.NewBuiltin("state.get", s.get), nil
	}
	v, ok := s.data[name]
	if !ok {
		return starlark.None, nil
	}
	return toStarlark(v), nil
}

func (s *stateValue) AttrNames() []string {
	names := make([]string, 0, len(s.data)+1)
	names = append(names, "get")
	for k := range s.data {
		names = append(names, k)
	}
	return names
}

func (s *stateValue) get(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key starlark.String
	var def starlark.Value = starlark.None
	if err := starlark.UnpackArgs("get", args, kwargs, "key", &key, "default?", &def); err != nil {
		return nil, err
	}
	if v, ok := s.data[string(key)]; ok {
		return toStarlark(v), nil
	}
	return def, nil
}

func toStarlark(v any) starlark.Value {
	switch t := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(t)
	case int:
		return starlark.MakeInt(t)
	case int64:
		return starlark.MakeInt64(t)
	case float64:
		return starlark.Float(t)
	case string:
		return starlark.String(t)
	case map[string]any:
		return newStateValue(t)
	case []any:
		elems := make([]starlark.Value, len(t))
		for i, e := range t {
			elems[i] = toStarlark(e)
		}
		return starlark.NewList(elems)
	default:
		return starlark.String(fmt.Sprintf("%v", t))
	}
}

func unwrap(v starlark.Value) any {
	switch t := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(t)
	case starlark.Int:
		i, _ := t.Int64()
		return i
	case starlark.Float:
		return float64(t)
	case starlark.String:
		return string(t)
	case *starlark.List:
		out := make([]any, t.Len())
		for i := 0; i < t.Len(); i++ {
			out[i] = unwrap(t.Index(i))
		}
		return out
	case *stateValue:
		return t.data
	default:
		return v.String()
	}
}

package expr

import (
	"errors"
	"testing"

	"github.com/flowforge/agentgraph/graph/errs"
)

func TestEval(t *testing.T) {
	tests := []struct {
		name string
		expr string
		in   map[string]any
		want any
	}{
		{"attribute access", "state.count", map[string]any{"count": int64(3)}, int64(3)},
		{"arithmetic", "state.count + 1", map[string]any{"count": int64(3)}, int64(4)},
		{"string concat", `state.name + "!"`, map[string]any{"name": "hi"}, "hi!"},
		{"get with default present", `state.get("count", 0)`, map[string]any{"count": int64(5)}, int64(5)},
		{"get with default missing", `state.get("missing", 42)`, map[string]any{}, int64(42)},
		{"missing attribute is none", "state.missing", map[string]any{}, nil},
		{"comparison", "state.count > 2", map[string]any{"count": int64(3)}, true},
		{"membership", `"a" in state.tags`, map[string]any{"tags": []any{"a", "b"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, tt.in)
			if err != nil {
				t.Fatalf("Eval(%q): %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("Eval(%q) = %#v, want %#v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEval_ParseError(t *testing.T) {
	_, err := Eval("state.count +", map[string]any{"count": int64(1)})
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if errs.KindOf(err) != errs.KindUserExpressionError {
		t.Fatalf("KindOf(err) = %v, want KindUserExpressionError", errs.KindOf(err))
	}
}

func TestEval_NoArbitraryNamesResolve(t *testing.T) {
	_, err := Eval("len(state.tags)", map[string]any{"tags": []any{"a"}})
	if err == nil {
		t.Fatal("expected an error: len is not predeclared")
	}
}

func TestEvalBool(t *testing.T) {
	tests := []struct {
		name string
		expr string
		in   map[string]any
		want bool
	}{
		{"true comparison", "state.count > 0", map[string]any{"count": int64(1)}, true},
		{"false comparison", "state.count > 0", map[string]any{"count": int64(0)}, false},
		{"truthy string", "state.name", map[string]any{"name": "x"}, true},
		{"falsy empty string", "state.name", map[string]any{"name": ""}, false},
		{"and/or logic", "state.a and state.b", map[string]any{"a": true, "b": false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvalBool(tt.expr, tt.in)
			if err != nil {
				t.Fatalf("EvalBool(%q): %v", tt.expr, err)
			}
			if got != tt.want {
				t.Errorf("EvalBool(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestEvalBool_ErrorWrapsUserExpressionKind(t *testing.T) {
	_, err := EvalBool("state.count >", map[string]any{})
	if err == nil {
		t.Fatal("expected an error")
	}
	var typed *errs.Error
	if !errors.As(err, &typed) {
		t.Fatalf("expected *errs.Error, got %T", err)
	}
	if typed.Kind != errs.KindUserExpressionError {
		t.Errorf("Kind = %v, want KindUserExpressionError", typed.Kind)
	}
}

func TestEval_NestedMapAndList(t *testing.T) {
	in := map[string]any{
		"meta": map[string]any{"owner": "alice"},
		"tags": []any{"x", "y", "z"},
	}
	got, err := Eval("state.meta.owner", in)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got != "alice" {
		t.Errorf("state.meta.owner = %v, want alice", got)
	}

	got, err = Eval("state.tags[1]", in)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if got != "y" {
		t.Errorf("state.tags[1] = %v, want y", got)
	}
}

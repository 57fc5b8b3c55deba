// Package graph provides the core graph execution engine: a dynamic,
// schema-driven state container, graph/plan data model, and the types
// shared by the compiler, runtime, and node executors.
package graph

import (
	"fmt"
	"sort"
)

// FieldType names the recognized types a state field can hold.
type FieldType string

const (
	TypeString   FieldType = "string"
	TypeInt      FieldType = "int"
	TypeFloat    FieldType = "float"
	TypeBool     FieldType = "bool"
	TypeList     FieldType = "list"
	TypeDict     FieldType = "dict"
	TypeMessages FieldType = "messages"
	TypeAny      FieldType = "any"
)

// ReducerName names one of the built-in reducer kinds a field can declare.
type ReducerName string

const (
	ReducerReplace       ReducerName = "replace"
	ReducerAdd           ReducerName = "add"
	ReducerAppend        ReducerName = "append"
	ReducerMerge         ReducerName = "merge"
	ReducerMessagesMerge ReducerName = "messages_merge"
)

// Reducer merges a delta value into the prior value for one state field.
//
// Reducers must be pure and side-effect free: same (prior, delta) always
// yields the same result. The runtime never writes a field except through
// its declared reducer.
type Reducer func(prior, delta any) (any, error)

// FieldSpec declares one field of a dynamic state schema.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Reducer  ReducerName
	Default  any
	Required bool
}

// Message is a single chat turn. ID is required for messages_merge dedup:
// merge keys on id rather than content hash so an edited message replaces
// its prior turn instead of appending a duplicate.
type Message struct {
	ID      string         `json:"id"`
	Role    string         `json:"role"`
	Content string         `json:"content"`
	Meta    map[string]any `json:"meta,omitempty"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Built-in execution-state field names.
const (
	FieldMessages         = "messages"
	FieldContext          = "context"
	FieldCurrentNode      = "current_node"
	FieldRouteDecision    = "route_decision"
	FieldRouteHistory     = "route_history"
	FieldLoopCount        = "loop_count"
	FieldLoopConditionMet = "loop_condition_met"
	FieldMaxLoopIters     = "max_loop_iterations"
	FieldTaskResults      = "task_results"
	FieldParallelResults  = "parallel_results"
	FieldLoopStates       = "loop_states"
	FieldTaskStates       = "task_states"
	FieldNodeContexts     = "node_contexts"
	FieldTodos            = "todos"
	FieldError            = "error"
	FieldErrorSourceNode  = "error_source_node"
	FieldErrorTimestamp   = "error_timestamp"
)

// BuiltinFields returns the execution-state fields every schema carries
// regardless of user declarations, with their reducers.
func BuiltinFields() []FieldSpec {
	return []FieldSpec{
		{Name: FieldMessages, Type: TypeMessages, Reducer: ReducerMessagesMerge, Default: []Message{}},
		{Name: FieldContext, Type: TypeDict, Reducer: ReducerMerge, Default: map[string]any{}},
		{Name: FieldCurrentNode, Type: TypeString, Reducer: ReducerReplace, Default: ""},
		{Name: FieldRouteDecision, Type: TypeString, Reducer: ReducerReplace, Default: ""},
		{Name: FieldRouteHistory, Type: TypeList, Reducer: ReducerAppend, Default: []any{}},
		{Name: FieldLoopCount, Type: TypeInt, Reducer: ReducerReplace, Default: 0},
		{Name: FieldLoopConditionMet, Type: TypeBool, Reducer: ReducerReplace, Default: true},
		{Name: FieldMaxLoopIters, Type: TypeInt, Reducer: ReducerReplace, Default: 0},
		{Name: FieldTaskResults, Type: TypeList, Reducer: ReducerAppend, Default: []any{}},
		{Name: FieldParallelResults, Type: TypeList, Reducer: ReducerAppend, Default: []any{}},
		{Name: FieldLoopStates, Type: TypeDict, Reducer: ReducerMerge, Default: map[string]any{}},
		{Name: FieldTaskStates, Type: TypeDict, Reducer: ReducerMerge, Default: map[string]any{}},
		{Name: FieldNodeContexts, Type: TypeDict, Reducer: ReducerMerge, Default: map[string]any{}},
		{Name: FieldTodos, Type: TypeList, Reducer: ReducerAppend, Default: []any{}},
		{Name: FieldError, Type: TypeString, Reducer: ReducerReplace, Default: ""},
		{Name: FieldErrorSourceNode, Type: TypeString, Reducer: ReducerReplace, Default: ""},
		{Name: FieldErrorTimestamp, Type: TypeInt, Reducer: ReducerReplace, Default: 0},
	}
}

// Schema is the materialized, compiled form of a state definition: builtin
// fields plus user-declared FieldSpec entries, deduplicated, with a
// resolved Reducer function per field.
type Schema struct {
	fields   map[string]FieldSpec
	reducers map[string]Reducer
	order    []string
}

// NewSchema builds a Schema from user-declared fields, merging in the
// builtin execution fields. A user field with the same name as a builtin
// field is rejected: builtins own their reducer semantics.
func NewSchema(userFields []FieldSpec) (*Schema, error) {
	s := &Schema{fields: map[string]FieldSpec{}, reducers: map[string]Reducer{}}
	for _, f := range BuiltinFields() {
		if err := s.add(f); err != nil {
			return nil, err
		}
	}
	for _, f := range userFields {
		if _, isBuiltin := s.fields[f.Name]; isBuiltin {
			return nil, fmt.Errorf("state field %q collides with a builtin execution field", f.Name)
		}
		if err := s.add(f); err != nil {
			return nil, err
		}
	}
	sort.Strings(s.order)
	return s, nil
}

func (s *Schema) add(f FieldSpec) error {
	reducerFn, ok := builtinReducers[f.Reducer]
	if !ok {
		return fmt.Errorf("state field %q: unknown reducer %q", f.Name, f.Reducer)
	}
	s.fields[f.Name] = f
	s.reducers[f.Name] = reducerFn
	s.order = append(s.order, f.Name)
	return nil
}

// Field returns the FieldSpec for name, if declared.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Fields returns all field names in deterministic order.
func (s *Schema) Fields() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Reducer returns the resolved Reducer function for a field name.
func (s *Schema) Reducer(name string) (Reducer, bool) {
	r, ok := s.reducers[name]
	return r, ok
}

// Defaults returns a fresh State initialized from every field's default.
func (s *Schema) Defaults() *State {
	values := make(map[string]any, len(s.order))
	for _, name := range s.order {
		values[name] = cloneValue(s.fields[name].Default)
	}
	return &State{schema: s, values: values}
}

var builtinReducers = map[ReducerName]Reducer{
	ReducerReplace:       reduceReplace,
	ReducerAdd:           reduceAppend,
	ReducerAppend:        reduceAppend,
	ReducerMerge:         reduceMerge,
	ReducerMessagesMerge: reduceMessagesMerge,
}

func reduceReplace(prior, delta any) (any, error) {
	if delta == nil {
		return prior, nil
	}
	return delta, nil
}

func reduceAppend(prior, delta any) (any, error) {
	priorList, err := asList(prior)
	if err != nil {
		return nil, err
	}
	if delta == nil {
		return priorList, nil
	}
	deltaList, err := asList(delta)
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(priorList)+len(deltaList))
	out = append(out, priorList...)
	out = append(out, deltaList...)
	return out, nil
}

func reduceMerge(prior, delta any) (any, error) {
	priorMap, err := asDict(prior)
	if err != nil {
		return nil, err
	}
	if delta == nil {
		return priorMap, nil
	}
	deltaMap, err := asDict(delta)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(priorMap)+len(deltaMap))
	for k, v := range priorMap {
		out[k] = v
	}
	for k, v := range deltaMap {
		if existing, ok := out[k]; ok {
			if existingSub, ok1 := existing.(map[string]any); ok1 {
				if deltaSub, ok2 := v.(map[string]any); ok2 {
					merged := make(map[string]any, len(existingSub)+len(deltaSub))
					for sk, sv := range existingSub {
						merged[sk] = sv
					}
					for sk, sv := range deltaSub {
						merged[sk] = sv
					}
					out[k] = merged
					continue
				}
			}
		}
		out[k] = v
	}
	return out, nil
}

func reduceMessagesMerge(prior, delta any) (any, error) {
	priorMsgs, err := asMessages(prior)
	if err != nil {
		return nil, err
	}
	if delta == nil {
		return priorMsgs, nil
	}
	deltaMsgs, err := asMessages(delta)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]int, len(priorMsgs))
	out := make([]Message, 0, len(priorMsgs)+len(deltaMsgs))
	out = append(out, priorMsgs...)
	for i, m := range out {
		if m.ID != "" {
			seen[m.ID] = i
		}
	}
	for _, m := range deltaMsgs {
		if m.ID != "" {
			if idx, ok := seen[m.ID]; ok {
				out[idx] = m
				continue
			}
			seen[m.ID] = len(out)
		}
		out = append(out, m)
	}
	return out, nil
}

func asList(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []any:
		return t, nil
	default:
		return nil, fmt.Errorf("expected list, got %T", v)
	}
}

func asDict(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	default:
		return nil, fmt.Errorf("expected dict, got %T", v)
	}
}

func asMessages(v any) ([]Message, error) {
	if v == nil {
		return nil, nil
	}
	switch t := v.(type) {
	case []Message:
		return t, nil
	case []any:
		out := make([]Message, 0, len(t))
		for _, e := range t {
			m, ok := e.(Message)
			if !ok {
				return nil, fmt.Errorf("expected Message, got %T", e)
			}
			out = append(out, m)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected []Message, got %T", v)
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		copy(out, t)
		return out
	case []Message:
		out := make([]Message, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

package graph

import "fmt"

// State is the run's evolving value: a mapping field -> value, owned
// exclusively by the runtime for the duration of one invoke call. Every
// write goes through the field's declared Reducer; there is no direct
// overwrite path.
type State struct {
	schema *Schema
	values map[string]any
}

// Get returns the current value of a field, or (nil, false) if undeclared.
func (s *State) Get(field string) (any, bool) {
	v, ok := s.values[field]
	return v, ok
}

// Snapshot returns a deep copy of the underlying map, safe to hand to a
// node executor or a trace sink without risking aliasing into the live
// State.
func (s *State) Snapshot() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = cloneValue(v)
	}
	return out
}

// Clone produces an independent State with the same schema and a deep
// copy of all values — used to give each fan-out branch its own
// unobserved-by-siblings starting point.
func (s *State) Clone() *State {
	return &State{schema: s.schema, values: s.Snapshot()}
}

// Apply merges a delta map into State through each field's reducer. Delta
// keys absent from the schema are rejected (a writes violation); keys
// present in the schema but absent from delta are left untouched.
func (s *State) Apply(delta map[string]any) error {
	for field, deltaVal := range delta {
		reducer, ok := s.schema.Reducer(field)
		if !ok {
			return fmt.Errorf("write to undeclared state field %q", field)
		}
		next, err := reducer(s.values[field], deltaVal)
		if err != nil {
			return fmt.Errorf("reducer for field %q: %w", field, err)
		}
		s.values[field] = next
	}
	return nil
}

// Schema returns the schema this State was built from.
func (s *State) Schema() *Schema { return s.schema }

// FromValues builds a State from a schema and a raw value map, applying
// schema defaults for any field absent from values.
func FromValues(schema *Schema, values map[string]any) *State {
	st := schema.Defaults()
	for k, v := range values {
		if _, ok := schema.Field(k); ok {
			st.values[k] = cloneValue(v)
		}
	}
	return st
}

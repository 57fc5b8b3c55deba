// Package resolve implements the "data pill" variable resolver: rewriting
// string leaves in a node's config.context subtree that match the
// variable-reference grammar, substituted against the current run state.
// Path lookups are grounded on github.com/tidwall/gjson, whose get-by-path
// semantics (including list indexing) match the grammar's
// `state.field.sub[i]` forms directly.
package resolve

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// stateGetRe matches `state.get("field", default)` / `state.get('field')`.
var stateGetRe = regexp.MustCompile(`^state\.get\(\s*['"]([^'"]+)['"]\s*(?:,\s*(.+))?\)$`)

// statePathRe matches `state.field.sub[i]` or `context.path` forms.
var statePathRe = regexp.MustCompile(`^(?:state\.(.+)|context\.(.+))$`)

// nodeOutputRe matches `{NodeLabel.output}`.
var nodeOutputRe = regexp.MustCompile(`^\{([A-Za-z0-9_]+)\.output\}$`)

// Resolve rewrites every string leaf in cfg that matches the data-pill
// grammar, substituting a value looked up from state. It never mutates
// state, and it never mutates cfg in place — it returns a new tree.
func Resolve(cfg map[string]any, state map[string]any) map[string]any {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = resolveValue(v, state)
	}
	return out
}

func resolveValue(v any, state map[string]any) any {
	switch t := v.(type) {
	case string:
		return resolveString(t, state)
	case map[string]any:
		return Resolve(t, state)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = resolveValue(e, state)
		}
		return out
	default:
		return v
	}
}

func resolveString(s string, state map[string]any) any {
	if m := stateGetRe.FindStringSubmatch(s); m != nil {
		field, def := m[1], strings.TrimSpace(m[2])
		if val, ok := lookupPath(state, field); ok {
			return val
		}
		if def != "" {
			return unquote(def)
		}
		return ""
	}
	if m := statePathRe.FindStringSubmatch(s); m != nil {
		path := m[1]
		if path == "" {
			path = "context." + m[2]
		}
		if val, ok := lookupPath(state, path); ok {
			return val
		}
		return ""
	}
	if m := nodeOutputRe.FindStringSubmatch(s); m != nil {
		label := m[1]
		if val, ok := lookupPath(state, "context."+label+".output"); ok {
			return val
		}
		return ""
	}
	return s
}

// lookupPath resolves a dotted/bracketed path (e.g. "context.items[0].name")
// against state via gjson, after round-tripping state to JSON. state is
// expected to be JSON-marshalable (it always is: it is a State.Snapshot()).
func lookupPath(state map[string]any, path string) (any, bool) {
	buf, err := json.Marshal(state)
	if err != nil {
		return nil, false
	}
	gjsonPath := strings.ReplaceAll(path, "[", ".")
	gjsonPath = strings.ReplaceAll(gjsonPath, "]", "")
	result := gjson.GetBytes(buf, gjsonPath)
	if !result.Exists() {
		return nil, false
	}
	return result.Value(), true
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// VariableClass classifies a variable reference found during validation.
type VariableClass string

const (
	ClassDefinedUpstream VariableClass = "defined_upstream"
	ClassUndefined       VariableClass = "undefined"
)

// Reference is one variable reference discovered inside an expression or
// config subtree, with its resolved classification.
type Reference struct {
	Raw   string
	Class VariableClass
}

// referenceRe finds every data-pill occurrence inside arbitrary text, for
// the validation mode that enumerates references without resolving them.
var referenceRe = regexp.MustCompile(`state\.get\([^)]*\)|state\.[A-Za-z0-9_.\[\]]+|\{[A-Za-z0-9_]+\.output\}|context\.[A-Za-z0-9_.\[\]]+`)

// ValidateReferences enumerates every variable reference in text and
// classifies each against the set of field names known to be available
// (typically computed topologically: fields written by upstream nodes).
func ValidateReferences(text string, availableFields map[string]bool) []Reference {
	matches := referenceRe.FindAllString(text, -1)
	out := make([]Reference, 0, len(matches))
	for _, m := range matches {
		field := extractFieldName(m)
		cls := ClassUndefined
		if availableFields[field] {
			cls = ClassDefinedUpstream
		}
		out = append(out, Reference{Raw: m, Class: cls})
	}
	return out
}

func extractFieldName(ref string) string {
	if m := stateGetRe.FindStringSubmatch(ref); m != nil {
		return strings.SplitN(m[1], ".", 2)[0]
	}
	if strings.HasPrefix(ref, "state.") {
		rest := strings.TrimPrefix(ref, "state.")
		return strings.SplitN(strings.SplitN(rest, ".", 2)[0], "[", 2)[0]
	}
	if strings.HasPrefix(ref, "context.") {
		return "context"
	}
	if m := nodeOutputRe.FindStringSubmatch(ref); m != nil {
		return "context"
	}
	return ref
}

package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/errs"
)

// jsonParserWrapper takes a source field (default: last message content),
// strips markdown fences, parses it as JSON, and maps parsed sub-fields
// into state.context.
type jsonParserWrapper struct {
	baseWrapper
	sourceField string
}

func newJSONParserFactory(def graph.NodeDef, _ *Services) (Wrapper, error) {
	source, _ := def.Config["source"].(string)
	return &jsonParserWrapper{
		baseWrapper: baseWrapper{reads: []string{graph.FieldMessages}, writes: []string{graph.FieldContext}},
		sourceField: source,
	}, nil
}

func (j *jsonParserWrapper) Execute(_ context.Context, state *graph.State, _ map[string]any) graph.NodeResult {
	raw, err := j.sourceText(state)
	if err != nil {
		return graph.Fail(errs.New(errs.KindParamError, "", err.Error(), err))
	}
	cleaned := stripMarkdownFences(raw)

	var rawFields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &rawFields); err != nil {
		return graph.Fail(errs.New(errs.KindParamError, "", fmt.Sprintf("json_parser: invalid JSON: %v", err), err))
	}

	// Re-assemble the parsed document field by field via sjson.SetRawBytes
	// rather than unmarshaling cleaned directly into the context map.
	// Malformed JSON was already rejected above, and a field that sjson
	// cannot set fails the whole parse.
	doc := []byte("{}")
	for k, v := range rawFields {
		var err error
		doc, err = sjson.SetRawBytes(doc, k, v)
		if err != nil {
			return graph.Fail(errs.New(errs.KindParamError, "", fmt.Sprintf("json_parser: field %q: %v", k, err), err))
		}
	}

	var parsed map[string]any
	if err := json.Unmarshal(doc, &parsed); err != nil {
		return graph.Fail(errs.New(errs.KindInternalError, "", err.Error(), err))
	}

	return graph.Update(map[string]any{graph.FieldContext: parsed})
}

func (j *jsonParserWrapper) sourceText(state *graph.State) (string, error) {
	if j.sourceField != "" {
		ctxVal, _ := state.Get(graph.FieldContext)
		if ctxMap, ok := ctxVal.(map[string]any); ok {
			if v, ok := ctxMap[j.sourceField].(string); ok {
				return v, nil
			}
		}
		return "", fmt.Errorf("json_parser: source field %q not found in context", j.sourceField)
	}
	msgsVal, _ := state.Get(graph.FieldMessages)
	msgs, _ := msgsVal.([]graph.Message)
	if len(msgs) == 0 {
		return "", fmt.Errorf("json_parser: no messages to parse")
	}
	return msgs[len(msgs)-1].Content, nil
}

func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

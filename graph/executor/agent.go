package executor

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flowforge/agentgraph/graph"
	"github.com/flowforge/agentgraph/graph/errs"
	"github.com/flowforge/agentgraph/graph/model"
)

// Middleware is one stage of the agent executor's priority-ordered
// model-call pipeline; lower Priority wraps outermost and runs first.
// Grounded on the original node_wrapper before/after hook chain, minus
// the sandbox-guard and skills-injection stages, which are out of
// scope per spec.md's Non-goals. BeforeAgent is where those would
// attach if ever added; none of the built-in stages use it today.
type Middleware struct {
	Priority    int
	Name        string
	BeforeAgent func(ctx context.Context, state *graph.State) error
}

// ChatFunc is the shape of a single model call inside the agent loop,
// decorated by each Middleware stage's wrap function.
type ChatFunc func(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error)

type agentWrapper struct {
	baseWrapper
	services   *Services
	middleware []Middleware
	maxSteps   int
}

func newAgentFactory(def graph.NodeDef, services *Services) (Wrapper, error) {
	maxSteps := 8
	if v, ok := def.Config["max_steps"].(int); ok && v > 0 {
		maxSteps = v
	}
	mw := defaultMiddleware()
	sort.Slice(mw, func(i, j int) bool { return mw[i].Priority < mw[j].Priority })
	return &agentWrapper{
		baseWrapper: baseWrapper{
			reads:  []string{graph.FieldMessages, graph.FieldContext},
			writes: []string{graph.FieldMessages, graph.FieldCurrentNode, graph.FieldContext},
		},
		services:   services,
		middleware: mw,
		maxSteps:   maxSteps,
	}, nil
}

// defaultMiddleware lists the model-call pipeline stages, lowest
// priority (outermost wrap) first. To-do tracking is its own executor
// family (todo_add/todo_complete, operating on the todos state field
// through the reducer) rather than a model-call stage, so it has no
// entry here.
func defaultMiddleware() []Middleware {
	return []Middleware{
		{Priority: 10, Name: "summarization"},
		{Priority: 20, Name: "logging"},
	}
}

// wrapModelCall resolves a pipeline stage's name to a concrete ChatFunc
// decorator, reading any per-node overrides from cfg. Unknown stage
// names pass through unchanged.
func (a *agentWrapper) wrapModelCall(m Middleware, cfg map[string]any, client model.ChatModel) func(next ChatFunc) ChatFunc {
	switch m.Name {
	case "summarization":
		threshold := 6000
		if v, ok := cfg["summarize_after_tokens"].(int); ok && v > 0 {
			threshold = v
		}
		keepRecent := 4
		if v, ok := cfg["summarize_keep_recent"].(int); ok && v > 0 {
			keepRecent = v
		}
		return func(next ChatFunc) ChatFunc {
			return func(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
				compacted, err := summarizeIfNeeded(ctx, client, messages, threshold, keepRecent)
				if err != nil {
					return model.ChatOut{}, err
				}
				return next(ctx, compacted, tools)
			}
		}
	case "logging":
		nodeID, _ := cfg["__nodeId"].(string)
		label, _ := cfg["__label"].(string)
		return func(next ChatFunc) ChatFunc {
			return func(ctx context.Context, messages []model.Message, tools []model.ToolSpec) (model.ChatOut, error) {
				start := time.Now()
				out, err := next(ctx, messages, tools)
				if err != nil {
					log.Printf("agent node=%s label=%q messages=%d tools=%d duration=%s error=%v", nodeID, label, len(messages), len(tools), time.Since(start), err)
					return out, err
				}
				log.Printf("agent node=%s label=%q messages=%d tools=%d duration=%s tool_calls=%d", nodeID, label, len(messages), len(tools), time.Since(start), len(out.ToolCalls))
				return out, nil
			}
		}
	default:
		return func(next ChatFunc) ChatFunc { return next }
	}
}

// summarizeIfNeeded estimates the conversation's token count with a
// char-count heuristic and, once it crosses threshold, asks the model
// to compress every message but the last keepRecent into a single
// summary turn. Grounded on the original memory summarization
// strategy's system prompt: compress losslessly, return only the
// summary text.
func summarizeIfNeeded(ctx context.Context, client model.ChatModel, messages []model.Message, threshold, keepRecent int) ([]model.Message, error) {
	if estimateTokens(messages) <= threshold || len(messages) <= keepRecent+1 {
		return messages, nil
	}

	cut := len(messages) - keepRecent
	older, recent := messages[:cut], messages[cut:]

	var sb strings.Builder
	for _, m := range older {
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, m.Content)
	}

	summaryPrompt := []model.Message{
		{Role: model.RoleSystem, Content: "You are a conversation compression assistant. Summarize the following conversation turns into a short paragraph that preserves every fact, decision, and open question. Return only the summary text, nothing else."},
		{Role: model.RoleUser, Content: sb.String()},
	}
	out, err := client.Chat(ctx, summaryPrompt, nil)
	if err != nil {
		return nil, fmt.Errorf("summarizing conversation history: %w", err)
	}

	summary := model.Message{Role: model.RoleSystem, Content: "Earlier conversation summary: " + out.Text}
	return append([]model.Message{summary}, recent...), nil
}

// estimateTokens approximates token count from message length. Providers
// differ in exact tokenization, so this only needs to be a consistent,
// conservative heuristic (roughly 4 characters per token).
func estimateTokens(messages []model.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / 4
}

func (a *agentWrapper) Execute(ctx context.Context, state *graph.State, cfg map[string]any) graph.NodeResult {
	for _, m := range a.middleware {
		if m.BeforeAgent != nil {
			if err := m.BeforeAgent(ctx, state); err != nil {
				return graph.Fail(errs.New(errs.KindInternalError, "", fmt.Sprintf("middleware %s: %v", m.Name, err), err))
			}
		}
	}

	modelHandle, _ := cfg["model"].(string)
	if a.services == nil || a.services.LLMClientFactory == nil {
		return graph.Fail(errs.New(errs.KindInternalError, "", "no LLM client factory configured", nil))
	}
	client, err := a.services.LLMClientFactory(modelHandle)
	if err != nil {
		return graph.Fail(errs.New(errs.KindExternalError, "", fmt.Sprintf("resolving model %q: %v", modelHandle, err), err))
	}

	msgsVal, _ := state.Get(graph.FieldMessages)
	msgs, _ := msgsVal.([]graph.Message)
	chatMsgs := toModelMessages(msgs)
	if sysPrompt, ok := cfg["systemPrompt"].(string); ok && sysPrompt != "" {
		chatMsgs = append([]model.Message{{Role: model.RoleSystem, Content: sysPrompt}}, chatMsgs...)
	}

	tools := toolSpecsFrom(cfg, a.services)

	call := ChatFunc(client.Chat)
	for i := len(a.middleware) - 1; i >= 0; i-- {
		call = a.wrapModelCall(a.middleware[i], cfg, client)(call)
	}

	newMessages := []graph.Message{}
	for step := 0; step < a.maxSteps; step++ {
		out, err := call(ctx, chatMsgs, tools)
		if err != nil {
			return graph.Fail(errs.New(errs.KindExternalError, "", fmt.Sprintf("llm call: %v", err), err))
		}
		if out.Text != "" {
			reply := graph.Message{ID: uuid.NewString(), Role: graph.RoleAssistant, Content: out.Text}
			newMessages = append(newMessages, reply)
			chatMsgs = append(chatMsgs, model.Message{Role: model.RoleAssistant, Content: out.Text})
		}
		if len(out.ToolCalls) == 0 {
			break
		}
		for _, tc := range out.ToolCalls {
			result, callErr := invokeTool(ctx, a.services, tc)
			content := fmt.Sprintf("%v", result)
			if callErr != nil {
				content = fmt.Sprintf("tool error: %v", callErr)
			}
			toolMsg := graph.Message{ID: uuid.NewString(), Role: graph.RoleTool, Content: content}
			newMessages = append(newMessages, toolMsg)
			chatMsgs = append(chatMsgs, model.Message{Role: model.RoleAssistant, Content: content})
		}
	}

	delta := map[string]any{
		graph.FieldMessages:    toAnyMessages(newMessages),
		graph.FieldCurrentNode: nodeLabelFrom(cfg),
	}
	if mapping, ok := cfg["output_mapping"].([]any); ok {
		applyOutputMapping(delta, mapping, newMessages)
	}
	return graph.Update(delta)
}

func nodeLabelFrom(cfg map[string]any) string {
	if l, ok := cfg["__label"].(string); ok {
		return l
	}
	return ""
}

func toModelMessages(msgs []graph.Message) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, model.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func toAnyMessages(msgs []graph.Message) []any {
	out := make([]any, len(msgs))
	for i, m := range msgs {
		out[i] = m
	}
	return out
}

func toolSpecsFrom(cfg map[string]any, services *Services) []model.ToolSpec {
	toolsCfg, _ := cfg["tools"].(map[string]any)
	if toolsCfg == nil || services == nil || services.ToolRegistry == nil {
		return nil
	}
	var specs []model.ToolSpec
	if builtins, ok := toolsCfg["builtin"].([]any); ok {
		for _, b := range builtins {
			name, _ := b.(string)
			if name == "" {
				continue
			}
			specs = append(specs, model.ToolSpec{Name: name})
		}
	}
	if mcps, ok := toolsCfg["mcp"].([]any); ok {
		for _, m := range mcps {
			name, _ := m.(string)
			if name == "" {
				continue
			}
			specs = append(specs, model.ToolSpec{Name: name})
		}
	}
	return specs
}

func invokeTool(ctx context.Context, services *Services, tc model.ToolCall) (map[string]interface{}, error) {
	if services == nil || services.ToolRegistry == nil {
		return nil, fmt.Errorf("no tool registry configured")
	}
	handle, err := services.ToolRegistry.Resolve(tc.Name)
	if err != nil {
		return nil, errs.New(errs.KindParamError, "", err.Error(), err)
	}
	return handle.Call(ctx, tc.Input)
}

// applyOutputMapping projects {from: expression, to: state_field} entries
// onto delta, using the last tool/assistant message content
// as the resolution source for simple "last_message" expressions.
func applyOutputMapping(delta map[string]any, mapping []any, newMessages []graph.Message) {
	var last string
	if len(newMessages) > 0 {
		last = newMessages[len(newMessages)-1].Content
	}
	for _, entry := range mapping {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		from, _ := m["from"].(string)
		to, _ := m["to"].(string)
		if to == "" {
			continue
		}
		if from == "last_message" {
			if ctx, ok := delta[graph.FieldContext].(map[string]any); ok {
				ctx[to] = last
			} else {
				delta[graph.FieldContext] = map[string]any{to: last}
			}
		}
	}
}

// Package model provides LLM integration adapters.
package model

import "context"

// ChatModel abstracts a provider-specific chat completion call behind a
// single signature so executor/agent.go can swap providers without
// branching on which one is configured.
type ChatModel interface {
	// Chat sends messages and optional tool specs to the provider and
	// returns its response. Respects ctx cancellation.
	Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error)
}

// Message is a single turn in an LLM conversation.
type Message struct {
	// Role is one of the Role* constants.
	Role string

	// Content is the message text; may be empty for tool-call-only turns.
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolSpec describes a tool the LLM may call. Schema is a JSON Schema
// object describing the tool's input parameters.
type ToolSpec struct {
	Name        string
	Description string
	Schema      map[string]interface{}
}

// ChatOut is a provider's response: text, tool calls, or both.
type ChatOut struct {
	Text      string
	ToolCalls []ToolCall
}

// ToolCall is one tool invocation requested by the LLM. Input's shape
// matches the corresponding ToolSpec.Schema.
type ToolCall struct {
	Name  string
	Input map[string]interface{}
}

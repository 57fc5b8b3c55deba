package model

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicModel adapts the Anthropic Messages API to ChatModel.
type AnthropicModel struct {
	client    anthropic.Client
	modelName string
	maxTokens int64
}

// NewAnthropicModel builds a ChatModel backed by Claude. modelName selects
// the model (e.g. "claude-3-5-sonnet-20241022"); maxTokens bounds the
// response length.
func NewAnthropicModel(apiKey, modelName string, maxTokens int64) *AnthropicModel {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicModel{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
		maxTokens: maxTokens,
	}
}

func (m *AnthropicModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	var system string
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: m.maxTokens,
	}
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = msg.Content
		case RoleUser:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: toAnthropicSchema(t.Schema),
			},
		})
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return ChatOut{}, fmt.Errorf("anthropic chat: %w", err)
	}

	out := ChatOut{}
	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += b.Text
		case anthropic.ToolUseBlock:
			input := map[string]interface{}{}
			_ = decodeJSON(b.Input, &input)
			out.ToolCalls = append(out.ToolCalls, ToolCall{Name: b.Name, Input: input})
		}
	}
	return out, nil
}

func toAnthropicSchema(schema map[string]interface{}) anthropic.ToolInputSchemaParam {
	if schema == nil {
		return anthropic.ToolInputSchemaParam{Type: "object"}
	}
	props, _ := schema["properties"].(map[string]interface{})
	var required []string
	if r, ok := schema["required"].([]string); ok {
		required = r
	}
	return anthropic.ToolInputSchemaParam{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIModel adapts the Chat Completions API to ChatModel.
type OpenAIModel struct {
	client    openai.Client
	modelName string
}

// NewOpenAIModel builds a ChatModel backed by an OpenAI chat model
// (e.g. "gpt-4o", "gpt-4o-mini").
func NewOpenAIModel(apiKey, modelName string) *OpenAIModel {
	return &OpenAIModel{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
	}
}

func (m *OpenAIModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	params := openai.ChatCompletionNewParams{
		Model: m.modelName,
	}
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case RoleUser:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		}
	}
	for _, t := range tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  openai.FunctionParameters(t.Schema),
			},
		})
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ChatOut{}, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ChatOut{}, fmt.Errorf("openai chat: no choices returned")
	}
	choice := resp.Choices[0]
	out := ChatOut{Text: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		input := map[string]interface{}{}
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &input)
		out.ToolCalls = append(out.ToolCalls, ToolCall{Name: tc.Function.Name, Input: input})
	}
	return out, nil
}

package model

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GoogleModel adapts the Gemini GenerateContent API to ChatModel.
type GoogleModel struct {
	client    *genai.Client
	modelName string
}

// NewGoogleModel builds a ChatModel backed by a Gemini model
// (e.g. "gemini-1.5-pro"). The returned client owns a background
// connection; callers should arrange to Close() it at shutdown via the
// underlying *genai.Client if needed.
func NewGoogleModel(ctx context.Context, apiKey, modelName string) (*GoogleModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("google genai client: %w", err)
	}
	return &GoogleModel{client: client, modelName: modelName}, nil
}

func (m *GoogleModel) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (ChatOut, error) {
	gm := m.client.GenerativeModel(m.modelName)
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			gm.SystemInstruction = genai.NewUserContent(genai.Text(msg.Content))
			break
		}
	}

	cs := gm.StartChat()
	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			cs.History = append(cs.History, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(msg.Content)}})
		case RoleAssistant:
			cs.History = append(cs.History, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(msg.Content)}})
		}
	}
	var lastUser string
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			lastUser = messages[i].Content
			break
		}
	}
	if len(cs.History) > 0 {
		cs.History = cs.History[:len(cs.History)-1]
	}

	resp, err := cs.SendMessage(ctx, genai.Text(lastUser))
	if err != nil {
		return ChatOut{}, fmt.Errorf("google genai chat: %w", err)
	}

	out := ChatOut{}
	if len(resp.Candidates) == 0 {
		return out, nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			out.Text += string(txt)
		}
	}
	return out, nil
}

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const DefaultOllamaURL = "http://localhost:11434"

// OllamaClient runs completions against a local Ollama server.
type OllamaClient struct {
	model string
	llm   llms.Model
}

func NewOllamaClient(serverURL, model string) (*OllamaClient, error) {
	if serverURL == "" {
		serverURL = DefaultOllamaURL
	}
	m, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama: %w", err)
	}
	return &OllamaClient{model: model, llm: m}, nil
}

func (c *OllamaClient) Model() string { return c.model }

func (c *OllamaClient) Complete(ctx context.Context, req Request) (*Response, error) {
	content := make([]llms.MessageContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		content = append(content, llms.TextParts(messageType(m.Role), m.Content))
	}

	var opts []llms.CallOption
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	opts = append(opts, llms.WithTemperature(req.Temperature))

	resp, err := c.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return nil, fmt.Errorf("ollama: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0] == nil {
		return nil, fmt.Errorf("empty response from ollama")
	}

	choice := resp.Choices[0]
	u := Usage{
		PromptTokens:     intInfo(choice.GenerationInfo, "PromptTokens"),
		CompletionTokens: intInfo(choice.GenerationInfo, "CompletionTokens"),
		TotalTokens:      intInfo(choice.GenerationInfo, "TotalTokens"),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return &Response{
		Text:  strings.TrimSpace(choice.Content),
		Model: c.model,
		Usage: u,
	}, nil
}

func messageType(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

func intInfo(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

package processors

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"videoChat/config"
	"videoChat/core"
)

// Embedder turns text into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer runs one chat completion over a system prompt and turns.
type Completer interface {
	Complete(ctx context.Context, system string, turns []core.ChatTurn) (string, error)
}

// NewOpenAIClient builds a client for the configured OpenAI-compatible
// endpoint. It returns nil when no API key is set.
func NewOpenAIClient(cfg *config.Config) *openai.Client {
	if !cfg.HasValidAPI() {
		return nil
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientConfig)
}

// ---------------- embeddings ----------------

type OpenAIEmbedder struct {
	cli   *openai.Client
	model string
}

func NewOpenAIEmbedder(cli *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{cli: cli, model: model}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.cli == nil {
		return nil, fmt.Errorf("embeddings: OPENAI_API_KEY: %w", core.ErrNotConfigured)
	}
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.cli.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding API failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding API returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("embedding API returned index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// ---------------- chat completion ----------------

type OpenAICompleter struct {
	cli         *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func NewOpenAICompleter(cli *openai.Client, model string) *OpenAICompleter {
	return &OpenAICompleter{
		cli:         cli,
		model:       model,
		maxTokens:   1000,
		temperature: 0.3, // 较低的温度以获得更准确的回答
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, system string, turns []core.ChatTurn) (string, error) {
	if c.cli == nil {
		return "", fmt.Errorf("chat: OPENAI_API_KEY: %w", core.ErrNotConfigured)
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(turns)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, t := range turns {
		role := openai.ChatMessageRoleUser
		if t.Role == core.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Text})
	}

	resp, err := c.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

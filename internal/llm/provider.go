package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/studybuddy/config"
)

// Provider sends one system+user prompt to a model and returns its text.
type Provider interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// NewProvider builds the backend named by cfg.Provider.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIProvider(cfg), nil
	case "langchain":
		return NewLangchainProvider(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	cfg    config.LLMConfig
	client *HTTPClient
}

func NewOpenAIProvider(cfg config.LLMConfig) *OpenAIProvider {
	return &OpenAIProvider{
		cfg:    cfg,
		client: NewHTTPClient(cfg.Timeout, cfg.MaxRetries, 500*time.Millisecond),
	}
}

type chatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatReq struct {
	Model       string    `json:"model"`
	Messages    []chatMsg `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *OpenAIProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	if p.cfg.APIKey == "" {
		return "", fmt.Errorf("OpenAI API key not configured")
	}
	msgs := make([]chatMsg, 0, 2)
	if system != "" {
		msgs = append(msgs, chatMsg{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMsg{Role: "user", Content: prompt})

	headers := map[string]string{"Authorization": "Bearer " + p.cfg.APIKey}
	var out chatResp
	err := p.client.DoJSON(ctx, "POST", p.cfg.BaseURL+"/chat/completions", headers, chatReq{
		Model:       p.cfg.Model,
		Messages:    msgs,
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}, &out)
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return out.Choices[0].Message.Content, nil
}

package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/mohammad-safakhou/studybuddy/config"
)

// LangchainProvider delegates to a langchaingo model.
type LangchainProvider struct {
	model       llms.Model
	temperature float64
	maxTokens   int
}

// NewLangchainProvider builds an OpenAI-backed langchaingo model from cfg.
func NewLangchainProvider(cfg config.LLMConfig) (*LangchainProvider, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	m, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("langchain openai: %w", err)
	}
	return NewLangchainProviderWithModel(m, cfg.Temperature, cfg.MaxTokens), nil
}

// NewLangchainProviderWithModel wraps an existing model.
func NewLangchainProviderWithModel(m llms.Model, temperature float64, maxTokens int) *LangchainProvider {
	return &LangchainProvider{model: m, temperature: temperature, maxTokens: maxTokens}
}

func (p *LangchainProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	var messages []llms.MessageContent
	if system != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(prompt)},
	})

	opts := []llms.CallOption{llms.WithTemperature(p.temperature)}
	if p.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.maxTokens))
	}
	resp, err := p.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Content, nil
}

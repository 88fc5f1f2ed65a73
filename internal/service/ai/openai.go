package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/sashabaranov/go-openai"
	"github.com/zhouzirui/pitch-tank/backend/internal/config"
	"github.com/zhouzirui/pitch-tank/backend/internal/model/conversation"
)

// OpenAIProvider 兼容 OpenAI 接口的模型实现，默认使用 Groq
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature *float32
	topP        *float32
}

// NewOpenAIProvider 根据配置创建 OpenAI 兼容模型
func NewOpenAIProvider(cfg config.AIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}

	p := &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.OpenAIModel,
	}
	if cfg.MaxTokens != nil {
		p.maxTokens = *cfg.MaxTokens
	}
	if cfg.Temperature != nil {
		val := float32(*cfg.Temperature)
		p.temperature = &val
	}
	if cfg.TopP != nil {
		val := float32(*cfg.TopP)
		p.topP = &val
	}
	return p
}

// Name 实现 Provider
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Complete 实现 Provider
func (p *OpenAIProvider) Complete(ctx context.Context, turns []conversation.Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: p.maxTokens,
	}
	if p.temperature != nil {
		req.Temperature = *p.temperature
	}
	if p.topP != nil {
		req.TopP = *p.topP
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	content := resp.Choices[0].Message.Content
	log.Printf("[ai] openai completion model=%s turns=%d length=%d", p.model, len(turns), len(content))
	return checkContent(content)
}

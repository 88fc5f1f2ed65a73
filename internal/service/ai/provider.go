package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zhouzirui/pitch-tank/backend/internal/config"
	"github.com/zhouzirui/pitch-tank/backend/internal/model/conversation"
)

var (
	// ErrEmptyCompletion 模型返回空内容
	ErrEmptyCompletion = errors.New("ai: empty completion")
	// ErrNotConfigured 未配置任何模型凭证
	ErrNotConfigured = errors.New("ai: no completion provider configured")
)

// Provider 根据对话记录生成下一条回复
type Provider interface {
	Name() string
	Complete(ctx context.Context, turns []conversation.Turn) (string, error)
}

// NewProvider 根据配置创建模型
func NewProvider(ctx context.Context, cfg config.AIConfig) (Provider, error) {
	if !cfg.Enabled() {
		return nil, ErrNotConfigured
	}

	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		return NewService(ctx, chatModel)
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg), nil
	case config.ProviderAnthropic:
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrNotConfigured, cfg.Provider)
	}
}

func checkContent(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/zhouzirui/pitch-tank/backend/internal/config"
	"github.com/zhouzirui/pitch-tank/backend/internal/model/conversation"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicProvider 基于 Anthropic Messages API 的模型实现
type AnthropicProvider struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	temperature *float64
}

// NewAnthropicProvider 根据配置创建 Anthropic 模型，额外选项在 API Key 之后应用
func NewAnthropicProvider(cfg config.AIConfig, opts ...option.RequestOption) *AnthropicProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(cfg.AnthropicKey)}, opts...)

	p := &AnthropicProvider{
		client:      anthropic.NewClient(opts...),
		model:       anthropic.Model(cfg.AnthropicModel),
		maxTokens:   defaultAnthropicMaxTokens,
		temperature: cfg.Temperature,
	}
	if cfg.MaxTokens != nil && *cfg.MaxTokens > 0 {
		p.maxTokens = int64(*cfg.MaxTokens)
	}
	return p
}

// Name 实现 Provider
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete 实现 Provider。系统消息放入 system 参数，相邻同角色消息合并为一条
func (p *AnthropicProvider) Complete(ctx context.Context, turns []conversation.Turn) (string, error) {
	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam

	var pending []anthropic.ContentBlockParamUnion
	var pendingRole conversation.Role
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if pendingRole == conversation.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(pending...))
		} else {
			messages = append(messages, anthropic.NewUserMessage(pending...))
		}
		pending = nil
	}

	for _, turn := range turns {
		if turn.Role == conversation.RoleSystem {
			system = append(system, anthropic.TextBlockParam{Text: turn.Content})
			continue
		}
		if turn.Role != pendingRole {
			flush()
			pendingRole = turn.Role
		}
		pending = append(pending, anthropic.NewTextBlock(turn.Content))
	}
	flush()

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		System:    system,
		Messages:  messages,
	}
	if p.temperature != nil {
		params.Temperature = anthropic.Float(*p.temperature)
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}

	log.Printf("[ai] anthropic completion model=%s turns=%d length=%d", p.model, len(turns), b.Len())
	return checkContent(b.String())
}

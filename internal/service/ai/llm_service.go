package ai

import (
	"context"
	"fmt"
	"log"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/pitch-tank/backend/internal/model/conversation"
)

// Service 通过 eino 链调用方舟聊天模型
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewService 编译以 chatModel 结尾的对话链
func NewService(ctx context.Context, chatModel model.ChatModel) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("transcript", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{chain: runnable}, nil
}

// Name 实现 Provider
func (s *Service) Name() string {
	return "ark"
}

// Complete 实现 Provider
func (s *Service) Complete(ctx context.Context, turns []conversation.Turn) (string, error) {
	response, err := s.chain.Invoke(ctx, map[string]any{
		"transcript": toSchemaMessages(turns),
	})
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil {
		return "", ErrEmptyCompletion
	}

	log.Printf("[ai] ark completion turns=%d length=%d", len(turns), len(response.Content))
	return checkContent(response.Content)
}

func toSchemaMessages(turns []conversation.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case conversation.RoleSystem:
			messages = append(messages, schema.SystemMessage(turn.Content))
		case conversation.RoleUser:
			messages = append(messages, schema.UserMessage(turn.Content))
		case conversation.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return messages
}

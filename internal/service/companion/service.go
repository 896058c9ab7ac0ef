// Package companion implements the text companion's completion relay: one user
// message in, one model reply out. No conversation state is kept server-side.
package companion

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// Config 控制陪伴聊天服务的行为。
type Config struct {
	SystemPrompt   string
	StreamResponse bool
}

// Service 将用户消息转发给聊天模型并返回回复。
type Service struct {
	chatModel model.ChatModel
	cfg       Config
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService 创建陪伴聊天服务。chatModel 由调用方注入，便于测试替换。
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("companion: chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile companion chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

// StreamingEnabled 指示是否开启 SSE 流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// Respond 对单条用户消息生成一条完整回复。
func (s *Service) Respond(ctx context.Context, message string) (*schema.Message, error) {
	response, err := s.chain.Invoke(ctx, s.buildChainInput(message))
	if err != nil {
		return nil, fmt.Errorf("failed to run companion chain: %w", err)
	}

	log.Printf("[companion] generated reply length=%d", len(response.Content))
	return response, nil
}

// Stream 以流式方式返回回复分片。
func (s *Service) Stream(ctx context.Context, message string) (*schema.StreamReader[*schema.Message], error) {
	if !s.StreamingEnabled() {
		return nil, fmt.Errorf("streaming disabled in configuration")
	}

	stream, err := s.chain.Stream(ctx, s.buildChainInput(message))
	if err != nil {
		return nil, fmt.Errorf("failed to stream companion chain output: %w", err)
	}

	return stream, nil
}

func (s *Service) buildChainInput(message string) map[string]any {
	return map[string]any{
		"system": s.cfg.SystemPrompt,
		"query":  strings.TrimSpace(message),
	}
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/zhouzirui/mad-arena/backend/internal/config"
	"github.com/zhouzirui/mad-arena/backend/internal/model/debate"
)

// Service lets debate agents speak through the configured chat model
type Service struct {
	chatModel model.BaseChatModel
	prompts   *AgentPromptManager
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates a new AI service instance
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg)
}

// NewServiceWithModel builds the speaking chain around an existing chat model
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, cfg config.AIConfig) (*Service, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile debate chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		prompts:   NewAgentPromptManager(),
		cfg:       cfg,
		chain:     runnable,
	}, nil
}

// StreamingEnabled 指示是否开启流式输出。
func (s *Service) StreamingEnabled() bool {
	return s.cfg.StreamResponse
}

// ChatModel 返回底层的聊天模型
func (s *Service) ChatModel() model.BaseChatModel {
	return s.chatModel
}

// Speak produces one agent's contribution for the turn. When streaming is enabled
// and onDelta is set, partial text is passed to onDelta as it arrives.
func (s *Service) Speak(ctx context.Context, turn debate.Turn, onDelta func(string)) (string, error) {
	input := s.buildChainInput(turn)

	if s.StreamingEnabled() && onDelta != nil {
		return s.streamSpeech(ctx, input, onDelta)
	}

	response, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to run debate chain: %w", err)
	}

	log.Printf("[ai] %s spoke in round %d, length=%d", turn.Agent.Name, turn.Round, len(response.Content))
	return response.Content, nil
}

func (s *Service) streamSpeech(ctx context.Context, input map[string]any, onDelta func(string)) (string, error) {
	stream, err := s.chain.Stream(ctx, input)
	if err != nil {
		return "", fmt.Errorf("failed to stream debate chain output: %w", err)
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 16)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", fmt.Errorf("debate stream recv failed: %w", recvErr)
		}
		if chunk == nil {
			continue
		}

		chunks = append(chunks, chunk)
		if chunk.Content != "" {
			onDelta(chunk.Content)
		}
	}

	if len(chunks) == 0 {
		return "", nil
	}

	merged, err := schema.ConcatMessages(chunks)
	if err != nil {
		return "", fmt.Errorf("concat debate chunks failed: %w", err)
	}
	return merged.Content, nil
}

func (s *Service) buildChainInput(turn debate.Turn) map[string]any {
	return map[string]any{
		"system":  s.prompts.BuildSystemPrompt(turn),
		"history": s.buildHistoryMessages(turn.Agent.Name, turn.History),
		"query":   s.prompts.BuildTurnPrompt(turn),
	}
}

// buildHistoryMessages maps the transcript onto chat roles from the speaker's view:
// its own lines are assistant turns, everyone else's are attributed user turns.
func (s *Service) buildHistoryMessages(speaker string, messages []debate.Message) []*schema.Message {
	historyLimit := s.cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 12
	}

	if len(messages) == 0 {
		return nil
	}

	startIdx := 0
	if len(messages) > historyLimit {
		startIdx = len(messages) - historyLimit
	}

	history := make([]*schema.Message, 0, len(messages)-startIdx)
	for _, msg := range messages[startIdx:] {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		if msg.Agent == speaker {
			history = append(history, schema.AssistantMessage(content, nil))
			continue
		}
		history = append(history, schema.UserMessage(fmt.Sprintf("%s: %s", msg.Agent, content)))
	}
	return history
}

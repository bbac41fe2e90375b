package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/kopx/backend/internal/model/chat"
	"github.com/zhouzirui/kopx/backend/internal/model/mode"
	"github.com/zhouzirui/kopx/backend/internal/service/upstream"
	"github.com/zhouzirui/kopx/backend/pkg/logging"
)

const (
	replyMaxTokens = 2000
	emptyReply     = "I apologize, but I received an empty response."
)

// Service answers a single user turn with the persona selected by mode.
type Service struct {
	chatModel model.ChatModel
	modes     mode.Store
	template  prompt.ChatTemplate
	logger    logrus.FieldLogger
}

// NewService creates a new AI service instance.
func NewService(chatModel model.ChatModel, modes mode.Store, logger logrus.FieldLogger) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("ai service requires a chat model")
	}
	if modes == nil {
		return nil, fmt.Errorf("ai service requires a mode store")
	}

	return &Service{
		chatModel: chatModel,
		modes:     modes,
		template: prompt.FromMessages(
			schema.FString,
			schema.SystemMessage("{system}"),
			schema.UserMessage("{query}"),
		),
		logger: logging.Component(logger, "ai"),
	}, nil
}

// GetChatModel 返回底层的聊天模型
func (s *Service) GetChatModel() model.ChatModel {
	return s.chatModel
}

// Converse sends one system + user exchange and returns the primary choice.
// Model errors are returned unwrapped.
func (s *Service) Converse(ctx context.Context, message string, m mode.Mode, results []chat.SearchResult) (*chat.Reply, error) {
	persona, ok := s.modes.Find(m)
	if !ok {
		return nil, fmt.Errorf("%w: no persona for %q", mode.ErrInvalidMode, m)
	}

	content := buildUserContent(message, results)
	messages, err := s.template.Format(ctx, map[string]any{
		"system": persona.SystemPrompt,
		"query":  content,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render chat prompt: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"mode":           m,
		"search_results": len(results),
		"content_length": len(content),
	}).Debug("sending chat request")

	response, err := s.chatModel.Generate(ctx, messages,
		model.WithTemperature(persona.Temperature),
		model.WithMaxTokens(replyMaxTokens),
		WithReasoning(true),
	)
	if err != nil {
		return nil, err
	}
	if response == nil {
		return nil, &upstream.EmptyResponseError{Service: "chat", Reason: "no message content in API response"}
	}

	reply := &chat.Reply{
		Content:   response.Content,
		Reasoning: response.ReasoningContent,
	}
	if strings.TrimSpace(reply.Content) == "" {
		reply.Content = emptyReply
	}

	s.logger.WithFields(logrus.Fields{"mode": m, "length": len(reply.Content)}).Info("generated response")
	return reply, nil
}

// buildUserContent prepends the search context block when results exist.
func buildUserContent(message string, results []chat.SearchResult) string {
	if len(results) == 0 {
		return message
	}

	var builder strings.Builder
	builder.WriteString("Based on these search results:\n\n")
	for i, r := range results {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString("Title: ")
		builder.WriteString(r.Title)
		builder.WriteString("\nSnippet: ")
		builder.WriteString(r.Snippet)
		builder.WriteString("\nURL: ")
		builder.WriteString(r.URL)
		builder.WriteString("\n")
	}
	builder.WriteString("\n\nUser Question: ")
	builder.WriteString(message)
	return builder.String()
}

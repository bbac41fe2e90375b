package ai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/kopx/backend/internal/service/upstream"
)

const openRouterService = "openrouter"

// OpenRouterConfig configures the OpenRouter chat-completion client.
type OpenRouterConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Referer    string
	Title      string
	Reasoning  bool
	HTTPClient *http.Client
}

// OpenRouterChatModel implements model.ChatModel on top of the OpenAI-compatible
// /chat/completions endpoint. Responses are always awaited as a single body.
type OpenRouterChatModel struct {
	apiKey    string
	endpoint  string
	model     string
	referer   string
	title     string
	reasoning bool
	client    *http.Client
}

var _ model.ChatModel = (*OpenRouterChatModel)(nil)

// NewOpenRouterChatModel creates a chat model bound to cfg. A missing API key is
// reported by Generate before any request is sent.
func NewOpenRouterChatModel(cfg OpenRouterConfig) *OpenRouterChatModel {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenRouterChatModel{
		apiKey:    strings.TrimSpace(cfg.APIKey),
		endpoint:  strings.TrimSuffix(cfg.BaseURL, "/") + "/chat/completions",
		model:     cfg.Model,
		referer:   cfg.Referer,
		title:     cfg.Title,
		reasoning: cfg.Reasoning,
		client:    client,
	}
}

type openRouterOptions struct {
	Reasoning *bool
}

// WithReasoning asks the provider to return its reasoning text for this call.
func WithReasoning(enabled bool) model.Option {
	return model.WrapImplSpecificOptFn(func(o *openRouterOptions) {
		o.Reasoning = &enabled
	})
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model            string                  `json:"model"`
	Messages         []chatCompletionMessage `json:"messages"`
	Temperature      *float32                `json:"temperature,omitempty"`
	MaxTokens        *int                    `json:"max_tokens,omitempty"`
	Stream           bool                    `json:"stream"`
	IncludeReasoning bool                    `json:"include_reasoning,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message *struct {
			Content   *string `json:"content"`
			Reasoning *string `json:"reasoning"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends input as one chat-completion request and returns the first choice.
func (m *OpenRouterChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if m.apiKey == "" {
		return nil, &upstream.ConfigurationError{Service: "OpenRouter", EnvKey: "OPENROUTER_API_KEY"}
	}

	common := model.GetCommonOptions(&model.Options{Model: &m.model}, opts...)
	specific := model.GetImplSpecificOptions(&openRouterOptions{Reasoning: &m.reasoning}, opts...)

	reqBody := chatCompletionRequest{
		Model:       m.model,
		Messages:    make([]chatCompletionMessage, 0, len(input)),
		Temperature: common.Temperature,
		MaxTokens:   common.MaxTokens,
		Stream:      false,
	}
	if common.Model != nil && *common.Model != "" {
		reqBody.Model = *common.Model
	}
	if specific.Reasoning != nil {
		reqBody.IncludeReasoning = *specific.Reasoning
	}
	for _, msg := range input {
		if msg == nil {
			continue
		}
		reqBody.Messages = append(reqBody.Messages, chatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	body, err := sonic.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("openrouter: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	if m.referer != "" {
		req.Header.Set("HTTP-Referer", m.referer)
	}
	if m.title != "" {
		req.Header.Set("X-Title", m.title)
	}

	resp, err := upstream.Send(m.client, openRouterService, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !upstream.IsSuccess(resp.StatusCode) {
		return nil, &upstream.APIError{
			Service:    openRouterService,
			StatusCode: resp.StatusCode,
			Body:       upstream.ReadBody(resp),
		}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &upstream.NetworkError{Service: openRouterService, Err: err}
	}

	return decodeChatCompletion(raw)
}

func decodeChatCompletion(raw []byte) (*schema.Message, error) {
	var out chatCompletionResponse
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return nil, &upstream.EmptyResponseError{Service: openRouterService, Reason: fmt.Sprintf("malformed response body: %v", err)}
	}

	if len(out.Choices) == 0 {
		reason := "no response choices received from API"
		if out.Error != nil && out.Error.Message != "" {
			reason += ": " + out.Error.Message
		}
		return nil, &upstream.EmptyResponseError{Service: openRouterService, Reason: reason}
	}

	choice := out.Choices[0]
	if choice.Message == nil {
		return nil, &upstream.EmptyResponseError{Service: openRouterService, Reason: "no message content in API response"}
	}

	msg := &schema.Message{Role: schema.Assistant}
	if choice.Message.Content != nil {
		msg.Content = *choice.Message.Content
	}
	if choice.Message.Reasoning != nil {
		msg.ReasoningContent = *choice.Message.Reasoning
	}
	return msg, nil
}

// Stream awaits the full response and replays it as a single-chunk stream.
func (m *OpenRouterChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools is unsupported; the assistant never calls tools.
func (m *OpenRouterChatModel) BindTools(_ []*schema.ToolInfo) error {
	return errors.New("openrouter: tool calling is not supported")
}

// GetType names the component for eino callbacks.
func (m *OpenRouterChatModel) GetType() string {
	return "OpenRouter"
}

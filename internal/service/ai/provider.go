package ai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/kopx/backend/internal/config"
)

// NewChatModel builds the chat model selected by cfg.Provider.
func NewChatModel(ctx context.Context, cfg config.ChatConfig) (model.ChatModel, error) {
	switch cfg.Provider {
	case config.ProviderArk:
		chatModel, err := cfg.Ark.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create ark chat model: %w", err)
		}
		return chatModel, nil
	case config.ProviderOpenRouter, "":
		return NewOpenRouterChatModel(OpenRouterConfig{
			APIKey:     cfg.OpenRouter.APIKey,
			BaseURL:    cfg.OpenRouter.BaseURL,
			Model:      cfg.OpenRouter.Model,
			Referer:    cfg.OpenRouter.Referer,
			Title:      cfg.OpenRouter.Title,
			Reasoning:  cfg.OpenRouter.Reasoning,
			HTTPClient: NewHTTPClient(cfg),
		}), nil
	default:
		return nil, fmt.Errorf("unknown chat provider %q", cfg.Provider)
	}
}

// NewHTTPClient returns the client shared by upstream calls. A zero
// HTTPTimeout leaves the transport defaults in place.
func NewHTTPClient(cfg config.ChatConfig) *http.Client {
	return &http.Client{Timeout: cfg.HTTPTimeout}
}

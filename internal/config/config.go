package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/zhouzirui/kopx/backend/internal/service/upstream"
)

// 支持的聊天模型提供方。
const (
	ProviderOpenRouter = "openrouter"
	ProviderArk        = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Chat   ChatConfig
	Search SearchConfig
	Log    LogConfig
}

// Load 从环境变量加载配置。缺失必需密钥时返回 *upstream.ConfigurationError。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig()
	if err != nil {
		return nil, err
	}

	search, err := loadSearchConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Chat: chat, Search: search, Log: loadLogConfig()}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// ChatConfig 描述对话模型相关配置。
type ChatConfig struct {
	Provider    string
	OpenRouter  OpenRouterConfig
	Ark         ArkConfig
	HTTPTimeout time.Duration
}

// OpenRouterConfig 描述 OpenRouter chat-completion 接口配置。
type OpenRouterConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Referer   string
	Title     string
	Reasoning bool
}

// ArkConfig 描述火山方舟模型配置，CHAT_PROVIDER=ark 时使用。
type ArkConfig struct {
	APIKey    string
	AccessKey string
	SecretKey string
	Model     string
	BaseURL   string
	Region    string
}

// Enabled 表示是否提供了必需的密钥。
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个方舟模型实例。采样参数由调用方按次传入。
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, &upstream.ConfigurationError{Service: "Ark", EnvKey: "ARK_API_KEY"}
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.Model,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadChatConfig() (ChatConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("CHAT_PROVIDER", ProviderOpenRouter))
	if provider != ProviderOpenRouter && provider != ProviderArk {
		return ChatConfig{}, fmt.Errorf("invalid CHAT_PROVIDER value %q", provider)
	}

	reasoning, err := parseBoolEnv("OPENROUTER_REASONING", true)
	if err != nil {
		return ChatConfig{}, err
	}

	timeout, err := parseOptionalIntEnv("HTTP_TIMEOUT_SECONDS")
	if err != nil {
		return ChatConfig{}, err
	}
	var httpTimeout time.Duration
	if timeout != nil {
		if *timeout < 0 {
			return ChatConfig{}, fmt.Errorf("invalid HTTP_TIMEOUT_SECONDS value %d", *timeout)
		}
		httpTimeout = time.Duration(*timeout) * time.Second
	}

	cfg := ChatConfig{
		Provider: provider,
		OpenRouter: OpenRouterConfig{
			APIKey:    strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
			BaseURL:   strings.TrimSuffix(getEnvOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"), "/"),
			Model:     getEnvOrDefault("OPENROUTER_MODEL", "deepseek/deepseek-chat-v3.1:free"),
			Referer:   getEnvOrDefault("OPENROUTER_REFERER", "http://localhost:8080"),
			Title:     getEnvOrDefault("OPENROUTER_TITLE", "KopX AI Chat"),
			Reasoning: reasoning,
		},
		Ark: ArkConfig{
			APIKey:    strings.TrimSpace(os.Getenv("ARK_API_KEY")),
			AccessKey: strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
			Model:     strings.TrimSpace(os.Getenv("Model")),
			BaseURL:   getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
			Region:    getEnvOrDefault("ARK_REGION", "cn-beijing"),
		},
		HTTPTimeout: httpTimeout,
	}

	switch provider {
	case ProviderOpenRouter:
		if cfg.OpenRouter.APIKey == "" {
			return ChatConfig{}, &upstream.ConfigurationError{Service: "OpenRouter", EnvKey: "OPENROUTER_API_KEY"}
		}
	case ProviderArk:
		if !cfg.Ark.Enabled() {
			return ChatConfig{}, &upstream.ConfigurationError{Service: "Ark", EnvKey: "ARK_API_KEY"}
		}
	}

	return cfg, nil
}

// SearchConfig 描述 Serper 搜索接口配置。
type SearchConfig struct {
	APIKey string
	URL    string
}

func loadSearchConfig() (SearchConfig, error) {
	apiKey := strings.TrimSpace(os.Getenv("SERPER_API_KEY"))
	if apiKey == "" {
		return SearchConfig{}, &upstream.ConfigurationError{Service: "Serper", EnvKey: "SERPER_API_KEY"}
	}

	return SearchConfig{
		APIKey: apiKey,
		URL:    getEnvOrDefault("SERPER_URL", "https://google.serper.dev/search"),
	}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "text")),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

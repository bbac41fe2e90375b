package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/kopx/backend/internal/model/mode"
	"github.com/zhouzirui/kopx/backend/pkg/logging"
)

const (
	optimizerTemperature float32 = 0.3
	optimizerMaxTokens           = 100
)

const optimizerSystemPrompt = "You are a search query optimizer. Convert user questions into optimized search queries for best results. Return only the search query, nothing else."

// QueryOptimizer rewrites a user question into a search-engine friendly query.
type QueryOptimizer struct {
	chain  compose.Runnable[map[string]any, *schema.Message]
	logger logrus.FieldLogger
}

// NewQueryOptimizer compiles the rewrite chain on top of chatModel.
func NewQueryOptimizer(ctx context.Context, chatModel model.ChatModel, logger logrus.FieldLogger) (*QueryOptimizer, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("query optimizer requires a chat model")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(optimizerSystemPrompt),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile query optimizer chain: %w", err)
	}

	return &QueryOptimizer{
		chain:  runnable,
		logger: logging.Component(logger, "optimizer"),
	}, nil
}

// Optimize returns the rewritten query, or userQuery unchanged when the model
// call fails or yields nothing. It never blocks a turn.
func (o *QueryOptimizer) Optimize(ctx context.Context, userQuery string, m mode.Mode) string {
	if o == nil || o.chain == nil {
		return userQuery
	}

	msg, err := o.chain.Invoke(ctx, map[string]any{"query": userQuery},
		compose.WithChatModelOption(
			model.WithTemperature(optimizerTemperature),
			model.WithMaxTokens(optimizerMaxTokens),
			WithReasoning(false),
		),
	)
	if err != nil {
		o.logger.WithError(err).WithField("mode", m).Warn("query optimization failed, using original query")
		return userQuery
	}
	if msg == nil {
		return userQuery
	}

	optimized := strings.TrimSpace(msg.Content)
	if optimized == "" {
		o.logger.WithField("mode", m).Warn("query optimizer returned empty content, using original query")
		return userQuery
	}

	o.logger.WithFields(logrus.Fields{"original": userQuery, "optimized": optimized}).Debug("search query optimized")
	return optimized
}

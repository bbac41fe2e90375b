package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/kopx/backend/internal/config"
	"github.com/zhouzirui/kopx/backend/internal/model/chat"
	"github.com/zhouzirui/kopx/backend/internal/model/mode"
	"github.com/zhouzirui/kopx/backend/internal/service/ai"
	chatservice "github.com/zhouzirui/kopx/backend/internal/service/chat"
	"github.com/zhouzirui/kopx/backend/internal/service/search"
	"github.com/zhouzirui/kopx/backend/pkg/logging"
)

var (
	useSearch     bool
	modeName      string
	showReasoning bool
)

var rootCmd = &cobra.Command{
	Use:   "turntester <message>",
	Short: "Run one chat turn against the live APIs",
	Long: `Run a single turn through the query optimizer, web search and chat model
using the credentials from .env or the environment, printing every progress
stage and the resulting turn.`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runTurn,
}

func init() {
	rootCmd.Flags().BoolVar(&useSearch, "search", false, "search the web before answering")
	rootCmd.Flags().StringVar(&modeName, "mode", string(mode.Default), "persona mode: analytical or playful")
	rootCmd.Flags().BoolVar(&showReasoning, "show-reasoning", true, "print the model reasoning when present")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runTurn(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Warn("无法加载 .env，改用系统环境变量")
	}

	m, err := mode.Parse(modeName)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("配置加载失败: %w", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx := cmd.Context()

	chatModel, err := ai.NewChatModel(ctx, cfg.Chat)
	if err != nil {
		return err
	}
	optimizer, err := ai.NewQueryOptimizer(ctx, chatModel, logger)
	if err != nil {
		return err
	}
	responder, err := ai.NewService(chatModel, mode.NewMemoryStore(mode.Seed()), logger)
	if err != nil {
		return err
	}

	svc := chatservice.NewService(chatservice.Dependencies{
		Optimizer: optimizer,
		Searcher: search.NewClient(search.Config{
			APIKey:     cfg.Search.APIKey,
			URL:        cfg.Search.URL,
			HTTPClient: ai.NewHTTPClient(cfg.Chat),
		}, logger),
		Responder: responder,
		Logger:    logger,
	})

	session, err := svc.CreateSession(ctx, chat.Config{Mode: m, ShowReasoning: showReasoning})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	result, err := svc.SubmitTurn(ctx, session.ID, strings.Join(args, " "), useSearch, func(stage chatservice.Stage, detail string) {
		if detail != "" {
			fmt.Fprintf(out, "[%s] %s\n", stage, detail)
		}
	})
	if err != nil {
		return err
	}

	turn := result.AssistantTurn.Visible(showReasoning)
	if turn.Reasoning != "" {
		fmt.Fprintf(out, "\n--- reasoning ---\n%s\n", turn.Reasoning)
	}
	fmt.Fprintf(out, "\n--- %s (fromSearch=%t) ---\n%s\n", m, turn.FromSearch, turn.Content)

	if result.Failed {
		return fmt.Errorf("turn failed: %s", result.Category)
	}
	return nil
}

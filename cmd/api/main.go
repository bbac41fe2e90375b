package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/kopx/backend/internal/config"
	"github.com/zhouzirui/kopx/backend/internal/handler"
	"github.com/zhouzirui/kopx/backend/internal/model/mode"
	"github.com/zhouzirui/kopx/backend/internal/service/ai"
	"github.com/zhouzirui/kopx/backend/internal/service/chat"
	"github.com/zhouzirui/kopx/backend/internal/service/search"
	"github.com/zhouzirui/kopx/backend/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	if envErr != nil {
		logger.WithError(envErr).Warn("failed to load .env file, continuing with system environment variables only")
	}

	modeStore := mode.NewMemoryStore(mode.Seed())

	chatModel, err := ai.NewChatModel(ctx, cfg.Chat)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize chat model")
	}
	logger.WithField("provider", cfg.Chat.Provider).Info("chat model initialized")

	optimizer, err := ai.NewQueryOptimizer(ctx, chatModel, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize query optimizer")
	}

	aiService, err := ai.NewService(chatModel, modeStore, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize chat orchestrator")
	}

	searchClient := search.NewClient(search.Config{
		APIKey:     cfg.Search.APIKey,
		URL:        cfg.Search.URL,
		HTTPClient: ai.NewHTTPClient(cfg.Chat),
	}, logger)

	chatService := chat.NewService(chat.Dependencies{
		Optimizer: optimizer,
		Searcher:  searchClient,
		Responder: aiService,
		Logger:    logger,
	})

	router := handler.NewRouter(modeStore, chatService, logger)

	startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger logrus.FieldLogger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.WithField("addr", addr).Info("KopX backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.WithError(err).Fatal("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

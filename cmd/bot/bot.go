package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/abelzeko/nuclear-bot/internal/api"
	"github.com/abelzeko/nuclear-bot/internal/config"
	"github.com/abelzeko/nuclear-bot/internal/integration/openai"
	"github.com/abelzeko/nuclear-bot/internal/registry"
	"github.com/abelzeko/nuclear-bot/internal/repository"
	"github.com/abelzeko/nuclear-bot/internal/usecases"
	"go.uber.org/zap"
)

func main() {
	cfg, dotenv, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if !dotenv {
		logger.Info("No .env file found, using environment variables")
	}
	logger.Info("Starting Nuclear Bot...")

	if cfg.TelegramBotToken == "" {
		logger.Fatal("TELEGRAM_BOT_TOKEN environment variable is not set")
	}

	reg, err := registry.Load(cfg.PlantsFile)
	if err != nil {
		logger.Fatal("Failed to load plant registry", zap.Error(err))
	}

	// Free-text queries are optional
	var openAIService openai.OpenAIService
	if cfg.OpenAIAPIKey != "" {
		openAIService, err = openai.NewOpenAIService(cfg.OpenAIAPIKey, logger)
		if err != nil {
			logger.Fatal("Failed to initialize OpenAI service", zap.Error(err))
		}
	} else {
		logger.Info("OPENAI_API_KEY not set, free-text queries are disabled")
	}

	repo, err := repository.NewSQLiteSnapshotRepository(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	useCase := usecases.NewReportUseCase(reg, repo, openAIService, logger)

	telegramBot, err := api.NewTelegramBot(cfg.TelegramBotToken, useCase, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Telegram bot", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the bot
	telegramBot.Start(ctx)
	logger.Info("Bot stopped")
}

// Package api provides handlers for external APIs and interfaces
package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/abelzeko/nuclear-bot/internal/entities"
	"github.com/abelzeko/nuclear-bot/internal/usecases"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Reporter answers the bot's questions
type Reporter interface {
	Plants() []entities.PlantDescriptor
	PlantReport(key string) (string, error)
	TotalReport() (string, error)
	HandleNaturalLanguageQuery(ctx context.Context, query string) (string, error)
}

// TelegramBot handles interactions with the Telegram API
type TelegramBot struct {
	bot      *tgbotapi.BotAPI
	reporter Reporter
	logger   *zap.Logger
}

// NewTelegramBot creates a new Telegram bot handler
func NewTelegramBot(botToken string, reporter Reporter, logger *zap.Logger) (*TelegramBot, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &TelegramBot{
		bot:      bot,
		reporter: reporter,
		logger:   logger.Named("telegram"),
	}, nil
}

// Start begins listening for and handling Telegram messages until ctx is done
func (t *TelegramBot) Start(ctx context.Context) {
	t.logger.Info("Authorized on Telegram account", zap.String("account", t.bot.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := t.bot.GetUpdatesChan(u)
	t.logger.Info("Bot is now listening for messages")

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}

			t.logger.Info("Received message",
				zap.String("user", userName(update.Message)),
				zap.String("text", update.Message.Text))

			t.handleMessage(ctx, update)
		}
	}
}

// handleMessage processes a Telegram message update
func (t *TelegramBot) handleMessage(ctx context.Context, update tgbotapi.Update) {
	msg := tgbotapi.NewMessage(update.Message.Chat.ID, t.reply(ctx, update.Message))

	t.logger.Debug("Sending response", zap.String("user", userName(update.Message)))
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("Error sending message", zap.Error(err))
	}
}

// userName tolerates messages without a sender, e.g. channel posts
func userName(m *tgbotapi.Message) string {
	if m.From == nil {
		return ""
	}
	return m.From.UserName
}

// reply builds the response text for one message
func (t *TelegramBot) reply(ctx context.Context, message *tgbotapi.Message) string {
	if message.IsCommand() {
		return t.handleCommand(message)
	}
	return t.handleNonCommand(ctx, message)
}

// handleCommand processes commands like /start, /help, etc.
func (t *TelegramBot) handleCommand(message *tgbotapi.Message) string {
	t.logger.Debug("Handling command",
		zap.String("command", message.Command()),
		zap.String("args", message.CommandArguments()))

	switch message.Command() {
	case "start":
		return "Welcome to the Nuclear Bot! Use /plants to see the list of plants, /total for the grid total or /help for more information."

	case "help":
		return "Available commands:\n" +
			"/start - Start the bot\n" +
			"/plants - Show the list of plants\n" +
			"/plant [key] - Show current output of a specific plant\n" +
			"/total - Show total Swedish nuclear output\n" +
			"/help - Show this help message"

	case "plants":
		return t.handlePlantsCommand()

	case "plant":
		return t.handlePlantCommand(message.CommandArguments())

	case "total":
		report, err := t.reporter.TotalReport()
		if err != nil {
			t.logger.Error("Error building total report", zap.Error(err))
			return "Error fetching production data. Please try again later."
		}
		return report

	default:
		t.logger.Info("Received unknown command", zap.String("command", message.Command()))
		return "Unknown command. Use /help to see available commands."
	}
}

// handlePlantsCommand processes the /plants command
func (t *TelegramBot) handlePlantsCommand() string {
	var b strings.Builder
	b.WriteString("Available plants:\n\n")
	for _, p := range t.reporter.Plants() {
		b.WriteString(fmt.Sprintf("• %s (%s): %s\n", p.Name, p.Key, strings.Join(p.Reactors, ", ")))
	}
	b.WriteString("\nUse /plant [key] to get detailed information.")
	return b.String()
}

// handlePlantCommand processes the /plant [key] command
func (t *TelegramBot) handlePlantCommand(args string) string {
	args = strings.TrimSpace(args)
	if args == "" {
		return "Please specify a plant. Example: /plant ringhals"
	}

	report, err := t.reporter.PlantReport(args)
	if errors.Is(err, usecases.ErrUnknownPlant) {
		return fmt.Sprintf("No plant called '%s'. Use /plants to see the available plants.", args)
	}
	if err != nil {
		t.logger.Error("Error building plant report", zap.String("plant", args), zap.Error(err))
		return "Error fetching production data. Please try again later."
	}
	return report
}

// handleNonCommand processes regular messages
func (t *TelegramBot) handleNonCommand(ctx context.Context, message *tgbotapi.Message) string {
	if strings.HasPrefix(message.Text, "/plant ") {
		return t.handlePlantCommand(strings.TrimPrefix(message.Text, "/plant "))
	}

	response, err := t.reporter.HandleNaturalLanguageQuery(ctx, message.Text)
	if err != nil || response == "" {
		if err != nil {
			t.logger.Error("Error handling free-text query", zap.Error(err))
		}
		return "I don't understand. Use /help to see available commands."
	}
	return response
}

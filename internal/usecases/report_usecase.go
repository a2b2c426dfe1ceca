package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abelzeko/nuclear-bot/internal/entities"
	"github.com/abelzeko/nuclear-bot/internal/integration/openai"
	"github.com/abelzeko/nuclear-bot/internal/registry"
	"github.com/abelzeko/nuclear-bot/internal/repository"
	"github.com/abelzeko/nuclear-bot/internal/state"
	"go.uber.org/zap"
)

// ErrUnknownPlant is returned for a plant key outside the registry
var ErrUnknownPlant = errors.New("unknown plant")

// SnapshotLoader reads back the latest persisted refresh outcome
type SnapshotLoader interface {
	LoadLatest() (*repository.Record, error)
}

// ReportUseCase answers bot queries from the latest persisted snapshot
type ReportUseCase struct {
	registry      *registry.Registry
	loader        SnapshotLoader
	openAIService openai.OpenAIService
	logger        *zap.Logger
}

// NewReportUseCase creates a new report use case. openAIService may be nil.
func NewReportUseCase(reg *registry.Registry, loader SnapshotLoader, openAIService openai.OpenAIService, logger *zap.Logger) *ReportUseCase {
	return &ReportUseCase{
		registry:      reg,
		loader:        loader,
		openAIService: openAIService,
		logger:        logger.Named("report"),
	}
}

// Plants returns the configured plants in registry order
func (uc *ReportUseCase) Plants() []entities.PlantDescriptor {
	return uc.registry.Plants()
}

// CanInterpret reports whether free-text queries are supported
func (uc *ReportUseCase) CanInterpret() bool {
	return uc.openAIService != nil
}

// currentState rebuilds the read model from the persisted record
func (uc *ReportUseCase) currentState() (*state.PublishedState, error) {
	st := state.New(uc.registry)
	rec, err := uc.loader.LoadLatest()
	if err != nil {
		return nil, fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	switch {
	case rec == nil:
	case rec.Failure != "":
		st.MarkFailed(fmt.Errorf("%w: %s", entities.ErrRefreshFailed, rec.Failure))
	default:
		st.Publish(rec.Snapshot)
	}
	return st, nil
}

// PlantReport formats the latest readings of one plant
func (uc *ReportUseCase) PlantReport(key string) (string, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	plant, ok := uc.registry.Plant(key)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPlant, key)
	}
	uc.logger.Debug("Building plant report", zap.String("plant", key))

	st, err := uc.currentState()
	if err != nil {
		return "", err
	}
	return FormatPlantInfo(plant, st), nil
}

// TotalReport formats the grid-wide total
func (uc *ReportUseCase) TotalReport() (string, error) {
	st, err := uc.currentState()
	if err != nil {
		return "", err
	}
	return FormatGridTotal(st), nil
}

// HandleNaturalLanguageQuery interprets a user's free-text query using the AI service
// and returns an appropriate response string.
func (uc *ReportUseCase) HandleNaturalLanguageQuery(ctx context.Context, query string) (string, error) {
	if uc.openAIService == nil {
		return "I only understand commands. Use /help to see them.", nil
	}
	uc.logger.Info("Interpreting natural language query", zap.String("query", query))

	plants := uc.registry.Plants()
	options := make([]openai.PlantOption, 0, len(plants))
	for _, p := range plants {
		options = append(options, openai.PlantOption{Key: p.Key, Name: p.Name})
	}

	agentResp, err := uc.openAIService.InterpretUserQuery(ctx, query, options)
	if err != nil {
		uc.logger.Warn("Error interpreting user query via OpenAI", zap.Error(err))
		return "Sorry, I'm having trouble understanding right now. Please try again later or use /help.", nil
	}

	uc.logger.Info("Agent response",
		zap.String("command", agentResp.CommandName),
		zap.String("plant", agentResp.PlantKey),
		zap.String("message", agentResp.UserMessage))

	switch agentResp.CommandName {
	case openai.CommandGetPlantOutput:
		if agentResp.PlantKey == "" {
			return agentResp.UserMessage, nil
		}
		report, err := uc.PlantReport(agentResp.PlantKey)
		if errors.Is(err, ErrUnknownPlant) {
			return withPrefix(agentResp.UserMessage,
				fmt.Sprintf("However, I don't track a plant called '%s'. Use /plants to see available ones.", agentResp.PlantKey)), nil
		}
		if err != nil {
			uc.logger.Error("Error building plant report after agent interpretation", zap.Error(err))
			return "Sorry, I couldn't fetch the data for that plant right now.", nil
		}
		return withPrefix(agentResp.UserMessage, report), nil
	case openai.CommandGetGridTotal:
		report, err := uc.TotalReport()
		if err != nil {
			uc.logger.Error("Error building total report after agent interpretation", zap.Error(err))
			return "Sorry, I couldn't fetch the grid total right now.", nil
		}
		return withPrefix(agentResp.UserMessage, report), nil
	case openai.CommandGeneralQuery:
		return agentResp.UserMessage, nil
	default:
		uc.logger.Warn("Agent returned unexpected command", zap.String("command", agentResp.CommandName))
		return "I'm not sure how to respond to that. You can use /help for commands.", nil
	}
}

func withPrefix(prefix, body string) string {
	if prefix == "" {
		return body
	}
	return prefix + "\n\n" + body
}

// FormatPlantInfo formats one plant's published readings for display
func FormatPlantInfo(plant entities.PlantDescriptor, st *state.PublishedState) string {
	var result strings.Builder
	result.WriteString(fmt.Sprintf("Production at %s:\n\n", plant.Name))

	if st.Failure() != nil {
		result.WriteString("⚠️ The last update failed, data is unavailable.\n")
		return result.String()
	}

	for _, reactor := range plant.Reactors {
		r, ok := st.Reactor(plant.Key, reactor)
		if !ok {
			result.WriteString(fmt.Sprintf("⚛️ %s: unknown\n", reactor))
			continue
		}
		line := fmt.Sprintf("⚛️ %s: %s %s", reactor, formatMW(r.Output), r.Unit)
		if r.Percent != nil {
			line += fmt.Sprintf(" (%.1f%% of capacity)", *r.Percent)
		}
		result.WriteString(line + "\n")
	}

	if ts, ok := st.PlantLastUpdate(plant.Key); ok {
		result.WriteString(fmt.Sprintf("\n🕒 Last update: %s", ts.Format("2006-01-02 15:04:05 MST")))
	} else {
		result.WriteString("\nNo data from this plant in the last update.")
	}
	return result.String()
}

// FormatGridTotal formats the grid-wide aggregate for display
func FormatGridTotal(st *state.PublishedState) string {
	if st.Failure() != nil {
		return "⚠️ The last update failed, data is unavailable."
	}
	if st.Snapshot() == nil {
		return "No data yet. The first update has not finished."
	}
	total, ok := st.Total()
	if !ok {
		return "⚠️ No plant reported in the last update."
	}

	var result strings.Builder
	result.WriteString(fmt.Sprintf("⚡ Total Swedish nuclear output: %s %s\n", formatMW(total.Output), total.Unit))
	result.WriteString(fmt.Sprintf("⚛️ Active reactors: %d of %d reporting\n", total.ActiveReactors, total.TotalReactors))
	result.WriteString(fmt.Sprintf("🕒 Last computed: %s", total.LastUpdated.Format(time.RFC3339)))
	return result.String()
}

func formatMW(v float64) string {
	return fmt.Sprintf("%.2f", entities.Round(v, 2))
}

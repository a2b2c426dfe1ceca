package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abelzeko/nuclear-bot/internal/api"
	"github.com/abelzeko/nuclear-bot/internal/config"
	"github.com/abelzeko/nuclear-bot/internal/integration"
	"github.com/abelzeko/nuclear-bot/internal/integration/homeassistant"
	"github.com/abelzeko/nuclear-bot/internal/metrics"
	"github.com/abelzeko/nuclear-bot/internal/registry"
	"github.com/abelzeko/nuclear-bot/internal/repository"
	"github.com/abelzeko/nuclear-bot/internal/state"
	"github.com/abelzeko/nuclear-bot/internal/usecases"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// app wires the refresh service together
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	repo    *repository.SQLiteSnapshotRepository
	useCase *usecases.GridUseCase
	server  *api.Server
	metrics *metrics.Metrics
}

func newApp(cfg *config.Config, logger *zap.Logger, scraperOpts ...integration.Option) (*app, error) {
	reg, err := registry.Load(cfg.PlantsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load plant registry: %w", err)
	}
	logger.Info("Loaded plant registry",
		zap.Strings("plants", reg.Keys()), zap.Int("reactors", reg.ReactorCount()))

	repo, err := repository.NewSQLiteSnapshotRepository(cfg.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	m := metrics.New()
	published := state.New(reg)
	scraper := integration.NewNuclearScraper(logger, scraperOpts...)

	opts := []usecases.GridOption{
		usecases.WithStore(repo),
		usecases.WithMetrics(m),
		usecases.WithConcurrency(cfg.FetchConcurrency),
	}
	if cfg.HomeAssistantEnabled() {
		logger.Info("Home Assistant publishing enabled", zap.String("url", cfg.HAURL))
		opts = append(opts, usecases.WithPublishers(homeassistant.NewPublisher(cfg.HAURL, cfg.HAToken, logger)))
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		repo:    repo,
		useCase: usecases.NewGridUseCase(reg, scraper, published, logger, opts...),
		metrics: m,
	}
	if cfg.HTTPAddr != "" {
		a.server = api.NewServer(cfg.HTTPAddr, published, m, cfg.RefreshInterval, logger)
	}
	return a, nil
}

// refresh runs one cycle; failures are logged and never stop the service
func (a *app) refresh(ctx context.Context, trigger string) {
	if err := a.useCase.RefreshGridData(ctx); err != nil {
		a.logger.Warn("Grid data refresh failed", zap.String("trigger", trigger), zap.Error(err))
	}
}

// run refreshes once, then on every interval tick until ctx is done
func (a *app) run(ctx context.Context) error {
	defer a.repo.Close()

	if a.server != nil {
		go func() {
			if err := a.server.Start(); err != nil {
				a.logger.Error("API server stopped", zap.Error(err))
			}
		}()
	}

	// Run use case immediately on startup
	a.refresh(ctx, "startup")

	cronLogger := cron.PrintfLogger(zap.NewStdLog(a.logger.Named("cron")))
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	spec := fmt.Sprintf("@every %s", a.cfg.RefreshInterval)
	if _, err := c.AddFunc(spec, func() { a.refresh(ctx, "schedule") }); err != nil {
		return fmt.Errorf("failed to set up cron job: %w", err)
	}

	a.logger.Info("Scraper has been scheduled", zap.Duration("interval", a.cfg.RefreshInterval))
	c.Start()

	<-ctx.Done()
	a.logger.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// wait for an in-flight refresh; ctx is already cancelled so its fetches are abandoned
	select {
	case <-c.Stop().Done():
	case <-shutdownCtx.Done():
		a.logger.Warn("Timed out waiting for the running refresh")
	}

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("API server shutdown failed", zap.Error(err))
		}
	}
	return nil
}

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
	logger.Info("Starting Nuclear Bot Scraper...", zap.Duration("interval", cfg.RefreshInterval))

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to start", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.run(ctx); err != nil {
		logger.Fatal("Scraper stopped", zap.Error(err))
	}
}

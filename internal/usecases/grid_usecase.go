// Package usecases contains the application's business logic
package usecases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/abelzeko/nuclear-bot/internal/entities"
	"github.com/abelzeko/nuclear-bot/internal/metrics"
	"github.com/abelzeko/nuclear-bot/internal/registry"
	"github.com/abelzeko/nuclear-bot/internal/state"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PlantFetcher fetches and normalizes one plant
type PlantFetcher interface {
	FetchPlant(ctx context.Context, plant entities.PlantDescriptor) (*entities.PlantSnapshot, error)
}

// SnapshotStore persists the latest refresh outcome
type SnapshotStore interface {
	SaveSnapshot(snapshot *entities.GridSnapshot) error
	SaveFailure(failure error, at time.Time) error
}

// StatePublisher pushes the published state to a downstream consumer
type StatePublisher interface {
	Publish(ctx context.Context, sensors []state.Sensor) error
}

// GridUseCase runs refresh cycles over the plant registry
type GridUseCase struct {
	registry    *registry.Registry
	fetcher     PlantFetcher
	state       *state.PublishedState
	store       SnapshotStore
	publishers  []StatePublisher
	metrics     *metrics.Metrics
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
	newCycleID  func() string

	// serializes refreshes so a snapshot swap is never interleaved with another cycle
	mu sync.Mutex
}

// GridOption configures a GridUseCase
type GridOption func(*GridUseCase)

// WithStore persists every refresh outcome
func WithStore(s SnapshotStore) GridOption {
	return func(uc *GridUseCase) { uc.store = s }
}

// WithPublishers adds downstream state consumers
func WithPublishers(p ...StatePublisher) GridOption {
	return func(uc *GridUseCase) { uc.publishers = append(uc.publishers, p...) }
}

// WithMetrics records refresh outcomes
func WithMetrics(m *metrics.Metrics) GridOption {
	return func(uc *GridUseCase) { uc.metrics = m }
}

// WithConcurrency bounds the number of plants fetched at once
func WithConcurrency(n int) GridOption {
	return func(uc *GridUseCase) {
		if n > 0 {
			uc.concurrency = n
		}
	}
}

// WithNow sets the clock used for snapshot build times
func WithNow(now func() time.Time) GridOption {
	return func(uc *GridUseCase) { uc.now = now }
}

// WithCycleIDs sets the cycle id generator
func WithCycleIDs(gen func() string) GridOption {
	return func(uc *GridUseCase) { uc.newCycleID = gen }
}

// NewGridUseCase creates a new grid use case
func NewGridUseCase(reg *registry.Registry, fetcher PlantFetcher, published *state.PublishedState, logger *zap.Logger, opts ...GridOption) *GridUseCase {
	uc := &GridUseCase{
		registry:    reg,
		fetcher:     fetcher,
		state:       published,
		logger:      logger.Named("grid"),
		concurrency: len(reg.Plants()),
		now:         time.Now,
		newCycleID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(uc)
	}
	if uc.concurrency < 1 {
		uc.concurrency = 1
	}
	return uc
}

// State returns the read model this use case publishes into
func (uc *GridUseCase) State() *state.PublishedState {
	return uc.state
}

// Aggregate fetches every registry plant independently and builds a snapshot from the successes.
// A plant that fails, for any reason including a panic, is omitted. When every plant fails the
// snapshot is empty. The returned error is non-nil only when ctx ended before the cycle finished.
func (uc *GridUseCase) Aggregate(ctx context.Context) (*entities.GridSnapshot, error) {
	plants := uc.registry.Plants()
	cycleID := uc.newCycleID()
	logger := uc.logger.With(zap.String("cycle_id", cycleID))

	results := make([]*entities.PlantSnapshot, len(plants))

	var g errgroup.Group
	g.SetLimit(uc.concurrency)
	for i, plant := range plants {
		g.Go(func() error {
			// each task owns results[i] until Wait returns
			results[i] = uc.fetchPlant(ctx, plant, logger)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collected := make([]entities.PlantSnapshot, 0, len(plants))
	for _, r := range results {
		if r != nil {
			collected = append(collected, *r)
		}
	}

	snap := entities.NewGridSnapshot(cycleID, collected, uc.now())
	logger.Info("Grid snapshot built",
		zap.Int("plants", len(snap.Plants)),
		zap.Int("plants_configured", len(plants)),
		zap.Float64("total_output", snap.TotalOutput),
		zap.Int("total_reactors", snap.TotalReactors),
		zap.Int("active_reactors", snap.ActiveReactors))
	return snap, nil
}

func (uc *GridUseCase) fetchPlant(ctx context.Context, plant entities.PlantDescriptor, logger *zap.Logger) (result *entities.PlantSnapshot) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%s: panic: %v", plant.Key, r)
			logger.Error("Plant fetch panicked", zap.String("plant", plant.Key), zap.Error(err))
			uc.metrics.PlantFailed(plant.Key, err)
			result = nil
		}
	}()

	snap, err := uc.fetcher.FetchPlant(ctx, plant)
	uc.metrics.PlantFetched(plant.Key, time.Since(start))
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("Plant omitted from snapshot",
				zap.String("plant", plant.Key),
				zap.String("kind", entities.FailureKind(err)),
				zap.Error(err))
			uc.metrics.PlantFailed(plant.Key, err)
		}
		return nil
	}
	if snap == nil {
		return nil
	}

	// drop anything outside the plant's descriptor so readings stay a subset of the registry
	readings := make([]entities.ReactorReading, 0, len(snap.Readings))
	for _, rd := range snap.Readings {
		if !plant.HasReactor(rd.Reactor) {
			logger.Warn("Dropping reading for unknown reactor",
				zap.String("plant", plant.Key), zap.String("reactor", rd.Reactor))
			continue
		}
		readings = append(readings, rd)
	}
	out := *snap
	out.Plant = plant.Key
	out.Readings = readings
	return &out
}

// RefreshGridData runs one refresh cycle and publishes the result.
// Per-plant failures never fail the refresh. It returns ErrRefreshFailed when the cycle fails as a
// whole, in which case the published state is marked unavailable, and ctx's error when the cycle
// was abandoned, in which case the previous state stays published.
func (uc *GridUseCase) RefreshGridData(ctx context.Context) (err error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	start := time.Now()
	uc.logger.Info("Starting grid data refresh")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", entities.ErrRefreshFailed, r)
			uc.logger.Error("Grid refresh failed", zap.Error(err))
			uc.state.MarkFailed(err)
			uc.saveFailure(err)
			uc.metrics.RefreshCompleted(metrics.OutcomeFailed, time.Since(start))
		}
	}()

	snap, err := uc.Aggregate(ctx)
	if err != nil {
		uc.logger.Warn("Grid refresh abandoned, keeping previous snapshot", zap.Error(err))
		uc.metrics.RefreshCompleted(metrics.OutcomeCancelled, time.Since(start))
		return err
	}

	uc.state.Publish(snap)
	uc.metrics.SnapshotPublished(snap)

	if uc.store != nil {
		if err := uc.store.SaveSnapshot(snap); err != nil {
			uc.logger.Error("Failed to persist snapshot", zap.Error(err))
		}
	}
	uc.pushToPublishers(ctx)

	outcome := metrics.OutcomeSuccess
	if snap.Empty() {
		outcome = metrics.OutcomeEmpty
		uc.logger.Warn("Every plant failed this cycle, state is unavailable until the next refresh")
	}
	uc.metrics.RefreshCompleted(outcome, time.Since(start))
	uc.logger.Info("Grid data refresh finished", zap.Duration("took", time.Since(start)))
	return nil
}

func (uc *GridUseCase) pushToPublishers(ctx context.Context) {
	if len(uc.publishers) == 0 {
		return
	}
	sensors := uc.state.Sensors()
	for _, p := range uc.publishers {
		if err := p.Publish(ctx, sensors); err != nil {
			uc.logger.Warn("Failed to publish state downstream", zap.Error(err))
		}
	}
}

func (uc *GridUseCase) saveFailure(failure error) {
	if uc.store == nil {
		return
	}
	if err := uc.store.SaveFailure(failure, uc.now()); err != nil {
		uc.logger.Error("Failed to persist refresh failure", zap.Error(err))
	}
}

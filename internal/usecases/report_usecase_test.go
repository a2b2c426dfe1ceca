package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/abelzeko/nuclear-bot/internal/entities"
	"github.com/abelzeko/nuclear-bot/internal/integration/openai"
	"github.com/abelzeko/nuclear-bot/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLoader struct {
	rec *repository.Record
	err error
}

func (f fakeLoader) LoadLatest() (*repository.Record, error) { return f.rec, f.err }

type fakeInterpreter struct {
	resp    *openai.AgentResponse
	err     error
	queried []openai.PlantOption
}

func (f *fakeInterpreter) InterpretUserQuery(_ context.Context, _ string, plants []openai.PlantOption) (*openai.AgentResponse, error) {
	f.queried = plants
	return f.resp, f.err
}

func pct(v float64) *float64 { return &v }

func persisted() *repository.Record {
	builtAt := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return &repository.Record{
		UpdatedAt: builtAt,
		Snapshot: entities.NewGridSnapshot("cycle", []entities.PlantSnapshot{
			{
				Plant:     "a",
				Timestamp: builtAt,
				Readings: []entities.ReactorReading{
					{Reactor: "A1", Output: 900.456, Percent: pct(90), Unit: entities.UnitMegawatt},
				},
			},
			{
				Plant:     "c",
				Timestamp: builtAt,
				Readings:  []entities.ReactorReading{{Reactor: "C1", Output: 0, Unit: entities.UnitMegawatt}},
			},
		}, builtAt),
	}
}

func TestPlantReport(t *testing.T) {
	uc := NewReportUseCase(threePlants(t), fakeLoader{rec: persisted()}, nil, zap.NewNop())

	report, err := uc.PlantReport(" A ")
	require.NoError(t, err)
	assert.Contains(t, report, "Production at Alpha")
	assert.Contains(t, report, "A1: 900.46 MW (90.0% of capacity)")
	assert.Contains(t, report, "A2: unknown")
	assert.Contains(t, report, "Last update: 2024-01-01 12:00:00 UTC")

	report, err = uc.PlantReport("b")
	require.NoError(t, err)
	assert.Contains(t, report, "No data from this plant")

	_, err = uc.PlantReport("nope")
	assert.ErrorIs(t, err, ErrUnknownPlant)
}

func TestTotalReport(t *testing.T) {
	tests := []struct {
		name   string
		loader fakeLoader
		want   string
	}{
		{name: "published", loader: fakeLoader{rec: persisted()}, want: "Active reactors: 1 of 2 reporting"},
		{name: "nothing stored", loader: fakeLoader{}, want: "No data yet"},
		{name: "failed cycle", loader: fakeLoader{rec: &repository.Record{Failure: "refresh failed: boom"}}, want: "data is unavailable"},
		{
			name:   "all plants failed",
			loader: fakeLoader{rec: &repository.Record{Snapshot: entities.NewGridSnapshot("c", nil, time.Now())}},
			want:   "No plant reported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := NewReportUseCase(threePlants(t), tt.loader, nil, zap.NewNop())
			report, err := uc.TotalReport()
			require.NoError(t, err)
			assert.Contains(t, report, tt.want)
		})
	}

	uc := NewReportUseCase(threePlants(t), fakeLoader{rec: persisted()}, nil, zap.NewNop())
	report, err := uc.TotalReport()
	require.NoError(t, err)
	assert.Contains(t, report, "900.46 MW")
}

func TestTotalReportLoaderError(t *testing.T) {
	uc := NewReportUseCase(threePlants(t), fakeLoader{err: errors.New("disk gone")}, nil, zap.NewNop())
	_, err := uc.TotalReport()
	assert.Error(t, err)
}

func TestHandleNaturalLanguageQuery(t *testing.T) {
	tests := []struct {
		name string
		resp *openai.AgentResponse
		err  error
		want []string
	}{
		{
			name: "plant",
			resp: &openai.AgentResponse{CommandName: openai.CommandGetPlantOutput, PlantKey: "a", UserMessage: "Checking Alpha."},
			want: []string{"Checking Alpha.\n\nProduction at Alpha", "A1: 900.46 MW"},
		},
		{
			name: "plant without key",
			resp: &openai.AgentResponse{CommandName: openai.CommandGetPlantOutput, UserMessage: "Which plant?"},
			want: []string{"Which plant?"},
		},
		{
			name: "unknown plant",
			resp: &openai.AgentResponse{CommandName: openai.CommandGetPlantOutput, PlantKey: "barseback"},
			want: []string{"don't track a plant called 'barseback'"},
		},
		{
			name: "total",
			resp: &openai.AgentResponse{CommandName: openai.CommandGetGridTotal},
			want: []string{"Total Swedish nuclear output: 900.46 MW"},
		},
		{
			name: "general",
			resp: &openai.AgentResponse{CommandName: openai.CommandGeneralQuery, UserMessage: "Hej! Try /help."},
			want: []string{"Hej! Try /help."},
		},
		{
			name: "unexpected command",
			resp: &openai.AgentResponse{CommandName: "LaunchRocket"},
			want: []string{"not sure how to respond"},
		},
		{
			name: "interpreter error",
			err:  errors.New("rate limited"),
			want: []string{"trouble understanding"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interp := &fakeInterpreter{resp: tt.resp, err: tt.err}
			uc := NewReportUseCase(threePlants(t), fakeLoader{rec: persisted()}, interp, zap.NewNop())

			got, err := uc.HandleNaturalLanguageQuery(context.Background(), "question")
			require.NoError(t, err)
			for _, want := range tt.want {
				assert.Contains(t, got, want)
			}
			require.Len(t, interp.queried, 3)
			assert.Equal(t, openai.PlantOption{Key: "a", Name: "Alpha"}, interp.queried[0])
		})
	}
}

func TestHandleNaturalLanguageQueryWithoutInterpreter(t *testing.T) {
	uc := NewReportUseCase(threePlants(t), fakeLoader{}, nil, zap.NewNop())
	assert.False(t, uc.CanInterpret())

	got, err := uc.HandleNaturalLanguageQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Contains(t, got, "/help")
}

package entities

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readings(outputs ...float64) []ReactorReading {
	out := make([]ReactorReading, 0, len(outputs))
	for i, o := range outputs {
		out = append(out, ReactorReading{Reactor: fmt.Sprintf("X%d", i), Output: o, Unit: UnitMegawatt})
	}
	return out
}

func TestNewGridSnapshot_Counts(t *testing.T) {
	snap := NewGridSnapshot("c", []PlantSnapshot{
		{Plant: "a", Readings: readings(900, 950)},
		{Plant: "b", Readings: readings(1000, 0, -3)},
	}, time.Now())

	assert.Equal(t, 2, len(snap.Plants))
	assert.Equal(t, []string{"a", "b"}, snap.Order)
	assert.Equal(t, 5, snap.TotalReactors)
	assert.Equal(t, 3, snap.ActiveReactors)
	assert.Equal(t, 2847.0, snap.TotalOutput)
	assert.LessOrEqual(t, snap.ActiveReactors, snap.TotalReactors)
}

func TestNewGridSnapshot_Empty(t *testing.T) {
	snap := NewGridSnapshot("c", nil, time.Now())
	assert.True(t, snap.Empty())
	assert.Zero(t, snap.TotalOutput)
	assert.Zero(t, snap.TotalReactors)
	assert.Zero(t, snap.ActiveReactors)

	var missing *GridSnapshot
	assert.True(t, missing.Empty())
	_, ok := missing.Plant("a")
	assert.False(t, ok)
}

func TestNewGridSnapshot_DuplicatePlantKeepsFirst(t *testing.T) {
	snap := NewGridSnapshot("c", []PlantSnapshot{
		{Plant: "a", Readings: readings(10)},
		{Plant: "a", Readings: readings(20, 30)},
	}, time.Now())

	assert.Equal(t, 10.0, snap.TotalOutput)
	assert.Equal(t, 1, snap.TotalReactors)
	require.Len(t, snap.OrderedPlants(), 1)
}

func TestPercentOfCapacity(t *testing.T) {
	assert.Equal(t, 50.0, *PercentOfCapacity(725, 1450))
	assert.Equal(t, 99.7, *PercentOfCapacity(1070.4, 1074))
	assert.Equal(t, Round(1000.0/1014*100, 1), *PercentOfCapacity(1000, 1014))
	assert.Nil(t, PercentOfCapacity(725, 0))
	assert.Nil(t, PercentOfCapacity(725, -1))
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.25, Round(1.245, 2))
	assert.Equal(t, 3.1, Round(3.14159, 1))
	assert.Equal(t, -2.5, Round(-2.45, 1))
}

func TestPlantError(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("refresh: %w", FetchFailed("ringhals", cause))

	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrExtractionFailed)
	assert.Equal(t, "fetch", FailureKind(err))
	assert.Equal(t, "extraction", FailureKind(ExtractionFailed("okg", nil)))
	assert.Equal(t, "unexpected", FailureKind(cause))

	var pe *PlantError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "ringhals", pe.Plant)
	assert.Equal(t, "ringhals: fetch failed: connection reset", pe.Error())
}

package state

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/abelzeko/nuclear-bot/internal/entities"
	"github.com/abelzeko/nuclear-bot/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pct(v float64) *float64 { return &v }

func testSnapshot(builtAt time.Time) *entities.GridSnapshot {
	return entities.NewGridSnapshot("cycle-1", []entities.PlantSnapshot{
		{
			Plant:      "ringhals",
			PowerPlant: "Ringhals",
			Timestamp:  time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
			Readings: []entities.ReactorReading{
				{Reactor: "R3", Output: 1070.333, Percent: pct(99.7), Unit: entities.UnitMegawatt},
				{Reactor: "R4", Output: 0, Percent: pct(0), Unit: entities.UnitMegawatt},
			},
		},
		{
			Plant:      "okg",
			PowerPlant: "Oskarshamn",
			Timestamp:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
			Readings: []entities.ReactorReading{
				{Reactor: "O3", Output: 725.004, Percent: pct(50), ValueDate: "2024-03-01", Unit: entities.UnitMegawatt},
			},
		},
	}, builtAt)
}

func newState(t *testing.T) *PublishedState {
	t.Helper()
	reg, err := registry.Default()
	require.NoError(t, err)
	return New(reg)
}

func TestPublishedState_BeforeFirstPublish(t *testing.T) {
	s := newState(t)

	assert.False(t, s.Available())
	_, ok := s.Reactor("ringhals", "R3")
	assert.False(t, ok)
	_, ok = s.Total()
	assert.False(t, ok)
	_, ok = s.LastComputed()
	assert.False(t, ok)

	for _, sensor := range s.Sensors() {
		assert.Equal(t, StateUnknown, sensor.State, sensor.ID)
	}
}

func TestPublishedState_Lookups(t *testing.T) {
	s := newState(t)
	builtAt := time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)
	s.Publish(testSnapshot(builtAt))

	require.True(t, s.Available())

	r3, ok := s.Reactor("ringhals", "R3")
	require.True(t, ok)
	assert.Equal(t, 1070.333, r3.Output)
	assert.Equal(t, 99.7, *r3.Percent)

	r4, ok := s.Reactor("ringhals", "R4")
	require.True(t, ok, "measured zero must be distinguishable from unknown")
	assert.Equal(t, 0.0, r4.Output)

	_, ok = s.Reactor("forsmark", "F1")
	assert.False(t, ok)
	_, ok = s.Reactor("ringhals", "R1")
	assert.False(t, ok)

	ts, ok := s.PlantLastUpdate("okg")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), ts)
	_, ok = s.PlantLastUpdate("forsmark")
	assert.False(t, ok)

	total, ok := s.Total()
	require.True(t, ok)
	assert.Equal(t, 1795.34, total.Output)
	assert.Equal(t, 3, total.TotalReactors)
	assert.Equal(t, 2, total.ActiveReactors)
	assert.Equal(t, builtAt, total.LastUpdated)
}

func TestPublishedState_Sensors(t *testing.T) {
	s := newState(t)
	s.Publish(testSnapshot(time.Date(2024, 3, 1, 10, 5, 0, 0, time.UTC)))

	sensors := s.Sensors()
	// 6 reactors, 3 plant update sensors, 1 total
	assert.Len(t, sensors, 10)

	r3, ok := s.Sensor("swedish_nuclear_power_ringhals_R3_power")
	require.True(t, ok)
	assert.Equal(t, "1070.333", r3.State)
	assert.Equal(t, 99.7, r3.Attributes["percentage"])
	assert.True(t, r3.Known())

	o3, ok := s.Sensor(ReactorSensorID("okg", "O3"))
	require.True(t, ok)
	assert.Equal(t, "2024-03-01", o3.Attributes["value_date"])

	f1, ok := s.Sensor(ReactorSensorID("forsmark", "F1"))
	require.True(t, ok)
	assert.Equal(t, StateUnknown, f1.State)
	assert.Nil(t, f1.Value)

	update, ok := s.Sensor(PlantUpdateSensorID("ringhals"))
	require.True(t, ok)
	assert.Equal(t, "2024-03-01T10:00:00Z", update.State)

	total, ok := s.Sensor(TotalSensorID())
	require.True(t, ok)
	assert.Equal(t, "1795.34", total.State)
	assert.Equal(t, 3, total.Attributes["total_reactors"])
	assert.Equal(t, 2, total.Attributes["active_reactors"])
	assert.Equal(t, "2024-03-01T10:05:00Z", total.Attributes["last_updated"])

	_, ok = s.Sensor("swedish_nuclear_power_nothing")
	assert.False(t, ok)
}

func TestPublishedState_Unavailable(t *testing.T) {
	s := newState(t)
	s.Publish(testSnapshot(time.Now()))

	t.Run("all plants failed", func(t *testing.T) {
		s.Publish(entities.NewGridSnapshot("cycle-2", nil, time.Now()))
		assert.False(t, s.Available())
		_, ok := s.Total()
		assert.False(t, ok)
		_, ok = s.Reactor("ringhals", "R3")
		assert.False(t, ok, "previous cycle must not leak into an empty one")
		for _, sensor := range s.Sensors() {
			assert.Equal(t, StateUnavailable, sensor.State, sensor.ID)
		}
	})

	t.Run("refresh failed", func(t *testing.T) {
		s.Publish(testSnapshot(time.Now()))
		s.MarkFailed(errors.New("boom"))
		assert.False(t, s.Available())
		assert.EqualError(t, s.Failure(), "boom")
		assert.Nil(t, s.Snapshot())
		for _, sensor := range s.Sensors() {
			assert.Equal(t, StateUnavailable, sensor.State, sensor.ID)
		}
	})

	t.Run("recovers on next publish", func(t *testing.T) {
		s.Publish(testSnapshot(time.Now()))
		assert.True(t, s.Available())
		assert.NoError(t, s.Failure())
	})
}

func TestPublishedState_ConcurrentReaders(t *testing.T) {
	s := newState(t)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			s.Publish(testSnapshot(time.Now()))
		}
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if total, ok := s.Total(); ok {
					assert.Equal(t, 3, total.TotalReactors)
				}
				_ = s.Sensors()
			}
		}()
	}
	wg.Wait()
}

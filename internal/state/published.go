// Package state holds the read model published from the latest grid snapshot
package state

import (
	"sync/atomic"
	"time"

	"github.com/abelzeko/nuclear-bot/internal/entities"
	"github.com/abelzeko/nuclear-bot/internal/registry"
)

// ReactorState is the published reading of one reactor
type ReactorState struct {
	Plant     string   `json:"plant"`
	Reactor   string   `json:"reactor"`
	Output    float64  `json:"output"`
	Percent   *float64 `json:"percent,omitempty"`
	ValueDate string   `json:"value_date,omitempty"`
	Unit      string   `json:"unit"`
}

// GridTotal is the published grid-wide aggregate
type GridTotal struct {
	Output         float64   `json:"output"`
	Unit           string    `json:"unit"`
	TotalReactors  int       `json:"total_reactors"`
	ActiveReactors int       `json:"active_reactors"`
	LastUpdated    time.Time `json:"last_updated"`
}

// view is one immutable published generation
type view struct {
	snapshot *entities.GridSnapshot
	failure  error
}

// PublishedState exposes the latest grid snapshot to readers.
// Each Publish or MarkFailed swaps the whole view, so readers never see a mix of two cycles.
type PublishedState struct {
	registry *registry.Registry
	current  atomic.Pointer[view]
}

// New creates an empty published state; every lookup is unknown until the first Publish
func New(reg *registry.Registry) *PublishedState {
	s := &PublishedState{registry: reg}
	s.current.Store(&view{})
	return s
}

// Publish replaces the published state with a new snapshot
func (s *PublishedState) Publish(snapshot *entities.GridSnapshot) {
	s.current.Store(&view{snapshot: snapshot})
}

// MarkFailed marks the state unavailable until the next Publish
func (s *PublishedState) MarkFailed(err error) {
	s.current.Store(&view{failure: err})
}

// Snapshot returns the published snapshot, or nil before the first successful cycle
func (s *PublishedState) Snapshot() *entities.GridSnapshot {
	return s.current.Load().snapshot
}

// Failure returns the error of the last cycle if it failed as a whole
func (s *PublishedState) Failure() error {
	return s.current.Load().failure
}

// Available reports whether the last cycle produced data for at least one plant
func (s *PublishedState) Available() bool {
	v := s.current.Load()
	return v.failure == nil && !v.snapshot.Empty()
}

// Registry returns the plant table the state projects onto
func (s *PublishedState) Registry() *registry.Registry {
	return s.registry
}

// Reactor returns one reactor's reading; false means unknown
func (s *PublishedState) Reactor(plant, reactor string) (ReactorState, bool) {
	return s.current.Load().reactor(plant, reactor)
}

// PlantLastUpdate returns the plant's source timestamp; false means unknown
func (s *PublishedState) PlantLastUpdate(plant string) (time.Time, bool) {
	return s.current.Load().plantLastUpdate(plant)
}

// Total returns the grid-wide output rounded to two decimals; false when no plant reported
func (s *PublishedState) Total() (GridTotal, bool) {
	return s.current.Load().total()
}

// LastComputed returns when the published snapshot was built
func (s *PublishedState) LastComputed() (time.Time, bool) {
	snap := s.Snapshot()
	if snap == nil {
		return time.Time{}, false
	}
	return snap.BuiltAt, true
}

func (v *view) unavailable() bool {
	return v.failure != nil || (v.snapshot != nil && v.snapshot.Empty())
}

func (v *view) reactor(plant, reactor string) (ReactorState, bool) {
	p, ok := v.snapshot.Plant(plant)
	if !ok {
		return ReactorState{}, false
	}
	r, ok := p.Reading(reactor)
	if !ok {
		return ReactorState{}, false
	}
	return ReactorState{
		Plant:     plant,
		Reactor:   r.Reactor,
		Output:    r.Output,
		Percent:   r.Percent,
		ValueDate: r.ValueDate,
		Unit:      r.Unit,
	}, true
}

func (v *view) plantLastUpdate(plant string) (time.Time, bool) {
	p, ok := v.snapshot.Plant(plant)
	if !ok {
		return time.Time{}, false
	}
	return p.Timestamp, true
}

func (v *view) total() (GridTotal, bool) {
	if v.failure != nil || v.snapshot.Empty() {
		return GridTotal{}, false
	}
	return GridTotal{
		Output:         entities.Round(v.snapshot.TotalOutput, 2),
		Unit:           entities.UnitMegawatt,
		TotalReactors:  v.snapshot.TotalReactors,
		ActiveReactors: v.snapshot.ActiveReactors,
		LastUpdated:    v.snapshot.BuiltAt,
	}, true
}

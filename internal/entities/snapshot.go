package entities

import "time"

// UnitMegawatt is the only unit readings are reported in
const UnitMegawatt = "MW"

// ReactorReading is one reactor's output at a point in time
type ReactorReading struct {
	Reactor   string   `json:"reactor"`
	Output    float64  `json:"output"`
	Percent   *float64 `json:"percent,omitempty"`    // Percent of rated capacity, nil when capacity is unknown
	ValueDate string   `json:"value_date,omitempty"` // Source-reported value timestamp
	Unit      string   `json:"unit"`
}

// PlantSnapshot is one plant's successful fetch outcome
type PlantSnapshot struct {
	Plant      string           `json:"plant"`
	PowerPlant string           `json:"power_plant"` // Plant name as confirmed by the source
	Timestamp  time.Time        `json:"timestamp"`   // Source-reported, or fetch time when the source has none
	Readings   []ReactorReading `json:"readings"`
}

// Reading looks up a reactor in the snapshot
func (p *PlantSnapshot) Reading(reactor string) (ReactorReading, bool) {
	for _, r := range p.Readings {
		if r.Reactor == reactor {
			return r, true
		}
	}
	return ReactorReading{}, false
}

// GridSnapshot is the full result of one refresh cycle.
// Only plants that fetched successfully in the cycle are present.
type GridSnapshot struct {
	CycleID        string                   `json:"cycle_id"`
	Plants         map[string]PlantSnapshot `json:"plants"`
	Order          []string                 `json:"order"`
	TotalOutput    float64                  `json:"total_output"`
	TotalReactors  int                      `json:"total_reactors"`
	ActiveReactors int                      `json:"active_reactors"`
	BuiltAt        time.Time                `json:"built_at"`
}

// NewGridSnapshot builds a snapshot from per-plant results and computes the totals.
// Plants keep the order they are passed in.
func NewGridSnapshot(cycleID string, plants []PlantSnapshot, builtAt time.Time) *GridSnapshot {
	g := &GridSnapshot{
		CycleID: cycleID,
		Plants:  make(map[string]PlantSnapshot, len(plants)),
		Order:   make([]string, 0, len(plants)),
		BuiltAt: builtAt,
	}
	for _, p := range plants {
		if _, dup := g.Plants[p.Plant]; dup {
			continue
		}
		g.Plants[p.Plant] = p
		g.Order = append(g.Order, p.Plant)
		for _, r := range p.Readings {
			g.TotalOutput += r.Output
			g.TotalReactors++
			if r.Output > 0 {
				g.ActiveReactors++
			}
		}
	}
	return g
}

// Empty reports whether no plant fetched successfully
func (g *GridSnapshot) Empty() bool {
	return g == nil || len(g.Plants) == 0
}

// Plant returns the snapshot for one plant
func (g *GridSnapshot) Plant(key string) (PlantSnapshot, bool) {
	if g == nil {
		return PlantSnapshot{}, false
	}
	p, ok := g.Plants[key]
	return p, ok
}

// OrderedPlants returns the plant snapshots in registry order
func (g *GridSnapshot) OrderedPlants() []PlantSnapshot {
	if g == nil {
		return nil
	}
	out := make([]PlantSnapshot, 0, len(g.Order))
	for _, k := range g.Order {
		out = append(out, g.Plants[k])
	}
	return out
}

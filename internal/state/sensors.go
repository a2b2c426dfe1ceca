package state

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/abelzeko/nuclear-bot/internal/entities"
)

// Domain prefixes every sensor id
const Domain = "swedish_nuclear_power"

// Sensor states that carry no value
const (
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"
)

// Sensor kinds
const (
	KindPower      = "power"
	KindLastUpdate = "last_update"
	KindTotalPower = "total_power"
)

// Sensor is one named value of the read model
type Sensor struct {
	ID         string         `json:"entity_id"`
	Name       string         `json:"name"`
	Kind       string         `json:"kind"`
	Plant      string         `json:"plant,omitempty"`
	Reactor    string         `json:"reactor,omitempty"`
	State      string         `json:"state"`
	Unit       string         `json:"unit_of_measurement,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Value      *float64       `json:"-"`
	Timestamp  *time.Time     `json:"-"`
}

// Known reports whether the sensor carries a value
func (s Sensor) Known() bool {
	return s.State != StateUnknown && s.State != StateUnavailable
}

// ReactorSensorID is the id of a reactor's power sensor
func ReactorSensorID(plant, reactor string) string {
	return strings.ToLower(fmt.Sprintf("%s_%s_%s_power", Domain, plant, reactor))
}

// PlantUpdateSensorID is the id of a plant's last update sensor
func PlantUpdateSensorID(plant string) string {
	return strings.ToLower(fmt.Sprintf("%s_%s_last_update", Domain, plant))
}

// TotalSensorID is the id of the grid total sensor
func TotalSensorID() string {
	return Domain + "_total_power"
}

// Sensors projects the registry onto named sensors.
// Every registry reactor and plant gets a sensor whether or not it reported this cycle.
func (s *PublishedState) Sensors() []Sensor {
	v := s.current.Load()
	unavailable := v.unavailable()

	var sensors []Sensor
	for _, plant := range s.registry.Plants() {
		for _, reactor := range plant.Reactors {
			sensor := Sensor{
				ID:      ReactorSensorID(plant.Key, reactor),
				Name:    fmt.Sprintf("%s %s Power", plant.Name, reactor),
				Kind:    KindPower,
				Plant:   plant.Key,
				Reactor: reactor,
				Unit:    entities.UnitMegawatt,
				State:   StateUnknown,
			}
			if unavailable {
				sensor.State = StateUnavailable
			} else if r, ok := v.reactor(plant.Key, reactor); ok {
				value := r.Output
				sensor.Value = &value
				sensor.State = formatNumber(value)
				attrs := map[string]any{}
				if r.Percent != nil {
					attrs["percentage"] = entities.Round(*r.Percent, 2)
				}
				if r.ValueDate != "" {
					attrs["value_date"] = r.ValueDate
				}
				if len(attrs) > 0 {
					sensor.Attributes = attrs
				}
			}
			sensors = append(sensors, sensor)
		}

		update := Sensor{
			ID:    PlantUpdateSensorID(plant.Key),
			Name:  plant.Name + " Last Update",
			Kind:  KindLastUpdate,
			Plant: plant.Key,
			State: StateUnknown,
		}
		if unavailable {
			update.State = StateUnavailable
		} else if ts, ok := v.plantLastUpdate(plant.Key); ok {
			update.Timestamp = &ts
			update.State = ts.Format(time.RFC3339)
		}
		sensors = append(sensors, update)
	}

	total := Sensor{
		ID:    TotalSensorID(),
		Name:  "Total Swedish Nuclear Power",
		Kind:  KindTotalPower,
		Unit:  entities.UnitMegawatt,
		State: StateUnknown,
	}
	if unavailable {
		total.State = StateUnavailable
	} else if t, ok := v.total(); ok {
		value := t.Output
		total.Value = &value
		total.State = formatNumber(value)
		total.Attributes = map[string]any{
			"total_reactors":  t.TotalReactors,
			"active_reactors": t.ActiveReactors,
			"last_updated":    t.LastUpdated.Format(time.RFC3339),
		}
	}
	sensors = append(sensors, total)

	return sensors
}

// Sensor looks up one sensor by id
func (s *PublishedState) Sensor(id string) (Sensor, bool) {
	id = strings.ToLower(id)
	for _, sensor := range s.Sensors() {
		if sensor.ID == id {
			return sensor, true
		}
	}
	return Sensor{}, false
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

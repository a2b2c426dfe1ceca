// Package entities contains the core domain objects for the nuclear-bot application
package entities

import "fmt"

// SourceKind selects the extraction strategy for a plant's upstream
type SourceKind string

const (
	// SourceHTMLEmbeddedJSON is an HTML page carrying production data in <script type="application/json"> blocks
	SourceHTMLEmbeddedJSON SourceKind = "html_embedded_json"
	// SourceJSONAPI is a single-reactor JSON endpoint
	SourceJSONAPI SourceKind = "json_api"
)

// Valid reports whether the kind is one the scraper knows how to extract
func (k SourceKind) Valid() bool {
	switch k {
	case SourceHTMLEmbeddedJSON, SourceJSONAPI:
		return true
	}
	return false
}

// PlantDescriptor describes one nuclear power plant and where its figures come from
type PlantDescriptor struct {
	Key        string             // Unique plant id, e.g. "ringhals"
	Name       string             // Display name, e.g. "Ringhals"
	MatchName  string             // Value of the powerPlant field on the source page
	URL        string             // Source URL
	SourceKind SourceKind         // Extraction strategy
	Reactors   []string           // Reactor ids in display order
	Capacity   map[string]float64 // Rated maximum output per reactor in MW
}

// HasReactor reports whether the reactor id belongs to this plant
func (p PlantDescriptor) HasReactor(id string) bool {
	for _, r := range p.Reactors {
		if r == id {
			return true
		}
	}
	return false
}

// RatedCapacity returns the reactor's rated capacity, or false when unknown or not positive
func (p PlantDescriptor) RatedCapacity(id string) (float64, bool) {
	c, ok := p.Capacity[id]
	if !ok || c <= 0 {
		return 0, false
	}
	return c, true
}

// CanonicalName is the name the source uses for this plant
func (p PlantDescriptor) CanonicalName() string {
	if p.MatchName != "" {
		return p.MatchName
	}
	return p.Name
}

func (p PlantDescriptor) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.Key)
}

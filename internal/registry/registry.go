// Package registry holds the static table of known plants
package registry

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/abelzeko/nuclear-bot/internal/entities"
	"gopkg.in/yaml.v3"
)

//go:embed plants.yaml
var defaultPlants []byte

type fileFormat struct {
	Plants []plantEntry `yaml:"plants"`
}

type plantEntry struct {
	Key       string         `yaml:"key"`
	Name      string         `yaml:"name"`
	MatchName string         `yaml:"match_name"`
	URL       string         `yaml:"url"`
	Source    string         `yaml:"source"`
	Reactors  []reactorEntry `yaml:"reactors"`
}

type reactorEntry struct {
	ID       string  `yaml:"id"`
	Capacity float64 `yaml:"capacity"`
}

// Registry is the immutable set of plants loaded at startup
type Registry struct {
	plants []entities.PlantDescriptor
	byKey  map[string]int
}

// Default returns the built-in plant table
func Default() (*Registry, error) {
	return Parse(defaultPlants)
}

// Load reads a registry from a YAML file, or the built-in table when path is empty
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plant registry: %w", err)
	}
	return Parse(data)
}

// Parse builds a registry from YAML and validates it
func Parse(data []byte) (*Registry, error) {
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse plant registry: %w", err)
	}

	descriptors := make([]entities.PlantDescriptor, 0, len(f.Plants))
	for _, p := range f.Plants {
		d := entities.PlantDescriptor{
			Key:        p.Key,
			Name:       p.Name,
			MatchName:  p.MatchName,
			URL:        p.URL,
			SourceKind: entities.SourceKind(p.Source),
			Reactors:   make([]string, 0, len(p.Reactors)),
			Capacity:   make(map[string]float64, len(p.Reactors)),
		}
		for _, r := range p.Reactors {
			d.Reactors = append(d.Reactors, r.ID)
			d.Capacity[r.ID] = r.Capacity
		}
		descriptors = append(descriptors, d)
	}
	return New(descriptors...)
}

// New builds a registry from descriptors, rejecting tables that break the registry invariants
func New(plants ...entities.PlantDescriptor) (*Registry, error) {
	if len(plants) == 0 {
		return nil, fmt.Errorf("plant registry is empty")
	}

	r := &Registry{
		plants: make([]entities.PlantDescriptor, 0, len(plants)),
		byKey:  make(map[string]int, len(plants)),
	}
	reactorOwner := make(map[string]string)

	for _, p := range plants {
		if p.Key == "" {
			return nil, fmt.Errorf("plant with name %q has no key", p.Name)
		}
		if _, dup := r.byKey[p.Key]; dup {
			return nil, fmt.Errorf("duplicate plant key %q", p.Key)
		}
		if p.Name == "" {
			p.Name = p.Key
		}
		if p.URL == "" {
			return nil, fmt.Errorf("plant %q has no source url", p.Key)
		}
		if !p.SourceKind.Valid() {
			return nil, fmt.Errorf("plant %q has unknown source kind %q", p.Key, p.SourceKind)
		}
		if len(p.Reactors) == 0 {
			return nil, fmt.Errorf("plant %q has no reactors", p.Key)
		}
		if p.SourceKind == entities.SourceJSONAPI && len(p.Reactors) != 1 {
			return nil, fmt.Errorf("plant %q uses a single-reactor api but lists %d reactors", p.Key, len(p.Reactors))
		}

		capacity := make(map[string]float64, len(p.Reactors))
		reactors := make([]string, 0, len(p.Reactors))
		for _, id := range p.Reactors {
			if id == "" {
				return nil, fmt.Errorf("plant %q has a reactor without id", p.Key)
			}
			if owner, taken := reactorOwner[id]; taken {
				return nil, fmt.Errorf("reactor %q listed by both %q and %q", id, owner, p.Key)
			}
			c := p.Capacity[id]
			if c <= 0 {
				return nil, fmt.Errorf("reactor %q of plant %q needs a positive rated capacity", id, p.Key)
			}
			reactorOwner[id] = p.Key
			capacity[id] = c
			reactors = append(reactors, id)
		}
		p.Reactors = reactors
		p.Capacity = capacity

		r.byKey[p.Key] = len(r.plants)
		r.plants = append(r.plants, p)
	}

	return r, nil
}

// Plants returns the descriptors in table order
func (r *Registry) Plants() []entities.PlantDescriptor {
	out := make([]entities.PlantDescriptor, len(r.plants))
	copy(out, r.plants)
	return out
}

// Plant looks up a descriptor by key
func (r *Registry) Plant(key string) (entities.PlantDescriptor, bool) {
	i, ok := r.byKey[key]
	if !ok {
		return entities.PlantDescriptor{}, false
	}
	return r.plants[i], true
}

// Keys returns the plant keys in table order
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.plants))
	for _, p := range r.plants {
		keys = append(keys, p.Key)
	}
	return keys
}

// ReactorCount is the number of reactors across all plants
func (r *Registry) ReactorCount() int {
	n := 0
	for _, p := range r.plants {
		n += len(p.Reactors)
	}
	return n
}

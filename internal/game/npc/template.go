// Package npc provides monster templates and the registry of agents the
// renderer draws: remote players mirrored by the session, and host-simulated monsters.
package npc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/tilenet/internal/game/world"
)

// Spawn is the YAML form of a spawn location.
type Spawn struct {
	LocationIndex int `yaml:"location_index"`
	LevelIndex    int `yaml:"level_index"`
	X             int `yaml:"x"`
	Y             int `yaml:"y"`
}

// Location converts the spawn point to a world location.
func (s Spawn) Location() world.Location {
	return world.Location{
		MapIndex:   s.LocationIndex,
		LevelIndex: s.LevelIndex,
		Coordinate: world.Coordinate{X: s.X, Y: s.Y},
	}
}

// Template defines a monster archetype loaded from YAML.
type Template struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	TileID      int    `yaml:"tile_id"`
	Dexterity   int    `yaml:"dexterity"`
	// Count is how many instances the host spawns; zero means one.
	Count int   `yaml:"count"`
	Spawn Spawn `yaml:"spawn"`
	// WanderRadius bounds how far from its spawn point a monster roams each turn.
	// Zero keeps it stationary.
	WanderRadius int `yaml:"wander_radius"`
}

// Validate checks that the template satisfies basic invariants.
//
// Precondition: t must not be nil.
// Postcondition: Returns nil iff ID and Name are non-empty, Name holds no wire-reserved
// characters, and TileID, Count, WanderRadius and the spawn coordinate are non-negative.
func (t *Template) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("npc template: id must not be empty")
	}
	if t.Name == "" {
		return fmt.Errorf("npc template %q: name must not be empty", t.ID)
	}
	if strings.ContainsAny(t.Name, "|\r\n") {
		return fmt.Errorf("npc template %q: name must not contain '|' or line breaks", t.ID)
	}
	if t.TileID < 0 {
		return fmt.Errorf("npc template %q: tile_id must be >= 0", t.ID)
	}
	if t.Count < 0 {
		return fmt.Errorf("npc template %q: count must be >= 0", t.ID)
	}
	if t.WanderRadius < 0 {
		return fmt.Errorf("npc template %q: wander_radius must be >= 0", t.ID)
	}
	if t.Spawn.X < 0 || t.Spawn.Y < 0 {
		return fmt.Errorf("npc template %q: spawn coordinate must be non-negative", t.ID)
	}
	return nil
}

// LoadTemplateFromBytes parses a single monster template from raw YAML bytes.
//
// Precondition: data must be valid YAML for a single Template.
// Postcondition: Returns a validated *Template, or an error.
func LoadTemplateFromBytes(data []byte) (*Template, error) {
	var tmpl Template
	if err := yaml.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("parsing template YAML: %w", err)
	}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// LoadTemplates reads all *.yaml files in dir and returns the parsed templates.
//
// Precondition: dir must be a readable directory.
// Postcondition: Returns all templates or an error on the first parse or validate
// failure; on error, the partial result is discarded.
func LoadTemplates(dir string) ([]*Template, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading npc dir %q: %w", dir, err)
	}

	var templates []*Template
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %q: %w", path, err)
		}

		tmpl, err := LoadTemplateFromBytes(data)
		if err != nil {
			return nil, fmt.Errorf("loading %q: %w", path, err)
		}
		templates = append(templates, tmpl)
	}
	return templates, nil
}

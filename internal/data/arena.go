package data

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrNoSpawnPoints = errors.New("arena has no spawn points")

// Point is a world-space position in tile units.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// NpcSpawn places one NPC at session start.
type NpcSpawn struct {
	Archetype string  `yaml:"archetype"`
	X         float64 `yaml:"x"`
	Y         float64 `yaml:"y"`
}

// Arena is the static level: solid tiles, player spawn points and NPC
// placements. Tiles are listed top row first; '#' marks a solid tile and
// anything else is open. Tile (col, row-from-bottom) is centred on
// (col*TileSize, row*TileSize).
type Arena struct {
	Name        string     `yaml:"name"`
	TileSize    float64    `yaml:"tile_size"`
	Tiles       []string   `yaml:"tiles"`
	SpawnPoints []Point    `yaml:"spawn_points"`
	Npcs        []NpcSpawn `yaml:"npcs"`
}

// LoadArena loads an arena from a YAML file.
func LoadArena(path string) (*Arena, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read arena %s: %w", path, err)
	}
	return ParseArena(raw)
}

// ParseArena decodes and validates an arena.
func ParseArena(raw []byte) (*Arena, error) {
	a := &Arena{}
	if err := yaml.Unmarshal(raw, a); err != nil {
		return nil, fmt.Errorf("parse arena: %w", err)
	}
	if a.TileSize <= 0 {
		a.TileSize = 1
	}
	if len(a.Tiles) == 0 {
		return nil, fmt.Errorf("arena %s: no tiles", a.Name)
	}
	if len(a.SpawnPoints) == 0 {
		return nil, fmt.Errorf("arena %s: %w", a.Name, ErrNoSpawnPoints)
	}
	return a, nil
}

// Width is the length of the widest tile row.
func (a *Arena) Width() int {
	w := 0
	for _, row := range a.Tiles {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

func (a *Arena) Height() int { return len(a.Tiles) }

// Solid reports whether tile (col, row) is solid; row counts from the bottom.
// Outside the arena everything is solid.
func (a *Arena) Solid(col, row int) bool {
	if row < 0 || row >= len(a.Tiles) || col < 0 {
		return true
	}
	line := a.Tiles[len(a.Tiles)-1-row]
	if col >= len(line) {
		return col >= a.Width()
	}
	return line[col] == '#'
}

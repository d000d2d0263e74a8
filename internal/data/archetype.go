package data

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownArchetype    = errors.New("unknown archetype")
	ErrMissingAttackOrigin = errors.New("missing attack origin")
)

const (
	KindPlayer = "player"
	KindNpc    = "npc"

	StrategyDirect = "direct"
	StrategyGrid   = "grid"
)

// Offset is a point relative to an entity's centre, mirrored on facing.
type Offset struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Archetype is the static template for a combatant, loaded from YAML.
type Archetype struct {
	Name              string        `yaml:"name"`
	Kind              string        `yaml:"kind"`
	MaxHP             int32         `yaml:"max_hp"`
	Radius            float64       `yaml:"radius"`
	MoveSpeed         float64       `yaml:"move_speed"`
	JumpSpeed         float64       `yaml:"jump_speed"`
	Flying            bool          `yaml:"flying"`
	Damage            int32         `yaml:"damage"`
	AttackRange       float64       `yaml:"attack_range"`
	AttackCooldown    time.Duration `yaml:"attack_cooldown"`
	AttackOrigin      *Offset       `yaml:"attack_origin"`
	Layer             string        `yaml:"layer"`
	Targets           []string      `yaml:"targets"`
	KnockbackForce    float64       `yaml:"knockback_force"`
	KnockbackDuration time.Duration `yaml:"knockback_duration"`
	RegenAmount       int32         `yaml:"regen_amount"` // health restored every regen_interval
	RegenInterval     time.Duration `yaml:"regen_interval"`

	// NPC only.
	Strategy        string        `yaml:"strategy"`
	PatrolSpeed     float64       `yaml:"patrol_speed"`
	ChaseSpeed      float64       `yaml:"chase_speed"`
	ChaseRange      float64       `yaml:"chase_range"`
	PostAttackDelay time.Duration `yaml:"post_attack_delay"`
	RespawnDelay    time.Duration `yaml:"respawn_delay"`
}

func (a *Archetype) IsNpc() bool { return a.Kind == KindNpc }

func (a *Archetype) validate() error {
	if a.Name == "" {
		return errors.New("archetype without name")
	}
	switch a.Kind {
	case KindPlayer, KindNpc:
	default:
		return fmt.Errorf("archetype %s: bad kind %q", a.Name, a.Kind)
	}
	if a.MaxHP <= 0 {
		return fmt.Errorf("archetype %s: max_hp must be positive", a.Name)
	}
	if a.AttackOrigin == nil {
		return fmt.Errorf("archetype %s: %w", a.Name, ErrMissingAttackOrigin)
	}
	if a.RegenAmount < 0 || (a.RegenAmount > 0 && a.RegenInterval <= 0) {
		return fmt.Errorf("archetype %s: regen needs a positive amount and interval", a.Name)
	}
	if a.Radius <= 0 {
		a.Radius = 0.4
	}
	if a.Layer == "" {
		a.Layer = a.Kind
	}
	if !a.IsNpc() {
		return nil
	}
	switch a.Strategy {
	case StrategyDirect, StrategyGrid:
	case "":
		a.Strategy = StrategyDirect
	default:
		return fmt.Errorf("archetype %s: unknown strategy %q", a.Name, a.Strategy)
	}
	if a.ChaseRange <= a.AttackRange {
		return fmt.Errorf("archetype %s: chase_range %.2f must exceed attack_range %.2f", a.Name, a.ChaseRange, a.AttackRange)
	}
	return nil
}

type archetypeFile struct {
	Archetypes []Archetype `yaml:"archetypes"`
}

// ArchetypeTable holds all archetypes indexed by name.
type ArchetypeTable struct {
	byName map[string]*Archetype
}

// LoadArchetypes loads archetypes from a YAML file.
func LoadArchetypes(path string) (*ArchetypeTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archetypes %s: %w", path, err)
	}
	return ParseArchetypes(raw)
}

// ParseArchetypes decodes and validates an archetype list.
func ParseArchetypes(raw []byte) (*ArchetypeTable, error) {
	var f archetypeFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse archetypes: %w", err)
	}
	t := &ArchetypeTable{byName: make(map[string]*Archetype, len(f.Archetypes))}
	for i := range f.Archetypes {
		a := &f.Archetypes[i]
		if err := a.validate(); err != nil {
			return nil, err
		}
		if _, dup := t.byName[a.Name]; dup {
			return nil, fmt.Errorf("archetype %s defined twice", a.Name)
		}
		t.byName[a.Name] = a
	}
	return t, nil
}

func (t *ArchetypeTable) Get(name string) (*Archetype, error) {
	a, ok := t.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownArchetype, name)
	}
	return a, nil
}

func (t *ArchetypeTable) Count() int { return len(t.byName) }

// Names returns archetype names in sorted order.
func (t *ArchetypeTable) Names() []string {
	out := make([]string, 0, len(t.byName))
	for n := range t.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

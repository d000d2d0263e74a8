package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Relay     RelayConfig     `toml:"relay"`
	Network   NetworkConfig   `toml:"network"`
	Database  DatabaseConfig  `toml:"database"`
	Combat    CombatConfig    `toml:"combat"`
	Defense   DefenseConfig   `toml:"defense"`
	Npc       NpcConfig       `toml:"npc"`
	Pathfind  PathfindConfig  `toml:"pathfind"`
	Spawn     SpawnConfig     `toml:"spawn"`
	Feed      FeedConfig      `toml:"feed"`
	Logging   LoggingConfig   `toml:"logging"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

// ServerConfig describes one participant process.
type ServerConfig struct {
	Name           string        `toml:"name"`       // display name sent on join
	Room           string        `toml:"room"`       // relay room to join
	Password       string        `toml:"password"`   // room password, if the relay asks for one
	DataDir        string        `toml:"data_dir"`   // holds archetypes.yaml and arena.yaml
	ScriptsDir     string        `toml:"scripts_dir"`
	TickRate       time.Duration `toml:"tick_rate"`
	Gravity        float64       `toml:"gravity"`
	MotionSyncRate time.Duration `toml:"motion_sync_rate"` // how often owned bodies are mirrored
	StartTime      int64         // set at boot, not from config
}

type RelayConfig struct {
	Address      string `toml:"address"`       // participants dial this
	BindAddress  string `toml:"bind_address"`  // the relay listens here
	Room         string `toml:"room"`          // room hosted by the relay
	PasswordHash string `toml:"password_hash"` // bcrypt; empty means open
	MaxMembers   int    `toml:"max_members"`
}

type NetworkConfig struct {
	TickRate          time.Duration `toml:"tick_rate"` // relay tick
	InQueueSize       int           `toml:"in_queue_size"`
	OutQueueSize      int           `toml:"out_queue_size"`
	MaxPacketsPerTick int           `toml:"max_packets_per_tick"`
	DialTimeout       time.Duration `toml:"dial_timeout"`
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn"` // empty disables persistence
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
	FlushInterval   time.Duration `toml:"flush_interval"`
}

type CombatConfig struct {
	HitScore                  int32         `toml:"hit_score"`
	KillScore                 int32         `toml:"kill_score"`
	FallbackKnockbackForce    float64       `toml:"fallback_knockback_force"`
	FallbackKnockbackDuration time.Duration `toml:"fallback_knockback_duration"`
	MinVerticalKnockback      float64       `toml:"min_vertical_knockback"`
}

type DefenseConfig struct {
	Cooldown time.Duration `toml:"cooldown"`
}

type NpcConfig struct {
	ChaseHysteresis   float64       `toml:"chase_hysteresis"`
	PathUpdateRate    time.Duration `toml:"path_update_rate"`
	WaypointTolerance float64       `toml:"waypoint_tolerance"`
	PostAttackDelay   time.Duration `toml:"post_attack_delay"`
}

type PathfindConfig struct {
	MaxSearchSteps int     `toml:"max_search_steps"`
	ProbeRadius    float64 `toml:"probe_radius"`
}

type SpawnConfig struct {
	PlayerArchetype string        `toml:"player_archetype"`
	RespawnDelay    time.Duration `toml:"respawn_delay"`
}

type FeedConfig struct {
	Enabled     bool   `toml:"enabled"`
	BindAddress string `toml:"bind_address"`
	Path        string `toml:"path"`
	SendBuffer  int    `toml:"send_buffer"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type RateLimitConfig struct {
	Enabled          bool `toml:"enabled"`
	PacketsPerSecond int  `toml:"packets_per_second"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a TOML document over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

// ApplyEnv overrides the per-machine settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SKIRMISH_RELAY"); v != "" {
		c.Relay.Address = v
	}
	if v := os.Getenv("SKIRMISH_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("SKIRMISH_NAME"); v != "" {
		c.Server.Name = v
	}
}

func (c *Config) validate() error {
	switch {
	case c.Server.TickRate <= 0:
		return fmt.Errorf("config: server.tick_rate must be positive")
	case c.Network.TickRate <= 0:
		return fmt.Errorf("config: network.tick_rate must be positive")
	case c.Pathfind.MaxSearchSteps <= 0:
		return fmt.Errorf("config: pathfind.max_search_steps must be positive")
	case c.Spawn.PlayerArchetype == "":
		return fmt.Errorf("config: spawn.player_archetype is required")
	}
	return nil
}

// syncShare is the part of the relay's per-connection packet limit that
// MotionSync may use. The rest carries combat traffic.
const syncShare = 0.75

// MaxSyncedBodies is how many owned bodies one participant can mirror
// without tripping the relay's rate limiter, or -1 when no limit applies.
// Bodies are mirrored at most once per server tick.
func (c *Config) MaxSyncedBodies() int {
	if !c.RateLimit.Enabled || c.RateLimit.PacketsPerSecond <= 0 {
		return -1
	}
	period := c.Server.MotionSyncRate
	if period < c.Server.TickRate {
		period = c.Server.TickRate
	}
	perBody := float64(time.Second) / float64(period)
	return int(float64(c.RateLimit.PacketsPerSecond) * syncShare / perBody)
}

// CheckSyncLoad fails when mirroring bodies would exceed MaxSyncedBodies.
// The coordinator mirrors every NPC plus its own player.
func (c *Config) CheckSyncLoad(bodies int) error {
	limit := c.MaxSyncedBodies()
	if limit < 0 || bodies <= limit {
		return nil
	}
	return fmt.Errorf("config: %d bodies synced every %s exceed rate_limit.packets_per_second = %d (at most %d bodies)",
		bodies, c.Server.MotionSyncRate, c.RateLimit.PacketsPerSecond, limit)
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Name:           "player",
			Room:           "arena",
			DataDir:        "data/yaml",
			ScriptsDir:     "scripts",
			TickRate:       50 * time.Millisecond,
			Gravity:        25,
			MotionSyncRate: 100 * time.Millisecond,
		},
		Relay: RelayConfig{
			Address:     "127.0.0.1:7101",
			BindAddress: "0.0.0.0:7101",
			Room:        "arena",
			MaxMembers:  8,
		},
		Network: NetworkConfig{
			TickRate:          20 * time.Millisecond,
			InQueueSize:       256,
			OutQueueSize:      512,
			MaxPacketsPerTick: 64,
			DialTimeout:       5 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			FlushInterval:   10 * time.Second,
		},
		Combat: CombatConfig{
			HitScore:                  10,
			KillScore:                 100,
			FallbackKnockbackForce:    6,
			FallbackKnockbackDuration: 250 * time.Millisecond,
			MinVerticalKnockback:      0.35,
		},
		Defense: DefenseConfig{
			Cooldown: time.Second,
		},
		Npc: NpcConfig{
			ChaseHysteresis:   1.25,
			PathUpdateRate:    500 * time.Millisecond,
			WaypointTolerance: 0.2,
			PostAttackDelay:   600 * time.Millisecond,
		},
		Pathfind: PathfindConfig{
			MaxSearchSteps: 2000,
			ProbeRadius:    0.35,
		},
		Spawn: SpawnConfig{
			PlayerArchetype: "knight",
			RespawnDelay:    3 * time.Second,
		},
		Feed: FeedConfig{
			BindAddress: "127.0.0.1:7180",
			Path:        "/feed",
			SendBuffer:  256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		RateLimit: RateLimitConfig{
			Enabled:          true,
			PacketsPerSecond: 120,
		},
	}
}

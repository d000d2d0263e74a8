package event

import (
	"time"

	"github.com/skirmish/server/internal/core/ident"
)

// Presentation cues. Fire-and-forget: the core never waits on a consumer.

type EntitySpawned struct {
	NetID     ident.NetID
	Owner     ident.ParticipantID
	Archetype string
	X, Y      float64
}

type AttackCue struct {
	Attacker ident.NetID
	X, Y     float64
	Range    float64
}

type DefendCue struct {
	NetID  ident.NetID
	Active bool
}

type HealthChanged struct {
	NetID ident.NetID
	HP    int32
	MaxHP int32
}

type CooldownRemaining struct {
	NetID     ident.NetID
	Remaining time.Duration
}

type EntityDied struct {
	NetID    ident.NetID
	Attacker ident.NetID
}

type EntityDestroyed struct {
	NetID ident.NetID
}

type ScoreChanged struct {
	Participant ident.ParticipantID
	Score       int32
}

type NpcStateChanged struct {
	NetID ident.NetID
	State string
}

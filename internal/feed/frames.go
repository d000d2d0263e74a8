package feed

import (
	"github.com/skirmish/server/internal/core/event"
)

// Frame is one JSON message pushed to presentation clients.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type spawnedData struct {
	NetID     int32   `json:"net_id"`
	Owner     uint64  `json:"owner"`
	Archetype string  `json:"archetype"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

type attackData struct {
	Attacker int32   `json:"attacker"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Range    float64 `json:"range"`
}

type defendData struct {
	NetID  int32 `json:"net_id"`
	Active bool  `json:"active"`
}

type healthData struct {
	NetID int32 `json:"net_id"`
	HP    int32 `json:"hp"`
	MaxHP int32 `json:"max_hp"`
}

type cooldownData struct {
	NetID       int32 `json:"net_id"`
	RemainingMS int64 `json:"remaining_ms"`
}

type diedData struct {
	NetID    int32 `json:"net_id"`
	Attacker int32 `json:"attacker,omitempty"`
}

type destroyedData struct {
	NetID int32 `json:"net_id"`
}

type scoreData struct {
	Participant uint64 `json:"participant"`
	Score       int32  `json:"score"`
}

type npcStateData struct {
	NetID int32  `json:"net_id"`
	State string `json:"state"`
}

// frameFor maps a bus cue to its wire frame. Unknown cues are skipped.
func frameFor(cue any) (Frame, bool) {
	switch c := cue.(type) {
	case event.EntitySpawned:
		return Frame{"entity_spawned", spawnedData{int32(c.NetID), uint64(c.Owner), c.Archetype, c.X, c.Y}}, true
	case event.AttackCue:
		return Frame{"attack", attackData{int32(c.Attacker), c.X, c.Y, c.Range}}, true
	case event.DefendCue:
		return Frame{"defend", defendData{int32(c.NetID), c.Active}}, true
	case event.HealthChanged:
		return Frame{"health", healthData{int32(c.NetID), c.HP, c.MaxHP}}, true
	case event.CooldownRemaining:
		return Frame{"cooldown", cooldownData{int32(c.NetID), c.Remaining.Milliseconds()}}, true
	case event.EntityDied:
		return Frame{"died", diedData{int32(c.NetID), int32(c.Attacker)}}, true
	case event.EntityDestroyed:
		return Frame{"destroyed", destroyedData{int32(c.NetID)}}, true
	case event.ScoreChanged:
		return Frame{"score", scoreData{uint64(c.Participant), c.Score}}, true
	case event.NpcStateChanged:
		return Frame{"npc_state", npcStateData{int32(c.NetID), c.State}}, true
	}
	return Frame{}, false
}

// Package protocol defines the wire messages exchanged between participants
// and the control frames spoken with the relay.
package protocol

import (
	"fmt"
	"time"

	"github.com/skirmish/server/internal/core/ident"
)

// Op identifies a game message variant. Control opcodes live at 0x80 and up.
type Op byte

const (
	OpSpawn Op = iota + 1
	OpAttackIntent
	OpDamage
	OpKillConfirmed
	OpKnockback
	OpHeal
	OpDefend
	OpHealthSync
	OpDestroy
	OpMotionSync
	OpRespawnRequest
)

func (o Op) String() string {
	switch o {
	case OpSpawn:
		return "Spawn"
	case OpAttackIntent:
		return "AttackIntent"
	case OpDamage:
		return "Damage"
	case OpKillConfirmed:
		return "KillConfirmed"
	case OpKnockback:
		return "Knockback"
	case OpHeal:
		return "Heal"
	case OpDefend:
		return "Defend"
	case OpHealthSync:
		return "HealthSync"
	case OpDestroy:
		return "Destroy"
	case OpMotionSync:
		return "MotionSync"
	case OpRespawnRequest:
		return "RespawnRequest"
	case OpJoin:
		return "Join"
	case OpWelcome:
		return "Welcome"
	case OpMemberJoined:
		return "MemberJoined"
	case OpMemberLeft:
		return "MemberLeft"
	case OpRoute:
		return "Route"
	case OpDeliver:
		return "Deliver"
	case OpReject:
		return "Reject"
	default:
		return fmt.Sprintf("Op(%d)", byte(o))
	}
}

// Message is one game message variant. The set is closed: only types in
// this package implement it.
type Message interface {
	Op() Op
	encode(w *Writer)
}

// Spawn creates an entity on every participant. Sent by the coordinator.
type Spawn struct {
	NetID     ident.NetID
	Owner     ident.ParticipantID
	Archetype string
	X, Y      float64
	Slot      int32
	HP        int32
}

// AttackIntent announces an attack so every participant can play the cue.
type AttackIntent struct {
	Attacker          ident.NetID
	X, Y              float64
	Range             float64
	Damage            int32
	Mask              uint8
	KnockbackForce    float64
	KnockbackDuration time.Duration
}

// Damage is applied by the target's owner.
type Damage struct {
	Amount            int32
	Attacker          ident.NetID
	KnockbackForce    float64
	KnockbackDuration time.Duration
}

// KillConfirmed credits the addressed attacker with a kill of Victim.
type KillConfirmed struct {
	Victim ident.NetID
}

// Knockback stuns an NPC. Only the coordinator applies it.
type Knockback struct {
	DirX, DirY float64
	Force      float64
	Duration   time.Duration
}

type Heal struct {
	Amount int32
}

// Defend mirrors the defending flag to every participant.
type Defend struct {
	Active bool
}

// HealthSync mirrors the owner's health to observers.
type HealthSync struct {
	HP    int32
	MaxHP int32
	Dead  bool
}

// Destroy removes the addressed entity everywhere.
type Destroy struct{}

// MotionSync mirrors an owned body's kinematics.
type MotionSync struct {
	X, Y   float64
	VX, VY float64
	Facing int8
}

// RespawnRequest asks the coordinator to bring an entity back after a delay.
type RespawnRequest struct {
	Owner     ident.ParticipantID
	Archetype string
	Slot      int32
	X, Y      float64 // death site
}

func (Spawn) Op() Op          { return OpSpawn }
func (AttackIntent) Op() Op   { return OpAttackIntent }
func (Damage) Op() Op         { return OpDamage }
func (KillConfirmed) Op() Op  { return OpKillConfirmed }
func (Knockback) Op() Op      { return OpKnockback }
func (Heal) Op() Op           { return OpHeal }
func (Defend) Op() Op         { return OpDefend }
func (HealthSync) Op() Op     { return OpHealthSync }
func (Destroy) Op() Op        { return OpDestroy }
func (MotionSync) Op() Op     { return OpMotionSync }
func (RespawnRequest) Op() Op { return OpRespawnRequest }

func (m Spawn) encode(w *Writer) {
	w.WriteD(int32(m.NetID))
	w.WriteQ(uint64(m.Owner))
	w.WriteS(m.Archetype)
	w.WriteF(m.X)
	w.WriteF(m.Y)
	w.WriteD(m.Slot)
	w.WriteD(m.HP)
}

func (m *Spawn) decode(r *Reader) {
	m.NetID = ident.NetID(r.ReadD())
	m.Owner = ident.ParticipantID(r.ReadQ())
	m.Archetype = r.ReadS()
	m.X = r.ReadF()
	m.Y = r.ReadF()
	m.Slot = r.ReadD()
	m.HP = r.ReadD()
}

func (m AttackIntent) encode(w *Writer) {
	w.WriteD(int32(m.Attacker))
	w.WriteF(m.X)
	w.WriteF(m.Y)
	w.WriteF(m.Range)
	w.WriteD(m.Damage)
	w.WriteC(m.Mask)
	w.WriteF(m.KnockbackForce)
	w.WriteDuration(m.KnockbackDuration)
}

func (m *AttackIntent) decode(r *Reader) {
	m.Attacker = ident.NetID(r.ReadD())
	m.X = r.ReadF()
	m.Y = r.ReadF()
	m.Range = r.ReadF()
	m.Damage = r.ReadD()
	m.Mask = r.ReadC()
	m.KnockbackForce = r.ReadF()
	m.KnockbackDuration = r.ReadDuration()
}

func (m Damage) encode(w *Writer) {
	w.WriteD(m.Amount)
	w.WriteD(int32(m.Attacker))
	w.WriteF(m.KnockbackForce)
	w.WriteDuration(m.KnockbackDuration)
}

func (m *Damage) decode(r *Reader) {
	m.Amount = r.ReadD()
	m.Attacker = ident.NetID(r.ReadD())
	m.KnockbackForce = r.ReadF()
	m.KnockbackDuration = r.ReadDuration()
}

func (m KillConfirmed) encode(w *Writer)  { w.WriteD(int32(m.Victim)) }
func (m *KillConfirmed) decode(r *Reader) { m.Victim = ident.NetID(r.ReadD()) }

func (m Knockback) encode(w *Writer) {
	w.WriteF(m.DirX)
	w.WriteF(m.DirY)
	w.WriteF(m.Force)
	w.WriteDuration(m.Duration)
}

func (m *Knockback) decode(r *Reader) {
	m.DirX = r.ReadF()
	m.DirY = r.ReadF()
	m.Force = r.ReadF()
	m.Duration = r.ReadDuration()
}

func (m Heal) encode(w *Writer)  { w.WriteD(m.Amount) }
func (m *Heal) decode(r *Reader) { m.Amount = r.ReadD() }

func (m Defend) encode(w *Writer)  { w.WriteBool(m.Active) }
func (m *Defend) decode(r *Reader) { m.Active = r.ReadBool() }

func (m HealthSync) encode(w *Writer) {
	w.WriteD(m.HP)
	w.WriteD(m.MaxHP)
	w.WriteBool(m.Dead)
}

func (m *HealthSync) decode(r *Reader) {
	m.HP = r.ReadD()
	m.MaxHP = r.ReadD()
	m.Dead = r.ReadBool()
}

func (Destroy) encode(*Writer)  {}
func (*Destroy) decode(*Reader) {}

func (m MotionSync) encode(w *Writer) {
	w.WriteF(m.X)
	w.WriteF(m.Y)
	w.WriteF(m.VX)
	w.WriteF(m.VY)
	w.WriteC(byte(m.Facing))
}

func (m *MotionSync) decode(r *Reader) {
	m.X = r.ReadF()
	m.Y = r.ReadF()
	m.VX = r.ReadF()
	m.VY = r.ReadF()
	m.Facing = int8(r.ReadC())
}

func (m RespawnRequest) encode(w *Writer) {
	w.WriteQ(uint64(m.Owner))
	w.WriteS(m.Archetype)
	w.WriteD(m.Slot)
	w.WriteF(m.X)
	w.WriteF(m.Y)
}

func (m *RespawnRequest) decode(r *Reader) {
	m.Owner = ident.ParticipantID(r.ReadQ())
	m.Archetype = r.ReadS()
	m.Slot = r.ReadD()
	m.X = r.ReadF()
	m.Y = r.ReadF()
}

// decodeMessage reads the payload of variant op. Variants are returned by
// value.
func decodeMessage(op Op, r *Reader) (Message, error) {
	switch op {
	case OpSpawn:
		var m Spawn
		m.decode(r)
		return m, nil
	case OpAttackIntent:
		var m AttackIntent
		m.decode(r)
		return m, nil
	case OpDamage:
		var m Damage
		m.decode(r)
		return m, nil
	case OpKillConfirmed:
		var m KillConfirmed
		m.decode(r)
		return m, nil
	case OpKnockback:
		var m Knockback
		m.decode(r)
		return m, nil
	case OpHeal:
		var m Heal
		m.decode(r)
		return m, nil
	case OpDefend:
		var m Defend
		m.decode(r)
		return m, nil
	case OpHealthSync:
		var m HealthSync
		m.decode(r)
		return m, nil
	case OpDestroy:
		var m Destroy
		m.decode(r)
		return m, nil
	case OpMotionSync:
		var m MotionSync
		m.decode(r)
		return m, nil
	case OpRespawnRequest:
		var m RespawnRequest
		m.decode(r)
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownOp, op)
	}
}

// Package game wires one participant: entity state, authority routing,
// combat, NPC AI, spawning and the tick-phase runner.
package game

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/skirmish/server/internal/authority"
	"github.com/skirmish/server/internal/combat"
	"github.com/skirmish/server/internal/config"
	"github.com/skirmish/server/internal/core/event"
	"github.com/skirmish/server/internal/core/ident"
	"github.com/skirmish/server/internal/core/sched"
	coresys "github.com/skirmish/server/internal/core/system"
	"github.com/skirmish/server/internal/data"
	"github.com/skirmish/server/internal/feed"
	"github.com/skirmish/server/internal/npc"
	"github.com/skirmish/server/internal/pathfind"
	"github.com/skirmish/server/internal/physics"
	"github.com/skirmish/server/internal/protocol"
	"github.com/skirmish/server/internal/scoreboard"
	"github.com/skirmish/server/internal/scripting"
	"github.com/skirmish/server/internal/spawn"
	"github.com/skirmish/server/internal/system"
	"github.com/skirmish/server/internal/world"
)

// Deps is everything a participant needs from the outside.
type Deps struct {
	Config     *config.Config
	Archetypes *data.ArchetypeTable
	Arena      *data.Arena
	Link       authority.Link
	Welcome    protocol.Welcome
	Scripts    *scripting.Engine // optional
	Stats      system.StatsSink  // optional
	Events     system.EventSink  // optional
	Feed       *feed.Hub         // optional
	Now        func() time.Time  // defaults to time.Now
	Log        *zap.Logger
}

// Game is one participant's simulation. Everything except the feed runs on
// the goroutine calling Tick or Run.
type Game struct {
	cfg     *config.Config
	log     *zap.Logger
	now     func() time.Time
	world   *world.State
	sess    *authority.Session
	router  *authority.Router
	bus     *event.Bus
	sched   *sched.Scheduler
	board   *scoreboard.Board
	combat  *combat.Engine
	brain   *npc.Brain
	spawner *spawn.Spawner
	motion  *system.MotionSystem
	persist *system.StatsPersistSystem
	runner  *coresys.Runner
}

func New(d Deps) *Game {
	cfg := d.Config
	now := d.Now
	if now == nil {
		now = time.Now
	}

	space := physics.NewSpace(physics.NewTiles(d.Arena), cfg.Server.Gravity)
	ws := world.NewState(space)

	members := make([]ident.ParticipantID, 0, len(d.Welcome.Members))
	for _, m := range d.Welcome.Members {
		members = append(members, m.ID)
	}
	sess := authority.NewSession(d.Welcome.You, d.Welcome.Coordinator, members, ws)
	router := authority.NewRouter(sess, d.Link, d.Log)

	bus := event.NewBus()
	sc := sched.New(ws.Exists)
	board := scoreboard.New(bus)
	board.SetName(d.Welcome.You, cfg.Server.Name)
	for _, m := range d.Welcome.Members {
		board.SetName(m.ID, m.Name)
	}

	g := &Game{
		cfg:    cfg,
		log:    d.Log,
		now:    now,
		world:  ws,
		sess:   sess,
		router: router,
		bus:    bus,
		sched:  sc,
		board:  board,
	}

	g.combat = combat.New(combat.Config{
		HitScore:                  cfg.Combat.HitScore,
		KillScore:                 cfg.Combat.KillScore,
		FallbackKnockbackForce:    cfg.Combat.FallbackKnockbackForce,
		FallbackKnockbackDuration: cfg.Combat.FallbackKnockbackDuration,
		MinVerticalKnockback:      cfg.Combat.MinVerticalKnockback,
		DefenseCooldown:           cfg.Defense.Cooldown,
	}, ws, sess, router, sc, board, bus, d.Log.Named("combat"))
	g.combat.SetClock(now)

	grid := pathfind.NewGrid(space.Tiles(), space.Tiles().Size(), cfg.Pathfind.ProbeRadius, cfg.Pathfind.MaxSearchSteps)
	g.brain = npc.New(npc.Config{
		ChaseHysteresis:   cfg.Npc.ChaseHysteresis,
		PathUpdateRate:    cfg.Npc.PathUpdateRate,
		WaypointTolerance: cfg.Npc.WaypointTolerance,
		PostAttackDelay:   cfg.Npc.PostAttackDelay,
	}, ws, sess, g.combat, grid, sc, bus, d.Log.Named("npc"))
	g.brain.SetClock(now)

	g.spawner = spawn.New(spawn.Config{
		PlayerArchetype: cfg.Spawn.PlayerArchetype,
		RespawnDelay:    cfg.Spawn.RespawnDelay,
	}, ws, sess, router, d.Archetypes, d.Arena, sc, bus, d.Log.Named("spawn"))
	g.spawner.SetClock(now)
	if d.Scripts != nil {
		g.spawner.SetScripts(d.Scripts, d.Scripts)
	}
	g.combat.SetRespawner(g.spawner)

	router.SetHandler(g.Handle)

	g.motion = system.NewMotionSystem(ws, sess, router, cfg.Server.MotionSyncRate, d.Log)
	g.persist = system.NewStatsPersistSystem(board, d.Stats, d.Events, sess.Local(), cfg.Database.FlushInterval, d.Log.Named("persist"))
	g.persist.Attach(bus)

	g.runner = coresys.NewRunner()
	g.runner.Register(
		system.NewInputSystem(d.Link, router, g, d.Log),
		system.NewEventDispatchSystem(bus),
		system.NewGuardSystem(g.combat),
		system.NewNpcAISystem(g.brain),
		system.NewSchedulerSystem(sc, now),
		g.motion,
		system.NewRegenSystem(ws, sess, router),
		system.NewOutputSystem(d.Link),
		g.persist,
		system.NewCleanupSystem(ws),
	)
	if d.Feed != nil {
		d.Feed.Attach(bus)
		d.Feed.SetSnapshot(func() any { return board.Snapshot() })
		g.runner.Register(system.NewControlSystem(d.Feed.Commands(), g, cfg.Network.MaxPacketsPerTick))
	}
	return g
}

func (g *Game) World() *world.State         { return g.world }
func (g *Game) Session() *authority.Session { return g.sess }
func (g *Game) Board() *scoreboard.Board    { return g.board }
func (g *Game) Bus() *event.Bus             { return g.bus }
func (g *Game) Combat() *combat.Engine      { return g.combat }
func (g *Game) Router() *authority.Router   { return g.router }

// Start populates the arena when this participant coordinates. Others wait
// for the coordinator's Spawns.
func (g *Game) Start() error {
	if !g.sess.IsCoordinator() {
		return nil
	}
	if err := g.spawner.PopulateNpcs(); err != nil {
		return err
	}
	if _, err := g.spawner.SpawnPlayer(g.sess.Local()); err != nil {
		return err
	}
	return nil
}

// Tick runs one pass of every phase.
func (g *Game) Tick(dt time.Duration) {
	g.runner.Tick(dt)
}

// Run ticks at the configured rate until ctx is cancelled, then flushes
// persistence and returns.
func (g *Game) Run(ctx context.Context) error {
	rate := g.cfg.Server.TickRate
	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	g.log.Info("game loop started",
		zap.Uint64("participant", uint64(g.sess.Local())),
		zap.Uint64("coordinator", uint64(g.sess.Coordinator())),
		zap.Duration("tick", rate))

	last := g.now()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			g.persist.Flush(flushCtx)
			cancel()
			g.log.Info("game loop stopped")
			return nil
		case <-ticker.C:
			now := g.now()
			g.Tick(now.Sub(last))
			last = now
		}
	}
}

// ==================== Membership ====================

// MemberJoined registers a newcomer. The coordinator catches it up and
// spawns its player.
func (g *Game) MemberJoined(p ident.ParticipantID, name string) {
	g.sess.AddMember(p)
	g.board.SetName(p, name)
	g.log.Info("member joined", zap.Uint64("participant", uint64(p)), zap.String("name", name))
	if !g.sess.IsCoordinator() {
		return
	}
	g.spawner.Resync()
	if _, err := g.spawner.SpawnPlayer(p); err != nil {
		g.log.Error("spawn player failed", zap.Uint64("participant", uint64(p)), zap.Error(err))
	}
}

// MemberLeft applies a departure. NPCs follow the coordinator; everything
// else the leaver owned disappears.
func (g *Game) MemberLeft(p, coordinator ident.ParticipantID) {
	wasCoordinator := g.sess.IsCoordinator()
	g.sess.RemoveMember(p, coordinator)

	moved := g.world.Rehome(p, g.sess.Coordinator())
	for _, id := range g.world.OwnedBy(p) {
		if g.world.Remove(id) {
			event.Emit(g.bus, event.EntityDestroyed{NetID: id})
		}
	}
	g.log.Info("member left",
		zap.Uint64("participant", uint64(p)),
		zap.Uint64("coordinator", uint64(g.sess.Coordinator())),
		zap.Int("npcs_rehomed", len(moved)))

	if !wasCoordinator && g.sess.IsCoordinator() {
		g.log.Info("coordinator role taken over")
		g.spawner.TakeOver()
	}
}

// ==================== Local control ====================

// LocalPlayer returns this participant's live player entity.
func (g *Game) LocalPlayer() (world.Refs, bool) {
	for _, id := range g.world.OwnedBy(g.sess.Local()) {
		r, ok := g.world.Resolve(id)
		if ok && !r.IsNpc() && !r.Health.Dead {
			return r, true
		}
	}
	return world.Refs{}, false
}

func (g *Game) Move(x float64) {
	if r, ok := g.LocalPlayer(); ok {
		r.Motor.Move.X = x
		if x > 1 {
			r.Motor.Move.X = 1
		} else if x < -1 {
			r.Motor.Move.X = -1
		}
	}
}

func (g *Game) Jump() {
	if r, ok := g.LocalPlayer(); ok {
		r.Motor.Jump = true
	}
}

func (g *Game) Attack() {
	if r, ok := g.LocalPlayer(); ok {
		g.combat.Attack(r.NetID())
	}
}

func (g *Game) Defend(active bool) {
	if r, ok := g.LocalPlayer(); ok {
		g.combat.Defend(r.NetID(), active)
	}
}

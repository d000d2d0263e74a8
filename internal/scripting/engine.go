package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/skirmish/server/internal/data"
	"github.com/skirmish/server/internal/geom"
)

// Engine wraps a single gopher-lua VM for arena tuning hooks.
// Single-goroutine access only (game loop).
type Engine struct {
	vm  *lua.LState
	log *zap.Logger
}

// NewEngine creates a Lua engine and loads all scripts from the given
// directory. Core scripts load first, then the feature directories.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	e := newEngine(log)
	for _, sub := range []string{"core", "spawn", "npc"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			e.vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}
	return e, nil
}

// NewEngineFromSource loads one chunk of Lua. Used by tests and tools.
func NewEngineFromSource(src string, log *zap.Logger) (*Engine, error) {
	e := newEngine(log)
	if err := e.vm.DoString(src); err != nil {
		e.vm.Close()
		return nil, fmt.Errorf("load lua source: %w", err)
	}
	return e, nil
}

func newEngine(log *zap.Logger) *Engine {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	vm.SetGlobal("API_VERSION", lua.LNumber(1))
	return &Engine{vm: vm, log: log}
}

// loadDir loads all .lua files in a directory.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // skip missing dirs
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
	}
	return nil
}

// PickRespawn calls pick_respawn(slot, death_x, death_y, points), where
// points is an array of {x, y} tables. The script returns a 1-based index.
// ok is false when the hook is absent, fails, or answers out of range; the
// caller then applies its own rule.
func (e *Engine) PickRespawn(slot int32, death geom.Vec2, points []data.Point) (data.Point, bool) {
	fn := e.vm.GetGlobal("pick_respawn")
	if fn == lua.LNil || len(points) == 0 {
		return data.Point{}, false
	}

	pts := e.vm.NewTable()
	for _, p := range points {
		t := e.vm.NewTable()
		t.RawSetString("x", lua.LNumber(p.X))
		t.RawSetString("y", lua.LNumber(p.Y))
		pts.Append(t)
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LNumber(slot), lua.LNumber(death.X), lua.LNumber(death.Y), pts); err != nil {
		e.log.Error("lua pick_respawn error", zap.Error(err))
		return data.Point{}, false
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	n, ok := result.(lua.LNumber)
	if !ok {
		return data.Point{}, false
	}
	idx := int(n)
	if idx < 1 || idx > len(points) {
		e.log.Warn("lua pick_respawn index out of range", zap.Int("index", idx), zap.Int("points", len(points)))
		return data.Point{}, false
	}
	return points[idx-1], true
}

// ScaleNpcHealth calls scale_npc_health(archetype, base_hp, players) and
// returns the starting HP for a freshly spawned NPC. Falls back to base.
func (e *Engine) ScaleNpcHealth(archetype string, base int32, players int) int32 {
	fn := e.vm.GetGlobal("scale_npc_health")
	if fn == lua.LNil {
		return base
	}

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(archetype), lua.LNumber(base), lua.LNumber(players)); err != nil {
		e.log.Error("lua scale_npc_health error", zap.String("archetype", archetype), zap.Error(err))
		return base
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	hp := int32(lua.LVAsNumber(result))
	if hp < 1 {
		return base
	}
	return hp
}

// Close shuts down the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

package scripting

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/holdfast/server/internal/actor"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// Engine wraps a single gopher-lua VM for navigation queries and agent logic.
// Single-goroutine access only (game loop).
type Engine struct {
	vm     *lua.LState
	log    *zap.Logger
	agents map[uint32]struct{} // serials with running agent logic
}

// NewEngine creates a Lua engine and loads all scripts from the given directory.
func NewEngine(scriptsDir string, log *zap.Logger) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})

	// Set API version global
	vm.SetGlobal("API_VERSION", lua.LNumber(1))

	e := &Engine{vm: vm, log: log, agents: make(map[uint32]struct{})}
	vm.SetGlobal("log_info", vm.NewFunction(e.luaLogInfo))

	// Core helpers first, then the hooks that may use them.
	for _, sub := range []string{"core", "nav", "ai"} {
		p := filepath.Join(scriptsDir, sub)
		if err := e.loadDir(p); err != nil {
			vm.Close()
			return nil, fmt.Errorf("load %s scripts: %w", sub, err)
		}
	}

	return e, nil
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

func (e *Engine) luaLogInfo(L *lua.LState) int {
	e.log.Info("lua", zap.String("msg", L.CheckString(1)))
	return 0
}

// HasFunction reports whether a global Lua function is defined.
func (e *Engine) HasFunction(name string) bool {
	_, ok := e.vm.GetGlobal(name).(*lua.LFunction)
	return ok
}

// IsNavigable asks the Lua is_navigable(query) hook whether pos is on the
// navigable surface within tolerance. The hook returns nil for a miss or a
// table {x, y, z} with the projected point. Without a hook every point is
// navigable as is.
func (e *Engine) IsNavigable(pos mgl64.Vec3, tolerance float64) (mgl64.Vec3, bool) {
	fn := e.vm.GetGlobal("is_navigable")
	if fn == lua.LNil {
		return pos, true
	}

	q := e.vm.NewTable()
	q.RawSetString("x", lua.LNumber(pos[0]))
	q.RawSetString("y", lua.LNumber(pos[1]))
	q.RawSetString("z", lua.LNumber(pos[2]))
	q.RawSetString("tolerance", lua.LNumber(tolerance))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, q); err != nil {
		e.log.Error("lua is_navigable error", zap.Error(err))
		return pos, false
	}

	result := e.vm.Get(-1)
	e.vm.Pop(1)

	switch rt := result.(type) {
	case *lua.LTable:
		return mgl64.Vec3{
			numberOr(rt.RawGetString("x"), pos[0]),
			numberOr(rt.RawGetString("y"), pos[1]),
			numberOr(rt.RawGetString("z"), pos[2]),
		}, true
	case lua.LBool:
		return pos, bool(rt)
	}
	return pos, false
}

// StartAgentLogic runs the Lua on_agent_start(agent) hook for a freshly
// activated actor.
func (e *Engine) StartAgentLogic(a *actor.Actor) {
	e.agents[a.Serial()] = struct{}{}
	e.callAgentHook("on_agent_start", a)
}

// StopAgentLogic runs on_agent_stop(agent) before the actor is parked.
func (e *Engine) StopAgentLogic(a *actor.Actor) {
	delete(e.agents, a.Serial())
	e.callAgentHook("on_agent_stop", a)
}

// ActiveAgents is the number of actors whose logic is running.
func (e *Engine) ActiveAgents() int { return len(e.agents) }

func (e *Engine) callAgentHook(name string, a *actor.Actor) {
	fn := e.vm.GetGlobal(name)
	if fn == lua.LNil {
		return
	}

	loc := a.Transform().Location
	t := e.vm.NewTable()
	t.RawSetString("serial", lua.LNumber(a.Serial()))
	t.RawSetString("class", lua.LString(a.Class()))
	t.RawSetString("x", lua.LNumber(loc[0]))
	t.RawSetString("y", lua.LNumber(loc[1]))
	t.RawSetString("z", lua.LNumber(loc[2]))
	t.RawSetString("health", lua.LNumber(a.Health()))
	t.RawSetString("max_health", lua.LNumber(a.MaxHealth()))

	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, t); err != nil {
		e.log.Error("lua agent hook error",
			zap.String("hook", name),
			zap.Uint32("serial", a.Serial()),
			zap.Error(err))
	}
}

func numberOr(v lua.LValue, def float64) float64 {
	if n, ok := v.(lua.LNumber); ok {
		return float64(n)
	}
	return def
}

// Close releases the Lua VM.
func (e *Engine) Close() {
	e.vm.Close()
}

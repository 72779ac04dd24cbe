package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/holdfast/server/internal/actor"
	"github.com/holdfast/server/internal/component"
	"github.com/holdfast/server/internal/pool"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap/zaptest"
)

func writeScript(t *testing.T, dir, sub, name, src string) {
	t.Helper()
	d := filepath.Join(dir, sub)
	if err := os.MkdirAll(d, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(d, name), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestIsNavigableWithoutHook(t *testing.T) {
	e, err := NewEngine(t.TempDir(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	p := mgl64.Vec3{1, 2, 3}
	got, ok := e.IsNavigable(p, 10)
	if !ok || got != p {
		t.Errorf("IsNavigable = %v, %v; want %v, true", got, ok, p)
	}
}

func TestIsNavigableHook(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "nav", "disc.lua", `
function is_navigable(q)
  if q.x * q.x + q.y * q.y > 100 * 100 then
    return nil
  end
  if q.x < 0 then
    return true
  end
  return { x = q.x, y = q.y, z = 7 }
end
`)
	e, err := NewEngine(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	tests := []struct {
		name   string
		in     mgl64.Vec3
		want   mgl64.Vec3
		wantOK bool
	}{
		{"projected", mgl64.Vec3{10, 0, 0}, mgl64.Vec3{10, 0, 7}, true},
		{"bare true", mgl64.Vec3{-10, 0, 3}, mgl64.Vec3{-10, 0, 3}, true},
		{"outside", mgl64.Vec3{200, 0, 0}, mgl64.Vec3{200, 0, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := e.IsNavigable(tt.in, 5)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("IsNavigable(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestIsNavigableHookError(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "nav", "broken.lua", `function is_navigable(q) error("boom") end`)
	e, err := NewEngine(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if _, ok := e.IsNavigable(mgl64.Vec3{}, 1); ok {
		t.Error("failing hook reported navigable")
	}
}

func TestAgentHooks(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "core", "state.lua", `started = {} stopped = 0`)
	writeScript(t, dir, "ai", "agent.lua", `
function on_agent_start(a) started[#started + 1] = a.class .. ":" .. a.health end
function on_agent_stop(a) stopped = stopped + 1 end
`)
	e, err := NewEngine(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	a := actor.New(1, "husk", 80, mgl64.Vec3{})
	e.StartAgentLogic(a)
	if e.ActiveAgents() != 1 {
		t.Errorf("active agents = %d, want 1", e.ActiveAgents())
	}
	e.StopAgentLogic(a)
	if e.ActiveAgents() != 0 {
		t.Errorf("active agents = %d after stop", e.ActiveAgents())
	}

	started := e.vm.GetGlobal("started").(*lua.LTable)
	if got := started.RawGetInt(1).String(); got != "husk:80" {
		t.Errorf("start hook saw %q, want husk:80", got)
	}
	if got := e.vm.GetGlobal("stopped"); got != lua.LNumber(1) {
		t.Errorf("stopped = %v, want 1", got)
	}
}

func TestAgentsKilledInPoolAreReleased(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "ai", "agent.lua", `
running = 0
function on_agent_start(a) running = running + 1 end
function on_agent_stop(a) running = running - 1 end
`)
	e, err := NewEngine(dir, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	p, err := pool.New(pool.Config{Capacity: 2, Class: "husk", MaxHealth: 100, Sentinel: mgl64.Vec3{0, 0, -100000}},
		nil, nil, e, zaptest.NewLogger(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		h, err := p.Activate(component.Transform{}, 1)
		if err != nil {
			t.Fatalf("round %d: Activate: %v", i, err)
		}
		a, _ := p.Resolve(h)
		a.ApplyDamage(1000)
		p.Replenish()
	}

	if p.FreeCount() != 2 || p.ActiveCount() != 0 {
		t.Errorf("free %d active %d, want 2 and 0", p.FreeCount(), p.ActiveCount())
	}
	if e.ActiveAgents() != 0 {
		t.Errorf("active agents = %d, want 0", e.ActiveAgents())
	}
	if got := e.vm.GetGlobal("running"); got != lua.LNumber(0) {
		t.Errorf("lua running = %v, want 0", got)
	}
}

func TestLoadErrorIsReported(t *testing.T) {
	dir := t.TempDir()
	writeScript(t, dir, "ai", "bad.lua", `function (`)
	if _, err := NewEngine(dir, zaptest.NewLogger(t)); err == nil {
		t.Fatal("syntax error not reported")
	}
}

func TestShippedScriptsLoad(t *testing.T) {
	e, err := NewEngine(filepath.Join("..", "..", "scripts"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()
	for _, fn := range []string{"is_navigable", "on_agent_start", "on_agent_stop"} {
		if !e.HasFunction(fn) {
			t.Errorf("%s not defined", fn)
		}
	}
	if _, ok := e.IsNavigable(mgl64.Vec3{0, 0, 0}, 10); ok {
		t.Error("arena pit reported navigable")
	}
	if p, ok := e.IsNavigable(mgl64.Vec3{2000, 0, 40}, 10); !ok || p[2] != 0 {
		t.Errorf("arena floor = %v, %v", p, ok)
	}
}

package pool

import (
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/holdfast/server/internal/actor"
	"github.com/holdfast/server/internal/component"
	"github.com/holdfast/server/internal/config"
	"go.uber.org/zap/zaptest"
)

var sentinel = mgl64.Vec3{0, 0, -100000}

type recordingLogic struct {
	started, stopped []uint32
}

func (l *recordingLogic) StartAgentLogic(a *actor.Actor) { l.started = append(l.started, a.Serial()) }
func (l *recordingLogic) StopAgentLogic(a *actor.Actor)  { l.stopped = append(l.stopped, a.Serial()) }

func newTestPool(t *testing.T, capacity int) (*Pool, *recordingLogic) {
	t.Helper()
	logic := &recordingLogic{}
	p, err := New(Config{Capacity: capacity, Class: "husk", MaxHealth: 100, Sentinel: sentinel},
		nil, nil, logic, zaptest.NewLogger(t), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, logic
}

func at(x, y float64) component.Transform {
	return component.Transform{Location: mgl64.Vec3{x, y, 0}, Yaw: 0.5}
}

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	for _, capacity := range []int{0, -3} {
		_, err := New(Config{Capacity: capacity}, nil, nil, nil, nil, nil)
		if !errors.Is(err, config.ErrConfigurationInvalid) {
			t.Errorf("capacity %d: err = %v, want ErrConfigurationInvalid", capacity, err)
		}
	}
}

func TestInitializeIsLazy(t *testing.T) {
	built := 0
	factory := func(serial uint32, parked mgl64.Vec3) *actor.Actor {
		built++
		return actor.New(serial, "husk", 10, parked)
	}
	p, err := New(Config{Capacity: 4, Sentinel: sentinel}, factory, nil, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if built != 0 {
		t.Fatalf("built %d actors before first use", built)
	}
	p.Initialize()
	p.Initialize()
	if built != 4 {
		t.Fatalf("built %d actors, want 4", built)
	}
	for _, s := range p.slots {
		a := s.actor
		if a.Active() || a.Ticking() || a.Colliding() || a.Replicating() || !a.Hidden() {
			t.Errorf("actor %d not disabled", a.Serial())
		}
		if a.Transform().Location != sentinel {
			t.Errorf("actor %d at %v, want sentinel", a.Serial(), a.Transform().Location)
		}
	}
}

func TestActivateEnablesAndRestores(t *testing.T) {
	p, logic := newTestPool(t, 2)

	h, err := p.Activate(at(10, 20), 0.4)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	a, err := p.Resolve(h)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !a.Active() || !a.Ticking() || !a.Colliding() || !a.Replicating() || a.Hidden() {
		t.Errorf("activated actor not enabled")
	}
	if a.Transform() != at(10, 20) {
		t.Errorf("transform %v", a.Transform())
	}
	if math.Abs(a.Health()-40) > 1e-9 {
		t.Errorf("health %v, want 40", a.Health())
	}
	if len(logic.started) != 1 || logic.started[0] != a.Serial() {
		t.Errorf("StartAgentLogic calls = %v", logic.started)
	}
	if p.ActiveCount() != 1 || p.FreeCount() != 1 {
		t.Errorf("active %d free %d", p.ActiveCount(), p.FreeCount())
	}
}

func TestExhaustionIsRecoverable(t *testing.T) {
	p, _ := newTestPool(t, 2)
	h1, _ := p.Activate(at(0, 0), 1)
	if _, err := p.Activate(at(0, 0), 1); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Activate(at(0, 0), 1); !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("third Activate err = %v, want ErrPoolExhausted", err)
	}
	if p.Capacity() != 2 || len(p.slots) != 2 {
		t.Fatalf("pool grew to %d", len(p.slots))
	}

	if _, _, err := p.Deactivate(h1); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Activate(at(0, 0), 1); err != nil {
		t.Fatalf("Activate after release: %v", err)
	}
}

func TestDeactivateCapturesAndParks(t *testing.T) {
	p, logic := newTestPool(t, 1)
	h, _ := p.Activate(at(1, 2), 1)
	a, _ := p.Resolve(h)
	a.ApplyDamage(30)
	a.SetTransform(at(5, 6))

	frac, tr, err := p.Deactivate(h)
	if err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if math.Abs(frac-0.7) > 1e-9 {
		t.Errorf("fraction %v, want 0.7", frac)
	}
	if tr != at(5, 6) {
		t.Errorf("transform %v", tr)
	}
	if a.Active() || !a.Hidden() || a.Transform().Location != sentinel {
		t.Errorf("deactivated actor not parked")
	}
	if len(logic.stopped) != 1 {
		t.Errorf("StopAgentLogic calls = %d", len(logic.stopped))
	}
}

func TestDoubleDeactivateIsRejected(t *testing.T) {
	p, logic := newTestPool(t, 3)
	h, _ := p.Activate(at(0, 0), 1)

	if _, _, err := p.Deactivate(h); err != nil {
		t.Fatal(err)
	}
	free := p.FreeCount()
	if _, _, err := p.Deactivate(h); !errors.Is(err, ErrStaleActor) {
		t.Fatalf("second Deactivate err = %v, want ErrStaleActor", err)
	}
	if p.FreeCount() != free {
		t.Fatalf("free list changed: %d -> %d", free, p.FreeCount())
	}
	seen := map[uint32]bool{}
	for _, idx := range p.free {
		if seen[idx] {
			t.Fatalf("slot %d twice in free list", idx)
		}
		seen[idx] = true
	}
	if len(logic.stopped) != 1 {
		t.Errorf("StopAgentLogic calls = %d, want 1", len(logic.stopped))
	}
}

func TestReleasedHandleCannotReachNextOccupant(t *testing.T) {
	p, _ := newTestPool(t, 1)
	old, _ := p.Activate(at(0, 0), 1)
	p.Deactivate(old)
	fresh, _ := p.Activate(at(9, 9), 1)

	if old.Slot() != fresh.Slot() {
		t.Fatalf("expected slot reuse")
	}
	if _, err := p.Resolve(old); !errors.Is(err, ErrStaleActor) {
		t.Errorf("old handle resolves: %v", err)
	}
	if _, err := p.Resolve(fresh); err != nil {
		t.Errorf("fresh handle: %v", err)
	}
}

func TestExternalDestructionAndReplenish(t *testing.T) {
	p, _ := newTestPool(t, 3)
	h, _ := p.Activate(at(7, 8), 1)
	other, _ := p.Activate(at(0, 0), 1)
	a, _ := p.Resolve(h)
	a.ApplyDamage(1000)

	if p.FreeCount() != 1 {
		t.Fatalf("free %d before replenish", p.FreeCount())
	}
	if n := p.Replenish(); n != 1 {
		t.Fatalf("Replenish rebuilt %d, want 1", n)
	}
	if p.ActiveCount() != 1 || p.FreeCount() != 2 {
		t.Fatalf("active %d free %d after replenish", p.ActiveCount(), p.FreeCount())
	}
	if _, err := p.Resolve(h); !errors.Is(err, ErrStaleActor) {
		t.Errorf("destroyed handle resolves: %v", err)
	}
	snap, ok := p.Tombstone(h)
	if !ok {
		t.Fatal("no tombstone for destroyed actor")
	}
	if snap.HealthFraction != 0 || snap.Transform != at(7, 8) {
		t.Errorf("tombstone = %+v", snap)
	}
	if _, ok := p.Tombstone(h); ok {
		t.Error("tombstone returned twice")
	}

	p.Deactivate(other)
	if p.FreeCount() != p.Capacity() {
		t.Errorf("free %d, want capacity %d", p.FreeCount(), p.Capacity())
	}
}

func TestResolveReapsDestroyedActor(t *testing.T) {
	p, _ := newTestPool(t, 2)
	h, _ := p.Activate(at(0, 0), 0.5)
	a, _ := p.Resolve(h)
	a.Destroy()

	if _, err := p.Resolve(h); !errors.Is(err, ErrStaleActor) {
		t.Fatalf("Resolve err = %v", err)
	}
	if p.ActiveCount() != 0 {
		t.Errorf("destroyed actor still counted active")
	}
	snap, ok := p.Tombstone(h)
	if !ok || math.Abs(snap.HealthFraction-0.5) > 1e-9 {
		t.Errorf("tombstone = %+v, %v", snap, ok)
	}
	if p.FreeCount() != 1 {
		t.Errorf("free %d before replenish, want 1", p.FreeCount())
	}
	p.Replenish()
	if p.FreeCount() != 2 {
		t.Errorf("free %d after replenish, want 2", p.FreeCount())
	}
}

func TestUnclaimedTombstonesExpire(t *testing.T) {
	p, _ := newTestPool(t, 1)
	h, _ := p.Activate(at(0, 0), 1)
	a, _ := p.Resolve(h)
	a.Destroy()
	for i := 0; i <= tombstoneTTL+1; i++ {
		p.Replenish()
	}
	if _, ok := p.Tombstone(h); ok {
		t.Error("tombstone survived past its TTL")
	}
}

func TestLostActorStopsAgentLogic(t *testing.T) {
	tests := []struct {
		name string
		reap func(p *Pool, h component.ActorHandle)
	}{
		{"resolve", func(p *Pool, h component.ActorHandle) { p.Resolve(h) }},
		{"replenish", func(p *Pool, _ component.ActorHandle) { p.Replenish() }},
		{"deactivate", func(p *Pool, h component.ActorHandle) { p.Deactivate(h) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, logic := newTestPool(t, 2)
			h, _ := p.Activate(at(0, 0), 1)
			a, _ := p.Resolve(h)
			a.ApplyDamage(1000)

			tt.reap(p, h)

			if len(logic.stopped) != 1 || logic.stopped[0] != a.Serial() {
				t.Fatalf("stopped = %v, want [%d]", logic.stopped, a.Serial())
			}
			// A second reap path must not stop it again.
			p.Replenish()
			p.Resolve(h)
			if len(logic.stopped) != 1 {
				t.Errorf("logic stopped %d times", len(logic.stopped))
			}
		})
	}
}

// Package pool owns the fixed set of pre-constructed actors that promoted
// entities borrow. Accessed only from the game loop goroutine, no locks.
package pool

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/holdfast/server/internal/actor"
	"github.com/holdfast/server/internal/component"
	"github.com/holdfast/server/internal/config"
	"github.com/holdfast/server/internal/metrics"
	"go.uber.org/zap"
)

var (
	// ErrPoolExhausted means the free list is empty. Callers retry later;
	// the pool never grows.
	ErrPoolExhausted = errors.New("actor pool exhausted")
	// ErrStaleActor means the handle no longer names an active actor: it was
	// already released, or its actor was destroyed outside the pool.
	ErrStaleActor = errors.New("stale actor reference")
)

// Config fixes the pool for the whole session.
type Config struct {
	Capacity  int
	Class     string
	MaxHealth float64
	Sentinel  mgl64.Vec3 // parking spot far outside the play space
}

type slotState uint8

const (
	slotFree slotState = iota
	slotActive
	slotDead // actor lost, waiting for Replenish
)

type slot struct {
	actor     *actor.Actor
	gen       uint32
	state     slotState
	activeIdx int
}

// Snapshot is the last known state of an actor.
type Snapshot struct {
	HealthFraction float64
	Transform      component.Transform
}

type tombstone struct {
	snap Snapshot
	age  int
}

// tombstoneTTL is how many Replenish passes an unclaimed tombstone survives.
const tombstoneTTL = 2

type Pool struct {
	cfg     Config
	factory actor.Factory
	health  actor.HealthAccessor
	logic   actor.AgentLogic
	log     *zap.Logger
	metrics *metrics.Collector

	slots      []slot
	free       []uint32
	active     []uint32
	tombstones map[component.ActorHandle]tombstone
	serial     uint32
	ready      bool
}

// New validates cfg and returns an uninitialized pool. Actors are built on
// the first Initialize or Activate call.
func New(cfg Config, factory actor.Factory, health actor.HealthAccessor, logic actor.AgentLogic, log *zap.Logger, m *metrics.Collector) (*Pool, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: pool capacity must be positive, got %d", config.ErrConfigurationInvalid, cfg.Capacity)
	}
	if factory == nil {
		factory = actor.NewFactory(cfg.Class, cfg.MaxHealth)
	}
	if health == nil {
		health = actor.NativeHealth{}
	}
	if logic == nil {
		logic = actor.NopLogic{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		cfg:        cfg,
		factory:    factory,
		health:     health,
		logic:      logic,
		log:        log,
		metrics:    m,
		tombstones: make(map[component.ActorHandle]tombstone),
	}, nil
}

// Initialize pre-constructs every actor, fully disabled at the sentinel.
// Later calls do nothing.
func (p *Pool) Initialize() {
	if p.ready {
		return
	}
	p.ready = true
	p.slots = make([]slot, p.cfg.Capacity)
	p.free = make([]uint32, 0, p.cfg.Capacity)
	p.active = make([]uint32, 0, p.cfg.Capacity)
	// Push in reverse so the first Activate pops slot 0.
	for i := p.cfg.Capacity - 1; i >= 0; i-- {
		p.slots[i] = slot{actor: p.build(), gen: 1, activeIdx: -1}
		p.free = append(p.free, uint32(i))
	}
	p.log.Info("actor pool initialized",
		zap.String("class", p.cfg.Class),
		zap.Int("capacity", p.cfg.Capacity))
}

func (p *Pool) build() *actor.Actor {
	p.serial++
	return p.factory(p.serial, p.cfg.Sentinel)
}

// Activate pops a free actor, places it at t, restores its health from the
// fraction, switches it on and hands it to the agent logic.
func (p *Pool) Activate(t component.Transform, restoreHealthFraction float64) (component.ActorHandle, error) {
	p.Initialize()
	n := len(p.free)
	if n == 0 {
		p.metrics.PoolExhausted()
		return 0, ErrPoolExhausted
	}
	idx := p.free[n-1]
	p.free = p.free[:n-1]

	s := &p.slots[idx]
	a := s.actor
	a.SetTransform(t)
	p.health.SetHealthFraction(a, clamp01(restoreHealthFraction))
	a.Enable()

	s.state = slotActive
	s.activeIdx = len(p.active)
	p.active = append(p.active, idx)

	p.logic.StartAgentLogic(a)
	return component.NewActorHandle(idx, s.gen), nil
}

// Deactivate stops the agent logic, captures health and transform, parks the
// actor and returns it to the free list. Calling it again with the same
// handle returns ErrStaleActor and leaves the free list alone.
func (p *Pool) Deactivate(h component.ActorHandle) (float64, component.Transform, error) {
	s, err := p.activeSlot(h)
	if err != nil {
		return 0, component.Transform{}, err
	}
	a := s.actor
	if a.Destroyed() {
		p.reap(h.Slot())
		return 0, component.Transform{}, ErrStaleActor
	}

	p.logic.StopAgentLogic(a)
	frac := p.health.HealthFraction(a)
	t := a.Transform()
	a.Disable(p.cfg.Sentinel)

	p.removeActive(h.Slot())
	s.state = slotFree
	s.gen = nextGen(s.gen)
	p.free = append(p.free, h.Slot())
	return frac, t, nil
}

// Resolve returns the live actor behind h. A destroyed actor is reaped on the
// spot: its agent logic is stopped, it leaves the active set and its last
// state becomes a tombstone.
func (p *Pool) Resolve(h component.ActorHandle) (*actor.Actor, error) {
	s, err := p.activeSlot(h)
	if err != nil {
		return nil, err
	}
	if s.actor.Destroyed() {
		p.reap(h.Slot())
		return nil, ErrStaleActor
	}
	return s.actor, nil
}

// Snapshot reads the current health fraction and transform of an active
// actor without releasing it.
func (p *Pool) Snapshot(h component.ActorHandle) (Snapshot, error) {
	a, err := p.Resolve(h)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{HealthFraction: p.health.HealthFraction(a), Transform: a.Transform()}, nil
}

// Tombstone returns, once, the last state of an actor that was lost outside
// the pool.
func (p *Pool) Tombstone(h component.ActorHandle) (Snapshot, bool) {
	ts, ok := p.tombstones[h]
	if ok {
		delete(p.tombstones, h)
	}
	return ts.snap, ok
}

// Replenish reaps destroyed actors still counted as active and rebuilds every
// lost slot, so capacity is restored. Returns the number of actors rebuilt.
func (p *Pool) Replenish() int {
	if !p.ready {
		return 0
	}
	for i := len(p.active) - 1; i >= 0; i-- {
		idx := p.active[i]
		if p.slots[idx].actor.Destroyed() {
			p.reap(idx)
		}
	}

	rebuilt := 0
	for i := range p.slots {
		s := &p.slots[i]
		if s.state != slotDead {
			continue
		}
		s.actor = p.build()
		s.state = slotFree
		p.free = append(p.free, uint32(i))
		rebuilt++
	}

	for h, ts := range p.tombstones {
		ts.age++
		if ts.age > tombstoneTTL {
			delete(p.tombstones, h)
			continue
		}
		p.tombstones[h] = ts
	}

	if rebuilt > 0 {
		p.metrics.Replenished(rebuilt)
		p.log.Debug("actor pool replenished", zap.Int("rebuilt", rebuilt))
	}
	return rebuilt
}

func (p *Pool) reap(idx uint32) {
	s := &p.slots[idx]
	h := component.NewActorHandle(idx, s.gen)
	a := s.actor
	p.logic.StopAgentLogic(a)
	p.tombstones[h] = tombstone{snap: Snapshot{
		HealthFraction: p.health.HealthFraction(a),
		Transform:      a.Transform(),
	}}
	p.removeActive(idx)
	s.state = slotDead
	s.gen = nextGen(s.gen)
	p.log.Debug("actor lost outside pool",
		zap.Uint32("slot", idx),
		zap.Uint32("serial", a.Serial()))
}

func (p *Pool) activeSlot(h component.ActorHandle) (*slot, error) {
	if !p.ready || h.IsZero() {
		return nil, ErrStaleActor
	}
	idx := h.Slot()
	if int(idx) >= len(p.slots) {
		return nil, ErrStaleActor
	}
	s := &p.slots[idx]
	if s.gen != h.Generation() || s.state != slotActive {
		return nil, ErrStaleActor
	}
	return s, nil
}

func (p *Pool) removeActive(idx uint32) {
	s := &p.slots[idx]
	i := s.activeIdx
	last := len(p.active) - 1
	if i != last {
		moved := p.active[last]
		p.active[i] = moved
		p.slots[moved].activeIdx = i
	}
	p.active = p.active[:last]
	s.activeIdx = -1
}

// ActiveHandles lists the handles of every active actor.
func (p *Pool) ActiveHandles() []component.ActorHandle {
	out := make([]component.ActorHandle, 0, len(p.active))
	for _, idx := range p.active {
		out = append(out, component.NewActorHandle(idx, p.slots[idx].gen))
	}
	return out
}

func (p *Pool) ActiveCount() int { return len(p.active) }

// FreeCount is the free-list length. Before initialization every slot counts
// as free.
func (p *Pool) FreeCount() int {
	if !p.ready {
		return p.cfg.Capacity
	}
	return len(p.free)
}

func (p *Pool) Capacity() int        { return p.cfg.Capacity }
func (p *Pool) Sentinel() mgl64.Vec3 { return p.cfg.Sentinel }

func nextGen(g uint32) uint32 {
	g++
	if g == 0 {
		g = 1
	}
	return g
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

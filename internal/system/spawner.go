package system

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/holdfast/server/internal/component"
	"github.com/holdfast/server/internal/core/ecs"
	coresys "github.com/holdfast/server/internal/core/system"
	"github.com/holdfast/server/internal/metrics"
	"github.com/holdfast/server/internal/spawn"
	"go.uber.org/zap"
)

// SpawnBatch is one ring of entities sharing a class configuration.
type SpawnBatch struct {
	Center mgl64.Vec3
	Radius float64
	Count  int
	Config component.AgentConfig
}

// StartSignal is the part of the runner the spawner waits on.
type StartSignal interface {
	Started() bool
	OnStarted(fn func())
}

// SpawnSystem places its batches once. It does nothing until armed, and an
// armed spawner still waits StartDelay of simulated time before placing.
// Phase 0 (Spawn).
type SpawnSystem struct {
	store   *ecs.EntityStore
	gen     *spawn.Generator
	batches []SpawnBatch
	delay   time.Duration
	log     *zap.Logger
	metrics *metrics.Collector

	armed   bool
	waited  time.Duration
	done    bool
	spawned []ecs.EntityID
}

func NewSpawnSystem(store *ecs.EntityStore, gen *spawn.Generator, batches []SpawnBatch, delay time.Duration,
	log *zap.Logger, m *metrics.Collector) *SpawnSystem {
	if log == nil {
		log = zap.NewNop()
	}
	return &SpawnSystem{
		store:   store,
		gen:     gen,
		batches: batches,
		delay:   delay,
		log:     log,
		metrics: m,
	}
}

func (s *SpawnSystem) Phase() coresys.Phase { return coresys.PhaseSpawn }

// Arm enables the spawner as soon as the runner has started. When the runner
// is already running it arms on the spot; otherwise it waits for the signal.
func (s *SpawnSystem) Arm(sig StartSignal) {
	if sig.Started() {
		s.armed = true
		return
	}
	sig.OnStarted(func() { s.armed = true })
}

func (s *SpawnSystem) Update(dt time.Duration) {
	if s.done || !s.armed {
		return
	}
	s.waited += dt
	if s.waited < s.delay {
		return
	}
	s.done = true

	for i, b := range s.batches {
		ring := s.gen.Ring(b.Center, b.Radius, b.Count)
		ids := s.store.CreateEntities(len(ring), ring, b.Config)
		s.spawned = append(s.spawned, ids...)
		s.log.Info("spawn ring placed",
			zap.Int("batch", i),
			zap.Int32("class", b.Config.ClassID),
			zap.Int("requested", b.Count),
			zap.Int("placed", len(ids)))
	}
	s.metrics.Spawned(len(s.spawned))
}

// Done reports whether the batches have been placed.
func (s *SpawnSystem) Done() bool { return s.done }

// Spawned returns the ids created, in batch order.
func (s *SpawnSystem) Spawned() []ecs.EntityID { return s.spawned }

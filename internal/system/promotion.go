package system

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/holdfast/server/internal/component"
	"github.com/holdfast/server/internal/config"
	"github.com/holdfast/server/internal/core/ecs"
	"github.com/holdfast/server/internal/core/event"
	coresys "github.com/holdfast/server/internal/core/system"
	"github.com/holdfast/server/internal/metrics"
	"github.com/holdfast/server/internal/pool"
	"github.com/holdfast/server/internal/world"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// parallelDistanceMin is the row count below which the distance pass stays
// serial even when workers are configured.
const parallelDistanceMin = 2048

// retireQueueSize bounds the retire requests waiting for the next tick.
const retireQueueSize = 64

var errBadDistance = errors.New("non-finite entity position")

type PromotionConfig struct {
	MaxConcurrentActors   int
	SoftCapInterval       int // ticks
	SoftCapHeadroom       int
	EvictionCooldownTicks int
	DistanceWorkers       int
}

// PromotionFromConfig picks the scheduler settings out of the server config.
func PromotionFromConfig(c config.SimulationConfig) PromotionConfig {
	return PromotionConfig{
		MaxConcurrentActors:   c.MaxConcurrentActors,
		SoftCapInterval:       c.SoftCapInterval,
		SoftCapHeadroom:       c.SoftCapHeadroom,
		EvictionCooldownTicks: c.EvictionCooldownTicks,
		DistanceWorkers:       c.DistanceWorkers,
	}
}

// PromotionSystem is the entity/actor scheduler. Each tick it demotes
// promoted entities that left the hysteresis band, reconciles entities whose
// actor vanished, promotes un-promoted entities that came in range, and every
// SoftCapInterval ticks evicts the farthest actors above the cap.
// Phase 2 (Promotion). Must run after MovementSystem.
type PromotionSystem struct {
	store     *ecs.EntityStore
	pool      *pool.Pool
	observers world.ObserverSource
	bus       *event.Bus
	cfg       PromotionConfig
	log       *zap.Logger
	metrics   *metrics.Collector

	tick      uint64
	obs       []mgl64.Vec3
	dist      []float64 // row → distance to nearest observer
	evictable []evictCandidate
	retire    chan ecs.EntityID
}

type evictCandidate struct {
	row  int
	dist float64
}

func NewPromotionSystem(store *ecs.EntityStore, p *pool.Pool, observers world.ObserverSource, bus *event.Bus,
	cfg PromotionConfig, log *zap.Logger, m *metrics.Collector) (*PromotionSystem, error) {
	if cfg.MaxConcurrentActors <= 0 {
		return nil, fmt.Errorf("%w: max concurrent actors must be positive, got %d",
			config.ErrConfigurationInvalid, cfg.MaxConcurrentActors)
	}
	if cfg.SoftCapInterval <= 0 {
		return nil, fmt.Errorf("%w: soft cap interval must be positive, got %d",
			config.ErrConfigurationInvalid, cfg.SoftCapInterval)
	}
	if cfg.SoftCapHeadroom < 0 {
		cfg.SoftCapHeadroom = 0
	}
	if cfg.DistanceWorkers < 1 {
		cfg.DistanceWorkers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	if bus == nil {
		bus = event.NewBus()
	}
	return &PromotionSystem{
		store:     store,
		pool:      p,
		observers: observers,
		bus:       bus,
		cfg:       cfg,
		log:       log,
		metrics:   m,
		retire:    make(chan ecs.EntityID, retireQueueSize),
	}, nil
}

func (s *PromotionSystem) Phase() coresys.Phase { return coresys.PhasePromotion }

func (s *PromotionSystem) Update(_ time.Duration) {
	s.tick++
	s.obs = s.observers.ObserverPositions()
	s.growScratch()
	s.drainRetire()

	// Promoted entities first: actors own their motion, so distance comes
	// from the actor and is written back into the entity.
	s.store.ForEachLive(func(e ecs.Entity) {
		if e.Spawn.Promoted {
			s.updatePromoted(e)
		}
	})

	if err := s.computeDistances(); err != nil {
		s.log.Error("distance pass failed, skipping promotion", zap.Uint64("tick", s.tick), zap.Error(err))
		return
	}

	s.store.ForEachLive(func(e ecs.Entity) {
		if !e.Spawn.Promoted {
			s.tryPromote(e)
		}
	})

	if s.tick%uint64(s.cfg.SoftCapInterval) == 0 {
		s.EnforceSoftCap()
	}

	s.metrics.Population(s.pool.ActiveCount(), s.pool.FreeCount(), s.store.Len())
}

func (s *PromotionSystem) growScratch() {
	if n := s.store.Rows(); cap(s.dist) < n {
		s.dist = make([]float64, n, n+n/4)
	} else {
		s.dist = s.dist[:n]
	}
}

// computeDistances fills s.dist for every row from the position column. With
// more than one worker the rows are split into chunks; Wait is the barrier
// that guarantees every distance is written before the pool is touched. A
// non-finite position fails the pass.
func (s *PromotionSystem) computeDistances() error {
	positions := s.store.Positions()
	n := len(positions)
	workers := s.cfg.DistanceWorkers
	if workers <= 1 || n < parallelDistanceMin {
		return fillDistances(s.dist, positions, s.obs, 0, n)
	}
	chunk := (n + workers - 1) / workers
	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			return fillDistances(s.dist, positions, s.obs, lo, hi)
		})
	}
	return g.Wait()
}

func fillDistances(dst []float64, positions, obs []mgl64.Vec3, lo, hi int) error {
	for i := lo; i < hi; i++ {
		p := positions[i]
		if !finite(p) {
			return fmt.Errorf("%w: row %d at %v", errBadDistance, i, p)
		}
		dst[i] = world.NearestDistance(p, obs)
	}
	return nil
}

func finite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

func (s *PromotionSystem) updatePromoted(e ecs.Entity) {
	a, err := s.pool.Resolve(e.Spawn.Actor)
	if err != nil {
		s.reconcile(e)
		return
	}
	t := a.Transform()
	e.SetTransform(t)
	d := world.NearestDistance(t.Location, s.obs)
	s.dist[e.Row] = d

	if d > e.Config.DemotionDistance {
		s.demote(e, d, event.DemoteOutOfRange)
		return
	}
	tier := tierFor(d, e.Config)
	e.Config.TickTier = tier
	a.SetTickTier(tier)
}

func (s *PromotionSystem) tryPromote(e ecs.Entity) {
	if e.Spawn.Cooldown > 0 {
		e.Spawn.Cooldown--
		return
	}
	d := s.dist[e.Row]
	if d > e.Config.PromotionDistance {
		return
	}
	if s.pool.ActiveCount() >= s.admissionLimit() {
		return
	}
	h, err := s.pool.Activate(e.Transform(), e.Spawn.LastHealthFraction)
	if err != nil {
		if !errors.Is(err, pool.ErrPoolExhausted) {
			s.log.Warn("promotion failed", zap.Stringer("entity", e.ID), zap.Error(err))
		}
		return // retried next tick
	}
	e.Spawn.Promoted = true
	e.Spawn.Actor = h

	tier := tierFor(d, e.Config)
	e.Config.TickTier = tier
	if a, err := s.pool.Resolve(h); err == nil {
		a.SetTickTier(tier)
	}

	s.metrics.Promoted()
	s.publish("promoted", s.bus.Promoted.Publish(event.Promoted{
		Entity:   e.ID,
		Actor:    h,
		ClassID:  e.Config.ClassID,
		Distance: d,
		Tick:     s.tick,
	}))
}

// demote fires Demoted with the state about to be preserved, then releases
// the actor and stores what the pool captured.
func (s *PromotionSystem) demote(e ecs.Entity, d float64, reason event.DemoteReason) bool {
	h := e.Spawn.Actor
	snap, err := s.pool.Snapshot(h)
	if err != nil {
		s.reconcile(e)
		return false
	}
	s.publish("demoted", s.bus.Demoted.Publish(event.Demoted{
		Entity:         e.ID,
		Actor:          h,
		HealthFraction: snap.HealthFraction,
		Transform:      snap.Transform,
		Reason:         reason,
		Tick:           s.tick,
	}))

	frac, t, err := s.pool.Deactivate(h)
	if err != nil {
		s.reconcile(e)
		return false
	}
	e.Spawn.Promoted = false
	e.Spawn.Actor = 0
	e.Spawn.LastHealthFraction = frac
	e.Spawn.LastTransform = t
	e.SetTransform(t)
	e.Config.TickTier = component.TierFar
	s.dist[e.Row] = d

	s.metrics.Demoted(reason.String())
	return true
}

// reconcile handles a promoted entity whose actor is gone without having
// been deactivated. Zero health means it died: the entity is removed for
// good. Otherwise it drops back to un-promoted with the last known state.
func (s *PromotionSystem) reconcile(e ecs.Entity) {
	h := e.Spawn.Actor
	snap, recovered := s.pool.Tombstone(h)
	e.Spawn.Promoted = false
	e.Spawn.Actor = 0

	if recovered && snap.HealthFraction <= 0 {
		s.metrics.Died()
		s.publish("died", s.bus.Died.Publish(event.Died{
			Entity:    e.ID,
			Actor:     h,
			ClassID:   e.Config.ClassID,
			Transform: snap.Transform,
			Tick:      s.tick,
		}))
		s.store.Remove(e.ID)
		return
	}

	if recovered {
		e.Spawn.LastHealthFraction = snap.HealthFraction
		e.Spawn.LastTransform = snap.Transform
		e.SetTransform(snap.Transform)
	}
	e.Config.TickTier = component.TierFar
	s.dist[e.Row] = world.NearestDistance(*e.Position, s.obs)

	s.metrics.Reconciled()
	s.log.Debug("stale actor reconciled",
		zap.Stringer("entity", e.ID),
		zap.Bool("recovered", recovered),
		zap.Error(pool.ErrStaleActor))
	s.publish("reconciled", s.bus.Reconciled.Publish(event.Reconciled{
		Entity:         e.ID,
		Actor:          h,
		HealthFraction: e.Spawn.LastHealthFraction,
		Transform:      e.Spawn.LastTransform,
		Recovered:      recovered,
		Tick:           s.tick,
	}))
}

// EnforceSoftCap demotes promoted entities, farthest first, until no more
// than MaxConcurrentActors actors are active. Returns the number evicted.
func (s *PromotionSystem) EnforceSoftCap() int {
	excess := s.pool.ActiveCount() - s.cfg.MaxConcurrentActors
	if excess <= 0 {
		return 0
	}

	s.evictable = s.evictable[:0]
	s.store.ForEachLive(func(e ecs.Entity) {
		if e.Spawn.Promoted {
			s.evictable = append(s.evictable, evictCandidate{row: e.Row, dist: s.dist[e.Row]})
		}
	})
	sort.SliceStable(s.evictable, func(i, j int) bool {
		return s.evictable[i].dist > s.evictable[j].dist
	})

	evicted := 0
	for _, c := range s.evictable {
		if s.pool.ActiveCount() <= s.cfg.MaxConcurrentActors {
			break
		}
		e, ok := s.store.At(c.row)
		if !ok || !e.Spawn.Promoted {
			continue
		}
		h := e.Spawn.Actor
		if !s.demote(e, c.dist, event.DemoteSoftCap) {
			continue
		}
		e.Spawn.Cooldown = s.cfg.EvictionCooldownTicks
		evicted++
		s.metrics.Evicted()
		s.publish("evicted", s.bus.Evicted.Publish(event.Evicted{
			Entity:   e.ID,
			Actor:    h,
			Distance: c.dist,
			Tick:     s.tick,
		}))
	}
	if evicted > 0 {
		s.log.Debug("soft cap enforced",
			zap.Int("evicted", evicted),
			zap.Int("active", s.pool.ActiveCount()),
			zap.Int("cap", s.cfg.MaxConcurrentActors))
	}
	return evicted
}

// Retire permanently removes an entity, releasing its actor first if it has
// one. Owners must use this instead of removing promoted entities directly.
func (s *PromotionSystem) Retire(id ecs.EntityID) bool {
	e, ok := s.store.Get(id)
	if !ok {
		return false
	}
	if e.Spawn.Promoted {
		s.growScratch()
		s.demote(e, s.dist[e.Row], event.DemoteRetired)
	}
	return s.store.Remove(id)
}

// RequestRetire queues id for Retire on the next tick. Safe from any
// goroutine. Returns false when the queue is full.
func (s *PromotionSystem) RequestRetire(id ecs.EntityID) bool {
	select {
	case s.retire <- id:
		return true
	default:
		return false
	}
}

func (s *PromotionSystem) drainRetire() {
	for {
		select {
		case id := <-s.retire:
			if s.Retire(id) {
				s.log.Info("entity retired", zap.Stringer("entity", id))
			}
		default:
			return
		}
	}
}

func (s *PromotionSystem) admissionLimit() int {
	limit := s.cfg.MaxConcurrentActors + s.cfg.SoftCapHeadroom
	if c := s.pool.Capacity(); limit > c {
		limit = c
	}
	return limit
}

func (s *PromotionSystem) publish(topic string, err error) {
	if err != nil {
		s.log.Warn("event subscriber failed", zap.String("topic", topic), zap.Error(err))
	}
}

// Tick returns the number of scheduler passes run so far.
func (s *PromotionSystem) Tick() uint64 { return s.tick }

// tierFor maps a distance onto the near/mid/far bands of the entity's class.
// Classes without bands split the promotion distance in thirds.
func tierFor(d float64, c *component.AgentConfig) component.TickTier {
	near, mid := c.NearBand, c.MidBand
	if near == 0 && mid == 0 {
		near = c.PromotionDistance / 3
		mid = 2 * c.PromotionDistance / 3
	}
	switch {
	case d <= near:
		return component.TierNear
	case d <= mid:
		return component.TierMid
	}
	return component.TierFar
}

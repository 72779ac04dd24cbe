package system

import (
	"sync/atomic"
	"time"

	"github.com/holdfast/server/internal/core/ecs"
	coresys "github.com/holdfast/server/internal/core/system"
	"github.com/holdfast/server/internal/pool"
	"github.com/holdfast/server/internal/world"
)

// PopulationSnapshot is a read-only summary of the simulation, safe to hand
// to other goroutines.
type PopulationSnapshot struct {
	Tick      uint64    `json:"tick"`
	Entities  int       `json:"entities"`
	Promoted  int       `json:"promoted"`
	Active    int       `json:"active_actors"`
	Free      int       `json:"free_actors"`
	Capacity  int       `json:"capacity"`
	Observers int       `json:"observers"`
	Tiers     [3]int    `json:"tiers"` // near, mid, far among promoted
	TakenAt   time.Time `json:"taken_at"`
}

// SnapshotSystem publishes a PopulationSnapshot every interval ticks through
// an atomic pointer, the only state the admin server reads.
// Phase 3 (PostUpdate).
type SnapshotSystem struct {
	store     *ecs.EntityStore
	pool      *pool.Pool
	observers world.ObserverSource
	interval  int

	tick   uint64
	latest atomic.Pointer[PopulationSnapshot]
}

func NewSnapshotSystem(store *ecs.EntityStore, p *pool.Pool, observers world.ObserverSource, interval int) *SnapshotSystem {
	if interval < 1 {
		interval = 1
	}
	return &SnapshotSystem{store: store, pool: p, observers: observers, interval: interval}
}

func (s *SnapshotSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *SnapshotSystem) Update(_ time.Duration) {
	s.tick++
	if s.tick%uint64(s.interval) != 0 && s.latest.Load() != nil {
		return
	}
	s.Publish()
}

// Publish takes a snapshot immediately.
func (s *SnapshotSystem) Publish() {
	snap := &PopulationSnapshot{
		Tick:      s.tick,
		Entities:  s.store.Len(),
		Active:    s.pool.ActiveCount(),
		Free:      s.pool.FreeCount(),
		Capacity:  s.pool.Capacity(),
		Observers: len(s.observers.ObserverPositions()),
		TakenAt:   time.Now(),
	}
	s.store.ForEachLive(func(e ecs.Entity) {
		if e.Spawn.Promoted {
			snap.Promoted++
			snap.Tiers[e.Config.TickTier]++
		}
	})
	s.latest.Store(snap)
}

// Latest returns the most recent snapshot, or nil before the first tick.
func (s *SnapshotSystem) Latest() *PopulationSnapshot { return s.latest.Load() }

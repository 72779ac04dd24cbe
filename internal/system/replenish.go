package system

import (
	"time"

	coresys "github.com/holdfast/server/internal/core/system"
	"github.com/holdfast/server/internal/pool"
)

// ReplenishSystem rebuilds pool actors lost outside the pool on a fixed
// interval of simulated time. Phase 3 (PostUpdate).
type ReplenishSystem struct {
	pool     *pool.Pool
	interval time.Duration
	elapsed  time.Duration
	rebuilt  int
}

func NewReplenishSystem(p *pool.Pool, interval time.Duration) *ReplenishSystem {
	return &ReplenishSystem{pool: p, interval: interval}
}

func (s *ReplenishSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *ReplenishSystem) Update(dt time.Duration) {
	s.elapsed += dt
	if s.elapsed < s.interval {
		return
	}
	s.elapsed = 0
	s.rebuilt += s.pool.Replenish()
}

// Rebuilt is the total number of actors rebuilt so far.
func (s *ReplenishSystem) Rebuilt() int { return s.rebuilt }

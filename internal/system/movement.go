package system

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/holdfast/server/internal/config"
	"github.com/holdfast/server/internal/core/ecs"
	coresys "github.com/holdfast/server/internal/core/system"
	"github.com/holdfast/server/internal/world"
)

type MovementConfig struct {
	DefaultSpeed       float64 // units per second when the class sets none
	ArriveRadius       float64 // entities stop this close to the goal
	SeparationRadius   float64
	SeparationStrength float64 // share of the overlap resolved per tick (0-1)
}

// MovementFromConfig picks the movement settings out of the server config.
func MovementFromConfig(c config.MovementConfig) (MovementConfig, mgl64.Vec3) {
	return MovementConfig{
		DefaultSpeed:       c.DefaultSpeed,
		ArriveRadius:       c.ArriveRadius,
		SeparationRadius:   c.SeparationRadius,
		SeparationStrength: c.SeparationStrength,
	}, mgl64.Vec3(c.Goal)
}

// MovementSystem walks un-promoted entities straight toward a shared goal on
// the ground plane and pushes apart entities closer than SeparationRadius.
// Promoted entities are left to their actor's AI.
// Phase 1 (Movement). Runs before PromotionSystem so promotion sees this
// tick's positions.
type MovementSystem struct {
	store *ecs.EntityStore
	cfg   MovementConfig
	goal  mgl64.Vec3
	grid  *world.SeparationGrid

	push []mgl64.Vec3 // row → separation offset, applied after the scan
}

func NewMovementSystem(store *ecs.EntityStore, cfg MovementConfig, goal mgl64.Vec3) *MovementSystem {
	return &MovementSystem{
		store: store,
		cfg:   cfg,
		goal:  goal,
		grid:  world.NewSeparationGrid(cfg.SeparationRadius),
	}
}

func (s *MovementSystem) Phase() coresys.Phase { return coresys.PhaseMovement }

// SetGoal replaces the cached goal every entity walks toward.
func (s *MovementSystem) SetGoal(g mgl64.Vec3) { s.goal = g }
func (s *MovementSystem) Goal() mgl64.Vec3     { return s.goal }

func (s *MovementSystem) Update(dt time.Duration) {
	sec := dt.Seconds()
	if sec > 0 {
		s.advance(sec)
	}
	if s.cfg.SeparationRadius > 0 && s.cfg.SeparationStrength > 0 {
		s.separate()
	}
}

func (s *MovementSystem) advance(sec float64) {
	goal := s.goal
	s.store.ForEachLive(func(e ecs.Entity) {
		if e.Spawn.Promoted {
			return
		}
		speed := e.Config.MoveSpeed
		if speed <= 0 {
			speed = s.cfg.DefaultSpeed
		}
		if speed <= 0 {
			return
		}
		to := goal.Sub(*e.Position)
		to[2] = 0
		dist := to.Len()
		if dist <= s.cfg.ArriveRadius {
			return
		}
		step := math.Min(speed*sec, dist-s.cfg.ArriveRadius)
		*e.Position = e.Position.Add(to.Mul(step / dist))
		*e.Yaw = math.Atan2(to[1], to[0])
	})
}

// separate computes every push from the pre-move positions first and applies
// them afterwards, so the result does not depend on iteration order.
func (s *MovementSystem) separate() {
	n := s.store.Rows()
	if cap(s.push) < n {
		s.push = make([]mgl64.Vec3, n)
	}
	s.push = s.push[:n]
	for i := range s.push {
		s.push[i] = mgl64.Vec3{}
	}

	s.grid.Reset()
	s.store.ForEachLive(func(e ecs.Entity) {
		if !e.Spawn.Promoted {
			s.grid.Insert(int32(e.Row), *e.Position)
		}
	})

	r := s.cfg.SeparationRadius
	positions := s.store.Positions()
	s.store.ForEachLive(func(e ecs.Entity) {
		if e.Spawn.Promoted {
			return
		}
		p := *e.Position
		s.grid.Nearby(p, func(other int32) {
			o := int(other)
			if o <= e.Row {
				return // each pair once
			}
			delta := p.Sub(positions[o])
			delta[2] = 0
			d := delta.Len()
			if d >= r {
				return
			}
			var dir mgl64.Vec3
			if d < 1e-9 {
				// Coincident: split along a row-dependent direction.
				a := float64(e.Row) * 2.399963 // golden angle
				dir = mgl64.Vec3{math.Cos(a), math.Sin(a), 0}
			} else {
				dir = delta.Mul(1 / d)
			}
			half := dir.Mul((r - d) * s.cfg.SeparationStrength * 0.5)
			s.push[e.Row] = s.push[e.Row].Add(half)
			s.push[o] = s.push[o].Sub(half)
		})
	})

	s.store.ForEachLive(func(e ecs.Entity) {
		if !e.Spawn.Promoted {
			*e.Position = e.Position.Add(s.push[e.Row])
		}
	})
}

package actor

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/holdfast/server/internal/component"
)

// Actor is the heavyweight, fully simulated representation of an agent.
// While inactive it is parked at the pool's sentinel location, hidden, not
// colliding, not replicated and not ticking.
type Actor struct {
	serial uint32
	class  string

	transform component.Transform
	health    float64
	maxHealth float64
	tier      component.TickTier

	active      bool
	hidden      bool
	ticking     bool
	colliding   bool
	replicating bool
	destroyed   bool
}

// New constructs a disabled actor at the given parking location.
func New(serial uint32, class string, maxHealth float64, parked mgl64.Vec3) *Actor {
	if maxHealth <= 0 {
		maxHealth = 1
	}
	a := &Actor{
		serial:    serial,
		class:     class,
		health:    maxHealth,
		maxHealth: maxHealth,
	}
	a.Disable(parked)
	return a
}

func (a *Actor) Serial() uint32 { return a.serial }
func (a *Actor) Class() string  { return a.class }

func (a *Actor) Transform() component.Transform     { return a.transform }
func (a *Actor) SetTransform(t component.Transform) { a.transform = t }

func (a *Actor) Health() float64    { return a.health }
func (a *Actor) MaxHealth() float64 { return a.maxHealth }

// SetHealth clamps h into [0, MaxHealth].
func (a *Actor) SetHealth(h float64) {
	switch {
	case h < 0:
		h = 0
	case h > a.maxHealth:
		h = a.maxHealth
	}
	a.health = h
}

// ApplyDamage is the combat system's entry point. An actor whose health
// reaches zero destroys itself without going back through the pool.
func (a *Actor) ApplyDamage(amount float64) {
	if a.destroyed || amount <= 0 {
		return
	}
	a.SetHealth(a.health - amount)
	if a.health == 0 {
		a.Destroy()
	}
}

// Destroy removes the actor from the game outside of the pool's control.
// The pool notices on its next Resolve or Replenish.
func (a *Actor) Destroy() {
	a.destroyed = true
	a.active = false
	a.ticking = false
	a.colliding = false
	a.replicating = false
	a.hidden = true
}

func (a *Actor) Destroyed() bool   { return a.destroyed }
func (a *Actor) Active() bool      { return a.active }
func (a *Actor) Hidden() bool      { return a.hidden }
func (a *Actor) Ticking() bool     { return a.ticking }
func (a *Actor) Colliding() bool   { return a.colliding }
func (a *Actor) Replicating() bool { return a.replicating }

// TickTier is the throttling hint last forwarded by the scheduler.
func (a *Actor) TickTier() component.TickTier     { return a.tier }
func (a *Actor) SetTickTier(t component.TickTier) { a.tier = t }

// Enable turns on ticking, collision, replication and visibility.
func (a *Actor) Enable() {
	a.active = true
	a.hidden = false
	a.ticking = true
	a.colliding = true
	a.replicating = true
	a.tier = component.TierNear
}

// Disable turns everything off and parks the actor at loc.
func (a *Actor) Disable(loc mgl64.Vec3) {
	a.active = false
	a.hidden = true
	a.ticking = false
	a.colliding = false
	a.replicating = false
	a.transform = component.Transform{Location: loc}
}

// Factory builds a fresh, disabled actor for a pool slot.
type Factory func(serial uint32, parked mgl64.Vec3) *Actor

// NewFactory returns a Factory for one actor class.
func NewFactory(class string, maxHealth float64) Factory {
	return func(serial uint32, parked mgl64.Vec3) *Actor {
		return New(serial, class, maxHealth, parked)
	}
}

package event

import (
	"github.com/holdfast/server/internal/component"
	"github.com/holdfast/server/internal/core/ecs"
)

// Promoted fires after an entity was bound to a live actor.
type Promoted struct {
	Entity   ecs.EntityID
	Actor    component.ActorHandle
	ClassID  int32
	Distance float64
	Tick     uint64
}

// DemoteReason says why an actor was released.
type DemoteReason uint8

const (
	DemoteOutOfRange DemoteReason = iota // drifted past the demotion distance
	DemoteSoftCap                        // evicted by the soft cap
	DemoteRetired                        // entity retired by its owner
)

func (r DemoteReason) String() string {
	switch r {
	case DemoteOutOfRange:
		return "out_of_range"
	case DemoteSoftCap:
		return "soft_cap"
	case DemoteRetired:
		return "retired"
	}
	return "unknown"
}

// Demoted fires just before the actor is deactivated, carrying the state the
// entity is about to keep.
type Demoted struct {
	Entity         ecs.EntityID
	Actor          component.ActorHandle
	HealthFraction float64
	Transform      component.Transform
	Reason         DemoteReason
	Tick           uint64
}

// Evicted fires when the soft cap forces a demotion.
type Evicted struct {
	Entity   ecs.EntityID
	Actor    component.ActorHandle
	Distance float64
	Tick     uint64
}

// Died fires when an entity's actor was destroyed at zero health. The entity
// is removed from the store right after.
type Died struct {
	Entity    ecs.EntityID
	Actor     component.ActorHandle
	ClassID   int32
	Transform component.Transform
	Tick      uint64
}

// Reconciled fires when an actor vanished outside the pool but the agent was
// still alive; the entity falls back to un-promoted with the last known state.
type Reconciled struct {
	Entity         ecs.EntityID
	Actor          component.ActorHandle
	HealthFraction float64
	Transform      component.Transform
	Recovered      bool // false when no last-moment snapshot was available
	Tick           uint64
}

package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseSpawn      Phase = iota // 0: seed the population
	PhaseMovement                // 1: advance un-promoted entities
	PhasePromotion               // 2: promote / demote / soft cap
	PhasePostUpdate              // 3: pool replenishment, snapshots
	PhasePersist                 // 4: ledger flush
	PhaseCleanup                 // 5: compact the entity store
)

// System is the interface every simulation system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}

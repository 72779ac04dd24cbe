package system

import (
	"time"

	"github.com/holdfast/server/internal/core/ecs"
	coresys "github.com/holdfast/server/internal/core/system"
)

// CleanupSystem reclaims rows of entities removed during the tick.
// Phase 5 (Cleanup).
type CleanupSystem struct {
	store *ecs.EntityStore
}

func NewCleanupSystem(store *ecs.EntityStore) *CleanupSystem {
	return &CleanupSystem{store: store}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.store.Compact()
}

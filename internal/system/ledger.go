package system

import (
	"time"

	"github.com/google/uuid"
	"github.com/holdfast/server/internal/core/event"
	coresys "github.com/holdfast/server/internal/core/system"
	"github.com/holdfast/server/internal/persist"
	"go.uber.org/zap"
)

// LedgerSink accepts kill batches without blocking the loop.
type LedgerSink interface {
	Submit(batch []persist.KillRecord) bool
}

// LedgerSystem collects permanent deaths from the bus and hands them to the
// ledger writer in batches. Phase 4 (Persist).
type LedgerSystem struct {
	sink     LedgerSink
	runID    uuid.UUID
	interval time.Duration
	log      *zap.Logger
	now      func() time.Time

	elapsed time.Duration
	pending []persist.KillRecord
	unsub   func()
}

// NewLedgerSystem subscribes to Died on bus. Every record carries runID so
// kills from separate runs never mix.
func NewLedgerSystem(bus *event.Bus, sink LedgerSink, runID uuid.UUID, interval time.Duration, log *zap.Logger) *LedgerSystem {
	if log == nil {
		log = zap.NewNop()
	}
	s := &LedgerSystem{
		sink:     sink,
		runID:    runID,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
	s.unsub = bus.Died.Subscribe(s.record)
	return s
}

func (s *LedgerSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *LedgerSystem) record(ev event.Died) error {
	loc := ev.Transform.Location
	s.pending = append(s.pending, persist.KillRecord{
		RunID:       s.runID,
		EntityIndex: ev.Entity.Index(),
		EntityGen:   ev.Entity.Generation(),
		ClassID:     ev.ClassID,
		X:           loc[0],
		Y:           loc[1],
		Z:           loc[2],
		Tick:        ev.Tick,
		KilledAt:    s.now(),
	})
	return nil
}

func (s *LedgerSystem) Update(dt time.Duration) {
	s.elapsed += dt
	if s.elapsed < s.interval {
		return
	}
	s.elapsed = 0
	s.Flush()
}

// Flush submits everything pending regardless of the interval. Called on
// shutdown so the last kills are not lost.
func (s *LedgerSystem) Flush() {
	if len(s.pending) == 0 {
		return
	}
	batch := s.pending
	s.pending = nil
	if !s.sink.Submit(batch) {
		s.log.Warn("kill ledger batch rejected", zap.Int("rows", len(batch)))
	}
}

// Pending is the number of kills not yet submitted.
func (s *LedgerSystem) Pending() int { return len(s.pending) }

// Close stops listening for deaths.
func (s *LedgerSystem) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

package system

import (
	"sort"
	"time"
)

// Runner executes systems in phase order each tick. Systems sharing a phase
// run in registration order.
type Runner struct {
	systems   []System
	sorted    bool
	ticks     uint64
	started   bool
	onStarted []func()
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Started reports whether the first tick has begun.
func (r *Runner) Started() bool { return r.started }

// OnStarted registers a one-shot callback fired at the beginning of the first
// tick, before any system runs. Registering after start calls fn at once.
func (r *Runner) OnStarted(fn func()) {
	if r.started {
		fn()
		return
	}
	r.onStarted = append(r.onStarted, fn)
}

// Ticks returns the number of completed ticks.
func (r *Runner) Ticks() uint64 { return r.ticks }

func (r *Runner) Tick(dt time.Duration) {
	r.start()
	r.ensureSorted()
	for _, s := range r.systems {
		s.Update(dt)
	}
	r.ticks++
}

func (r *Runner) start() {
	if r.started {
		return
	}
	r.started = true
	callbacks := r.onStarted
	r.onStarted = nil
	for _, fn := range callbacks {
		fn()
	}
}

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}

package world

import (
	"math"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
)

// ObserverSource supplies the points promotion distances are measured from.
type ObserverSource interface {
	ObserverPositions() []mgl64.Vec3
}

// StaticObservers is a fixed list of observer positions.
type StaticObservers []mgl64.Vec3

func (s StaticObservers) ObserverPositions() []mgl64.Vec3 { return s }

// ObserverSet is a mutable set of named observers. It is written by whatever
// tracks players or cameras (the admin API in this server) and read once per
// tick by the scheduler, so it is the one world type that locks.
type ObserverSet struct {
	mu        sync.RWMutex
	positions map[string]mgl64.Vec3
}

func NewObserverSet() *ObserverSet {
	return &ObserverSet{positions: make(map[string]mgl64.Vec3)}
}

func (s *ObserverSet) Set(id string, p mgl64.Vec3) {
	s.mu.Lock()
	s.positions[id] = p
	s.mu.Unlock()
}

// Remove drops an observer. Returns false if it was unknown.
func (s *ObserverSet) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[id]; !ok {
		return false
	}
	delete(s.positions, id)
	return true
}

func (s *ObserverSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.positions)
}

// ObserverPositions returns a copy ordered by observer id.
func (s *ObserverSet) ObserverPositions() []mgl64.Vec3 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.positions))
	for id := range s.positions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]mgl64.Vec3, len(ids))
	for i, id := range ids {
		out[i] = s.positions[id]
	}
	return out
}

// NearestDistance returns the distance from p to the closest observer, or
// +Inf when there are none.
func NearestDistance(p mgl64.Vec3, observers []mgl64.Vec3) float64 {
	best := math.Inf(1)
	for _, o := range observers {
		if d := p.Sub(o).LenSqr(); d < best {
			best = d
		}
	}
	return math.Sqrt(best)
}

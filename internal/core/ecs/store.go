package ecs

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/holdfast/server/internal/component"
)

// Entity is a row view into the store. The pointers alias the store's
// columns and stay valid until the next CreateEntities or Compact call.
type Entity struct {
	ID       EntityID
	Row      int
	Position *mgl64.Vec3
	Yaw      *float64
	Spawn    *component.SpawnState
	Config   *component.AgentConfig
}

// Transform returns the entity's current location and heading.
func (e Entity) Transform() component.Transform {
	return component.Transform{Location: *e.Position, Yaw: *e.Yaw}
}

// SetTransform overwrites location and heading.
func (e Entity) SetTransform(t component.Transform) {
	*e.Position = t.Location
	*e.Yaw = t.Yaw
}

// EntityStore keeps per-agent data in parallel columns indexed by row.
// Rows are kept in creation order. Remove invalidates the handle at once but
// only tombstones the row; Compact squeezes tombstones out without reordering
// the survivors. Accessed only from the game loop goroutine, no locks.
type EntityStore struct {
	alloc indexAllocator
	rowOf []int32 // entity index → row, -1 when the index has no row

	ids       []EntityID // zero marks a tombstoned row
	positions []mgl64.Vec3
	yaws      []float64
	spawn     []component.SpawnState
	config    []component.AgentConfig

	live int
	dead int
}

func NewEntityStore() *EntityStore {
	return &EntityStore{
		rowOf:     make([]int32, 0, 1024),
		ids:       make([]EntityID, 0, 1024),
		positions: make([]mgl64.Vec3, 0, 1024),
		yaws:      make([]float64, 0, 1024),
		spawn:     make([]component.SpawnState, 0, 1024),
		config:    make([]component.AgentConfig, 0, 1024),
	}
}

// CreateEntities appends count un-promoted entities. Entity i starts at
// initial[i] when present, otherwise at the origin. Every entity starts at
// full health.
func (s *EntityStore) CreateEntities(count int, initial []component.Transform, cfg component.AgentConfig) []EntityID {
	out := make([]EntityID, 0, count)
	for i := 0; i < count; i++ {
		var t component.Transform
		if i < len(initial) {
			t = initial[i]
		}
		id := s.alloc.allocate()
		idx := int(id.Index())
		for len(s.rowOf) <= idx {
			s.rowOf = append(s.rowOf, -1)
		}
		s.rowOf[idx] = int32(len(s.ids))

		s.ids = append(s.ids, id)
		s.positions = append(s.positions, t.Location)
		s.yaws = append(s.yaws, t.Yaw)
		s.spawn = append(s.spawn, component.SpawnState{
			LastHealthFraction: 1,
			LastTransform:      t,
		})
		s.config = append(s.config, cfg)
		s.live++
		out = append(out, id)
	}
	return out
}

// Alive reports whether id still names a live entity.
func (s *EntityStore) Alive(id EntityID) bool {
	if id.IsZero() || !s.alloc.current(id) {
		return false
	}
	idx := id.Index()
	return int(idx) < len(s.rowOf) && s.rowOf[idx] >= 0
}

// Get returns the row view for id.
func (s *EntityStore) Get(id EntityID) (Entity, bool) {
	if !s.Alive(id) {
		return Entity{}, false
	}
	return s.view(int(s.rowOf[id.Index()])), true
}

// At returns the row view at row, or false for tombstones and out-of-range rows.
func (s *EntityStore) At(row int) (Entity, bool) {
	if row < 0 || row >= len(s.ids) || s.ids[row].IsZero() {
		return Entity{}, false
	}
	return s.view(row), true
}

func (s *EntityStore) view(row int) Entity {
	return Entity{
		ID:       s.ids[row],
		Row:      row,
		Position: &s.positions[row],
		Yaw:      &s.yaws[row],
		Spawn:    &s.spawn[row],
		Config:   &s.config[row],
	}
}

// ForEachLive calls fn once for every live entity in row order. Entities
// removed during the walk are skipped from that point on; entities created
// during the walk are not visited.
func (s *EntityStore) ForEachLive(fn func(Entity)) {
	n := len(s.ids)
	for row := 0; row < n; row++ {
		if s.ids[row].IsZero() {
			continue
		}
		fn(s.view(row))
	}
}

// Remove drops an entity permanently. Returns false for stale handles.
func (s *EntityStore) Remove(id EntityID) bool {
	if !s.Alive(id) {
		return false
	}
	row := s.rowOf[id.Index()]
	s.alloc.release(id)
	s.rowOf[id.Index()] = -1
	s.ids[row] = 0
	s.spawn[row] = component.SpawnState{}
	s.live--
	s.dead++
	return true
}

// Compact reclaims tombstoned rows, preserving the order of live rows.
func (s *EntityStore) Compact() {
	if s.dead == 0 {
		return
	}
	w := 0
	for r := range s.ids {
		id := s.ids[r]
		if id.IsZero() {
			continue
		}
		if w != r {
			s.ids[w] = id
			s.positions[w] = s.positions[r]
			s.yaws[w] = s.yaws[r]
			s.spawn[w] = s.spawn[r]
			s.config[w] = s.config[r]
		}
		s.rowOf[id.Index()] = int32(w)
		w++
	}
	s.ids = s.ids[:w]
	s.positions = s.positions[:w]
	s.yaws = s.yaws[:w]
	s.spawn = s.spawn[:w]
	s.config = s.config[:w]
	s.dead = 0
}

// Len is the number of live entities.
func (s *EntityStore) Len() int { return s.live }

// Rows is the number of rows including tombstones; row-indexed scratch
// buffers must be at least this long.
func (s *EntityStore) Rows() int { return len(s.ids) }

// Positions exposes the position column for read-only bulk passes.
// Tombstoned rows hold stale values; check At or ForEachLive for liveness.
func (s *EntityStore) Positions() []mgl64.Vec3 { return s.positions }

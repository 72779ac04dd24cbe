package ecs

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/holdfast/server/internal/component"
)

func ringOf(n int) []component.Transform {
	out := make([]component.Transform, n)
	for i := range out {
		out[i] = component.Transform{Location: mgl64.Vec3{float64(i), 0, 0}}
	}
	return out
}

func liveOrder(s *EntityStore) []EntityID {
	var ids []EntityID
	s.ForEachLive(func(e Entity) { ids = append(ids, e.ID) })
	return ids
}

func TestCreateEntitiesInitialState(t *testing.T) {
	s := NewEntityStore()
	cfg := component.AgentConfig{ClassID: 7, PromotionDistance: 10, DemotionDistance: 20}
	ids := s.CreateEntities(3, ringOf(3), cfg)

	if len(ids) != 3 || s.Len() != 3 {
		t.Fatalf("created %d, Len %d; want 3", len(ids), s.Len())
	}
	for i, id := range ids {
		if id.IsZero() {
			t.Fatalf("entity %d has zero id", i)
		}
		e, ok := s.Get(id)
		if !ok {
			t.Fatalf("entity %d not found", i)
		}
		if (*e.Position)[0] != float64(i) {
			t.Errorf("entity %d at %v", i, *e.Position)
		}
		if e.Spawn.Promoted || !e.Spawn.Actor.IsZero() {
			t.Errorf("entity %d starts promoted", i)
		}
		if e.Spawn.LastHealthFraction != 1 {
			t.Errorf("entity %d health %v, want 1", i, e.Spawn.LastHealthFraction)
		}
		if e.Config.ClassID != 7 {
			t.Errorf("entity %d class %d", i, e.Config.ClassID)
		}
	}
}

func TestForEachLiveStableOrder(t *testing.T) {
	s := NewEntityStore()
	ids := s.CreateEntities(5, ringOf(5), component.AgentConfig{})

	first := liveOrder(s)
	second := liveOrder(s)
	for i := range ids {
		if first[i] != ids[i] || second[i] != ids[i] {
			t.Fatalf("order changed at %d: %v / %v", i, first, second)
		}
	}
}

func TestRemoveInvalidatesHandle(t *testing.T) {
	s := NewEntityStore()
	ids := s.CreateEntities(3, nil, component.AgentConfig{})

	if !s.Remove(ids[1]) {
		t.Fatal("Remove returned false for live entity")
	}
	if s.Alive(ids[1]) {
		t.Error("removed entity still alive")
	}
	if s.Remove(ids[1]) {
		t.Error("second Remove succeeded")
	}
	if _, ok := s.Get(ids[1]); ok {
		t.Error("Get returned removed entity")
	}
	if got := liveOrder(s); len(got) != 2 || got[0] != ids[0] || got[1] != ids[2] {
		t.Errorf("live order after remove = %v", got)
	}
	if s.Len() != 2 || s.Rows() != 3 {
		t.Errorf("Len %d Rows %d, want 2 and 3 before compaction", s.Len(), s.Rows())
	}
}

func TestCompactPreservesOrderAndHandles(t *testing.T) {
	s := NewEntityStore()
	ids := s.CreateEntities(6, ringOf(6), component.AgentConfig{})
	s.Remove(ids[0])
	s.Remove(ids[3])
	s.Compact()

	if s.Rows() != 4 {
		t.Fatalf("Rows after compact = %d, want 4", s.Rows())
	}
	want := []EntityID{ids[1], ids[2], ids[4], ids[5]}
	got := liveOrder(s)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order after compact = %v, want %v", got, want)
		}
	}
	for _, id := range want {
		e, ok := s.Get(id)
		if !ok {
			t.Fatalf("%v lost by compact", id)
		}
		if (*e.Position)[0] != float64(id.Index()) {
			t.Errorf("%v carries position %v", id, *e.Position)
		}
	}
}

func TestIndexReuseBumpsGeneration(t *testing.T) {
	s := NewEntityStore()
	old := s.CreateEntities(1, nil, component.AgentConfig{})[0]
	s.Remove(old)
	s.Compact()
	fresh := s.CreateEntities(1, nil, component.AgentConfig{})[0]

	if fresh.Index() != old.Index() {
		t.Fatalf("index not reused: %v vs %v", fresh, old)
	}
	if fresh.Generation() == old.Generation() {
		t.Fatal("generation not bumped on reuse")
	}
	if s.Alive(old) {
		t.Error("stale handle resolves to the new occupant")
	}
	if !s.Alive(fresh) {
		t.Error("fresh handle not alive")
	}
}

func TestRemoveDuringIteration(t *testing.T) {
	s := NewEntityStore()
	ids := s.CreateEntities(4, nil, component.AgentConfig{})
	visited := 0
	s.ForEachLive(func(e Entity) {
		visited++
		if e.ID == ids[0] {
			s.Remove(ids[2])
		}
	})
	if visited != 3 {
		t.Errorf("visited %d, want 3", visited)
	}
}

func TestParseEntityID(t *testing.T) {
	tests := []struct {
		in      string
		want    EntityID
		wantErr bool
	}{
		{"7:3", NewEntityID(7, 3), false},
		{"0:1", NewEntityID(0, 1), false},
		{"4294967295:4294967295", NewEntityID(1<<32-1, 1<<32-1), false},
		{"7", 0, true},
		{"7:0", 0, true},
		{"x:1", 0, true},
		{"1:-2", 0, true},
		{"4294967296:1", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEntityID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
	id := NewEntityID(12, 5)
	if back, err := ParseEntityID(id.String()); err != nil || back != id {
		t.Errorf("String round trip = %s, %v", back, err)
	}
}

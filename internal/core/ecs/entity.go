package ecs

import (
	"fmt"
	"strconv"
	"strings"
)

// EntityID encodes a 32-bit index in the lower bits and a 32-bit generation
// in the upper bits. Generation increments on removal to invalidate stale refs.
// Generations start at 1, so the zero EntityID never names a live entity.
type EntityID uint64

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == 0 }

func (id EntityID) String() string {
	return fmt.Sprintf("%d:%d", id.Index(), id.Generation())
}

// ParseEntityID reads the index:generation form produced by String.
func ParseEntityID(s string) (EntityID, error) {
	idx, gen, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("entity id %q: want index:generation", s)
	}
	i, err := strconv.ParseUint(idx, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("entity id %q: index: %w", s, err)
	}
	g, err := strconv.ParseUint(gen, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("entity id %q: generation: %w", s, err)
	}
	if g == 0 {
		return 0, fmt.Errorf("entity id %q: generation must be positive", s)
	}
	return NewEntityID(uint32(i), uint32(g)), nil
}

// indexAllocator hands out entity indices with generational reuse.
type indexAllocator struct {
	generations []uint32
	freeList    []uint32
}

func (a *indexAllocator) allocate() EntityID {
	if n := len(a.freeList); n > 0 {
		idx := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		return NewEntityID(idx, a.generations[idx])
	}
	idx := uint32(len(a.generations))
	a.generations = append(a.generations, 1)
	return NewEntityID(idx, 1)
}

func (a *indexAllocator) current(id EntityID) bool {
	idx := id.Index()
	return int(idx) < len(a.generations) && a.generations[idx] == id.Generation()
}

func (a *indexAllocator) release(id EntityID) bool {
	if !a.current(id) {
		return false // already released (stale reference)
	}
	idx := id.Index()
	a.generations[idx]++
	if a.generations[idx] == 0 {
		a.generations[idx] = 1
	}
	a.freeList = append(a.freeList, idx)
	return true
}

package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// SeparationGrid is a cell-based spatial hash on the ground plane (X/Y).
// Cell size equals the separation radius, so a 3x3 neighbourhood of cells
// covers every neighbour that can push. Rebuilt every tick; accessed only
// from the game loop goroutine, no locks.
type SeparationGrid struct {
	cellSize float64
	inv      float64
	cells    map[cellKey][]int32 // cellKey → entity rows
}

type cellKey struct {
	cx int32
	cy int32
}

func NewSeparationGrid(cellSize float64) *SeparationGrid {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &SeparationGrid{
		cellSize: cellSize,
		inv:      1 / cellSize,
		cells:    make(map[cellKey][]int32),
	}
}

func (g *SeparationGrid) key(p mgl64.Vec3) cellKey {
	return cellKey{
		cx: int32(math.Floor(p[0] * g.inv)),
		cy: int32(math.Floor(p[1] * g.inv)),
	}
}

// Reset empties every cell but keeps the allocated slices.
func (g *SeparationGrid) Reset() {
	for k, rows := range g.cells {
		g.cells[k] = rows[:0]
	}
}

// Insert places a row at p.
func (g *SeparationGrid) Insert(row int32, p mgl64.Vec3) {
	k := g.key(p)
	g.cells[k] = append(g.cells[k], row)
}

// Nearby calls fn for every row in the 3x3 neighbourhood around p. Caller
// does fine-grained distance filtering.
func (g *SeparationGrid) Nearby(p mgl64.Vec3, fn func(row int32)) {
	c := g.key(p)
	for dx := int32(-1); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for _, row := range g.cells[cellKey{cx: c.cx + dx, cy: c.cy + dy}] {
				fn(row)
			}
		}
	}
}

func (g *SeparationGrid) CellSize() float64 { return g.cellSize }

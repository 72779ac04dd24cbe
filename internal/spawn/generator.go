// Package spawn produces initial world positions for batches of agents.
package spawn

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/holdfast/server/internal/component"
	"github.com/holdfast/server/internal/metrics"
	"go.uber.org/zap"
)

// ErrSpawnValidationFailed means no navigable point was found near a
// candidate, even after retrying at other radii.
var ErrSpawnValidationFailed = errors.New("spawn validation failed")

// NavQuery answers whether a point lies on the navigable surface and, when
// it does, returns the point snapped onto it.
type NavQuery interface {
	IsNavigable(pos mgl64.Vec3, tolerance float64) (mgl64.Vec3, bool)
}

// FailurePolicy decides what happens to a candidate that never validates.
type FailurePolicy uint8

const (
	KeepRaw FailurePolicy = iota // use the unvalidated ring position
	Discard                      // drop the candidate from the batch
)

func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "keep", "":
		return KeepRaw, nil
	case "discard":
		return Discard, nil
	}
	return KeepRaw, fmt.Errorf("unknown spawn failure policy %q", s)
}

type Options struct {
	Tolerance     float64
	RetryStep     float64 // radius offset between retries
	RetryAttempts int     // extra radii tried after the first miss
	Policy        FailurePolicy
}

// Generator lays candidates out on rings. With a nil NavQuery every
// candidate is used as is.
type Generator struct {
	nav      NavQuery
	opts     Options
	log      *zap.Logger
	metrics  *metrics.Collector
	failures int
}

func NewGenerator(nav NavQuery, opts Options, log *zap.Logger, m *metrics.Collector) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{nav: nav, opts: opts, log: log, metrics: m}
}

// Ring returns up to count transforms spread evenly by angle on a circle of
// the given radius around center, each facing the center. Fewer come back
// only when the Discard policy drops candidates.
func (g *Generator) Ring(center mgl64.Vec3, radius float64, count int) []component.Transform {
	if count <= 0 {
		return nil
	}
	out := make([]component.Transform, 0, count)
	step := 2 * math.Pi / float64(count)
	for i := 0; i < count; i++ {
		angle := float64(i) * step
		pos, err := g.place(center, radius, angle)
		if err != nil {
			g.failures++
			g.metrics.SpawnValidationFailed()
			if g.opts.Policy == Discard {
				g.log.Warn("spawn candidate discarded",
					zap.Int("index", i), zap.Float64("radius", radius), zap.Error(err))
				continue
			}
			g.log.Warn("spawn candidate kept unvalidated",
				zap.Int("index", i), zap.Float64("radius", radius), zap.Error(err))
		}
		out = append(out, component.Transform{
			Location: pos,
			Yaw:      math.Atan2(center[1]-pos[1], center[0]-pos[0]),
		})
	}
	return out
}

// place validates the ring point at angle, retrying at radius ± k·RetryStep.
// On failure it returns the raw ring point with ErrSpawnValidationFailed.
func (g *Generator) place(center mgl64.Vec3, radius, angle float64) (mgl64.Vec3, error) {
	raw := ringPoint(center, radius, angle)
	if g.nav == nil {
		return raw, nil
	}
	if p, ok := g.nav.IsNavigable(raw, g.opts.Tolerance); ok {
		return p, nil
	}
	for k := 1; k <= g.opts.RetryAttempts; k++ {
		r := radius + retryOffset(k, g.opts.RetryStep)
		if r <= 0 {
			continue
		}
		if p, ok := g.nav.IsNavigable(ringPoint(center, r, angle), g.opts.Tolerance); ok {
			return p, nil
		}
	}
	return raw, fmt.Errorf("%w at (%.1f, %.1f, %.1f)", ErrSpawnValidationFailed, raw[0], raw[1], raw[2])
}

// retryOffset walks outward alternately: +step, -step, +2step, -2step, ...
func retryOffset(k int, step float64) float64 {
	n := float64((k + 1) / 2)
	if k%2 == 1 {
		return n * step
	}
	return -n * step
}

func ringPoint(center mgl64.Vec3, radius, angle float64) mgl64.Vec3 {
	return mgl64.Vec3{
		center[0] + radius*math.Cos(angle),
		center[1] + radius*math.Sin(angle),
		center[2],
	}
}

// Failures counts candidates that never validated.
func (g *Generator) Failures() int { return g.failures }

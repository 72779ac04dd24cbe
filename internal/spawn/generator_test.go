package spawn

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"go.uber.org/zap/zaptest"
)

// annulusNav accepts points whose distance from the origin lies in
// [min, max] and snaps them to z = 0.
type annulusNav struct {
	min, max float64
	queries  int
}

func (n *annulusNav) IsNavigable(p mgl64.Vec3, _ float64) (mgl64.Vec3, bool) {
	n.queries++
	d := math.Hypot(p[0], p[1])
	if d < n.min || d > n.max {
		return mgl64.Vec3{}, false
	}
	return mgl64.Vec3{p[0], p[1], 0}, true
}

func TestRingEvenDistribution(t *testing.T) {
	g := NewGenerator(nil, Options{}, zaptest.NewLogger(t), nil)
	center := mgl64.Vec3{100, -50, 7}
	pts := g.Ring(center, 2000, 8)

	if len(pts) != 8 {
		t.Fatalf("got %d points, want 8", len(pts))
	}
	for i, p := range pts {
		rel := p.Location.Sub(center)
		if d := math.Hypot(rel[0], rel[1]); math.Abs(d-2000) > 1e-6 {
			t.Errorf("point %d at radius %v", i, d)
		}
		if p.Location[2] != center[2] {
			t.Errorf("point %d height %v", i, p.Location[2])
		}
		wantAngle := float64(i) * math.Pi / 4
		got := math.Atan2(rel[1], rel[0])
		if diff := math.Remainder(got-wantAngle, 2*math.Pi); math.Abs(diff) > 1e-9 {
			t.Errorf("point %d angle %v, want %v", i, got, wantAngle)
		}
		// Facing the center means the yaw points back along -rel.
		face := mgl64.Vec3{math.Cos(p.Yaw), math.Sin(p.Yaw), 0}
		if face.Dot(rel.Normalize()) > -0.999 {
			t.Errorf("point %d does not face the center", i)
		}
	}
}

func TestRingZeroCount(t *testing.T) {
	g := NewGenerator(nil, Options{}, nil, nil)
	if pts := g.Ring(mgl64.Vec3{}, 100, 0); len(pts) != 0 {
		t.Errorf("got %d points for count 0", len(pts))
	}
}

func TestRingSnapsToNavigableSurface(t *testing.T) {
	nav := &annulusNav{min: 0, max: 5000}
	g := NewGenerator(nav, Options{Tolerance: 10}, nil, nil)
	pts := g.Ring(mgl64.Vec3{0, 0, 40}, 1000, 4)

	for i, p := range pts {
		if p.Location[2] != 0 {
			t.Errorf("point %d not snapped: %v", i, p.Location)
		}
	}
	if g.Failures() != 0 {
		t.Errorf("failures = %d", g.Failures())
	}
}

func TestRingRetriesAtOtherRadii(t *testing.T) {
	// Only the band 1150..1250 is walkable; the ring asks for 1000.
	nav := &annulusNav{min: 1150, max: 1250}
	g := NewGenerator(nav, Options{RetryStep: 100, RetryAttempts: 4}, nil, nil)
	pts := g.Ring(mgl64.Vec3{}, 1000, 6)

	if len(pts) != 6 || g.Failures() != 0 {
		t.Fatalf("points %d failures %d", len(pts), g.Failures())
	}
	for i, p := range pts {
		if d := math.Hypot(p.Location[0], p.Location[1]); math.Abs(d-1200) > 1e-6 {
			t.Errorf("point %d at radius %v, want 1200", i, d)
		}
	}
}

func TestRingFailurePolicies(t *testing.T) {
	blocked := &annulusNav{min: 9000, max: 9001}

	keep := NewGenerator(blocked, Options{RetryStep: 10, RetryAttempts: 2, Policy: KeepRaw}, zaptest.NewLogger(t), nil)
	pts := keep.Ring(mgl64.Vec3{}, 500, 5)
	if len(pts) != 5 || keep.Failures() != 5 {
		t.Fatalf("keep: points %d failures %d", len(pts), keep.Failures())
	}
	if d := math.Hypot(pts[0].Location[0], pts[0].Location[1]); math.Abs(d-500) > 1e-6 {
		t.Errorf("kept point not at raw radius: %v", d)
	}

	drop := NewGenerator(blocked, Options{RetryStep: 10, RetryAttempts: 2, Policy: Discard}, zaptest.NewLogger(t), nil)
	if pts := drop.Ring(mgl64.Vec3{}, 500, 5); len(pts) != 0 || drop.Failures() != 5 {
		t.Fatalf("discard: points %d failures %d", len(pts), drop.Failures())
	}
}

func TestRetryOffsetSequence(t *testing.T) {
	want := []float64{10, -10, 20, -20, 30}
	for k := 1; k <= len(want); k++ {
		if got := retryOffset(k, 10); got != want[k-1] {
			t.Errorf("retryOffset(%d) = %v, want %v", k, got, want[k-1])
		}
	}
}

func TestParseFailurePolicy(t *testing.T) {
	if p, err := ParseFailurePolicy("discard"); err != nil || p != Discard {
		t.Errorf("discard -> %v, %v", p, err)
	}
	if p, err := ParseFailurePolicy("keep"); err != nil || p != KeepRaw {
		t.Errorf("keep -> %v, %v", p, err)
	}
	if _, err := ParseFailurePolicy("teleport"); err == nil {
		t.Error("unknown policy accepted")
	}
}

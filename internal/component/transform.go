package component

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Transform is a world location plus heading. Yaw is in radians, measured
// from +X toward +Y on the ground plane (Z is up).
type Transform struct {
	Location mgl64.Vec3
	Yaw      float64
}

// NearlyEqual reports whether both transforms agree within an absolute eps on
// every axis and on yaw.
func (t Transform) NearlyEqual(o Transform, eps float64) bool {
	for i := 0; i < 3; i++ {
		if math.Abs(t.Location[i]-o.Location[i]) > eps {
			return false
		}
	}
	return math.Abs(t.Yaw-o.Yaw) <= eps
}

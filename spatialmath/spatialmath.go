// Package spatialmath provides the small set of frame and angle utilities the
// rest of the control core is built on. The world frame is right-handed with
// +Y up; an agent with zero yaw faces +Z. Yaw is measured in degrees,
// clockwise positive when viewed from above.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"go.viam.com/rdk/utils"
)

// NormalizeDeg maps an angle in degrees onto (-180, 180].
func NormalizeDeg(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}

// HeadingDeltaDeg returns the signed shortest rotation from one yaw to
// another, in (-180, 180].
func HeadingDeltaDeg(fromDeg, toDeg float64) float64 {
	return NormalizeDeg(toDeg - fromDeg)
}

// ForwardFromYaw returns the unit forward vector of an agent at the given yaw.
func ForwardFromYaw(yawDeg float64) r3.Vector {
	rad := utils.DegToRad(yawDeg)
	return r3.Vector{X: math.Sin(rad), Y: 0, Z: math.Cos(rad)}
}

// YawTowardDeg returns the yaw an agent at from would need to face the point
// at to. Both points are taken in the world frame; height is ignored.
func YawTowardDeg(from, to r3.Vector) float64 {
	return utils.RadToDeg(math.Atan2(to.X-from.X, to.Z-from.Z))
}

// FlatDistance returns the distance between two world points projected onto
// the ground plane.
func FlatDistance(a, b r3.Vector) float64 {
	dx := a.X - b.X
	dz := a.Z - b.Z
	return math.Hypot(dx, dz)
}

// WorldToAgent converts a world-frame point into the frame of an agent at the
// given origin and yaw.
func WorldToAgent(point, origin r3.Vector, yawDeg float64) r3.Vector {
	d := point.Sub(origin)
	rad := utils.DegToRad(yawDeg)
	sin, cos := math.Sin(rad), math.Cos(rad)
	return r3.Vector{
		X: d.X*cos - d.Z*sin,
		Y: d.Y,
		Z: d.X*sin + d.Z*cos,
	}
}

// AgentToWorld converts an agent-relative point back into the world frame.
func AgentToWorld(point, origin r3.Vector, yawDeg float64) r3.Vector {
	rad := utils.DegToRad(yawDeg)
	sin, cos := math.Sin(rad), math.Cos(rad)
	return r3.Vector{
		X: point.X*cos + point.Z*sin,
		Y: point.Y,
		Z: point.Z*cos - point.X*sin,
	}.Add(origin)
}

// TiltDeg decomposes a body's up vector into its lean about the two lateral
// axes and returns both components in degrees. A perfectly upright body
// returns (0, 0).
func TiltDeg(up r3.Vector) (pitchDeg, rollDeg float64) {
	if up.Norm() == 0 {
		return 0, 0
	}
	u := up.Normalize()
	pitchDeg = utils.RadToDeg(math.Atan2(u.Z, u.Y))
	rollDeg = utils.RadToDeg(math.Atan2(u.X, u.Y))
	return pitchDeg, rollDeg
}

// MaxTiltDeg returns the larger magnitude of the two tilt components of up.
func MaxTiltDeg(up r3.Vector) float64 {
	pitch, roll := TiltDeg(up)
	return math.Max(math.Abs(pitch), math.Abs(roll))
}

// SignedTravel projects the displacement from start to current onto the
// forward direction, yielding distance traveled with sign.
func SignedTravel(start, current, forward r3.Vector) float64 {
	return current.Sub(start).Dot(forward)
}

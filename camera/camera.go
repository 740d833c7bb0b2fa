// Package camera implements the sensor-camera actions. Camera rotation is
// clamped to physical gimbal limits; a rotation that had to be clamped still
// applies but reports ClampedCameraRotation instead of Success.
package camera

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"github.com/magbot-sim/magbot/action"
	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/protocol"
	"github.com/magbot-sim/magbot/spatialmath"
)

// Limits are the per-axis rotation bounds in degrees, symmetric about zero.
type Limits struct {
	Pitch float64
	Yaw   float64
	Roll  float64
}

// DefaultLimits returns the stock gimbal range.
func DefaultLimits() Limits {
	return Limits{Pitch: 70, Yaw: 85, Roll: 55}
}

// Rotate rotates the camera by per-axis deltas. One frame.
type Rotate struct {
	action.Base

	limits Limits
	pitch  float64
	yaw    float64
	roll   float64
}

// NewRotate builds a camera rotation by the given deltas in degrees.
func NewRotate(limits Limits, pitch, yaw, roll float64, logger golog.Logger) *Rotate {
	return &Rotate{Base: action.NewBase("rotate_camera", logger), limits: limits, pitch: pitch, yaw: yaw, roll: roll}
}

// Start clamps each axis against the accumulated rotation and applies the
// result. Terminal immediately: ClampedCameraRotation if any axis hit a
// limit, Success otherwise.
func (a *Rotate) Start(state *bodyframe.State) []protocol.Directive {
	cam := state.Telemetry().Camera

	pitch, clampedP := clampDelta(cam.PitchDeg, a.pitch, a.limits.Pitch)
	yaw, clampedY := clampDelta(cam.YawDeg, a.yaw, a.limits.Yaw)
	roll, clampedR := clampDelta(cam.RollDeg, a.roll, a.limits.Roll)

	if clampedP || clampedY || clampedR {
		a.SetStatus(action.ClampedCameraRotation)
	} else {
		a.SetStatus(action.Success)
	}
	if pitch == 0 && yaw == 0 && roll == 0 {
		return nil
	}
	return []protocol.Directive{protocol.RotateCamera(pitch, yaw, roll)}
}

// Step never runs; Start is terminal.
func (a *Rotate) Step(state *bodyframe.State) []protocol.Directive { return nil }

// clampDelta limits a rotation delta so the accumulated angle stays within
// [-limit, limit], reporting whether clamping occurred.
func clampDelta(current, delta, limit float64) (float64, bool) {
	want := current + delta
	if want > limit {
		return limit - current, true
	}
	if want < -limit {
		return -limit - current, true
	}
	return delta, false
}

// LookAt points the camera at a world position, clamped like Rotate.
type LookAt struct {
	Rotate

	target r3.Vector
}

// NewLookAt builds a look-at action.
func NewLookAt(limits Limits, target r3.Vector, logger golog.Logger) *LookAt {
	l := &LookAt{Rotate: *NewRotate(limits, 0, 0, 0, logger), target: target}
	l.Base = action.NewBase("look_at", logger)
	return l
}

// Start computes the pitch and yaw toward the target relative to the
// agent's heading, then behaves as Rotate.
func (a *LookAt) Start(state *bodyframe.State) []protocol.Directive {
	cam := state.Telemetry().Camera
	eye := state.Position().Add(r3.Vector{Y: bodyframe.TorsoMaxHeight})
	local := spatialmath.WorldToAgent(a.target, eye, state.Yaw())

	wantYaw := spatialmath.NormalizeDeg(math.Atan2(local.X, local.Z) * 180 / math.Pi)
	flat := math.Hypot(local.X, local.Z)
	wantPitch := spatialmath.NormalizeDeg(-math.Atan2(local.Y, flat) * 180 / math.Pi)

	a.pitch = wantPitch - cam.PitchDeg
	a.yaw = wantYaw - cam.YawDeg
	a.roll = -cam.RollDeg
	return a.Rotate.Start(state)
}

// Reset drives the camera back to its neutral orientation. Always succeeds.
type Reset struct {
	action.Base
}

// NewReset builds a camera reset.
func NewReset(logger golog.Logger) *Reset {
	return &Reset{Base: action.NewBase("reset_camera", logger)}
}

// Start rotates the camera by the negative of its accumulated angles.
func (a *Reset) Start(state *bodyframe.State) []protocol.Directive {
	cam := state.Telemetry().Camera
	a.SetStatus(action.Success)
	if cam.PitchDeg == 0 && cam.YawDeg == 0 && cam.RollDeg == 0 {
		return nil
	}
	return []protocol.Directive{protocol.RotateCamera(-cam.PitchDeg, -cam.YawDeg, -cam.RollDeg)}
}

// Step never runs; Start is terminal.
func (a *Reset) Step(state *bodyframe.State) []protocol.Directive { return nil }

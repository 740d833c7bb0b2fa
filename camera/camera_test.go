package camera

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/magbot-sim/magbot/action"
	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/protocol"
)

func cameraState(t *testing.T, cam protocol.CameraTelemetry) *bodyframe.State {
	t.Helper()
	s := bodyframe.NewState(bodyframe.NewTopology())
	s.Update(&protocol.Telemetry{Frame: 1, Up: r3.Vector{Y: 1}, Camera: cam})
	return s
}

func TestRotateWithinLimits(t *testing.T) {
	state := cameraState(t, protocol.CameraTelemetry{})

	act := NewRotate(DefaultLimits(), 20, -30, 0, golog.NewTestLogger(t))
	dirs := act.Start(state)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, len(dirs), test.ShouldEqual, 1)
	test.That(t, dirs[0].CameraPitch, test.ShouldEqual, 20.0)
	test.That(t, dirs[0].CameraYaw, test.ShouldEqual, -30.0)
}

func TestRotateClampsAgainstAccumulated(t *testing.T) {
	// Already pitched 60 of the 70 degree range; asking for 25 more only
	// gets 10 and reports the clamp.
	state := cameraState(t, protocol.CameraTelemetry{PitchDeg: 60})

	act := NewRotate(DefaultLimits(), 25, 0, 0, golog.NewTestLogger(t))
	dirs := act.Start(state)

	test.That(t, act.Status(), test.ShouldEqual, action.ClampedCameraRotation)
	test.That(t, len(dirs), test.ShouldEqual, 1)
	test.That(t, dirs[0].CameraPitch, test.ShouldEqual, 10.0)
}

func TestRotateFullyClampedEmitsNothing(t *testing.T) {
	state := cameraState(t, protocol.CameraTelemetry{YawDeg: 85})

	act := NewRotate(DefaultLimits(), 0, 40, 0, golog.NewTestLogger(t))
	dirs := act.Start(state)

	test.That(t, act.Status(), test.ShouldEqual, action.ClampedCameraRotation)
	test.That(t, dirs, test.ShouldBeNil)
}

func TestRotateNegativeClamp(t *testing.T) {
	state := cameraState(t, protocol.CameraTelemetry{RollDeg: -50})

	act := NewRotate(DefaultLimits(), 0, 0, -20, golog.NewTestLogger(t))
	dirs := act.Start(state)

	test.That(t, act.Status(), test.ShouldEqual, action.ClampedCameraRotation)
	test.That(t, dirs[0].CameraRoll, test.ShouldEqual, -5.0)
}

func TestLookAtStraightAhead(t *testing.T) {
	// Target dead ahead at eye height: no rotation at all.
	state := cameraState(t, protocol.CameraTelemetry{})
	target := r3.Vector{Y: bodyframe.TorsoMaxHeight, Z: 5}

	act := NewLookAt(DefaultLimits(), target, golog.NewTestLogger(t))
	dirs := act.Start(state)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, dirs, test.ShouldBeNil)
}

func TestLookAtGroundTarget(t *testing.T) {
	// A floor point ahead requires pitching down by 45 degrees.
	state := cameraState(t, protocol.CameraTelemetry{})
	target := r3.Vector{Z: bodyframe.TorsoMaxHeight}

	act := NewLookAt(DefaultLimits(), target, golog.NewTestLogger(t))
	dirs := act.Start(state)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, len(dirs), test.ShouldEqual, 1)
	test.That(t, dirs[0].CameraPitch, test.ShouldAlmostEqual, 45, 1e-9)
	test.That(t, dirs[0].CameraYaw, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestLookAtCompensatesAccumulated(t *testing.T) {
	// The camera is already yawed 30; looking at a target 45 to the right
	// only needs 15 more.
	state := cameraState(t, protocol.CameraTelemetry{YawDeg: 30})
	target := r3.Vector{X: 5, Y: bodyframe.TorsoMaxHeight, Z: 5}

	act := NewLookAt(DefaultLimits(), target, golog.NewTestLogger(t))
	dirs := act.Start(state)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, dirs[0].CameraYaw, test.ShouldAlmostEqual, 15, 1e-9)
}

func TestResetNegatesAccumulated(t *testing.T) {
	state := cameraState(t, protocol.CameraTelemetry{PitchDeg: 12, YawDeg: -40, RollDeg: 5})

	act := NewReset(golog.NewTestLogger(t))
	dirs := act.Start(state)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, dirs[0].CameraPitch, test.ShouldEqual, -12.0)
	test.That(t, dirs[0].CameraYaw, test.ShouldEqual, 40.0)
	test.That(t, dirs[0].CameraRoll, test.ShouldEqual, -5.0)

	// Already neutral: nothing to emit.
	neutral := NewReset(golog.NewTestLogger(t))
	test.That(t, neutral.Start(cameraState(t, protocol.CameraTelemetry{})), test.ShouldBeNil)
	test.That(t, neutral.Status(), test.ShouldEqual, action.Success)
}

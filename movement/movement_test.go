package movement

import (
	"context"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/magbot-sim/magbot/action"
	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/engine/fake"
	"github.com/magbot-sim/magbot/protocol"
	"github.com/magbot-sim/magbot/safety"
	"github.com/magbot-sim/magbot/spatialmath"
)

type rig struct {
	topo   *bodyframe.Topology
	engine *fake.Engine
	state  *bodyframe.State
	env    Env
	logger golog.Logger
}

func newRig(t *testing.T, cfg *safety.DetectionConfig) *rig {
	t.Helper()
	logger := golog.NewTestLogger(t)
	topo := bodyframe.NewTopology()
	r := &rig{
		topo:   topo,
		engine: fake.New(topo, logger),
		state:  bodyframe.NewState(topo),
		env:    StaticEnv(cfg, safety.DefaultThresholds()),
		logger: logger,
	}
	r.exchange(t, nil)
	return r
}

func (r *rig) exchange(t *testing.T, dirs []protocol.Directive) {
	t.Helper()
	tel, err := r.engine.Step(context.Background(), dirs)
	test.That(t, err, test.ShouldBeNil)
	r.state.Update(tel)
}

func (r *rig) run(t *testing.T, act action.Action, budget int) *action.Slot {
	t.Helper()
	slot := action.NewSlot(act)
	for i := 0; i < budget; i++ {
		dirs := slot.Evaluate(r.state)
		r.exchange(t, dirs)
		if slot.Done() {
			return slot
		}
	}
	t.Fatalf("action %s still %s after %d frames", act.Name(), act.Status(), budget)
	return slot
}

func TestMoveByArrives(t *testing.T) {
	r := newRig(t, safety.DefaultDetectionConfig())

	act := NewMoveBy(r.topo, r.env, 2.0, Options{ArrivedAt: 0.1}, r.logger)
	r.run(t, act, 400)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	pos := r.engine.Position()
	test.That(t, pos.Z, test.ShouldBeBetween, 1.9, 2.1)
	test.That(t, pos.X, test.ShouldAlmostEqual, 0, 0.01)

	rec := r.env.Previous()
	test.That(t, rec, test.ShouldNotBeNil)
	test.That(t, rec.Collided, test.ShouldBeFalse)
}

func TestMoveByBackward(t *testing.T) {
	r := newRig(t, safety.DefaultDetectionConfig())

	act := NewMoveBy(r.topo, r.env, -1.0, Options{}, r.logger)
	r.run(t, act, 200)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, r.engine.Position().Z, test.ShouldBeBetween, -1.1, -0.9)
}

func TestMoveByWallCollisionAndRepeatRule(t *testing.T) {
	r := newRig(t, safety.DefaultDetectionConfig())
	r.engine.SetPose(r3.Vector{Z: 9.0}, 0)
	r.exchange(t, nil)

	// Driving into the wall aborts with Collision and records it.
	act := NewMoveBy(r.topo, r.env, 2.0, Options{}, r.logger)
	r.run(t, act, 200)
	test.That(t, act.Status(), test.ShouldEqual, action.Collision)
	test.That(t, r.engine.Position().Z, test.ShouldBeLessThan, 9.8)
	test.That(t, r.env.Previous().Collided, test.ShouldBeTrue)

	// Repeating the same direction is refused before anything moves.
	before := r.engine.Position()
	repeat := NewMoveBy(r.topo, r.env, 1.0, Options{}, r.logger)
	slot := r.run(t, repeat, 5)
	test.That(t, repeat.Status(), test.ShouldEqual, action.Collision)
	test.That(t, slot.DidNotTry(), test.ShouldBeTrue)
	test.That(t, r.engine.Position().Sub(before).Norm(), test.ShouldBeLessThan, 1e-9)

	// The opposite direction is not blocked by the record.
	back := NewMoveBy(r.topo, r.env, -1.0, Options{}, r.logger)
	r.run(t, back, 200)
	test.That(t, back.Status(), test.ShouldEqual, action.Success)
}

func TestTurnByNinety(t *testing.T) {
	r := newRig(t, safety.DefaultDetectionConfig())

	act := NewTurnBy(r.topo, r.env, 90, Options{AlignedAt: 1.0}, r.logger)
	r.run(t, act, 100)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, r.engine.Yaw(), test.ShouldAlmostEqual, 90, 1.5)
	// The base does not translate during an in-place turn.
	test.That(t, r.engine.Position().Norm(), test.ShouldAlmostEqual, 0, 0.01)
}

func TestTurnByNegativeWraps(t *testing.T) {
	r := newRig(t, safety.DefaultDetectionConfig())
	r.engine.SetPose(r3.Vector{}, -150)
	r.exchange(t, nil)

	act := NewTurnBy(r.topo, r.env, -90, Options{}, r.logger)
	r.run(t, act, 100)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	// -150 - 90 wraps to +120.
	test.That(t, r.engine.Yaw(), test.ShouldAlmostEqual, 120, 1.5)
}

func TestTurnToAbsoluteYaw(t *testing.T) {
	r := newRig(t, safety.DefaultDetectionConfig())
	r.engine.SetPose(r3.Vector{}, 30)
	r.exchange(t, nil)

	act := NewTurnTo(r.topo, r.env, -45, Options{}, r.logger)
	r.run(t, act, 100)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, r.engine.Yaw(), test.ShouldAlmostEqual, -45, 1.5)
}

func TestTurnToAlreadyAligned(t *testing.T) {
	r := newRig(t, safety.DefaultDetectionConfig())

	act := NewTurnTo(r.topo, r.env, 0.2, Options{AlignedAt: 1.0}, r.logger)
	slot := r.run(t, act, 5)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, slot.DidNotTry(), test.ShouldBeTrue)
}

func TestTurnToFacePoint(t *testing.T) {
	r := newRig(t, safety.DefaultDetectionConfig())

	act := NewTurnToFace(r.topo, r.env, r3.Vector{X: 5, Z: 5}, Options{}, r.logger)
	r.run(t, act, 100)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, r.engine.Yaw(), test.ShouldAlmostEqual, 45, 1.5)
}

func TestMoveToReachesTarget(t *testing.T) {
	r := newRig(t, safety.DefaultDetectionConfig())
	target := r3.Vector{X: 2, Z: 2}

	act := NewMoveTo(r.topo, r.env, target, Options{}, r.logger)
	r.run(t, act, 600)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, spatialmath.FlatDistance(r.engine.Position(), target),
		test.ShouldBeLessThan, 0.25)
}

func TestMoveToPropagatesTurnCollision(t *testing.T) {
	cfg := safety.DefaultDetectionConfig()
	r := newRig(t, cfg)

	// Seed a collided turn record in the direction MoveTo will turn; the
	// composed action inherits the refusal.
	r.env.Record(safety.MoveRecord{Kind: safety.KindTurn, Positive: true, Collided: true})

	act := NewMoveTo(r.topo, r.env, r3.Vector{X: 5, Z: 5}, Options{}, r.logger)
	slot := r.run(t, act, 5)

	test.That(t, act.Status(), test.ShouldEqual, action.Collision)
	test.That(t, slot.Steps(), test.ShouldEqual, 0)
}

func attachHeavyObject(t *testing.T, r *rig, id int, mass float64) {
	t.Helper()
	r.engine.PlaceObject(fake.Object{
		ID:       id,
		Position: r.state.MagnetPosition(bodyframe.RightArm),
		Extents:  r3.Vector{X: 0.1, Y: 0.1, Z: 0.1},
		Mass:     mass,
	})
	r.exchange(t, []protocol.Directive{protocol.Attach(r.topo.MagnetID(bodyframe.RightArm), id)})
	r.exchange(t, nil)
	test.That(t, r.state.Holding(bodyframe.RightArm, id), test.ShouldBeTrue)
}

func TestMoveByTippingAbort(t *testing.T) {
	r := newRig(t, safety.DefaultDetectionConfig())
	attachHeavyObject(t, r, 7, 5.0)

	// Seed a stale collision record; tipping must wipe it.
	r.env.Record(safety.MoveRecord{Kind: safety.KindMove, Positive: true, Collided: true})
	r.engine.SetTilt(r3.Vector{X: 0.342, Y: 0.94})
	r.exchange(t, nil)

	act := NewMoveBy(r.topo, r.env, 2.0, Options{SuppressPoseReset: true}, r.logger)
	r.run(t, act, 20)

	test.That(t, act.Status(), test.ShouldEqual, action.Tipping)
	test.That(t, r.env.Previous(), test.ShouldBeNil)
	// The heavy payload was force-dropped.
	test.That(t, r.state.Holding(bodyframe.RightArm, 7), test.ShouldBeFalse)
}

func TestMoveByTippingKeepsLightPayload(t *testing.T) {
	r := newRig(t, safety.DefaultDetectionConfig())
	attachHeavyObject(t, r, 7, 1.0)

	r.engine.SetTilt(r3.Vector{X: 0.342, Y: 0.94})
	r.exchange(t, nil)

	act := NewMoveBy(r.topo, r.env, 2.0, Options{SuppressPoseReset: true}, r.logger)
	r.run(t, act, 20)

	test.That(t, act.Status(), test.ShouldEqual, action.Tipping)
	test.That(t, r.state.Holding(bodyframe.RightArm, 7), test.ShouldBeTrue)
}

func TestMoveByStallFailsAfterRetries(t *testing.T) {
	// Wall stops count as plain obstructions when wall detection is off, so
	// the move grinds against the wall until the retry budget runs out.
	cfg := safety.DefaultDetectionConfig()
	cfg.StopOnWall = false
	cfg.StopOnObjects = false
	r := newRig(t, cfg)
	r.engine.SetPose(r3.Vector{Z: 9.69}, 0)
	r.exchange(t, nil)

	act := NewMoveBy(r.topo, r.env, 2.0, Options{}, r.logger)
	r.run(t, act, 300)

	test.That(t, act.Status(), test.ShouldEqual, action.FailedToMove)
	test.That(t, r.engine.Position().Z, test.ShouldBeLessThan, 9.8)
}

func TestStop(t *testing.T) {
	r := newRig(t, safety.DefaultDetectionConfig())

	act := NewStop(r.topo, r.logger)
	slot := r.run(t, act, 5)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, slot.Steps(), test.ShouldEqual, 0)
	// Stop issues real wheel holds, so it is not a did-not-try.
	test.That(t, slot.DidNotTry(), test.ShouldBeFalse)
}

func TestResetPositionTeleportsToFloorCell(t *testing.T) {
	r := newRig(t, safety.DefaultDetectionConfig())
	attachHeavyObject(t, r, 7, 2.0)
	r.engine.SetPose(r3.Vector{X: 1.3, Y: 0.2, Z: 2.2}, 30)
	r.engine.SetTilt(r3.Vector{X: 0.342, Y: 0.94})
	r.env.Record(safety.MoveRecord{Kind: safety.KindMove, Positive: true, Collided: true})
	r.exchange(t, nil)

	act := NewResetPosition(r.topo, r.env, r.logger)
	r.run(t, act, 5)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	pos := r.engine.Position()
	test.That(t, pos.X, test.ShouldAlmostEqual, 1.5)
	test.That(t, pos.Y, test.ShouldAlmostEqual, 0)
	test.That(t, pos.Z, test.ShouldAlmostEqual, 2.0)
	test.That(t, r.engine.Yaw(), test.ShouldAlmostEqual, 30)
	// Upright again, empty-handed, with the collision record wiped.
	test.That(t, r.state.Up().Y, test.ShouldAlmostEqual, 1)
	test.That(t, r.state.Holding(bodyframe.RightArm, 7), test.ShouldBeFalse)
	test.That(t, r.env.Previous(), test.ShouldBeNil)
}

func TestResetPositionRefusedAgainstOtherAgent(t *testing.T) {
	topo := bodyframe.NewTopology()
	state := bodyframe.NewState(topo)
	state.Update(&protocol.Telemetry{
		Frame: 1,
		Up:    r3.Vector{Y: 1},
		Collisions: []protocol.CollisionEvent{
			{BodyPartID: bodyframe.WheelFrontLeft, OtherID: 500, Category: protocol.CollisionOtherAgent},
		},
	})
	env := StaticEnv(safety.DefaultDetectionConfig(), safety.DefaultThresholds())

	act := NewResetPosition(topo, env, golog.NewTestLogger(t))
	slot := action.NewSlot(act)
	slot.Evaluate(state)

	test.That(t, act.Status(), test.ShouldEqual, action.CannotResetPosition)
	test.That(t, slot.DidNotTry(), test.ShouldBeTrue)
}

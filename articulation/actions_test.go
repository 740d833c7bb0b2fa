package articulation

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
)

type rig struct {
	topo   *bodyframe.Topology
	engine *fake.Engine
	state  *bodyframe.State
	logger golog.Logger
}

// newRig builds a fake engine with the agent at the origin and primes the
// state with one empty frame.
func newRig(t *testing.T) *rig {
	t.Helper()
	logger := golog.NewTestLogger(t)
	topo := bodyframe.NewTopology()
	r := &rig{
		topo:   topo,
		engine: fake.New(topo, logger),
		state:  bodyframe.NewState(topo),
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

// run drives an action to completion through a slot, one engine frame per
// evaluation.
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

// settle steps empty frames until all drives come to rest.
func (r *rig) settle(t *testing.T, frames int) {
	t.Helper()
	for i := 0; i < frames; i++ {
		r.exchange(t, nil)
	}
}

func reachTestTable(t *testing.T, positions ...r3.Vector) *Table {
	t.Helper()
	cells := make([]Cell, 0, len(positions))
	for _, p := range positions {
		cells = append(cells, Cell{
			Pos:       [3]float64{p.X, p.Y, p.Z},
			Mode:      OrientationNone,
			Reachable: true,
		})
	}
	return simpleTable(t, cells)
}

func TestReachForReachesTarget(t *testing.T) {
	r := newRig(t)
	target := r3.Vector{X: 0.2, Y: 0.5, Z: 0.35}
	tbl := reachTestTable(t, target)

	act := NewReachFor(r.topo, tbl, bodyframe.RightArm, target, 0, OrientationAuto, AutoOrientation, r.logger)
	slot := r.run(t, act, 300)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, slot.DidNotTry(), test.ShouldBeFalse)
	test.That(t, r.state.MagnetPosition(bodyframe.RightArm).Sub(target).Norm(),
		test.ShouldBeLessThanOrEqualTo, DefaultArrivedAt)
}

func TestReachForUnreachableTargetDoesNotTry(t *testing.T) {
	r := newRig(t)
	tbl := reachTestTable(t, r3.Vector{X: 0.2, Y: 0.5, Z: 0.35})
	startMagnet := r.state.MagnetPosition(bodyframe.RightArm)

	act := NewReachFor(r.topo, tbl, bodyframe.RightArm, r3.Vector{X: 5, Y: 0.5, Z: 5}, 0,
		OrientationAuto, AutoOrientation, r.logger)
	slot := r.run(t, act, 10)

	test.That(t, act.Status(), test.ShouldEqual, action.CannotReach)
	test.That(t, slot.DidNotTry(), test.ShouldBeTrue)
	r.settle(t, 5)
	test.That(t, r.state.MagnetPosition(bodyframe.RightArm).Sub(startMagnet).Norm(),
		test.ShouldBeLessThanOrEqualTo, 1e-9)
}

func TestReachForSlidesTorsoForHighTargets(t *testing.T) {
	r := newRig(t)
	// Well above the chain's envelope at neutral torso height.
	target := r3.Vector{X: 0.2, Y: 1.3, Z: 0.3}
	tbl := reachTestTable(t, target)

	act := NewReachFor(r.topo, tbl, bodyframe.RightArm, target, 0, OrientationAuto, AutoOrientation, r.logger)
	slot := action.NewSlot(act)
	r.exchange(t, slot.Evaluate(r.state))

	// The first phase raises the torso before any arm joint moves.
	r.settle(t, 3)
	test.That(t, r.state.TorsoHeight(), test.ShouldBeGreaterThan, bodyframe.TorsoNeutralHeight)
}

func TestGraspAttachesAndSucceeds(t *testing.T) {
	r := newRig(t)
	obj := fake.Object{
		ID:       7,
		Position: r3.Vector{X: 0.2, Y: 0.6, Z: 0.3},
		Extents:  r3.Vector{X: 0.05, Y: 0.05, Z: 0.05},
		Mass:     0.5,
	}
	r.engine.PlaceObject(obj)
	r.exchange(t, nil)

	tbl := reachTestTable(t,
		r3.Vector{X: 0.2, Y: 0.6, Z: 0.25},
		r3.Vector{X: 0.2, Y: 0.6, Z: 0.3},
	)
	act := NewGrasp(r.topo, tbl, bodyframe.RightArm, obj.ID, r.logger)
	r.run(t, act, 300)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, r.state.Holding(bodyframe.RightArm, obj.ID), test.ShouldBeTrue)
}

func TestGraspUnknownObjectDoesNotTry(t *testing.T) {
	r := newRig(t)
	tbl := reachTestTable(t, r3.Vector{X: 0.2, Y: 0.5, Z: 0.35})

	act := NewGrasp(r.topo, tbl, bodyframe.RightArm, 99, r.logger)
	slot := r.run(t, act, 5)

	test.That(t, act.Status(), test.ShouldEqual, action.CannotReach)
	test.That(t, slot.DidNotTry(), test.ShouldBeTrue)
}

func TestGraspAlreadyHeldByOther(t *testing.T) {
	r := newRig(t)
	obj := fake.Object{
		ID:       7,
		Position: r.state.MagnetPosition(bodyframe.LeftArm),
		Extents:  r3.Vector{X: 0.05, Y: 0.05, Z: 0.05},
		Mass:     0.5,
	}
	r.engine.PlaceObject(obj)
	// Latch the object onto the left magnet first.
	r.exchange(t, []protocol.Directive{protocol.Attach(r.topo.MagnetID(bodyframe.LeftArm), obj.ID)})
	r.exchange(t, nil)
	test.That(t, r.state.Holding(bodyframe.LeftArm, obj.ID), test.ShouldBeTrue)

	tbl := reachTestTable(t, r3.Vector{X: 0.2, Y: 0.5, Z: 0.35})
	act := NewGrasp(r.topo, tbl, bodyframe.RightArm, obj.ID, r.logger)
	slot := r.run(t, act, 5)

	test.That(t, act.Status(), test.ShouldEqual, action.HeldByOther)
	test.That(t, slot.DidNotTry(), test.ShouldBeTrue)
}

func attachToMagnet(t *testing.T, r *rig, arm bodyframe.Arm, objectID int) {
	t.Helper()
	r.engine.PlaceObject(fake.Object{
		ID:       objectID,
		Position: r.state.MagnetPosition(arm),
		Extents:  r3.Vector{X: 0.05, Y: 0.05, Z: 0.05},
		Mass:     0.5,
	})
	r.exchange(t, []protocol.Directive{protocol.Attach(r.topo.MagnetID(arm), objectID)})
	r.exchange(t, nil)
	test.That(t, r.state.Holding(arm, objectID), test.ShouldBeTrue)
}

func TestDropReleasesObject(t *testing.T) {
	r := newRig(t)
	attachToMagnet(t, r, bodyframe.RightArm, 7)

	act := NewDrop(r.topo, bodyframe.RightArm, 7, false, r.logger)
	slot := r.run(t, act, 10)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, slot.DidNotTry(), test.ShouldBeFalse)
	test.That(t, r.state.Holding(bodyframe.RightArm, 7), test.ShouldBeFalse)
}

func TestDropNotHolding(t *testing.T) {
	r := newRig(t)

	act := NewDrop(r.topo, bodyframe.RightArm, 7, false, r.logger)
	slot := r.run(t, act, 5)

	test.That(t, act.Status(), test.ShouldEqual, action.NotHolding)
	test.That(t, slot.DidNotTry(), test.ShouldBeTrue)
}

func TestDropWaitsForObjectToSettle(t *testing.T) {
	r := newRig(t)
	attachToMagnet(t, r, bodyframe.RightArm, 7)

	act := NewDrop(r.topo, bodyframe.RightArm, 7, true, r.logger)
	slot := r.run(t, act, 20)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	// The wait consumes at least the settle grace.
	test.That(t, slot.Steps(), test.ShouldBeGreaterThanOrEqualTo, settleGraceFrames)
}

func TestResetArmReturnsToNeutral(t *testing.T) {
	r := newRig(t)
	chain := r.topo.Chain(bodyframe.RightArm)

	// Bend the arm away from neutral and let it settle.
	r.exchange(t, []protocol.Directive{
		protocol.JointTarget(chain.Shoulder.ID, -40, 0, 0),
		protocol.JointTarget(chain.Elbow.ID, 60),
	})
	r.settle(t, 30)
	test.That(t, r.state.JointAngle(chain.Elbow.ID), test.ShouldAlmostEqual, 60, 1e-9)

	act := NewResetArm(r.topo, bodyframe.RightArm, r.logger)
	r.run(t, act, 100)

	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, r.state.JointAngle(chain.Shoulder.ID), test.ShouldAlmostEqual, 0, neutralToleranceDeg)
	test.That(t, r.state.JointAngle(chain.Elbow.ID), test.ShouldAlmostEqual, 0, neutralToleranceDeg)
	test.That(t, r.state.TorsoHeight(), test.ShouldAlmostEqual, bodyframe.TorsoNeutralHeight, 0.02)
}

func TestSlideTorso(t *testing.T) {
	r := newRig(t)

	act := NewSlideTorso(r.topo, 0.9, r.logger)
	r.run(t, act, 50)
	test.That(t, act.Status(), test.ShouldEqual, action.Success)
	test.That(t, r.state.TorsoHeight(), test.ShouldAlmostEqual, 0.9, 0.02)

	// Heights beyond the slide's range clamp to it.
	clamped := NewSlideTorso(r.topo, 9.0, r.logger)
	r.run(t, clamped, 100)
	test.That(t, clamped.Status(), test.ShouldEqual, action.Success)
	test.That(t, r.state.TorsoHeight(), test.ShouldAlmostEqual, bodyframe.TorsoMaxHeight, 0.02)
}

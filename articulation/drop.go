package articulation

import (
	"github.com/edaniels/golog"

	"github.com/magbot-sim/magbot/action"
	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/protocol"
)

// dropSettleBudget bounds how many frames a waiting drop will watch the
// released object before declaring it settled.
const dropSettleBudget = 200

const settledSpeed = 0.01 // m/frame

// Drop detaches an object from an arm's magnet, restoring its independent
// physical response. With waitForObject set it holds until the object's
// velocity settles; otherwise it returns after exactly one frame.
type Drop struct {
	action.Base

	topo          *bodyframe.Topology
	arm           bodyframe.Arm
	objectID      int
	waitForObject bool

	frames int
}

// NewDrop builds a drop action.
func NewDrop(topo *bodyframe.Topology, arm bodyframe.Arm, objectID int, waitForObject bool, logger golog.Logger) *Drop {
	return &Drop{
		Base:          action.NewBase("drop", logger),
		topo:          topo,
		arm:           arm,
		objectID:      objectID,
		waitForObject: waitForObject,
	}
}

// Start validates possession and detaches. An object this magnet does not
// hold fails with NotHolding before any directive is issued.
func (a *Drop) Start(state *bodyframe.State) []protocol.Directive {
	if !state.Holding(a.arm, a.objectID) {
		a.SetStatus(action.NotHolding)
		return nil
	}
	return []protocol.Directive{
		protocol.SetImmovable(true),
		protocol.Detach(a.topo.MagnetID(a.arm), a.objectID),
	}
}

// Step returns Success after one frame, or once the released object stops
// moving when waitForObject is set.
func (a *Drop) Step(state *bodyframe.State) []protocol.Directive {
	a.frames++
	if !a.waitForObject {
		a.SetStatus(action.Success)
		return nil
	}

	obj, ok := state.Telemetry().Object(a.objectID)
	settled := !ok || obj.Velocity.Norm() <= settledSpeed
	if a.frames >= settleGraceFrames && settled {
		a.SetStatus(action.Success)
		return nil
	}
	if a.frames >= dropSettleBudget {
		if a.Logger() != nil {
			a.Logger().Warnw("dropped object never settled, returning anyway",
				"object", a.objectID, "frames", a.frames)
		}
		a.SetStatus(action.Success)
	}
	return nil
}

package articulation

import (
	"github.com/edaniels/golog"

	"github.com/magbot-sim/magbot/action"
	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/protocol"
)

// resetBendAttempts is how many times neutral targets are re-issued to a
// chain that stalls short of them before giving up.
const resetBendAttempts = 3

const neutralToleranceDeg = 2.0

// ResetArm drives every joint of one arm's chain, plus the column and torso,
// back to neutral. Held objects stay attached throughout.
type ResetArm struct {
	action.Base

	topo *bodyframe.Topology
	arm  bodyframe.Arm

	attempts    int
	phaseFrames int
}

// NewResetArm builds a reset action for one arm.
func NewResetArm(topo *bodyframe.Topology, arm bodyframe.Arm, logger golog.Logger) *ResetArm {
	return &ResetArm{
		Base: action.NewBase("reset_arm", logger),
		topo: topo,
		arm:  arm,
	}
}

// Start locks the base and issues neutral targets for the whole chain.
func (a *ResetArm) Start(state *bodyframe.State) []protocol.Directive {
	a.attempts = 1
	return append([]protocol.Directive{protocol.SetImmovable(true)}, a.neutralTargets()...)
}

// Step waits for motion to stop, then verifies every joint landed at
// neutral; joints that stalled short get the targets re-issued up to the
// bend budget.
func (a *ResetArm) Step(state *bodyframe.State) []protocol.Directive {
	a.phaseFrames++
	if a.phaseFrames < settleGraceFrames || state.ChainMoving(a.arm) {
		return nil
	}

	if a.atNeutral(state) {
		a.SetStatus(action.Success)
		return nil
	}

	if a.attempts >= resetBendAttempts {
		a.SetStatus(action.FailedToBend)
		return nil
	}
	a.attempts++
	a.phaseFrames = 0
	if a.Logger() != nil {
		a.Logger().Debugw("arm stalled short of neutral, re-issuing targets",
			"arm", a.arm, "attempt", a.attempts)
	}
	return a.neutralTargets()
}

// End holds the chain wherever it ended up.
func (a *ResetArm) End(state *bodyframe.State) []protocol.Directive {
	var out []protocol.Directive
	for _, id := range append([]int{a.topo.Column.ID, a.topo.Torso.ID}, a.topo.ArmJointIDs(a.arm)...) {
		out = append(out, protocol.StopAtCurrent(id))
	}
	return out
}

func (a *ResetArm) neutralTargets() []protocol.Directive {
	chain := a.topo.Chain(a.arm)
	out := []protocol.Directive{
		protocol.JointTarget(a.topo.Column.ID, a.topo.Column.Neutral...),
		protocol.JointTarget(a.topo.Torso.ID, a.topo.Torso.Neutral...),
	}
	for _, j := range chain.Joints() {
		out = append(out, protocol.JointTarget(j.ID, j.Neutral...))
	}
	return out
}

func (a *ResetArm) atNeutral(state *bodyframe.State) bool {
	chain := a.topo.Chain(a.arm)
	joints := append([]bodyframe.JointStatic{a.topo.Column, a.topo.Torso}, chain.Joints()...)
	for _, j := range joints {
		jd, ok := state.Joint(j.ID)
		if !ok {
			continue
		}
		for i, want := range j.Neutral {
			if i >= len(jd.Angles) {
				break
			}
			diff := jd.Angles[i] - want
			if diff < 0 {
				diff = -diff
			}
			tol := neutralToleranceDeg
			if j.ID == a.topo.Torso.ID {
				tol = 0.02 // prismatic, meters
			}
			if diff > tol {
				return false
			}
		}
	}
	return true
}

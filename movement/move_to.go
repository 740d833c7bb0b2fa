package movement

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"github.com/magbot-sim/magbot/action"
	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/protocol"
	"github.com/magbot-sim/magbot/spatialmath"
)

// MoveTo is the sequential composition of turning to face a world point and
// driving the remaining flat distance to it. Its status is the first
// non-success sub-status, else Success.
type MoveTo struct {
	action.Base

	topo   *bodyframe.Topology
	env    Env
	opts   Options
	target r3.Vector

	turnSlot *action.Slot
	moveSlot *action.Slot
}

// NewMoveTo builds a move to a world point.
func NewMoveTo(topo *bodyframe.Topology, env Env, target r3.Vector, opts Options, logger golog.Logger) *MoveTo {
	opts.fill()
	return &MoveTo{
		Base:   action.NewBase("move_to", logger),
		topo:   topo,
		env:    env,
		opts:   opts,
		target: target,
	}
}

// Start begins the turn phase.
func (a *MoveTo) Start(state *bodyframe.State) []protocol.Directive {
	turn := NewTurnToFace(a.topo, a.env, a.target, a.opts, a.Logger())
	a.turnSlot = action.NewSlot(turn)
	dirs := a.turnSlot.Evaluate(state)
	a.check(state)
	return dirs
}

// Step drives whichever phase is active, switching from turn to move once
// the turn completes successfully.
func (a *MoveTo) Step(state *bodyframe.State) []protocol.Directive {
	if a.moveSlot == nil {
		dirs := a.turnSlot.Evaluate(state)
		a.check(state)
		return dirs
	}
	dirs := a.moveSlot.Evaluate(state)
	a.check(state)
	return dirs
}

// check inspects the active phase for completion and advances or finishes.
func (a *MoveTo) check(state *bodyframe.State) {
	if a.moveSlot == nil {
		if !a.turnSlot.Done() {
			return
		}
		if st := a.turnSlot.Action().Status(); st != action.Success {
			a.SetStatus(st)
			return
		}
		distance := spatialmath.FlatDistance(state.Position(), a.target)
		move := NewMoveBy(a.topo, a.env, distance, a.opts, a.Logger())
		a.moveSlot = action.NewSlot(move)
		return
	}
	if a.moveSlot.Done() {
		a.SetStatus(a.moveSlot.Action().Status())
	}
}

// End emits nothing of its own; the active sub-action already issued its
// hold directives when it was finalized.
func (a *MoveTo) End(state *bodyframe.State) []protocol.Directive {
	if a.moveSlot != nil && !a.moveSlot.Done() {
		return a.moveSlot.Preempt(state)
	}
	if a.turnSlot != nil && !a.turnSlot.Done() {
		return a.turnSlot.Preempt(state)
	}
	return nil
}

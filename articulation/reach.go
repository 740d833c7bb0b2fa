package articulation

import (
	"context"
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"github.com/magbot-sim/magbot/action"
	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/kinematics"
	"github.com/magbot-sim/magbot/protocol"
	"github.com/magbot-sim/magbot/spatialmath"
)

// DefaultArrivedAt is the default magnet-to-target distance, in meters, at
// which a reach counts as arrived.
const DefaultArrivedAt = 0.125

// settleGraceFrames is how many frames we wait after issuing joint targets
// before trusting the chain's moving flags; a target issued this frame
// cannot register motion until the next snapshot.
const settleGraceFrames = 2

type reachPhase int

const (
	phaseSliding reachPhase = iota
	phaseArticulating
)

// ReachFor drives one arm's magnet toward a world-space target. With auto
// orientation parameters it consults the solution table and retries nearby
// orientation candidates on failure; explicit parameters get exactly one
// attempt.
type ReachFor struct {
	action.Base

	topo      *bodyframe.Topology
	table     *Table
	arm       bodyframe.Arm
	target    r3.Vector
	arrivedAt float64

	mode        OrientationMode
	orientation r3.Vector

	candidates []Candidate
	attempt    int

	phase       reachPhase
	phaseFrames int
	targetLocal r3.Vector
	slideTarget float64
	needSlide   bool
	moved       bool

	// succeedWhen overrides the arrival check; nil means magnet-to-target
	// distance. exhaustedStatus is the terminal status once every candidate
	// has been driven and judged.
	succeedWhen     func(*bodyframe.State) bool
	exhaustedStatus action.Status
}

// NewReachFor builds a reach action. Pass OrientationAuto and
// AutoOrientation to let the table choose; any other combination disables
// the retry loop.
func NewReachFor(
	topo *bodyframe.Topology,
	table *Table,
	arm bodyframe.Arm,
	target r3.Vector,
	arrivedAt float64,
	mode OrientationMode,
	orientation r3.Vector,
	logger golog.Logger,
) *ReachFor {
	if arrivedAt <= 0 {
		arrivedAt = DefaultArrivedAt
	}
	return &ReachFor{
		Base:            action.NewBase("reach_for", logger),
		topo:            topo,
		table:           table,
		arm:             arm,
		target:          target,
		arrivedAt:       arrivedAt,
		mode:            mode,
		orientation:     orientation,
		exhaustedStatus: action.FailedToReach,
	}
}

// Arm returns which arm this action drives.
func (a *ReachFor) Arm() bodyframe.Arm { return a.arm }

// Target returns the world-space goal.
func (a *ReachFor) Target() r3.Vector { return a.target }

func (a *ReachFor) auto() bool {
	return a.mode == OrientationAuto && a.orientation == AutoOrientation
}

// Start resolves orientation candidates and begins the motion. A target the
// table marks unreachable fails with CannotReach before any directive is
// issued.
func (a *ReachFor) Start(state *bodyframe.State) []protocol.Directive {
	dirs := a.beginReach(state)
	if a.Status().Terminal() {
		return nil
	}
	// Arm actions run with the base locked in place.
	return append([]protocol.Directive{protocol.SetImmovable(true)}, dirs...)
}

// beginReach resolves candidates for the current target and issues the first
// phase of motion. Grasp calls this after its probe phase has produced the
// final target point.
func (a *ReachFor) beginReach(state *bodyframe.State) []protocol.Directive {
	a.targetLocal = spatialmath.WorldToAgent(a.target, state.Position(), state.Yaw())

	if a.auto() {
		if !a.table.Reachable(a.arm, a.targetLocal) {
			a.SetStatus(action.CannotReach)
			return nil
		}
		a.candidates = a.table.Candidates(a.arm, a.targetLocal)
		if len(a.candidates) == 0 {
			a.SetStatus(action.CannotReach)
			return nil
		}
	} else {
		a.candidates = []Candidate{{Mode: a.mode, Orientation: a.orientation}}
	}

	// Two-phase motion: slide the torso first when the target sits above the
	// chain's current vertical envelope, then articulate.
	a.slideTarget = clampTorso(a.targetLocal.Y)
	if a.targetLocal.Y > state.TorsoHeight()+reachAbove() {
		a.needSlide = true
		a.phase = phaseSliding
		a.phaseFrames = 0
		return []protocol.Directive{protocol.JointTarget(a.topo.Torso.ID, a.slideTarget)}
	}

	a.phase = phaseArticulating
	dirs, ok := a.articulate(state)
	if !ok {
		a.failSolve()
		return nil
	}
	return dirs
}

// Step monitors the current phase and advances candidates as needed.
func (a *ReachFor) Step(state *bodyframe.State) []protocol.Directive {
	a.phaseFrames++

	if a.phase == phaseSliding {
		if a.phaseFrames < settleGraceFrames || state.Moving(a.topo.Torso.ID) {
			return nil
		}
		a.phase = phaseArticulating
		a.phaseFrames = 0
		dirs, ok := a.articulate(state)
		if !ok {
			a.failSolve()
		}
		return dirs
	}

	if a.phaseFrames < settleGraceFrames || state.ChainMoving(a.arm) {
		return nil
	}

	// Chain has stopped; judge this attempt.
	if a.succeeded(state) {
		a.SetStatus(action.Success)
		return nil
	}

	a.attempt++
	if a.attempt >= len(a.candidates) {
		a.failSolve()
		return nil
	}
	if a.Logger() != nil {
		a.Logger().Debugw("reach attempt fell short, retrying next orientation",
			"arm", a.arm, "attempt", a.attempt)
	}
	a.phaseFrames = 0
	dirs, ok := a.articulate(state)
	if !ok {
		a.failSolve()
	}
	return dirs
}

// End holds the chain at its current angles so the arm does not drift once
// control is relinquished.
func (a *ReachFor) End(state *bodyframe.State) []protocol.Directive {
	var out []protocol.Directive
	for _, id := range append([]int{a.topo.Column.ID, a.topo.Torso.ID}, a.topo.ArmJointIDs(a.arm)...) {
		out = append(out, protocol.StopAtCurrent(id))
	}
	return out
}

// articulate solves the chain for the current candidate and converts the
// solution to per-joint directives. The false return means no kinematic
// solution existed for any remaining candidate.
func (a *ReachFor) articulate(state *bodyframe.State) ([]protocol.Directive, bool) {
	for a.attempt < len(a.candidates) {
		cand := a.candidates[a.attempt]
		chain := kinematics.NewArmChain(a.topo, a.arm, state.TorsoHeight())
		solver := kinematics.NewSolver(chain, a.Logger())

		q, err := solver.Solve(context.Background(), a.targetLocal, seedFor(cand, a.arm))
		if err != nil {
			// Internal solver failure maps to the next candidate, never to
			// an unhandled abort.
			a.attempt++
			continue
		}
		a.moved = true
		a.phaseFrames = 0
		return a.solutionDirectives(q, cand), true
	}
	return nil, false
}

// succeeded judges the current attempt once the chain has stopped.
func (a *ReachFor) succeeded(state *bodyframe.State) bool {
	if a.succeedWhen != nil {
		return a.succeedWhen(state)
	}
	return state.MagnetPosition(a.arm).Sub(a.target).Norm() <= a.arrivedAt
}

// failSolve picks the terminal status for an exhausted reach: CannotReach if
// nothing ever moved, the exhausted status if some attempt was actually
// driven.
func (a *ReachFor) failSolve() {
	if a.moved {
		a.SetStatus(a.exhaustedStatus)
	} else {
		a.SetStatus(action.CannotReach)
	}
}

// solutionDirectives maps a solved joint vector onto drive directives. The
// spherical joints' free axes come from the candidate's orientation vector.
func (a *ReachFor) solutionDirectives(q []float64, cand Candidate) []protocol.Directive {
	chain := a.topo.Chain(a.arm)
	twist := orientationTwist(cand)
	return []protocol.Directive{
		protocol.JointTarget(a.topo.Column.ID, q[kinematics.QColumn]),
		protocol.JointTarget(chain.Shoulder.ID,
			q[kinematics.QShoulderPitch], q[kinematics.QShoulderRoll], twist[0]),
		protocol.JointTarget(chain.Elbow.ID, q[kinematics.QElbowPitch]),
		protocol.JointTarget(chain.Wrist.ID, q[kinematics.QWristPitch], twist[1], twist[2]),
	}
}

// seedFor biases the solver's starting configuration toward the candidate's
// approach axis so repeated solves with the same parameters are
// deterministic.
func seedFor(cand Candidate, arm bodyframe.Arm) []float64 {
	seed := make([]float64, kinematics.ArmDOF)
	switch cand.Mode {
	case OrientationY:
		seed[kinematics.QShoulderPitch] = -30
		seed[kinematics.QElbowPitch] = 60
	case OrientationX:
		roll := 45.0
		if arm == bodyframe.LeftArm {
			roll = -45.0
		}
		seed[kinematics.QShoulderRoll] = roll
		seed[kinematics.QElbowPitch] = 30
	default:
		seed[kinematics.QShoulderPitch] = -60
		seed[kinematics.QElbowPitch] = 45
	}
	return seed
}

// orientationTwist derives the spherical joints' free-axis targets from the
// candidate orientation vector.
func orientationTwist(cand Candidate) [3]float64 {
	o := cand.Orientation
	if o == AutoOrientation || cand.Mode == OrientationNone {
		return [3]float64{}
	}
	yaw := spatialmath.NormalizeDeg(math.Atan2(o.X, o.Z) * 180 / math.Pi)
	pitch := spatialmath.NormalizeDeg(math.Atan2(o.Y, math.Hypot(o.X, o.Z)) * 180 / math.Pi)
	return [3]float64{yaw / 2, pitch / 2, yaw / 4}
}

// clampTorso limits a height to the torso slide's physical range.
func clampTorso(h float64) float64 {
	return math.Max(bodyframe.TorsoMinHeight, math.Min(bodyframe.TorsoMaxHeight, h))
}

// reachAbove is how far above the torso's current height the chain can reach
// without sliding: roughly the arm's extent less a margin for articulation.
func reachAbove() float64 {
	return bodyframe.MaxReach() * 0.75
}

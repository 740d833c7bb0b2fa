package movement

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"

	"github.com/magbot-sim/magbot/action"
	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/protocol"
	"github.com/magbot-sim/magbot/safety"
	"github.com/magbot-sim/magbot/spatialmath"
)

// TurnBy rotates the base in place by a signed angle, left and right wheel
// pairs spinning in opposite senses.
type TurnBy struct {
	action.Base

	topo *bodyframe.Topology
	env  Env
	opts Options

	angle float64

	prevYaw     float64
	accumulated float64

	frames      int
	lastAccum   float64
	stallFrames int
	attempts    int
}

// NewTurnBy builds an in-place turn of angle degrees, clockwise positive.
func NewTurnBy(topo *bodyframe.Topology, env Env, angleDeg float64, opts Options, logger golog.Logger) *TurnBy {
	opts.fill()
	return &TurnBy{
		Base:  action.NewBase("turn_by", logger),
		topo:  topo,
		env:   env,
		opts:  opts,
		angle: angleDeg,
	}
}

func (a *TurnBy) positive() bool { return a.angle > 0 }

// Start applies the same-direction-repeat rule and spins the wheel pairs
// differentially.
func (a *TurnBy) Start(state *bodyframe.State) []protocol.Directive {
	cfg := a.env.Config()
	if safety.RefuseRepeat(a.env.Previous(), safety.KindTurn, a.positive(), cfg) {
		a.SetStatus(action.Collision)
		return nil
	}

	a.prevYaw = state.Yaw()
	a.attempts = 1

	out := prelude(a.topo, a.opts.SuppressPoseReset)
	return append(out, spinDifferential(state, wheelDegForTurn(a.angle))...)
}

// Step accumulates yaw across wrap-around and monitors aborts and stalls.
func (a *TurnBy) Step(state *bodyframe.State) []protocol.Directive {
	a.frames++
	yaw := state.Yaw()
	a.accumulated += spatialmath.HeadingDeltaDeg(a.prevYaw, yaw)
	a.prevYaw = yaw
	remaining := a.angle - a.accumulated

	if math.Abs(remaining) <= a.opts.AlignedAt {
		a.env.Record(safety.MoveRecord{Kind: safety.KindTurn, Positive: a.positive()})
		a.SetStatus(action.Success)
		return nil
	}

	cfg := a.env.Config()
	switch safety.Check(state, cfg, a.env.Thresholds) {
	case safety.AbortTipping:
		a.env.ClearPrevious()
		a.SetStatus(action.Tipping)
		return emergencyDetach(state, a.env.Thresholds)
	case safety.AbortCollision:
		a.env.Record(safety.MoveRecord{Kind: safety.KindTurn, Positive: a.positive(), Collided: true})
		a.SetStatus(action.Collision)
		return nil
	}

	if a.frames < graceFrames {
		a.lastAccum = a.accumulated
		return nil
	}

	if math.Abs(a.accumulated-a.lastAccum) < progressEpsDeg {
		a.stallFrames++
	} else {
		a.stallFrames = 0
	}
	a.lastAccum = a.accumulated

	if a.stallFrames >= stallFrameLimit {
		if a.attempts >= moveAttempts {
			a.env.Record(safety.MoveRecord{Kind: safety.KindTurn, Positive: a.positive()})
			a.SetStatus(action.FailedToTurn)
			return nil
		}
		a.attempts++
		a.stallFrames = 0
		return spinDifferential(state, wheelDegForTurn(remaining))
	}
	return nil
}

// End stops the wheels at their current angles.
func (a *TurnBy) End(state *bodyframe.State) []protocol.Directive {
	return stopWheels(a.topo)
}

// TurnTo turns to face either an absolute yaw or a world point; the delta is
// computed from the agent's heading on the starting frame.
type TurnTo struct {
	TurnBy

	targetYaw float64
	toPoint   *r3.Vector
}

// NewTurnTo builds a turn to an absolute yaw in degrees.
func NewTurnTo(topo *bodyframe.Topology, env Env, yawDeg float64, opts Options, logger golog.Logger) *TurnTo {
	t := &TurnTo{TurnBy: *NewTurnBy(topo, env, 0, opts, logger), targetYaw: yawDeg}
	t.Base = action.NewBase("turn_to", logger)
	return t
}

// NewTurnToFace builds a turn to face a world point.
func NewTurnToFace(topo *bodyframe.Topology, env Env, point r3.Vector, opts Options, logger golog.Logger) *TurnTo {
	p := point
	t := &TurnTo{TurnBy: *NewTurnBy(topo, env, 0, opts, logger), toPoint: &p}
	t.Base = action.NewBase("turn_to", logger)
	return t
}

// Start resolves the turn angle from the current heading, then behaves as
// TurnBy.
func (a *TurnTo) Start(state *bodyframe.State) []protocol.Directive {
	want := a.targetYaw
	if a.toPoint != nil {
		want = spatialmath.YawTowardDeg(state.Position(), *a.toPoint)
	}
	a.angle = spatialmath.HeadingDeltaDeg(state.Yaw(), want)
	if math.Abs(a.angle) <= a.opts.AlignedAt {
		// Already aligned; nothing to do.
		a.SetStatus(action.Success)
		return nil
	}
	return a.TurnBy.Start(state)
}

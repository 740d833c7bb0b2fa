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

// MoveBy drives the base straight forward (or backward, for a negative
// distance) until the traveled distance is within the arrived-at slack of
// the request.
type MoveBy struct {
	action.Base

	topo *bodyframe.Topology
	env  Env
	opts Options

	distance float64

	start   r3.Vector
	forward r3.Vector

	frames      int
	lastTravel  float64
	stallFrames int
	attempts    int
}

// NewMoveBy builds a straight move of distance meters.
func NewMoveBy(topo *bodyframe.Topology, env Env, distance float64, opts Options, logger golog.Logger) *MoveBy {
	opts.fill()
	return &MoveBy{
		Base:     action.NewBase("move_by", logger),
		topo:     topo,
		env:      env,
		opts:     opts,
		distance: distance,
	}
}

func (a *MoveBy) positive() bool { return a.distance > 0 }

// Start applies the same-direction-repeat rule, snapshots the start pose,
// and spins the wheels toward the target.
func (a *MoveBy) Start(state *bodyframe.State) []protocol.Directive {
	cfg := a.env.Config()
	if safety.RefuseRepeat(a.env.Previous(), safety.KindMove, a.positive(), cfg) {
		// Did-not-try: zero directives, zero frames. The record stays
		// collided so further repeats fail the same way.
		a.SetStatus(action.Collision)
		return nil
	}

	a.start = state.Position()
	a.forward = spatialmath.ForwardFromYaw(state.Yaw())
	a.attempts = 1

	out := prelude(a.topo, a.opts.SuppressPoseReset)
	return append(out, spinAll(state, wheelDegForDistance(a.distance))...)
}

// Step monitors travel, policy aborts, and stalls.
func (a *MoveBy) Step(state *bodyframe.State) []protocol.Directive {
	a.frames++
	traveled := spatialmath.SignedTravel(a.start, state.Position(), a.forward)
	remaining := a.distance - traveled

	if math.Abs(remaining) <= a.opts.ArrivedAt {
		a.env.Record(safety.MoveRecord{Kind: safety.KindMove, Positive: a.positive()})
		a.SetStatus(action.Success)
		return nil
	}

	cfg := a.env.Config()
	switch safety.Check(state, cfg, a.env.Thresholds) {
	case safety.AbortTipping:
		// Tipping outranks collision and wipes the collision bookkeeping.
		a.env.ClearPrevious()
		a.SetStatus(action.Tipping)
		return emergencyDetach(state, a.env.Thresholds)
	case safety.AbortCollision:
		a.env.Record(safety.MoveRecord{Kind: safety.KindMove, Positive: a.positive(), Collided: true})
		a.SetStatus(action.Collision)
		return nil
	}

	if a.frames < graceFrames {
		a.lastTravel = traveled
		return nil
	}

	if math.Abs(traveled-a.lastTravel) < progressEpsM {
		a.stallFrames++
	} else {
		a.stallFrames = 0
	}
	a.lastTravel = traveled

	if a.stallFrames >= stallFrameLimit {
		if a.attempts >= moveAttempts {
			a.env.Record(safety.MoveRecord{Kind: safety.KindMove, Positive: a.positive()})
			a.SetStatus(action.FailedToMove)
			return nil
		}
		a.attempts++
		a.stallFrames = 0
		if a.Logger() != nil {
			a.Logger().Debugw("move stalled, re-driving wheels",
				"attempt", a.attempts, "remaining", remaining)
		}
		return spinAll(state, wheelDegForDistance(remaining))
	}
	return nil
}

// End stops the wheels at their current angles so the base holds position.
func (a *MoveBy) End(state *bodyframe.State) []protocol.Directive {
	return stopWheels(a.topo)
}

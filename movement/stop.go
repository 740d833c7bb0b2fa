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

// Stop halts the wheels at their current angles. Always succeeds, in one
// frame.
type Stop struct {
	action.Base

	topo *bodyframe.Topology
}

// NewStop builds a stop action.
func NewStop(topo *bodyframe.Topology, logger golog.Logger) *Stop {
	return &Stop{Base: action.NewBase("stop", logger), topo: topo}
}

// Start stops every wheel and succeeds immediately.
func (a *Stop) Start(state *bodyframe.State) []protocol.Directive {
	a.SetStatus(action.Success)
	return stopWheels(a.topo)
}

// Step never runs; Start is terminal.
func (a *Stop) Step(state *bodyframe.State) []protocol.Directive { return nil }

// floorCellSize is the occupancy grid pitch used to snap the reset position
// onto a valid floor cell.
const floorCellSize = 0.5

// ResetPosition is the hard reset for a tipped agent: teleport upright onto
// the nearest floor cell and release everything held. It refuses only when
// the agent is upright and pressed against another agent, whose body would
// occupy the destination cell.
type ResetPosition struct {
	action.Base

	topo *bodyframe.Topology
	env  Env
}

// NewResetPosition builds a hard reset.
func NewResetPosition(topo *bodyframe.Topology, env Env, logger golog.Logger) *ResetPosition {
	return &ResetPosition{Base: action.NewBase("reset_position", logger), topo: topo, env: env}
}

// Start drops all held objects and teleports the base upright.
func (a *ResetPosition) Start(state *bodyframe.State) []protocol.Directive {
	upright := safety.ClassifyTilt(state.Up(), a.env.Thresholds) == safety.Upright
	if upright && len(state.Collisions().OtherAgents) > 0 {
		a.SetStatus(action.CannotResetPosition)
		return nil
	}

	if a.Logger() != nil {
		a.Logger().Infow("hard position reset", "tilt", spatialmath.MaxTiltDeg(state.Up()))
	}

	var out []protocol.Directive
	for arm, objs := range state.AllHeld() {
		for _, id := range objs {
			out = append(out, protocol.Detach(a.topo.MagnetID(arm), id))
		}
	}

	pos := state.Position()
	cell := r3.Vector{
		X: math.Round(pos.X/floorCellSize) * floorCellSize,
		Y: 0,
		Z: math.Round(pos.Z/floorCellSize) * floorCellSize,
	}
	out = append(out, protocol.Teleport(cell, state.Yaw()))

	// Whatever went wrong before is moot after a teleport.
	a.env.ClearPrevious()
	return out
}

// Step succeeds on the first frame after the teleport lands.
func (a *ResetPosition) Step(state *bodyframe.State) []protocol.Directive {
	a.SetStatus(action.Success)
	return nil
}

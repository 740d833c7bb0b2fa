// Package movement implements the wheel-driven base actions: turning,
// straight moves, their composition, stopping, and the hard position reset.
// Every action consults the shared collision and tipping policy each frame
// and aborts with the corresponding status when it trips.
package movement

import (
	"math"

	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/protocol"
	"github.com/magbot-sim/magbot/safety"
)

// Env is how movement actions see the agent they belong to: the detection
// config (re-read atomically every evaluation), the tilt thresholds, and the
// previous-movement record feeding the same-direction-repeat rule.
type Env struct {
	Config     func() *safety.DetectionConfig
	Thresholds safety.Thresholds
	// Previous returns the last movement's record, or nil.
	Previous func() *safety.MoveRecord
	// Record replaces the previous-movement record.
	Record func(safety.MoveRecord)
	// ClearPrevious wipes the record; tipping aborts do this since tipping
	// overrides collision bookkeeping.
	ClearPrevious func()
}

// StaticEnv returns an Env with its own private record storage, for tests
// and standalone use.
func StaticEnv(cfg *safety.DetectionConfig, th safety.Thresholds) Env {
	var prev *safety.MoveRecord
	return Env{
		Config:        func() *safety.DetectionConfig { return cfg },
		Thresholds:    th,
		Previous:      func() *safety.MoveRecord { return prev },
		Record:        func(r safety.MoveRecord) { prev = &r },
		ClearPrevious: func() { prev = nil },
	}
}

// Options tune a movement action.
type Options struct {
	// ArrivedAt is the distance slack for moves, meters.
	ArrivedAt float64
	// AlignedAt is the angular slack for turns, degrees.
	AlignedAt float64
	// SuppressPoseReset skips the torso/column neutral reset that movement
	// actions otherwise begin with.
	SuppressPoseReset bool
}

// Default slacks.
const (
	DefaultArrivedAt = 0.1
	DefaultAlignedAt = 1.0
)

func (o *Options) fill() {
	if o.ArrivedAt <= 0 {
		o.ArrivedAt = DefaultArrivedAt
	}
	if o.AlignedAt <= 0 {
		o.AlignedAt = DefaultAlignedAt
	}
}

// Stall handling: how many consecutive no-progress frames count as a stall,
// and how many re-issues are attempted before the action fails.
const (
	stallFrameLimit = 25
	moveAttempts    = 3
	progressEpsM    = 0.002
	progressEpsDeg  = 0.15
	graceFrames     = 3
)

// wheelDegForDistance converts meters of base travel to degrees of wheel
// rotation.
func wheelDegForDistance(meters float64) float64 {
	return meters / bodyframe.WheelRadius * 180 / math.Pi
}

// wheelDegForTurn converts degrees of base yaw to degrees of differential
// wheel rotation.
func wheelDegForTurn(yawDeg float64) float64 {
	return yawDeg * (bodyframe.TrackWidth / 2) / bodyframe.WheelRadius
}

// spinAll returns wheel targets advancing every wheel from its current angle
// by deltaDeg.
func spinAll(state *bodyframe.State, deltaDeg float64) []protocol.Directive {
	var out []protocol.Directive
	for _, id := range state.Topology().WheelIDs() {
		out = append(out, protocol.WheelTarget(id, state.JointAngle(id)+deltaDeg))
	}
	return out
}

// spinDifferential returns wheel targets spinning the left and right pairs
// in opposite senses; positive deltaDeg turns the base clockwise.
func spinDifferential(state *bodyframe.State, deltaDeg float64) []protocol.Directive {
	topo := state.Topology()
	var out []protocol.Directive
	for _, id := range topo.LeftWheels() {
		out = append(out, protocol.WheelTarget(id, state.JointAngle(id)+deltaDeg))
	}
	for _, id := range topo.RightWheels() {
		out = append(out, protocol.WheelTarget(id, state.JointAngle(id)-deltaDeg))
	}
	return out
}

// stopWheels holds every wheel at its current angle.
func stopWheels(topo *bodyframe.Topology) []protocol.Directive {
	var out []protocol.Directive
	for _, id := range topo.WheelIDs() {
		out = append(out, protocol.StopAtCurrent(id))
	}
	return out
}

// prelude is the shared opening of every movement action: unlock the base
// and, unless suppressed, bring the torso and column back to neutral so the
// center of mass is low while driving.
func prelude(topo *bodyframe.Topology, suppressPoseReset bool) []protocol.Directive {
	out := []protocol.Directive{protocol.SetImmovable(false)}
	if !suppressPoseReset {
		out = append(out,
			protocol.JointTarget(topo.Column.ID, topo.Column.Neutral...),
			protocol.JointTarget(topo.Torso.ID, topo.Torso.Neutral...),
		)
	}
	return out
}

// emergencyDetach builds detach directives for a tipping abort's forced
// drops.
func emergencyDetach(state *bodyframe.State, th safety.Thresholds) []protocol.Directive {
	var out []protocol.Directive
	topo := state.Topology()
	for arm, objs := range safety.EmergencyDrops(state, th) {
		for _, id := range objs {
			out = append(out, protocol.Detach(topo.MagnetID(arm), id))
		}
	}
	return out
}

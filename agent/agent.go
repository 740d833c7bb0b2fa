// Package agent ties the control core together: it owns the body state, the
// single pending action slot, and the shared safety configuration, and it
// pumps each frame's telemetry into whichever action is active.
package agent

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.uber.org/atomic"

	"github.com/magbot-sim/magbot/action"
	"github.com/magbot-sim/magbot/articulation"
	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/camera"
	"github.com/magbot-sim/magbot/movement"
	"github.com/magbot-sim/magbot/protocol"
	"github.com/magbot-sim/magbot/safety"
)

// Config parametrizes an agent.
type Config struct {
	// Table is the orientation solution table; nil loads the embedded
	// default.
	Table *articulation.Table
	// Thresholds are the tipping limits.
	Thresholds safety.Thresholds
	// Detection is the initial collision policy; nil uses the default.
	Detection *safety.DetectionConfig
	// CameraLimits bound camera rotation.
	CameraLimits camera.Limits
}

// Agent is one robot instance. It is not safe for concurrent use: the
// scheduling model is single-threaded and externally stepped. The detection
// config is the one exception, swappable from other goroutines and read
// atomically at each policy evaluation.
type Agent struct {
	logger golog.Logger

	topo  *bodyframe.Topology
	state *bodyframe.State
	table *articulation.Table

	thresholds safety.Thresholds
	camLimits  camera.Limits
	detection  *atomic.Pointer[safety.DetectionConfig]

	prevMove *safety.MoveRecord

	slot    *action.Slot
	pending []protocol.Directive
}

// New builds an agent.
func New(cfg Config, logger golog.Logger) (*Agent, error) {
	table := cfg.Table
	if table == nil {
		var err error
		table, err = articulation.DefaultTable()
		if err != nil {
			return nil, err
		}
	}
	if cfg.Thresholds == (safety.Thresholds{}) {
		cfg.Thresholds = safety.DefaultThresholds()
	}
	if cfg.Detection == nil {
		cfg.Detection = safety.DefaultDetectionConfig()
	}
	if cfg.CameraLimits == (camera.Limits{}) {
		cfg.CameraLimits = camera.DefaultLimits()
	}

	topo := bodyframe.NewTopology()
	return &Agent{
		logger:     logger,
		topo:       topo,
		state:      bodyframe.NewState(topo),
		table:      table,
		thresholds: cfg.Thresholds,
		camLimits:  cfg.CameraLimits,
		detection:  atomic.NewPointer(cfg.Detection),
	}, nil
}

// Topology returns the agent's static body description.
func (a *Agent) Topology() *bodyframe.Topology { return a.topo }

// State returns the agent's per-frame body state.
func (a *Agent) State() *bodyframe.State { return a.state }

// DetectionConfig returns the current collision policy snapshot.
func (a *Agent) DetectionConfig() *safety.DetectionConfig { return a.detection.Load() }

// SetDetectionConfig atomically swaps the collision policy.
func (a *Agent) SetDetectionConfig(cfg *safety.DetectionConfig) { a.detection.Store(cfg) }

// Idle reports whether no action is in flight.
func (a *Agent) Idle() bool { return a.slot == nil || a.slot.Done() }

// Current returns the active or most recently finished action, or nil.
func (a *Agent) Current() action.Action {
	if a.slot == nil {
		return nil
	}
	return a.slot.Action()
}

// DidNotTry reports whether the most recent action terminated without
// consuming any simulation time.
func (a *Agent) DidNotTry() bool { return a.slot != nil && a.slot.DidNotTry() }

// StartAction installs an action, force-finalizing any action still in
// flight: the old action is marked Failure and gets its End call so wheel
// and joint targets are not left running. Its hold directives ride along
// with the next frame.
func (a *Agent) StartAction(act action.Action) {
	if a.slot != nil && !a.slot.Done() {
		a.logger.Warnw("preempting in-flight action",
			"old", a.slot.Action().Name(), "new", act.Name())
		a.pending = append(a.pending, a.slot.Preempt(a.state)...)
	}
	a.slot = action.NewSlot(act)
}

// Update ingests one frame of telemetry and returns the directives to send
// this frame.
func (a *Agent) Update(tel *protocol.Telemetry) []protocol.Directive {
	a.state.Update(tel)

	out := a.pending
	a.pending = nil
	if a.slot != nil && !a.slot.Done() {
		out = append(out, a.slot.Evaluate(a.state)...)
	}
	return out
}

func (a *Agent) env() movement.Env {
	return movement.Env{
		Config:        func() *safety.DetectionConfig { return a.detection.Load() },
		Thresholds:    a.thresholds,
		Previous:      func() *safety.MoveRecord { return a.prevMove },
		Record:        func(r safety.MoveRecord) { a.prevMove = &r },
		ClearPrevious: func() { a.prevMove = nil },
	}
}

// TurnBy starts an in-place turn by angleDeg, clockwise positive.
func (a *Agent) TurnBy(angleDeg float64, opts movement.Options) *movement.TurnBy {
	act := movement.NewTurnBy(a.topo, a.env(), angleDeg, opts, a.logger)
	a.StartAction(act)
	return act
}

// TurnTo starts a turn to an absolute heading.
func (a *Agent) TurnTo(yawDeg float64, opts movement.Options) *movement.TurnTo {
	act := movement.NewTurnTo(a.topo, a.env(), yawDeg, opts, a.logger)
	a.StartAction(act)
	return act
}

// MoveBy starts a straight move of distance meters.
func (a *Agent) MoveBy(distance float64, opts movement.Options) *movement.MoveBy {
	act := movement.NewMoveBy(a.topo, a.env(), distance, opts, a.logger)
	a.StartAction(act)
	return act
}

// MoveTo starts a turn-then-move to a world point.
func (a *Agent) MoveTo(target r3.Vector, opts movement.Options) *movement.MoveTo {
	act := movement.NewMoveTo(a.topo, a.env(), target, opts, a.logger)
	a.StartAction(act)
	return act
}

// Stop halts the wheels.
func (a *Agent) Stop() *movement.Stop {
	act := movement.NewStop(a.topo, a.logger)
	a.StartAction(act)
	return act
}

// ResetPosition starts the hard reset for a tipped agent.
func (a *Agent) ResetPosition() *movement.ResetPosition {
	act := movement.NewResetPosition(a.topo, a.env(), a.logger)
	a.StartAction(act)
	return act
}

// ReachFor starts a reach toward a world point with automatic orientation
// selection.
func (a *Agent) ReachFor(arm bodyframe.Arm, target r3.Vector, arrivedAt float64) *articulation.ReachFor {
	act := articulation.NewReachFor(a.topo, a.table, arm, target, arrivedAt,
		articulation.OrientationAuto, articulation.AutoOrientation, a.logger)
	a.StartAction(act)
	return act
}

// ReachForOriented starts a reach with explicit orientation parameters,
// disabling the retry loop.
func (a *Agent) ReachForOriented(
	arm bodyframe.Arm,
	target r3.Vector,
	arrivedAt float64,
	mode articulation.OrientationMode,
	orientation r3.Vector,
) *articulation.ReachFor {
	act := articulation.NewReachFor(a.topo, a.table, arm, target, arrivedAt, mode, orientation, a.logger)
	a.StartAction(act)
	return act
}

// Grasp starts a grasp of an object.
func (a *Agent) Grasp(arm bodyframe.Arm, objectID int) *articulation.Grasp {
	act := articulation.NewGrasp(a.topo, a.table, arm, objectID, a.logger)
	a.StartAction(act)
	return act
}

// Drop starts a drop of a held object.
func (a *Agent) Drop(arm bodyframe.Arm, objectID int, waitForObject bool) *articulation.Drop {
	act := articulation.NewDrop(a.topo, arm, objectID, waitForObject, a.logger)
	a.StartAction(act)
	return act
}

// ResetArm starts an arm reset to neutral.
func (a *Agent) ResetArm(arm bodyframe.Arm) *articulation.ResetArm {
	act := articulation.NewResetArm(a.topo, arm, a.logger)
	a.StartAction(act)
	return act
}

// SlideTorso starts a torso slide to height meters.
func (a *Agent) SlideTorso(height float64) *articulation.SlideTorso {
	act := articulation.NewSlideTorso(a.topo, height, a.logger)
	a.StartAction(act)
	return act
}

// RotateCamera starts a camera rotation.
func (a *Agent) RotateCamera(pitch, yaw, roll float64) *camera.Rotate {
	act := camera.NewRotate(a.camLimits, pitch, yaw, roll, a.logger)
	a.StartAction(act)
	return act
}

// LookAt points the camera at a world position.
func (a *Agent) LookAt(target r3.Vector) *camera.LookAt {
	act := camera.NewLookAt(a.camLimits, target, a.logger)
	a.StartAction(act)
	return act
}

// ResetCamera recenters the camera.
func (a *Agent) ResetCamera() *camera.Reset {
	act := camera.NewReset(a.logger)
	a.StartAction(act)
	return act
}

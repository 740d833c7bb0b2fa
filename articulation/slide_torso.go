package articulation

import (
	"github.com/edaniels/golog"

	"github.com/magbot-sim/magbot/action"
	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/protocol"
)

// SlideTorso drives the torso's prismatic joint to a height, clamped to its
// physical range.
type SlideTorso struct {
	action.Base

	topo   *bodyframe.Topology
	height float64

	attempts int
	frames   int
}

// NewSlideTorso builds a torso slide to the given height in meters.
func NewSlideTorso(topo *bodyframe.Topology, height float64, logger golog.Logger) *SlideTorso {
	return &SlideTorso{
		Base:   action.NewBase("slide_torso", logger),
		topo:   topo,
		height: clampTorso(height),
	}
}

// Start locks the base and issues the slide target.
func (a *SlideTorso) Start(state *bodyframe.State) []protocol.Directive {
	a.attempts = 1
	return []protocol.Directive{
		protocol.SetImmovable(true),
		protocol.JointTarget(a.topo.Torso.ID, a.height),
	}
}

// Step succeeds once the slide stops within tolerance of the target,
// re-issuing the target on stalls up to the bend budget.
func (a *SlideTorso) Step(state *bodyframe.State) []protocol.Directive {
	a.frames++
	if a.frames < settleGraceFrames || state.Moving(a.topo.Torso.ID) {
		return nil
	}

	diff := state.TorsoHeight() - a.height
	if diff < 0 {
		diff = -diff
	}
	if diff <= 0.02 {
		a.SetStatus(action.Success)
		return nil
	}
	if a.attempts >= resetBendAttempts {
		a.SetStatus(action.FailedToBend)
		return nil
	}
	a.attempts++
	a.frames = 0
	return []protocol.Directive{protocol.JointTarget(a.topo.Torso.ID, a.height)}
}

// End holds the slide at its current height.
func (a *SlideTorso) End(state *bodyframe.State) []protocol.Directive {
	return []protocol.Directive{protocol.StopAtCurrent(a.topo.Torso.ID)}
}

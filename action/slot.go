package action

import (
	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/protocol"
)

// Slot drives a single action through its lifecycle and enforces the
// ordering invariants: Start before any Step, End exactly once, nothing
// after End.
type Slot struct {
	action     Action
	started    bool
	ended      bool
	steps      int
	directives int
}

// NewSlot wraps an action for evaluation.
func NewSlot(a Action) *Slot {
	return &Slot{action: a}
}

// Action returns the wrapped action.
func (s *Slot) Action() Action { return s.action }

// Done reports whether the action has been finalized.
func (s *Slot) Done() bool { return s.ended }

// Steps returns how many Step calls have been made. Zero on a finalized
// action means it never advanced simulation time.
func (s *Slot) Steps() int { return s.steps }

// DidNotTry reports whether the action terminated without emitting a single
// directive or consuming a single frame.
func (s *Slot) DidNotTry() bool {
	return s.ended && s.steps == 0 && s.directives == 0
}

// Evaluate runs one frame of the lifecycle and returns the directives to
// emit. It returns nil once the action is finalized.
func (s *Slot) Evaluate(state *bodyframe.State) []protocol.Directive {
	if s.ended {
		return nil
	}

	var out []protocol.Directive
	if !s.started {
		s.started = true
		out = s.action.Start(state)
	} else {
		out = s.action.Step(state)
		s.steps++
	}
	// Finalization holds do not count toward the did-not-try test; only
	// directives from Start and Step mean the action touched the world.
	s.directives += len(out)

	if s.action.Status().Terminal() {
		out = append(out, s.action.End(state)...)
		s.ended = true
	}
	return out
}

// Preempt force-finalizes a still-ongoing action so a new one can be
// installed. The preempted action is marked Failure and, if it ever started,
// gets its End call so held positions are not left drifting.
func (s *Slot) Preempt(state *bodyframe.State) []protocol.Directive {
	if s.ended {
		return nil
	}
	s.ended = true
	s.action.SetStatus(Failure)
	if !s.started {
		return nil
	}
	out := s.action.End(state)
	s.directives += len(out)
	return out
}

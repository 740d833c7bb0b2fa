package action

import (
	"github.com/edaniels/golog"
	"github.com/google/uuid"

	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/protocol"
)

// Action is one in-flight behavior. Implementations receive the latest body
// state once per frame and answer with the directives to emit that frame.
//
// Start is called exactly once and may set a terminal status immediately
// (a did-not-try failure); Step is called once per frame while the status is
// Ongoing; End is called exactly once, on the frame the status first turns
// terminal, in place of Step. No method is called after End.
type Action interface {
	Name() string
	Status() Status
	// SetStatus records a transition. Once terminal, further calls are
	// ignored.
	SetStatus(Status)

	Start(state *bodyframe.State) []protocol.Directive
	Step(state *bodyframe.State) []protocol.Directive
	End(state *bodyframe.State) []protocol.Directive
}

// Base carries the fields and status bookkeeping shared by every concrete
// action. Embed it and override the lifecycle methods as needed.
type Base struct {
	name   string
	id     uuid.UUID
	status Status
	logger golog.Logger
}

// NewBase makes the shared core of a concrete action.
func NewBase(name string, logger golog.Logger) Base {
	return Base{name: name, id: uuid.New(), status: Ongoing, logger: logger}
}

// Name returns the action's name.
func (b *Base) Name() string { return b.name }

// ID returns the unique id assigned to this action instance, used to
// correlate log lines across frames.
func (b *Base) ID() uuid.UUID { return b.id }

// Status returns the current status.
func (b *Base) Status() Status { return b.status }

// Logger returns the action's logger.
func (b *Base) Logger() golog.Logger { return b.logger }

// SetStatus transitions the status. A terminal status is final: later calls
// are dropped, preserving the first recorded outcome.
func (b *Base) SetStatus(s Status) {
	if b.status.Terminal() {
		if b.logger != nil && s != b.status {
			b.logger.Debugw("ignoring status transition on terminal action",
				"action", b.name, "id", b.id, "have", b.status.String(), "want", s.String())
		}
		return
	}
	b.status = s
}

// End is the default terminal hook: no directives. Concrete actions override
// it to hold wheels or joints at their current angles.
func (b *Base) End(*bodyframe.State) []protocol.Directive { return nil }

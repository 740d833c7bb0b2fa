// Package engine is the boundary to the external physics engine. One step
// is one synchronous exchange: directives out, a telemetry snapshot back.
// The core never owns the engine process; a lost connection is fatal and is
// surfaced as an error, never as an action status.
package engine

import (
	"context"

	"github.com/pkg/errors"

	"github.com/magbot-sim/magbot/protocol"
)

// ErrConnectionLost marks transport failures to the engine. Callers should
// treat it as unrecoverable and terminate.
var ErrConnectionLost = errors.New("physics engine connection lost")

// Stepper exchanges one frame of directives for one telemetry snapshot.
// Implementations are driven strictly serially by the caller.
type Stepper interface {
	Step(ctx context.Context, directives []protocol.Directive) (*protocol.Telemetry, error)
	Close() error
}

package agent

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"github.com/magbot-sim/magbot/action"
	"github.com/magbot-sim/magbot/engine"
	"github.com/magbot-sim/magbot/protocol"
)

// Runner drives an agent against an engine connection: one Step exchange per
// frame until the in-flight action terminates. It is the caller-side loop
// the scheduling model expects; "waiting" for an action is just stepping.
type Runner struct {
	agent   *Agent
	stepper engine.Stepper

	clock         clock.Clock
	frameInterval time.Duration

	pending []protocol.Directive
	primed  bool
}

// NewRunner wires an agent to an engine. A zero frameInterval runs frames
// back to back; otherwise frames are paced on the given clock.
func NewRunner(a *Agent, stepper engine.Stepper, c clock.Clock, frameInterval time.Duration) *Runner {
	if c == nil {
		c = clock.New()
	}
	return &Runner{agent: a, stepper: stepper, clock: c, frameInterval: frameInterval}
}

// Agent returns the driven agent.
func (r *Runner) Agent() *Agent { return r.agent }

// Prime performs one empty exchange so the agent has a telemetry snapshot
// before its first action starts.
func (r *Runner) Prime(ctx context.Context) error {
	if r.primed {
		return nil
	}
	tel, err := r.stepper.Step(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "priming step")
	}
	r.pending = r.agent.Update(tel)
	r.primed = true
	return nil
}

// StepOnce performs one frame exchange.
func (r *Runner) StepOnce(ctx context.Context) error {
	tel, err := r.stepper.Step(ctx, r.pending)
	if err != nil {
		return err
	}
	r.pending = r.agent.Update(tel)
	return nil
}

// Run installs the action (unless it is already the agent's current one)
// and steps until it terminates, returning its terminal status. Engine
// errors abort the loop and are returned as-is; they are fatal by contract.
func (r *Runner) Run(ctx context.Context, act action.Action) (action.Status, error) {
	if err := r.Prime(ctx); err != nil {
		return action.Failure, err
	}
	if r.agent.Current() != act {
		r.agent.StartAction(act)
	}
	if _, err := r.Complete(ctx); err != nil {
		return act.Status(), err
	}
	return act.Status(), nil
}

// Complete steps until the agent goes idle and returns the finished
// action's status.
func (r *Runner) Complete(ctx context.Context) (action.Status, error) {
	if err := r.Prime(ctx); err != nil {
		return action.Failure, err
	}
	for !r.agent.Idle() {
		if err := ctx.Err(); err != nil {
			return action.Failure, err
		}
		if err := r.StepOnce(ctx); err != nil {
			return action.Failure, err
		}
		if r.frameInterval > 0 {
			r.clock.Sleep(r.frameInterval)
		}
	}
	// Deliver the final frame's hold directives before returning.
	if len(r.pending) > 0 {
		tel, err := r.stepper.Step(ctx, r.pending)
		if err != nil {
			return action.Failure, err
		}
		r.pending = r.agent.Update(tel)
	}
	if cur := r.agent.Current(); cur != nil {
		return cur.Status(), nil
	}
	return action.Success, nil
}

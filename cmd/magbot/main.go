// Package main is a CLI for driving the agent against a running physics
// engine. The demo command runs a short scripted tour; run connects and
// steps idle frames, which is useful for checking an engine endpoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"github.com/magbot-sim/magbot/action"
	"github.com/magbot-sim/magbot/agent"
	"github.com/magbot-sim/magbot/bodyframe"
	"github.com/magbot-sim/magbot/config"
	"github.com/magbot-sim/magbot/engine"
	"github.com/magbot-sim/magbot/movement"
	"github.com/magbot-sim/magbot/spatialmath"
)

func main() {
	var logger golog.Logger

	app := &cli.App{
		Name:  "magbot",
		Usage: "wheeled dual-arm agent controller",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a configuration file",
			},
			&cli.StringFlag{
				Name:  "address",
				Value: "ws://127.0.0.1:7788/step",
				Usage: "engine address (overridden by --config)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				logger = golog.NewDebugLogger("magbot")
			} else {
				logger = golog.NewDevelopmentLogger("magbot")
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "connect to the engine and step idle frames",
				Action: func(c *cli.Context) error {
					return withRunner(c, logger, runIdle)
				},
			},
			{
				Name:  "demo",
				Usage: "run a short scripted tour of the action set",
				Action: func(c *cli.Context) error {
					return withRunner(c, logger, runDemo)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		golog.Global.Fatal(err)
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Read(path)
	}
	cfg := &config.Config{}
	cfg.Engine.Address = c.String("address")
	return cfg, cfg.Validate("flags")
}

func withRunner(c *cli.Context, logger golog.Logger, run func(context.Context, *agent.Runner, golog.Logger) error) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	table, err := cfg.Table()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := engine.Dial(ctx, cfg.Engine.Address, logger)
	if err != nil {
		return errors.Wrapf(err, "connecting to engine at %s", cfg.Engine.Address)
	}
	defer func() {
		err = multierr.Combine(err, client.Close())
	}()

	ag, err := agent.New(agent.Config{
		Table:      table,
		Thresholds: cfg.Thresholds(),
		Detection:  cfg.Detection(),
	}, logger)
	if err != nil {
		return err
	}
	runner := agent.NewRunner(ag, client, clock.New(), cfg.FrameInterval())
	if err := runner.Prime(ctx); err != nil {
		return err
	}
	return run(ctx, runner, logger)
}

func runIdle(ctx context.Context, runner *agent.Runner, logger golog.Logger) error {
	logger.Info("connected; stepping idle frames until interrupted")
	for {
		if err := ctx.Err(); err != nil {
			return nil // interrupted
		}
		if err := runner.StepOnce(ctx); err != nil {
			return err
		}
	}
}

func runDemo(ctx context.Context, runner *agent.Runner, logger golog.Logger) error {
	ag := runner.Agent()
	script := []struct {
		name  string
		build func() action.Action
	}{
		{"turn to 90", func() action.Action { return ag.TurnTo(90, movement.Options{}) }},
		{"move forward 1.5m", func() action.Action { return ag.MoveBy(1.5, movement.Options{}) }},
		{"reach overhead", func() action.Action {
			target := ag.State().Position().
				Add(spatialmath.ForwardFromYaw(ag.State().Yaw()).Mul(0.4))
			target.Y = 0.9
			return ag.ReachFor(bodyframe.RightArm, target, 0)
		}},
		{"reset arm", func() action.Action { return ag.ResetArm(bodyframe.RightArm) }},
		{"return", func() action.Action { return ag.MoveTo(r3.Vector{}, movement.Options{}) }},
	}
	for _, step := range script {
		if err := ctx.Err(); err != nil {
			return nil
		}
		status, err := runner.Run(ctx, step.build())
		if err != nil {
			return err
		}
		logger.Infow("demo step finished", "step", step.name, "status", status.String())
	}
	return nil
}

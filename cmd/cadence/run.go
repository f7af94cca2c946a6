package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/dukex/cadence/pkg/cmd"
	"github.com/dukex/cadence/pkg/engine"
	"github.com/dukex/cadence/pkg/models"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v3"
)

const defaultSchedule = "5 0 * * *"

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run evaluation passes on a cron schedule until interrupted",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Standard cron expression, evaluated in --timezone",
				Value:   defaultSchedule,
				Sources: cli.EnvVars("SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:  "run-on-start",
				Usage: "Run one pass immediately before waiting for the schedule",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			schedule := command.String("schedule")

			if _, err := cron.ParseStandard(schedule); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runtime, err := cmd.NewRuntime(ctx, command, "cadence")
			if err != nil {
				return err
			}
			defer runtime.Close(context.WithoutCancel(ctx))

			scheduler := NewScheduler(runtime.Engine, runtime.Logger)

			return scheduler.Run(ctx, schedule, runtime.Config, command.Bool("run-on-start"))
		},
	}
}

// PassRunner runs one evaluation pass.
type PassRunner interface {
	RunPass(ctx context.Context, opts engine.PassOptions) (*models.PassSummary, error)
}

// Scheduler triggers passes from a cron schedule. Overlapping ticks are skipped.
type Scheduler struct {
	runner PassRunner
	logger *slog.Logger
}

func NewScheduler(runner PassRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{runner: runner, logger: logger.With("component", "scheduler")}
}

// Run blocks until ctx is cancelled, waiting for an in-flight pass to finish.
func (s *Scheduler) Run(ctx context.Context, schedule string, config engine.Config, runOnStart bool) error {
	cronLogger := cronLogger{logger: s.logger}

	c := cron.New(
		cron.WithLocation(config.Location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	job := cron.FuncJob(func() { s.runPass(ctx) })

	if runOnStart {
		job.Run()
	}

	entryID, err := c.AddJob(schedule, job)
	if err != nil {
		return fmt.Errorf("failed to schedule passes: %w", err)
	}

	c.Start()

	s.logger.InfoContext(ctx, "Scheduler started", "schedule", schedule, "next_run", c.Entry(entryID).Next)

	<-ctx.Done()

	s.logger.InfoContext(context.WithoutCancel(ctx), "Shutting down scheduler")

	<-c.Stop().Done()

	return nil
}

func (s *Scheduler) runPass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	summary, err := s.runner.RunPass(ctx, engine.PassOptions{})
	if err != nil {
		s.logger.ErrorContext(ctx, "Evaluation pass failed", "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Evaluation pass finished",
		"pass_id", summary.ID,
		"today", summary.Today.Format(models.DayLayout),
		"executed", summary.Executed,
		"failed", summary.Count(models.ResultError),
	)
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

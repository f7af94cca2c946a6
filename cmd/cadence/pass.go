package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dukex/cadence/pkg/cmd"
	"github.com/dukex/cadence/pkg/engine"
	"github.com/dukex/cadence/pkg/models"
	"github.com/urfave/cli/v3"
)

func NewPassCommand() *cli.Command {
	return &cli.Command{
		Name:    "pass",
		Aliases: []string{"p"},
		Usage:   "Run one evaluation pass and print its summary as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "today",
				Usage: "Evaluate as if today were this day (YYYY-MM-DD)",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			opts, err := passOptions(command.String("today"), 0)
			if err != nil {
				return err
			}

			runtime, err := cmd.NewRuntime(ctx, command, "cadence")
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			summary, err := runtime.Engine.RunPass(ctx, opts)
			if summary == nil {
				return fmt.Errorf("pass failed: %w", err)
			}

			if writeErr := writeSummary(os.Stdout, summary); writeErr != nil {
				return writeErr
			}

			return err
		},
	}
}

func passOptions(today string, backfillDays int) (engine.PassOptions, error) {
	opts := engine.PassOptions{BackfillDays: backfillDays}

	if today != "" {
		day, err := models.ParseDay(today)
		if err != nil {
			return opts, err
		}

		opts.Today = &day
	}

	return opts, nil
}

func writeSummary(w io.Writer, summary *models.PassSummary) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to write pass summary: %w", err)
	}

	return nil
}

package main

import (
	"context"
	"os"

	"github.com/dukex/cadence/pkg/cmd"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "cadence-api",
		Usage:                 "Serve evaluation passes and rule inspection over HTTP",
		EnableShellCompletion: true,
		Flags: append(cmd.Flags(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		),
		Action: func(ctx context.Context, command *cli.Command) error {
			runtime, err := cmd.NewRuntime(ctx, command, "api")
			if err != nil {
				return err
			}
			defer runtime.Close(ctx)

			runtime.Logger.InfoContext(ctx, "Initializing Cadence API")

			if runtime.EventBus != nil {
				err := NewAlertMonitor(runtime.Logger, runtime.EventBus).Start(ctx)
				if err != nil {
					return err
				}
			}

			api := NewAPI(runtime.Logger, runtime.Engine, runtime.Persistence, runtime.Ledger)

			if err := api.Start(command.Int("port")); err != nil {
				runtime.Logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		os.Exit(1)
	}
}

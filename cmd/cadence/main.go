// Package main provides the cadence command: one-off passes, the scheduled daemon
// and rule validation.
package main

import (
	"context"
	"os"

	"github.com/dukex/cadence/pkg/cmd"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "cadence",
		Usage:                 "Evaluate automation rules against subjects",
		EnableShellCompletion: true,
		Flags:                 cmd.Flags(),
		Commands: []*cli.Command{
			NewPassCommand(),
			NewRunCommand(),
			NewValidateCommand(),
			NewImportCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		os.Exit(1)
	}
}

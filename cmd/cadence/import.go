package main

import (
	"context"
	"fmt"

	"github.com/dukex/cadence/pkg/cmd"
	"github.com/dukex/cadence/pkg/config"
	"github.com/dukex/cadence/pkg/log"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/urfave/cli/v3"
)

func NewImportCommand() *cli.Command {
	return &cli.Command{
		Name:    "import",
		Aliases: []string{"i"},
		Usage:   "Store the rules defined in a YAML file, replacing rules with the same id",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to the rules YAML file",
				Required: true,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("cadence").With("action", "import")

			definitions, err := config.LoadRules(command.String("file"))
			if err != nil {
				return err
			}

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			if err := importRules(ctx, store.RuleRepository(), definitions); err != nil {
				return err
			}

			logger.InfoContext(ctx, "Rules imported", "rules", len(definitions))

			return nil
		},
	}
}

// importRules saves every rule in the file. Rules are stored even when invalid so
// the catalog reports them on the next pass.
func importRules(ctx context.Context, repo persistence.RuleRepository, definitions []*models.RuleDefinition) error {
	for _, definition := range definitions {
		if err := repo.SaveRule(ctx, definition); err != nil {
			return fmt.Errorf("failed to save rule %s: %w", definition.ID, err)
		}
	}

	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dukex/cadence/pkg/cmd"
	"github.com/dukex/cadence/pkg/engine"
	"github.com/dukex/cadence/pkg/log"
	"github.com/dukex/cadence/pkg/models"
	"github.com/urfave/cli/v3"
)

var ErrInvalidRules = errors.New("invalid rules found")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate every stored rule without running a pass",
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("cadence").With("action", "validate")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			definitions, err := persistence.RuleRepository().Rules(ctx)
			if err != nil {
				return fmt.Errorf("failed to fetch rules: %w", err)
			}

			logger.InfoContext(ctx, "Validating rules", "rules", len(definitions))

			return reportRules(os.Stdout, definitions)
		},
	}
}

// reportRules prints one verdict per rule and fails when any rule is invalid.
func reportRules(w io.Writer, definitions []*models.RuleDefinition) error {
	_, _ = fmt.Fprintln(w, "Rule Validation Results:")
	_, _ = fmt.Fprintln(w, "========================")

	invalid := 0

	for _, definition := range definitions {
		state := "active"
		if !definition.IsActive {
			state = "inactive"
		}

		_, _ = fmt.Fprintf(w, "\nRule: %s (%s, %s, %s)\n", definition.Name, definition.ID, definition.Trigger.Kind, state)

		if _, err := engine.ValidateDefinition(definition); err != nil {
			_, _ = fmt.Fprintf(w, "    ❌ INVALID: %v\n", err)
			invalid++

			continue
		}

		_, _ = fmt.Fprintf(w, "    ✅ VALID: %s\n", definition.ActionKind)
	}

	_, _ = fmt.Fprintf(w, "\nSummary: %d valid, %d invalid\n", len(definitions)-invalid, invalid)

	if invalid > 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRules, invalid)
	}

	return nil
}

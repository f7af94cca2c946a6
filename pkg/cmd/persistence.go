// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/persistence/file"
	"github.com/dukex/cadence/pkg/persistence/postgresql"
	"github.com/dukex/cadence/pkg/persistence/redis"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

var supportedLedgerProviders = []string{"file", "postgres", "postgresql", "redis", "rediss"}

// NewPersistence opens the store named by databaseURL. A plain path or a file://
// URL selects the file backend.
//
//nolint:ireturn // the backend is chosen at runtime
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL, supportedPersistenceProviders) {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	case "file":
		store, err := file.NewPersistence(databaseURL)
		if err != nil {
			return nil, err
		}

		return store, nil
	default:
		return nil, fmt.Errorf("%w: persistence %q", ErrUnsupportedProvider, Describe(databaseURL))
	}
}

// NewLedger opens the execution ledger. An empty ledgerURL keeps the ledger next to
// the rest of the data: the same database for postgres, the same directory for file.
//
//nolint:ireturn // the backend is chosen at runtime
func NewLedger(ctx context.Context, logger *slog.Logger, ledgerURL, databaseURL string, store persistence.Persistence) (persistence.Ledger, error) {
	if ledgerURL == "" {
		if pg, ok := store.(*postgresql.Persistence); ok {
			return pg.Ledger(), nil
		}

		ledgerURL = databaseURL
	}

	var (
		ledger persistence.Ledger
		err    error
	)

	switch parseProvider(ledgerURL, supportedLedgerProviders) {
	case "redis", "rediss":
		ledger, err = redis.NewLedger(ctx, logger, ledgerURL)
	case "postgres", "postgresql":
		ledger, err = postgresql.OpenLedger(ctx, logger, ledgerURL)
	case "file":
		ledger, err = file.NewLedger(ledgerURL)
	default:
		err = fmt.Errorf("%w: ledger %q", ErrUnsupportedProvider, Describe(ledgerURL))
	}

	if err != nil {
		return nil, err
	}

	return ledger, nil
}

func parseProvider(url string, supported []string) string {
	scheme, _, found := strings.Cut(url, "://")
	if !found {
		return "file"
	}

	if slices.Contains(supported, scheme) {
		return scheme
	}

	return ""
}

// Describe returns the URL scheme for logs without leaking credentials.
func Describe(url string) string {
	scheme, _, found := strings.Cut(url, "://")
	if !found {
		return fmt.Sprintf("file (%s)", url)
	}

	return scheme
}

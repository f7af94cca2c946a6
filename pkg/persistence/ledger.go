package persistence

import (
	"context"

	"github.com/dukex/cadence/pkg/models"
)

// Ledger is the durable idempotency store of fired occurrences.
//
// Uniqueness of a key is enforced by the backend. Reserve claims a key atomically:
// while a reservation is held no other caller can reserve or record the same key,
// and once committed the key is permanent.
type Ledger interface {
	// Exists reports whether an occurrence was already recorded.
	Exists(ctx context.Context, key models.OccurrenceKey) (bool, error)

	// Reserve claims the key for the caller. It returns ErrAlreadyRecorded when the
	// key is recorded or currently reserved by someone else.
	Reserve(ctx context.Context, key models.OccurrenceKey) (Reservation, error)

	// Records lists ledger entries for a rule, oldest first.
	Records(ctx context.Context, ruleID string) ([]*models.ExecutionRecord, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Reservation is a pending claim on a ledger key. Exactly one of Commit or Release
// must be called.
type Reservation interface {
	// Commit persists the record under the reserved key.
	Commit(ctx context.Context, record *models.ExecutionRecord) error
	// Release abandons the claim without writing anything.
	Release(ctx context.Context) error
}

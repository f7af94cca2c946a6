package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/lib/pq"
)

// DefaultLockTimeout bounds how long Reserve waits on a key another transaction holds.
const DefaultLockTimeout = time.Second

const lockNotAvailable = "55P03"

// Ledger implements persistence.Ledger on two tables whose primary keys are the
// occurrence keys. A reservation is an open transaction holding the inserted row.
// A concurrent reserver waits on that row for at most the lock timeout: it sees a
// conflict if the holder commits, wins if the holder rolls back, and otherwise gives
// up with ErrAlreadyRecorded.
type Ledger struct {
	db          *sql.DB
	logger      *slog.Logger
	owned       bool
	lockTimeout time.Duration
}

// LedgerOption customizes a Ledger.
type LedgerOption func(*Ledger)

// WithLockTimeout sets how long Reserve waits on a key held by an open reservation.
func WithLockTimeout(timeout time.Duration) LedgerOption {
	return func(l *Ledger) {
		l.lockTimeout = timeout
	}
}

// NewLedger creates a ledger on an already migrated connection pool.
func NewLedger(db *sql.DB, logger *slog.Logger, opts ...LedgerOption) *Ledger {
	l := &Ledger{db: db, logger: logger, lockTimeout: DefaultLockTimeout}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// OpenLedger connects to databaseURL, runs migrations and returns a ledger owning the pool.
func OpenLedger(ctx context.Context, logger *slog.Logger, databaseURL string, opts ...LedgerOption) (*Ledger, error) {
	database, err := open(ctx, logger, databaseURL)
	if err != nil {
		return nil, err
	}

	l := NewLedger(database, logger, opts...)
	l.owned = true

	return l, nil
}

// Exists reports whether the occurrence was committed.
func (l *Ledger) Exists(ctx context.Context, key models.OccurrenceKey) (bool, error) {
	var (
		exists bool
		err    error
	)

	if key.IsInterval() {
		err = l.db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM interval_trigger_executions WHERE rule_id = $1 AND sub_record_id = $2)",
			key.RuleID, key.SubRecordID).Scan(&exists)
	} else {
		err = l.db.QueryRowContext(ctx,
			"SELECT EXISTS (SELECT 1 FROM date_trigger_executions WHERE rule_id = $1 AND subject_id = $2)",
			key.RuleID, key.SubjectID).Scan(&exists)
	}

	if err != nil {
		return false, persistence.NewRecordError("Exists", "ledger", key.String(), err)
	}

	return exists, nil
}

// Reserve inserts the key inside a transaction and keeps the transaction open until
// the reservation is committed or released.
func (l *Ledger) Reserve(ctx context.Context, key models.OccurrenceKey) (persistence.Reservation, error) {
	// The transaction outlives the caller's per-call deadline; only the statements use it.
	transaction, err := l.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return nil, persistence.NewRecordError("Reserve", "ledger", key.String(), err)
	}

	// Scoped to this transaction; the setting is dropped on commit or rollback.
	_, err = transaction.ExecContext(ctx, "SELECT set_config('lock_timeout', $1, true)",
		fmt.Sprintf("%dms", max(l.lockTimeout.Milliseconds(), 1)))
	if err != nil {
		_ = transaction.Rollback()

		return nil, persistence.NewRecordError("Reserve", "ledger", key.String(), err)
	}

	var result sql.Result

	if key.IsInterval() {
		result, err = transaction.ExecContext(ctx, `
			INSERT INTO interval_trigger_executions (rule_id, sub_record_id, subject_id, trigger_kind)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING
		`, key.RuleID, key.SubRecordID, key.SubjectID, models.TriggerPeriodicInterval)
	} else {
		result, err = transaction.ExecContext(ctx, `
			INSERT INTO date_trigger_executions (rule_id, subject_id, trigger_kind)
			VALUES ($1, $2, '')
			ON CONFLICT DO NOTHING
		`, key.RuleID, key.SubjectID)
	}

	if isLockNotAvailable(err) {
		_ = transaction.Rollback()

		return nil, persistence.NewRecordError("Reserve", "ledger", key.String(), persistence.ErrAlreadyRecorded)
	}

	if err != nil {
		_ = transaction.Rollback()

		return nil, persistence.NewRecordError("Reserve", "ledger", key.String(), err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		_ = transaction.Rollback()

		return nil, persistence.NewRecordError("Reserve", "ledger", key.String(), err)
	}

	if inserted == 0 {
		_ = transaction.Rollback()

		return nil, persistence.NewRecordError("Reserve", "ledger", key.String(), persistence.ErrAlreadyRecorded)
	}

	return &reservation{tx: transaction, key: key}, nil
}

// Records lists every ledger entry of a rule, oldest first.
func (l *Ledger) Records(ctx context.Context, ruleID string) ([]*models.ExecutionRecord, error) {
	query := `
		SELECT rule_id, subject_id, '' AS sub_record_id, trigger_kind, observed_date,
		       0 AS occurrence_index, NULL::date AS last_fired_at, NULL::date AS next_eligible_at, created_at
		FROM date_trigger_executions
		WHERE rule_id = $1
		UNION ALL
		SELECT rule_id, subject_id, sub_record_id, trigger_kind, NULL::date,
		       occurrence_index, last_fired_at, next_eligible_at, created_at
		FROM interval_trigger_executions
		WHERE rule_id = $1
		ORDER BY created_at, subject_id, sub_record_id
	`

	rows, err := l.db.QueryContext(ctx, query, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger records: %w", err)
	}

	defer closeRows(ctx, l.logger, rows)

	records := make([]*models.ExecutionRecord, 0)

	for rows.Next() {
		var record models.ExecutionRecord

		var observed, lastFired, nextEligible sql.NullTime

		err := rows.Scan(
			&record.RuleID,
			&record.SubjectID,
			&record.SubRecordID,
			&record.TriggerKind,
			&observed,
			&record.OccurrenceIndex,
			&lastFired,
			&nextEligible,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger record: %w", err)
		}

		record.ObservedDate = dayPointer(observed)
		record.LastFiredAt = dayPointer(lastFired)
		record.NextEligibleAt = dayPointer(nextEligible)

		records = append(records, &record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating ledger records: %w", err)
	}

	return records, nil
}

// HealthCheck verifies the database connection is healthy.
func (l *Ledger) HealthCheck(ctx context.Context) error {
	err := l.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping ledger database: %w", err)
	}

	return nil
}

// Close closes the pool when the ledger opened it itself.
func (l *Ledger) Close(_ context.Context) error {
	if !l.owned {
		return nil
	}

	err := l.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close ledger database connection: %w", err)
	}

	return nil
}

type reservation struct {
	tx     *sql.Tx
	key    models.OccurrenceKey
	closed bool
}

func (r *reservation) Commit(ctx context.Context, record *models.ExecutionRecord) error {
	if r.closed {
		return persistence.ErrReservationClosed
	}

	r.closed = true

	if record.Key() != r.key {
		_ = r.tx.Rollback()

		return fmt.Errorf("record key %s does not match reservation %s", record.Key(), r.key)
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var err error

	if r.key.IsInterval() {
		_, err = r.tx.ExecContext(ctx, `
			UPDATE interval_trigger_executions
			SET trigger_kind = $3, occurrence_index = $4, last_fired_at = $5, next_eligible_at = $6, created_at = $7
			WHERE rule_id = $1 AND sub_record_id = $2
		`, r.key.RuleID, r.key.SubRecordID, record.TriggerKind, record.OccurrenceIndex,
			nullDay(record.LastFiredAt), nullDay(record.NextEligibleAt), createdAt)
	} else {
		_, err = r.tx.ExecContext(ctx, `
			UPDATE date_trigger_executions
			SET trigger_kind = $3, observed_date = $4, created_at = $5
			WHERE rule_id = $1 AND subject_id = $2
		`, r.key.RuleID, r.key.SubjectID, record.TriggerKind, nullDay(record.ObservedDate), createdAt)
	}

	if err != nil {
		_ = r.tx.Rollback()

		return persistence.NewRecordError("Commit", "ledger", r.key.String(), err)
	}

	err = r.tx.Commit()
	if err != nil {
		return persistence.NewRecordError("Commit", "ledger", r.key.String(), err)
	}

	return nil
}

func (r *reservation) Release(_ context.Context) error {
	if r.closed {
		return persistence.ErrReservationClosed
	}

	r.closed = true

	err := r.tx.Rollback()
	if err != nil {
		return persistence.NewRecordError("Release", "ledger", r.key.String(), err)
	}

	return nil
}

// isLockNotAvailable reports a wait that hit lock_timeout: another transaction holds
// the key, so the caller treats it as taken.
func isLockNotAvailable(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == lockNotAvailable
}

func nullDay(day *time.Time) sql.NullTime {
	if day == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: models.Day(*day), Valid: true}
}

func dayPointer(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}

	day := models.Day(value.Time)

	return &day
}

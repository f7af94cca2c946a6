// Package postgresql provides PostgreSQL persistence for rules, subjects and the execution ledger.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/cadence/pkg/persistence"
	"github.com/dukex/cadence/pkg/persistence/sqlbase"
	"github.com/lib/pq"
)

// foreignKeyViolation is the SQLSTATE raised when a referenced row is missing.
const foreignKeyViolation = "23503"

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	ruleRepo      *RuleRepository
	statusRepo    *StatusRepository
	subjectRepo   *SubjectRepository
	subRecordRepo *SubRecordRepository
	taskRepo      *TaskRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := open(ctx, logger, databaseURL)
	if err != nil {
		return nil, err
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		ruleRepo:      NewRuleRepository(database, logger),
		statusRepo:    NewStatusRepository(database, logger),
		subjectRepo:   NewSubjectRepository(database, logger),
		subRecordRepo: NewSubRecordRepository(database, logger),
		taskRepo:      NewTaskRepository(database, logger),
	}, nil
}

// open connects, pings and migrates. Both the persistence layer and the ledger go
// through here so either can be pointed at an empty database.
func open(ctx context.Context, logger *slog.Logger, databaseURL string) (*sql.DB, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return database, nil
}

func (p *Persistence) RuleRepository() persistence.RuleRepository           { return p.ruleRepo }
func (p *Persistence) StatusRepository() persistence.StatusRepository       { return p.statusRepo }
func (p *Persistence) SubjectRepository() persistence.SubjectRepository     { return p.subjectRepo }
func (p *Persistence) SubRecordRepository() persistence.SubRecordRepository { return p.subRecordRepo }
func (p *Persistence) LabelRepository() persistence.LabelRepository         { return p.subjectRepo }
func (p *Persistence) TaskRepository() persistence.TaskRepository           { return p.taskRepo }

// Ledger returns an execution ledger sharing this persistence's connection pool.
func (p *Persistence) Ledger(opts ...LedgerOption) *Ledger {
	return NewLedger(p.db, p.logger, opts...)
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error

	return errors.As(err, &pqErr) && pqErr.Code == foreignKeyViolation
}

func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/cadence/pkg/models"
)

// TaskRepository stores tasks created by rules.
type TaskRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *sql.DB, logger *slog.Logger) *TaskRepository {
	return &TaskRepository{db: db, logger: logger}
}

// CreateTask inserts a task. Task ids are never reused.
func (r *TaskRepository) CreateTask(ctx context.Context, task *models.Task) error {
	if task == nil || task.ID == "" {
		return errors.New("task ID cannot be empty")
	}

	var deadline sql.NullTime
	if task.Deadline != nil {
		deadline = sql.NullTime{Time: models.Day(*task.Deadline), Valid: true}
	}

	query := `
		INSERT INTO tasks (
			id, rule_id, subject_id, sub_record_id, title, description, assigned_to, deadline, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		task.ID,
		task.RuleID,
		task.SubjectID,
		nullString(task.SubRecordID),
		task.Title,
		task.Description,
		task.AssignedTo,
		deadline,
		task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	return nil
}

// TasksBySubject returns the tasks linked to a subject, oldest first.
func (r *TaskRepository) TasksBySubject(ctx context.Context, subjectID string) ([]*models.Task, error) {
	query := `
		SELECT
			id
		  , rule_id
		  , subject_id
		  , COALESCE(sub_record_id, '')
		  , title
		  , description
		  , assigned_to
		  , deadline
		  , created_at
		FROM tasks
		WHERE subject_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	tasks := make([]*models.Task, 0)

	for rows.Next() {
		var (
			task     models.Task
			deadline sql.NullTime
		)

		err := rows.Scan(
			&task.ID,
			&task.RuleID,
			&task.SubjectID,
			&task.SubRecordID,
			&task.Title,
			&task.Description,
			&task.AssignedTo,
			&deadline,
			&task.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}

		if deadline.Valid {
			day := models.Day(deadline.Time)
			task.Deadline = &day
		}

		tasks = append(tasks, &task)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	return tasks, nil
}

package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/google/uuid"
)

// Target is the occurrence an action is applied for.
type Target struct {
	RuleID      string
	SubjectID   string
	SubRecordID string
	// Today is the pass day, or the simulated day during interval backfill.
	Today time.Time
}

// Dispatcher applies actions through the stores. Effects are visible as soon as
// each call returns.
type Dispatcher struct {
	store   persistence.Persistence
	clock   Clock
	timeout time.Duration
}

func NewDispatcher(store persistence.Persistence, clock Clock, timeout time.Duration) *Dispatcher {
	return &Dispatcher{store: store, clock: clock, timeout: timeout}
}

// Dispatch applies one action. Actions are the value types of the models package.
func (d *Dispatcher) Dispatch(ctx context.Context, action models.Action, target Target) error {
	switch a := action.(type) {
	case models.AddTask:
		return d.addTask(ctx, a, target)
	case models.AddLabel:
		return d.call(ctx, func(ctx context.Context) error {
			return d.store.LabelRepository().AddLabel(ctx, target.SubjectID, a.Label)
		})
	case models.RemoveLabel:
		return d.call(ctx, func(ctx context.Context) error {
			return d.store.LabelRepository().RemoveLabel(ctx, target.SubjectID, a.Label)
		})
	case models.ChangeStatus:
		return d.call(ctx, func(ctx context.Context) error {
			return d.store.SubjectRepository().UpdateSubjectStatus(ctx, target.SubjectID, a.StatusID, d.now())
		})
	case models.SetFieldValue:
		value := a.Value.Resolve(target.Today)

		return d.call(ctx, func(ctx context.Context) error {
			return d.store.SubjectRepository().SetSubjectDate(ctx, target.SubjectID, a.Field, value, d.now())
		})
	default:
		return fmt.Errorf("%w: %T", models.ErrUnknownActionKind, action)
	}
}

// addTask re-reads the subject so the assignee and deadline reflect its current state.
func (d *Dispatcher) addTask(ctx context.Context, action models.AddTask, target Target) error {
	var subject *models.Subject

	err := d.call(ctx, func(ctx context.Context) error {
		var err error

		subject, err = d.store.SubjectRepository().SubjectByID(ctx, target.SubjectID)

		return err
	})
	if err != nil {
		return fmt.Errorf("failed to load subject for task: %w", err)
	}

	task := &models.Task{
		ID:          uuid.NewString(),
		RuleID:      target.RuleID,
		SubjectID:   target.SubjectID,
		SubRecordID: target.SubRecordID,
		Title:       action.Title,
		Description: action.Description,
		AssignedTo:  action.AssignedTo.Resolve(subject),
		CreatedAt:   d.now(),
	}

	if action.Deadline != nil {
		task.Deadline = action.Deadline.Compute(target.Today, subject)
	}

	return d.call(ctx, func(ctx context.Context) error {
		return d.store.TaskRepository().CreateTask(ctx, task)
	})
}

func (d *Dispatcher) now() time.Time {
	return d.clock.Now().UTC()
}

func (d *Dispatcher) call(ctx context.Context, fn func(context.Context) error) error {
	return withTimeout(ctx, d.timeout, fn)
}

// withTimeout runs one store call under its own deadline.
func withTimeout(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return fn(callCtx)
}

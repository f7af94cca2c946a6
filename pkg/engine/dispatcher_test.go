package engine

import (
	"testing"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T) (*fixture, *Dispatcher, time.Time) {
	t.Helper()

	f := newFixture(t)
	now := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	f.saveSubject(t, &models.Subject{
		ID:            "p-1",
		Type:          "project",
		StatusID:      "st-open",
		SalesPersonID: "seller-1",
		Dates:         map[string]time.Time{"due": day(t, "2024-06-01")},
		Labels:        []string{"existing"},
	})

	return f, NewDispatcher(f.store, FixedClock{Time: now}, time.Second), now
}

func TestDispatcher_AddTask(t *testing.T) {
	f, d, now := newDispatcher(t)
	target := Target{RuleID: "r-1", SubjectID: "p-1", SubRecordID: "inv-1", Today: day(t, "2024-05-06")}

	// The assignee is whoever owns the subject when the action runs.
	subject, err := f.store.SubjectRepository().SubjectByID(t.Context(), "p-1")
	require.NoError(t, err)
	subject.SalesPersonID = "seller-2"
	f.saveSubject(t, subject)

	err = d.Dispatch(t.Context(), models.AddTask{
		Title:       "Call client",
		Description: "Invoice overdue",
		AssignedTo:  models.SalesPersonAssignee(),
		Deadline:    &models.DeadlineSpec{Base: "due", OffsetDays: 3, Direction: models.DirectionBefore},
	}, target)
	require.NoError(t, err)

	tasks, err := f.store.TaskRepository().TasksBySubject(t.Context(), "p-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	task := tasks[0]
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, "r-1", task.RuleID)
	assert.Equal(t, "inv-1", task.SubRecordID)
	assert.Equal(t, "Call client", task.Title)
	assert.Equal(t, "Invoice overdue", task.Description)
	assert.Equal(t, "seller-2", task.AssignedTo)
	assert.True(t, now.Equal(task.CreatedAt))
	require.NotNil(t, task.Deadline)
	assert.Equal(t, "2024-05-29", task.Deadline.Format(models.DayLayout))
}

func TestDispatcher_AddTaskWithUnsetDeadlineBase(t *testing.T) {
	f, d, _ := newDispatcher(t)

	err := d.Dispatch(t.Context(), models.AddTask{
		Title:    "No deadline",
		Deadline: &models.DeadlineSpec{Base: "signed_at", OffsetDays: 1, Direction: models.DirectionAfter},
	}, Target{RuleID: "r-1", SubjectID: "p-1", Today: day(t, "2024-05-06")})
	require.NoError(t, err)

	tasks, err := f.store.TaskRepository().TasksBySubject(t.Context(), "p-1")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Nil(t, tasks[0].Deadline)
	assert.Empty(t, tasks[0].AssignedTo)
}

func TestDispatcher_AddTaskForMissingSubject(t *testing.T) {
	_, d, _ := newDispatcher(t)

	err := d.Dispatch(t.Context(), models.AddTask{Title: "x"}, Target{RuleID: "r-1", SubjectID: "ghost"})
	require.Error(t, err)
	assert.True(t, persistence.IsSubjectNotFound(err))
}

func TestDispatcher_Labels(t *testing.T) {
	f, d, _ := newDispatcher(t)
	target := Target{RuleID: "r-1", SubjectID: "p-1"}

	require.NoError(t, d.Dispatch(t.Context(), models.AddLabel{Label: "late"}, target))
	require.NoError(t, d.Dispatch(t.Context(), models.AddLabel{Label: "late"}, target))
	require.NoError(t, d.Dispatch(t.Context(), models.RemoveLabel{Label: "existing"}, target))
	require.NoError(t, d.Dispatch(t.Context(), models.RemoveLabel{Label: "never-there"}, target))

	subject, err := f.store.SubjectRepository().SubjectByID(t.Context(), "p-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"late"}, subject.Labels)
}

func TestDispatcher_ChangeStatus(t *testing.T) {
	f, d, now := newDispatcher(t)

	require.NoError(t, d.Dispatch(t.Context(), models.ChangeStatus{StatusID: "st-stalled"}, Target{SubjectID: "p-1"}))

	subject, err := f.store.SubjectRepository().SubjectByID(t.Context(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "st-stalled", subject.StatusID)
	assert.True(t, now.Equal(subject.UpdatedAt))
}

func TestDispatcher_SetFieldValue(t *testing.T) {
	f, d, now := newDispatcher(t)
	literal := day(t, "2025-01-31")

	require.NoError(t, d.Dispatch(t.Context(), models.SetFieldValue{
		Field: "last_reminder",
		Value: models.FieldValue{Kind: models.FieldValueCurrentDate},
	}, Target{SubjectID: "p-1", Today: day(t, "2024-05-02")}))

	require.NoError(t, d.Dispatch(t.Context(), models.SetFieldValue{
		Field: "renewal",
		Value: models.FieldValue{Kind: models.FieldValueLiteral, Date: &literal},
	}, Target{SubjectID: "p-1", Today: day(t, "2024-05-02")}))

	subject, err := f.store.SubjectRepository().SubjectByID(t.Context(), "p-1")
	require.NoError(t, err)

	reminder, ok := subject.Date("last_reminder")
	require.True(t, ok)
	assert.Equal(t, "2024-05-02", reminder.Format(models.DayLayout))

	renewal, ok := subject.Date("renewal")
	require.True(t, ok)
	assert.Equal(t, "2025-01-31", renewal.Format(models.DayLayout))
	assert.True(t, now.Equal(subject.UpdatedAt))
}

func TestDispatcher_MutationOfMissingSubject(t *testing.T) {
	_, d, _ := newDispatcher(t)

	err := d.Dispatch(t.Context(), models.ChangeStatus{StatusID: "st-x"}, Target{SubjectID: "ghost"})
	assert.True(t, persistence.IsSubjectNotFound(err))
}

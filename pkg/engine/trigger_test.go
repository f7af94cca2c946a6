package engine

import (
	"testing"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateTargetDue(t *testing.T) {
	anchor := day(t, "2024-03-01")

	tests := []struct {
		name    string
		trigger models.Trigger
		today   string
		target  string
		due     bool
	}{
		{
			name:    "before fires on target",
			trigger: models.Trigger{Kind: models.TriggerDaysBeforeDate, DaysOffset: 7},
			today:   "2024-02-23",
			target:  "2024-02-23",
			due:     true,
		},
		{
			name:    "before is not due the day after",
			trigger: models.Trigger{Kind: models.TriggerDaysBeforeDate, DaysOffset: 7},
			today:   "2024-02-24",
			target:  "2024-02-23",
		},
		{
			name:    "after crosses a leap day",
			trigger: models.Trigger{Kind: models.TriggerDaysAfterDate, DaysOffset: 1},
			today:   "2024-03-02",
			target:  "2024-03-02",
			due:     true,
		},
		{
			name:    "after is not due early",
			trigger: models.Trigger{Kind: models.TriggerDaysAfterDate, DaysOffset: 3},
			today:   "2024-03-03",
			target:  "2024-03-04",
		},
		{
			name:    "lookback covers a late pass",
			trigger: models.Trigger{Kind: models.TriggerDaysAfterDate, DaysOffset: 3, LookbackDays: 2},
			today:   "2024-03-06",
			target:  "2024-03-04",
			due:     true,
		},
		{
			name:    "lookback is bounded",
			trigger: models.Trigger{Kind: models.TriggerDaysAfterDate, DaysOffset: 3, LookbackDays: 2},
			today:   "2024-03-07",
			target:  "2024-03-04",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, due := DateTargetDue(tt.trigger, anchor, day(t, tt.today))
			assert.Equal(t, tt.target, target.Format(models.DayLayout))
			assert.Equal(t, tt.due, due)
		})
	}
}

func TestDateTargetDue_IgnoresTimeOfDay(t *testing.T) {
	anchor := day(t, "2024-03-01").Add(22*time.Hour + 15*time.Minute)
	trigger := models.Trigger{Kind: models.TriggerDaysBeforeDate, DaysOffset: 7}

	_, due := DateTargetDue(trigger, anchor, day(t, "2024-02-23").Add(3*time.Hour))
	assert.True(t, due)
}

func TestIntervalDue_NineDays(t *testing.T) {
	anchor := day(t, "2024-01-01")

	var dueDays []int

	for offset := -3; offset <= 30; offset++ {
		index, due := IntervalDue(anchor, models.AddDays(anchor, offset), 9)
		if due {
			dueDays = append(dueDays, offset)
			assert.Equal(t, offset/9, index)
		}
	}

	assert.Equal(t, []int{0, 9, 18, 27}, dueDays)
}

func TestIntervalDue_CenturiesOldAnchor(t *testing.T) {
	anchor := day(t, "1700-01-01")

	_, due := IntervalDue(anchor, day(t, "2024-01-01"), 7)
	assert.False(t, due)

	index, due := IntervalDue(anchor, day(t, "2023-12-29"), 7)
	assert.True(t, due)
	assert.Equal(t, 16905, index)
}

func TestIntervalDue_RejectsNonPositiveInterval(t *testing.T) {
	anchor := day(t, "2024-01-01")

	_, due := IntervalDue(anchor, anchor, 0)
	assert.False(t, due)
}

func TestFindBackfillDay(t *testing.T) {
	anchor := day(t, "2024-01-01")

	tests := []struct {
		name   string
		today  string
		every  int
		window int
		day    string
		index  int
		found  bool
	}{
		{name: "today only", today: "2024-01-10", every: 9, window: 1, day: "2024-01-10", index: 1, found: true},
		{name: "missed with no window", today: "2024-01-12", every: 9, window: 1},
		{name: "zero window means today", today: "2024-01-12", every: 9, window: 0},
		{name: "recovered in window", today: "2024-01-12", every: 9, window: 5, day: "2024-01-10", index: 1, found: true},
		{name: "window edge", today: "2024-01-14", every: 9, window: 5, day: "2024-01-10", index: 1, found: true},
		{name: "outside window", today: "2024-01-15", every: 9, window: 5},
		{name: "closest day wins", today: "2024-01-06", every: 2, window: 5, day: "2024-01-05", index: 2, found: true},
		{name: "before anchor", today: "2023-12-30", every: 9, window: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, index, ok := FindBackfillDay(anchor, day(t, tt.today), tt.every, tt.window)
			require.Equal(t, tt.found, ok)

			if tt.found {
				assert.Equal(t, tt.day, found.Format(models.DayLayout))
				assert.Equal(t, tt.index, index)
			}
		})
	}
}

func TestResolveStatusSet(t *testing.T) {
	f := newFixture(t)

	f.saveStatus(t, &models.Status{ID: "st-active", Name: "active", SubjectType: "project"})
	f.saveStatus(t, &models.Status{ID: "st-active-new", Name: "new", SubjectType: "project", ParentID: "st-active"})
	f.saveStatus(t, &models.Status{ID: "st-other-active", Name: "active", SubjectType: "lead"})

	repo := f.store.StatusRepository()

	statuses, err := ResolveStatusSet(t.Context(), repo, models.Scope{})
	require.NoError(t, err)
	assert.Nil(t, statuses)

	statuses, err = ResolveStatusSet(t.Context(), repo, models.Scope{StatusFilter: &models.StatusFilter{StatusID: "st-x"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"st-x"}, statuses)

	statuses, err = ResolveStatusSet(t.Context(), repo, models.Scope{
		SubjectType:  "project",
		StatusFilter: &models.StatusFilter{StatusName: "active"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"st-active", "st-active-new"}, statuses)

	statuses, err = ResolveStatusSet(t.Context(), repo, models.Scope{
		SubjectType:  "lead",
		StatusFilter: &models.StatusFilter{StatusName: "active"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"st-other-active"}, statuses)

	_, err = ResolveStatusSet(t.Context(), repo, models.Scope{StatusFilter: &models.StatusFilter{StatusName: "missing"}})
	assert.Error(t, err)
}

func TestInScope(t *testing.T) {
	subject := &models.Subject{ID: "p-1", Type: "project", StatusID: "st-open"}

	assert.True(t, inScope(models.Scope{}, nil, subject))
	assert.True(t, inScope(models.Scope{SubjectType: "project"}, []string{"st-open"}, subject))
	assert.False(t, inScope(models.Scope{SubjectType: "lead"}, nil, subject))
	assert.False(t, inScope(models.Scope{}, []string{"st-closed"}, subject))
	assert.False(t, inScope(models.Scope{}, []string{}, subject))
}

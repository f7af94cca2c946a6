package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDay(t *testing.T, value string) time.Time {
	t.Helper()

	parsed, err := ParseDay(value)
	require.NoError(t, err)

	return parsed
}

func TestDayArithmetic(t *testing.T) {
	saoPaulo := time.FixedZone("BRT", -3*60*60)
	late := time.Date(2024, 2, 28, 23, 0, 0, 0, saoPaulo)

	assert.Equal(t, "2024-02-28", Day(late).Format(DayLayout))
	assert.Equal(t, "2024-02-29", AddDays(late, 1).Format(DayLayout))
	assert.Equal(t, "2024-03-01", AddDays(late, 2).Format(DayLayout))
	assert.Equal(t, "2024-02-21", AddDays(late, -7).Format(DayLayout))

	assert.Equal(t, 2, DaysBetween(mustDay(t, "2024-02-28"), mustDay(t, "2024-03-01")))
	assert.Equal(t, -2, DaysBetween(mustDay(t, "2024-03-01"), mustDay(t, "2024-02-28")))
	assert.Equal(t, 366, DaysBetween(mustDay(t, "2024-01-01"), mustDay(t, "2025-01-01")))

	_, err := ParseDay("01/03/2024")
	assert.Error(t, err)
}

func TestDaysBetween_CenturiesApart(t *testing.T) {
	anchor := mustDay(t, "1700-01-01")

	assert.Equal(t, 118338, DaysBetween(anchor, mustDay(t, "2024-01-01")))
	assert.Equal(t, -118338, DaysBetween(mustDay(t, "2024-01-01"), anchor))
	assert.Equal(t, 200000, DaysBetween(anchor, AddDays(anchor, 200000)))
}

func TestTrigger_CheckInvariants(t *testing.T) {
	tests := []struct {
		name    string
		trigger Trigger
		wantErr error
	}{
		{name: "after", trigger: Trigger{Kind: TriggerDaysAfterDate, DateAttribute: "start", DaysOffset: 1}},
		{name: "before with lookback", trigger: Trigger{Kind: TriggerDaysBeforeDate, DateAttribute: "start", DaysOffset: 7, LookbackDays: 3}},
		{name: "interval", trigger: Trigger{Kind: TriggerPeriodicInterval, IntervalDays: 15, SubRecordKind: SubRecordUnpaidInvoice}},
		{name: "missing attribute", trigger: Trigger{Kind: TriggerDaysAfterDate, DaysOffset: 1}, wantErr: ErrMissingDateAttribute},
		{name: "zero offset", trigger: Trigger{Kind: TriggerDaysAfterDate, DateAttribute: "start"}, wantErr: ErrInvalidDaysOffset},
		{name: "negative lookback", trigger: Trigger{Kind: TriggerDaysAfterDate, DateAttribute: "start", DaysOffset: 1, LookbackDays: -1}, wantErr: ErrNegativeLookback},
		{name: "zero interval", trigger: Trigger{Kind: TriggerPeriodicInterval, SubRecordKind: SubRecordUnpaidInvoice}, wantErr: ErrInvalidIntervalDays},
		{name: "missing sub-record kind", trigger: Trigger{Kind: TriggerPeriodicInterval, IntervalDays: 3}, wantErr: ErrMissingSubRecordKind},
		{name: "unknown", trigger: Trigger{Kind: "hourly"}, wantErr: ErrUnknownTriggerKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.trigger.CheckInvariants()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestAutomationRule_JSONRoundTripKeepsActionType(t *testing.T) {
	literal := mustDay(t, "2025-01-31")

	rule := AutomationRule{
		ID:       "r-1",
		Name:     "Renewal",
		IsActive: true,
		Trigger:  Trigger{Kind: TriggerDaysBeforeDate, DateAttribute: "renewal", DaysOffset: 30},
		Action:   SetFieldValue{Field: "renewal_notice", Value: FieldValue{Kind: FieldValueLiteral, Date: &literal}},
	}

	raw, err := json.Marshal(rule)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"action_kind":"set_field_value"`)

	var decoded AutomationRule
	require.NoError(t, json.Unmarshal(raw, &decoded))

	action, ok := decoded.Action.(SetFieldValue)
	require.True(t, ok)
	assert.Equal(t, "renewal_notice", action.Field)
	assert.Equal(t, "2025-01-31", action.Value.Resolve(mustDay(t, "2024-01-01")).Format(DayLayout))
}

func TestDecodeAction(t *testing.T) {
	action, err := DecodeAction(ActionAddTask, json.RawMessage(`{"title":"Call","assigned_to":{"kind":"literal","user_id":"u-1"},"deadline":{"base":"current_day","offset_days":2}}`))
	require.NoError(t, err)

	task, ok := action.(AddTask)
	require.True(t, ok)
	assert.Equal(t, LiteralAssignee("u-1"), task.AssignedTo)
	require.NotNil(t, task.Deadline)
	assert.Equal(t, 2, task.Deadline.OffsetDays)

	_, err = DecodeAction("send_email", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownActionKind)

	_, err = DecodeAction(ActionAddLabel, nil)
	assert.ErrorIs(t, err, ErrInvalidActionConfig)

	_, err = DecodeAction(ActionChangeStatus, json.RawMessage(`{"status_id":""}`))
	assert.ErrorIs(t, err, ErrInvalidActionConfig)

	_, err = DecodeAction(ActionAddTask, json.RawMessage(`{"title":"x","assigned_to":{"kind":"manager"}}`))
	assert.ErrorIs(t, err, ErrInvalidActionConfig)

	_, _, err = EncodeAction(nil)
	assert.ErrorIs(t, err, ErrMissingAction)
}

func TestDeadlineSpec_Compute(t *testing.T) {
	subject := &Subject{Dates: map[string]time.Time{"start": mustDay(t, "2024-03-01")}}
	today := mustDay(t, "2024-02-23")

	deadline := DeadlineSpec{Base: "start"}.Compute(today, subject)
	require.NotNil(t, deadline)
	assert.Equal(t, "2024-03-01", deadline.Format(DayLayout))

	deadline = DeadlineSpec{Base: "start", OffsetDays: 2, Direction: DirectionBefore}.Compute(today, subject)
	assert.Equal(t, "2024-02-28", deadline.Format(DayLayout))

	deadline = DeadlineSpec{Base: DeadlineBaseCurrentDay, OffsetDays: 10, Direction: DirectionAfter}.Compute(today, subject)
	assert.Equal(t, "2024-03-04", deadline.Format(DayLayout))

	assert.Nil(t, DeadlineSpec{Base: "signed_at"}.Compute(today, subject))
}

func TestAssignee_Resolve(t *testing.T) {
	subject := &Subject{SalesPersonID: "seller-1"}

	assert.Equal(t, "u-1", LiteralAssignee("u-1").Resolve(subject))
	assert.Equal(t, "seller-1", SalesPersonAssignee().Resolve(subject))
	assert.Empty(t, SalesPersonAssignee().Resolve(nil))
	assert.Empty(t, Assignee{}.Resolve(subject))
}

func TestSubject_Attributes(t *testing.T) {
	subject := &Subject{
		Type:          "project",
		StatusID:      "st-1",
		SalesSourceID: "web",
		Dates:         map[string]time.Time{"start": mustDay(t, "2024-03-01"), "cleared": {}},
		Labels:        []string{"vip"},
	}

	value, ok := subject.Attribute(AttributeSalesSource)
	assert.True(t, ok)
	assert.Equal(t, "web", value)

	value, ok = subject.Attribute("start")
	assert.True(t, ok)
	assert.Equal(t, "2024-03-01", value)

	_, ok = subject.Attribute("cleared")
	assert.False(t, ok)

	_, ok = subject.Date("missing")
	assert.False(t, ok)

	assert.True(t, subject.HasLabel("vip"))
	assert.False(t, subject.HasLabel("late"))
}

func TestOccurrenceKey(t *testing.T) {
	date := DateOccurrence("r-1", "p-1")
	interval := IntervalOccurrence("r-1", "p-1", "inv-1")

	assert.False(t, date.IsInterval())
	assert.True(t, interval.IsInterval())
	assert.Equal(t, "r-1/subject/p-1", date.String())
	assert.Equal(t, "r-1/subrecord/inv-1", interval.String())

	record := ExecutionRecord{RuleID: "r-1", SubjectID: "p-1", SubRecordID: "inv-1"}
	assert.Equal(t, interval, record.Key())
}

func TestPassSummary_Count(t *testing.T) {
	summary := PassSummary{Results: []Result{
		{Status: ResultSuccess},
		{Status: ResultSkipped, Reason: SkipAlreadyRecorded},
		{Status: ResultSuccess},
		{Status: ResultError},
	}}

	assert.Equal(t, 2, summary.Count(ResultSuccess))
	assert.Equal(t, 1, summary.Count(ResultSkipped))
	assert.Equal(t, 1, summary.Count(ResultError))
}

func TestSubRecord_IsOpen(t *testing.T) {
	anchor := mustDay(t, "2024-01-01")

	assert.True(t, (&SubRecord{AnchorDate: &anchor}).IsOpen())
	assert.False(t, (&SubRecord{AnchorDate: &anchor, Paid: true}).IsOpen())
	assert.False(t, (&SubRecord{}).IsOpen())
}

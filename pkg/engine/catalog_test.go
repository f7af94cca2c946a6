package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dukex/cadence/pkg/mocks"
	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func definition(id string, trigger models.Trigger, kind models.ActionKind, config string) *models.RuleDefinition {
	return &models.RuleDefinition{
		ID:           id,
		Name:         "Rule " + id,
		IsActive:     true,
		Trigger:      trigger,
		ActionKind:   kind,
		ActionConfig: json.RawMessage(config),
	}
}

func TestLoadCatalog(t *testing.T) {
	dateTrigger := models.Trigger{Kind: models.TriggerDaysAfterDate, DateAttribute: "start", DaysOffset: 2}
	intervalTrigger := models.Trigger{Kind: models.TriggerPeriodicInterval, IntervalDays: 15, SubRecordKind: models.SubRecordUnpaidInvoice}

	repo := &mocks.MockRuleRepository{}
	repo.On("ActiveRules", mock.Anything).Return([]*models.RuleDefinition{
		definition("date", dateTrigger, models.ActionAddLabel, `{"label":"x"}`),
		definition("interval", intervalTrigger, models.ActionChangeStatus, `{"status_id":"st-1"}`),
		definition("no-attribute", models.Trigger{Kind: models.TriggerDaysAfterDate, DaysOffset: 2}, models.ActionAddLabel, `{"label":"x"}`),
		definition("unknown-action", dateTrigger, "send_email", `{}`),
		definition("unknown-trigger", models.Trigger{Kind: "weekly"}, models.ActionAddLabel, `{"label":"x"}`),
	}, nil)

	catalog, err := LoadCatalog(t.Context(), repo)
	require.NoError(t, err)

	require.Len(t, catalog.DateRules(), 1)
	assert.Equal(t, "date", catalog.DateRules()[0].ID)
	assert.Equal(t, models.AddLabel{Label: "x"}, catalog.DateRules()[0].Action)

	require.Len(t, catalog.IntervalRules(), 1)
	assert.Equal(t, "interval", catalog.IntervalRules()[0].ID)
	assert.Equal(t, 2, catalog.Len())

	require.Len(t, catalog.Invalid(), 3)

	for _, invalid := range catalog.Invalid() {
		assert.ErrorIs(t, invalid.Err, ErrConfiguration, invalid.Definition.ID)
		assert.Equal(t, "configuration", KindName(invalid.Err))
	}
}

func TestLoadCatalog_RepositoryError(t *testing.T) {
	repo := &mocks.MockRuleRepository{}
	repo.On("ActiveRules", mock.Anything).Return(nil, errors.New("boom"))

	_, err := LoadCatalog(t.Context(), repo)
	assert.ErrorContains(t, err, "boom")
}

func TestValidateDefinition(t *testing.T) {
	trigger := models.Trigger{Kind: models.TriggerDaysBeforeDate, DateAttribute: "start", DaysOffset: 7}

	rule, err := ValidateDefinition(definition("ok", trigger, models.ActionAddTask, `{"title":"Kickoff","assigned_to":{"kind":"subject_sales_person"}}`))
	require.NoError(t, err)
	assert.Equal(t, models.SalesPersonAssignee(), rule.Action.(models.AddTask).AssignedTo)

	_, err = ValidateDefinition(definition("empty-title", trigger, models.ActionAddTask, `{"title":""}`))
	assert.ErrorIs(t, err, ErrConfiguration)

	noName := definition("no-name", trigger, models.ActionAddLabel, `{"label":"x"}`)
	noName.Name = ""
	_, err = ValidateDefinition(noName)
	assert.ErrorIs(t, err, ErrConfiguration)

	negative := trigger
	negative.LookbackDays = -1
	_, err = ValidateDefinition(definition("negative", negative, models.ActionAddLabel, `{"label":"x"}`))
	assert.ErrorIs(t, err, models.ErrNegativeLookback)

	ambiguous := definition("ambiguous", trigger, models.ActionAddLabel, `{"label":"x"}`)
	ambiguous.Scope.StatusFilter = &models.StatusFilter{StatusID: "a", StatusName: "b"}
	_, err = ValidateDefinition(ambiguous)
	assert.ErrorIs(t, err, models.ErrAmbiguousStatus)
}

func TestMatch(t *testing.T) {
	subject := &models.Subject{
		ID:            "p-1",
		SalesSourceID: "web",
		Dates:         map[string]time.Time{"start": time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	tests := []struct {
		name      string
		condition models.Condition
		want      bool
	}{
		{name: "no condition", condition: models.Condition{}, want: true},
		{name: "none", condition: models.Condition{Kind: models.ConditionNone}, want: true},
		{name: "equal", condition: models.Condition{Kind: models.ConditionAttributeEquals, Attribute: models.AttributeSalesSource, Expected: "web"}, want: true},
		{name: "different", condition: models.Condition{Kind: models.ConditionAttributeEquals, Attribute: models.AttributeSalesSource, Expected: "phone"}},
		{name: "date attribute", condition: models.Condition{Kind: models.ConditionAttributeEquals, Attribute: "start", Expected: "2024-03-01"}, want: true},
		{name: "absent attribute", condition: models.Condition{Kind: models.ConditionAttributeEquals, Attribute: "signed_at", Expected: ""}},
		{name: "unknown kind", condition: models.Condition{Kind: "regex"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Match(tt.condition, subject))
		})
	}
}

func TestError(t *testing.T) {
	cause := persistence.NewRecordError("SubjectByID", "subject", "p-9", persistence.ErrSubjectNotFound)
	err := fmt.Errorf("evaluating: %w", &Error{Kind: ErrLookup, RuleID: "r-1", SubjectID: "p-9", SubRecordID: "inv-1", Err: cause})

	assert.ErrorIs(t, err, ErrLookup)
	assert.ErrorIs(t, err, persistence.ErrSubjectNotFound)
	assert.NotErrorIs(t, err, ErrAction)
	assert.Equal(t, "lookup", KindName(err))
	assert.Contains(t, err.Error(), "lookup error (rule r-1, subject p-9, sub-record inv-1)")

	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, "r-1", engineErr.RuleID)

	assert.Equal(t, "configuration", KindName(&Error{Kind: ErrConfiguration, Err: errors.New("x")}))
	assert.Equal(t, "action", KindName(&Error{Kind: ErrAction, Err: errors.New("x")}))
	assert.Equal(t, "ledger_write", KindName(&Error{Kind: ErrLedgerWrite, Err: errors.New("x")}))
	assert.Equal(t, "unknown", KindName(errors.New("x")))
	assert.Equal(t, "configuration error (rule r-2): bad", (&Error{Kind: ErrConfiguration, RuleID: "r-2", Err: errors.New("bad")}).Error())
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := map[string]func(*Config){
		"missing location":     func(c *Config) { c.Location = nil },
		"zero rule workers":    func(c *Config) { c.RuleConcurrency = 0 },
		"zero subject workers": func(c *Config) { c.SubjectConcurrency = 0 },
		"no timeout":           func(c *Config) { c.StoreTimeout = 0 },
		"negative backfill":    func(c *Config) { c.BackfillDays = -1 },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfig()
			mutate(&config)
			assert.Error(t, config.Validate())
		})
	}
}

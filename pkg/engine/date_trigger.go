package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

// ResolveStatusSet returns the status ids a rule scope covers. A nil result means
// every status. A named status covers itself and its direct sub-statuses.
func ResolveStatusSet(ctx context.Context, repo persistence.StatusRepository, scope models.Scope) ([]string, error) {
	filter := scope.StatusFilter
	if filter == nil || (filter.StatusID == "" && filter.StatusName == "") {
		return nil, nil
	}

	if filter.StatusID != "" {
		return []string{filter.StatusID}, nil
	}

	parent, err := repo.StatusByName(ctx, filter.StatusName, scope.SubjectType)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve status %q: %w", filter.StatusName, err)
	}

	children, err := repo.ChildStatuses(ctx, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sub-statuses of %q: %w", filter.StatusName, err)
	}

	statuses := make([]string, 0, len(children)+1)
	statuses = append(statuses, parent.ID)

	for _, child := range children {
		statuses = append(statuses, child.ID)
	}

	return statuses, nil
}

// DateTarget is anchor shifted by the trigger offset: forward for days_after_date,
// backward for days_before_date.
func DateTarget(trigger models.Trigger, anchor time.Time) time.Time {
	offset := trigger.DaysOffset
	if trigger.Kind == models.TriggerDaysBeforeDate {
		offset = -offset
	}

	return models.AddDays(anchor, offset)
}

// DateTargetDue reports whether the trigger fires on today for the given anchor.
// With LookbackDays = 0 only target == today fires; otherwise any target within
// the last LookbackDays days does.
func DateTargetDue(trigger models.Trigger, anchor, today time.Time) (time.Time, bool) {
	target := DateTarget(trigger, anchor)
	late := models.DaysBetween(target, today)

	return target, late >= 0 && late <= trigger.LookbackDays
}

// evaluateDateRule fires a date rule for every in-scope subject whose target day is due.
func (e *Engine) evaluateDateRule(ctx context.Context, pass *pass, rule *models.AutomationRule) {
	var statuses []string

	err := e.call(ctx, func(ctx context.Context) error {
		var err error

		statuses, err = ResolveStatusSet(ctx, e.store.StatusRepository(), rule.Scope)

		return err
	})
	if err != nil {
		pass.ruleFailed(ctx, rule, &Error{Kind: ErrLookup, RuleID: rule.ID, Err: err})

		return
	}

	var subjects []*models.Subject

	err = e.call(ctx, func(ctx context.Context) error {
		var err error

		subjects, err = e.store.SubjectRepository().Subjects(ctx, persistence.SubjectQuery{
			SubjectType:   rule.Scope.SubjectType,
			StatusIDs:     statuses,
			DateAttribute: rule.Trigger.DateAttribute,
		})

		return err
	})
	if err != nil {
		pass.ruleFailed(ctx, rule, &Error{Kind: ErrLookup, RuleID: rule.ID, Err: fmt.Errorf("failed to list subjects: %w", err)})

		return
	}

	e.forEach(ctx, len(subjects), func(ctx context.Context, i int) {
		subject := subjects[i]

		anchor, ok := subject.Date(rule.Trigger.DateAttribute)
		if !ok {
			return
		}

		target, due := DateTargetDue(rule.Trigger, anchor, pass.today)
		if !due {
			return
		}

		observed := models.Day(anchor)

		e.fire(ctx, pass, occurrence{
			rule:     rule,
			key:      models.DateOccurrence(rule.ID, subject.ID),
			subject:  subject,
			firedFor: target,
			today:    pass.today,
			record: models.ExecutionRecord{
				RuleID:       rule.ID,
				SubjectID:    subject.ID,
				TriggerKind:  rule.Trigger.Kind,
				ObservedDate: &observed,
			},
		})
	})
}

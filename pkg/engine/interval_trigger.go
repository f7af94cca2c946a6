package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/cadence/pkg/models"
)

// IntervalDue reports whether day is a due day of an interval anchored on anchor:
// anchor, anchor+N, anchor+2N and so on. It returns the occurrence index.
func IntervalDue(anchor, day time.Time, intervalDays int) (int, bool) {
	if intervalDays <= 0 {
		return 0, false
	}

	since := models.DaysBetween(anchor, day)
	if since < 0 || since%intervalDays != 0 {
		return 0, false
	}

	return since / intervalDays, true
}

// FindBackfillDay walks today, today-1, ..., today-(window-1) and returns the first
// due day, the one closest to today. A window below one checks today only.
func FindBackfillDay(anchor, today time.Time, intervalDays, window int) (time.Time, int, bool) {
	window = max(window, 1)

	for back := range window {
		day := models.AddDays(today, -back)

		if occurrence, due := IntervalDue(anchor, day, intervalDays); due {
			return day, occurrence, true
		}
	}

	return time.Time{}, 0, false
}

// evaluateIntervalRule fires an interval rule once for every open sub-record that is
// due on some day of the backfill window.
func (e *Engine) evaluateIntervalRule(ctx context.Context, pass *pass, rule *models.AutomationRule) {
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

	var records []*models.SubRecord

	err = e.call(ctx, func(ctx context.Context) error {
		var err error

		records, err = e.store.SubRecordRepository().OpenSubRecords(ctx, rule.Trigger.SubRecordKind)

		return err
	})
	if err != nil {
		pass.ruleFailed(ctx, rule, &Error{Kind: ErrLookup, RuleID: rule.ID, Err: fmt.Errorf("failed to list sub-records: %w", err)})

		return
	}

	e.forEach(ctx, len(records), func(ctx context.Context, i int) {
		record := records[i]
		if !record.IsOpen() {
			return
		}

		day, index, due := FindBackfillDay(*record.AnchorDate, pass.today, rule.Trigger.IntervalDays, pass.backfillDays)
		if !due {
			return
		}

		var subject *models.Subject

		err := e.call(ctx, func(ctx context.Context) error {
			var err error

			subject, err = e.store.SubjectRepository().SubjectByID(ctx, record.SubjectID)

			return err
		})
		if err != nil {
			pass.add(ctx, rule, models.Result{
				SubjectID:   record.SubjectID,
				SubRecordID: record.ID,
				FiredFor:    &day,
			}, &Error{Kind: ErrLookup, RuleID: rule.ID, SubjectID: record.SubjectID, SubRecordID: record.ID, Err: err})

			return
		}

		if !inScope(rule.Scope, statuses, subject) {
			pass.add(ctx, rule, models.Result{
				SubjectID:   subject.ID,
				SubRecordID: record.ID,
				Status:      models.ResultSkipped,
				Reason:      models.SkipOutOfScope,
				FiredFor:    &day,
			}, nil)

			return
		}

		next := models.AddDays(day, rule.Trigger.IntervalDays)
		fired := day

		e.fire(ctx, pass, occurrence{
			rule:      rule,
			key:       models.IntervalOccurrence(rule.ID, subject.ID, record.ID),
			subject:   subject,
			subRecord: record,
			firedFor:  day,
			today:     day,
			record: models.ExecutionRecord{
				RuleID:          rule.ID,
				SubjectID:       subject.ID,
				SubRecordID:     record.ID,
				TriggerKind:     rule.Trigger.Kind,
				OccurrenceIndex: index,
				LastFiredAt:     &fired,
				NextEligibleAt:  &next,
			},
		})
	})
}

// inScope applies the subject type and status set to a subject fetched by id.
func inScope(scope models.Scope, statuses []string, subject *models.Subject) bool {
	if scope.SubjectType != "" && subject.Type != scope.SubjectType {
		return false
	}

	return statuses == nil || slices.Contains(statuses, subject.StatusID)
}

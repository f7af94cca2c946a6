package main

import (
	"context"
	"log/slog"

	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
)

// AlertMonitor turns pass events into log lines an operator can alert on. With the
// kafka bus it sees the events of every cadence process sharing the brokers.
type AlertMonitor struct {
	logger   *slog.Logger
	eventBus eventbus.EventSubscriber
}

func NewAlertMonitor(logger *slog.Logger, eventBus eventbus.EventSubscriber) *AlertMonitor {
	return &AlertMonitor{
		logger:   logger.With("component", "alerts"),
		eventBus: eventBus,
	}
}

func (m *AlertMonitor) Start(ctx context.Context) error {
	err := m.eventBus.Handle(events.LedgerWriteFailedEvent, m.handleLedgerWriteFailed)
	if err != nil {
		return err
	}

	err = m.eventBus.Handle(events.OccurrenceFailedEvent, m.handleOccurrenceFailed)
	if err != nil {
		return err
	}

	err = m.eventBus.Handle(events.PassCompletedEvent, m.handlePassCompleted)
	if err != nil {
		return err
	}

	err = m.eventBus.Subscribe(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	m.logger.InfoContext(ctx, "Alert monitor started")

	return nil
}

// handleLedgerWriteFailed reports an action that ran without being recorded; the
// next pass may repeat it unless someone intervenes.
func (m *AlertMonitor) handleLedgerWriteFailed(ctx context.Context, event any) error {
	failed, ok := event.(*events.LedgerWriteFailed)
	if !ok {
		m.logger.ErrorContext(ctx, "Invalid event type for LedgerWriteFailed")

		return nil
	}

	m.logger.ErrorContext(ctx, "Action ran but was not recorded",
		"alert", true,
		"pass_id", failed.PassID,
		"rule_id", failed.RuleID,
		"subject_id", failed.SubjectID,
		"sub_record_id", failed.SubRecordID,
		"action", failed.Action,
		"fired_for", failed.FiredFor.Format(models.DayLayout),
		"error", failed.Error,
	)

	return nil
}

func (m *AlertMonitor) handleOccurrenceFailed(ctx context.Context, event any) error {
	failed, ok := event.(*events.OccurrenceFailed)
	if !ok {
		m.logger.ErrorContext(ctx, "Invalid event type for OccurrenceFailed")

		return nil
	}

	m.logger.WarnContext(ctx, "Occurrence failed and will be retried by a later pass",
		"pass_id", failed.PassID,
		"rule_id", failed.RuleID,
		"subject_id", failed.SubjectID,
		"sub_record_id", failed.SubRecordID,
		"error_kind", failed.ErrorKind,
		"error", failed.Error,
	)

	return nil
}

func (m *AlertMonitor) handlePassCompleted(ctx context.Context, event any) error {
	completed, ok := event.(*events.PassCompleted)
	if !ok {
		m.logger.ErrorContext(ctx, "Invalid event type for PassCompleted")

		return nil
	}

	level := slog.LevelInfo
	if completed.Failed > 0 {
		level = slog.LevelWarn
	}

	m.logger.Log(ctx, level, "Pass completed",
		"pass_id", completed.PassID,
		"today", completed.Today.Format(models.DayLayout),
		"executed", completed.Executed,
		"failed", completed.Failed,
		"skipped", completed.Skipped,
		"duration_ms", completed.DurationMs,
	)

	return nil
}

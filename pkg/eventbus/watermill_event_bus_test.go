package eventbus_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/cadence/pkg/channels/gochannel"
	"github.com/dukex/cadence/pkg/eventbus"
	"github.com/dukex/cadence/pkg/events"
	"github.com/dukex/cadence/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	t.Cleanup(func() {
		assert.NoError(t, bus.Close())
	})

	return bus
}

func TestWatermillEventBus_RoutesByEventType(t *testing.T) {
	bus := newBus(t)

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	received := make(chan *events.OccurrenceExecuted, 1)
	alerts := make(chan *events.LedgerWriteFailed, 1)

	require.NoError(t, bus.Handle(events.OccurrenceExecutedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.OccurrenceExecuted)

		return nil
	}))
	require.NoError(t, bus.Handle(events.LedgerWriteFailedEvent, func(_ context.Context, event any) error {
		alerts <- event.(*events.LedgerWriteFailed)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	firedFor := time.Date(2024, 2, 23, 0, 0, 0, 0, time.UTC)

	// Events without a handler are acknowledged and dropped.
	require.NoError(t, bus.Publish(ctx, "pass-1", events.PassCompleted{
		BaseEvent: events.NewBaseEvent(events.PassCompletedEvent, "pass-1"),
	}))

	require.NoError(t, bus.Publish(ctx, "rule-1", events.OccurrenceExecuted{
		BaseEvent: events.NewBaseEvent(events.OccurrenceExecutedEvent, "pass-1"),
		Occurrence: events.Occurrence{
			RuleID:    "rule-1",
			SubjectID: "p-1",
			Action:    models.ActionAddTask,
			FiredFor:  firedFor,
		},
	}))

	require.NoError(t, bus.Publish(ctx, "rule-1", events.LedgerWriteFailed{
		BaseEvent:  events.NewBaseEvent(events.LedgerWriteFailedEvent, "pass-1"),
		Occurrence: events.Occurrence{RuleID: "rule-1", SubjectID: "p-1"},
		Error:      "disk full",
	}))

	select {
	case event := <-received:
		assert.Equal(t, "rule-1", event.RuleID)
		assert.Equal(t, "pass-1", event.PassID)
		assert.Equal(t, models.ActionAddTask, event.Action)
		assert.True(t, firedFor.Equal(event.FiredFor))
	case <-time.After(5 * time.Second):
		t.Fatal("occurrence event not delivered")
	}

	select {
	case event := <-alerts:
		assert.Equal(t, "disk full", event.Error)
		assert.Equal(t, events.LedgerWriteFailedEvent, event.GetType())
	case <-time.After(5 * time.Second):
		t.Fatal("ledger alert not delivered")
	}
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newBus(t)

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}

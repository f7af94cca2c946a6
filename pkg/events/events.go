// Package events defines the notifications the rule engine publishes during a pass.
package events

import (
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic is the single topic every engine event is published on.
const Topic = "cadence.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	OccurrenceExecutedEvent EventType = "occurrence.executed"
	OccurrenceFailedEvent   EventType = "occurrence.failed"
	LedgerWriteFailedEvent  EventType = "ledger.write_failed"
	PassCompletedEvent      EventType = "pass.completed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	PassID    string    `json:"pass_id"`
}

// Occurrence identifies what fired and on which day.
type Occurrence struct {
	RuleID      string            `json:"rule_id"`
	RuleName    string            `json:"rule_name"`
	SubjectID   string            `json:"subject_id"`
	SubRecordID string            `json:"sub_record_id,omitempty"`
	Action      models.ActionKind `json:"action"`
	FiredFor    time.Time         `json:"fired_for"`
}

type OccurrenceExecuted struct {
	BaseEvent
	Occurrence
}

func (o OccurrenceExecuted) GetType() EventType {
	return OccurrenceExecutedEvent
}

// OccurrenceFailed is published when a due occurrence could not run its action.
// Nothing was recorded, so the occurrence may be retried by a later pass.
type OccurrenceFailed struct {
	BaseEvent
	Occurrence

	ErrorKind string `json:"error_kind"`
	Error     string `json:"error"`
}

func (o OccurrenceFailed) GetType() EventType {
	return OccurrenceFailedEvent
}

// LedgerWriteFailed is the alerting event: the action ran but the ledger does not
// know, so a later pass may repeat the side effect.
type LedgerWriteFailed struct {
	BaseEvent
	Occurrence

	Error string `json:"error"`
}

func (l LedgerWriteFailed) GetType() EventType {
	return LedgerWriteFailedEvent
}

type PassCompleted struct {
	BaseEvent

	Today      time.Time `json:"today"`
	Executed   int       `json:"executed"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	DurationMs int64     `json:"duration_ms"`
}

func (p PassCompleted) GetType() EventType {
	return PassCompletedEvent
}

func NewBaseEvent(eventType EventType, passID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		PassID:    passID,
	}
}

// Package models defines the core domain models for the automation rule engine.
package models

import (
	"errors"
	"fmt"
)

// TriggerKind selects which evaluator handles a rule.
type TriggerKind string

const (
	TriggerDaysAfterDate    TriggerKind = "days_after_date"
	TriggerDaysBeforeDate   TriggerKind = "days_before_date"
	TriggerPeriodicInterval TriggerKind = "periodic_interval"
)

// IsDateTrigger reports whether the kind is anchored on a subject date attribute.
func (k TriggerKind) IsDateTrigger() bool {
	return k == TriggerDaysAfterDate || k == TriggerDaysBeforeDate
}

// ConditionKind selects the predicate a subject must satisfy before an action runs.
type ConditionKind string

const (
	ConditionNone            ConditionKind = "none"
	ConditionAttributeEquals ConditionKind = "attribute_equals"
)

// SubRecordKind names the dependent records an interval rule is anchored on.
type SubRecordKind string

const SubRecordUnpaidInvoice SubRecordKind = "unpaid_invoice"

var (
	ErrMissingDateAttribute = errors.New("date trigger requires a date attribute")
	ErrInvalidDaysOffset    = errors.New("date trigger requires days offset greater than zero")
	ErrInvalidIntervalDays  = errors.New("interval trigger requires interval days greater than zero")
	ErrMissingSubRecordKind = errors.New("interval trigger requires a sub-record kind")
	ErrNegativeLookback     = errors.New("lookback days cannot be negative")
	ErrUnknownTriggerKind   = errors.New("unknown trigger kind")
	ErrMissingAction        = errors.New("rule has no action")
	ErrAmbiguousStatus      = errors.New("status filter cannot name both a status id and a status name")
	ErrMissingCondition     = errors.New("attribute condition requires an attribute name")
)

// AutomationRule is administrator-authored configuration. It is immutable during a pass.
type AutomationRule struct {
	ID        string    `json:"id"        validate:"required"`
	Name      string    `json:"name"      validate:"required"`
	IsActive  bool      `json:"is_active"`
	Scope     Scope     `json:"scope"`
	Trigger   Trigger   `json:"trigger"   validate:"required"`
	Condition Condition `json:"condition"`
	Action    Action    `json:"-"         validate:"required"`
}

// Scope narrows the subjects a rule applies to.
type Scope struct {
	SubjectType  string        `json:"subject_type,omitempty"`
	StatusFilter *StatusFilter `json:"status_filter,omitempty"`
}

// StatusFilter names either one explicit leaf status or a status whose whole
// sub-status group is included.
type StatusFilter struct {
	StatusID   string `json:"status_id,omitempty"`
	StatusName string `json:"status_name,omitempty"`
}

// Trigger holds the configuration for all trigger kinds; which fields apply depends on Kind.
type Trigger struct {
	Kind TriggerKind `json:"kind" validate:"required,oneof=days_after_date days_before_date periodic_interval"`

	// Date triggers.
	DateAttribute string `json:"date_attribute,omitempty"`
	DaysOffset    int    `json:"days_offset,omitempty"`
	// LookbackDays widens the exact-day window to [today-LookbackDays, today].
	// Zero keeps fire-on-exact-day behaviour.
	LookbackDays int `json:"lookback_days,omitempty"`

	// Interval triggers.
	IntervalDays  int           `json:"interval_days,omitempty"`
	SubRecordKind SubRecordKind `json:"sub_record_kind,omitempty"`
}

// Condition is an optional predicate over a subject attribute.
type Condition struct {
	Kind      ConditionKind `json:"kind,omitempty" validate:"omitempty,oneof=none attribute_equals"`
	Attribute string        `json:"attribute,omitempty"`
	Expected  string        `json:"expected,omitempty"`
}

// CheckInvariants verifies the cross-field rules struct tags cannot express.
func (r *AutomationRule) CheckInvariants() error {
	if r.Action == nil {
		return ErrMissingAction
	}

	if err := r.Trigger.CheckInvariants(); err != nil {
		return err
	}

	if f := r.Scope.StatusFilter; f != nil && f.StatusID != "" && f.StatusName != "" {
		return ErrAmbiguousStatus
	}

	if r.Condition.Kind == ConditionAttributeEquals && r.Condition.Attribute == "" {
		return ErrMissingCondition
	}

	return nil
}

// CheckInvariants validates the trigger configuration for its kind.
func (t Trigger) CheckInvariants() error {
	switch t.Kind {
	case TriggerDaysAfterDate, TriggerDaysBeforeDate:
		if t.DateAttribute == "" {
			return ErrMissingDateAttribute
		}

		if t.DaysOffset <= 0 {
			return fmt.Errorf("%w: got %d", ErrInvalidDaysOffset, t.DaysOffset)
		}

		if t.LookbackDays < 0 {
			return ErrNegativeLookback
		}
	case TriggerPeriodicInterval:
		if t.IntervalDays <= 0 {
			return fmt.Errorf("%w: got %d", ErrInvalidIntervalDays, t.IntervalDays)
		}

		if t.SubRecordKind == "" {
			return ErrMissingSubRecordKind
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTriggerKind, t.Kind)
	}

	return nil
}

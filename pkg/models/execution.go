package models

import (
	"fmt"
	"time"
)

// OccurrenceKey identifies one logical occurrence in the execution ledger.
// Date triggers key on (rule, subject); interval triggers key on (rule, sub-record).
type OccurrenceKey struct {
	RuleID      string
	SubjectID   string
	SubRecordID string
}

// DateOccurrence builds the ledger key for a date-trigger firing.
func DateOccurrence(ruleID, subjectID string) OccurrenceKey {
	return OccurrenceKey{RuleID: ruleID, SubjectID: subjectID}
}

// IntervalOccurrence builds the ledger key for an interval-trigger firing.
func IntervalOccurrence(ruleID, subjectID, subRecordID string) OccurrenceKey {
	return OccurrenceKey{RuleID: ruleID, SubjectID: subjectID, SubRecordID: subRecordID}
}

// IsInterval reports whether the key has the interval-trigger shape.
func (k OccurrenceKey) IsInterval() bool {
	return k.SubRecordID != ""
}

func (k OccurrenceKey) String() string {
	if k.IsInterval() {
		return fmt.Sprintf("%s/subrecord/%s", k.RuleID, k.SubRecordID)
	}

	return fmt.Sprintf("%s/subject/%s", k.RuleID, k.SubjectID)
}

// ExecutionRecord proves an occurrence fired. Records are append-only.
type ExecutionRecord struct {
	RuleID      string      `json:"rule_id"`
	SubjectID   string      `json:"subject_id"`
	SubRecordID string      `json:"sub_record_id,omitempty"`
	TriggerKind TriggerKind `json:"trigger_kind"`

	// ObservedDate is the date attribute value seen when a date trigger fired.
	ObservedDate *time.Time `json:"observed_date,omitempty"`

	// Interval triggers. NextEligibleAt is informational and never re-checked.
	OccurrenceIndex int        `json:"occurrence_index,omitempty"`
	LastFiredAt     *time.Time `json:"last_fired_at,omitempty"`
	NextEligibleAt  *time.Time `json:"next_eligible_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Key returns the ledger key the record occupies.
func (r *ExecutionRecord) Key() OccurrenceKey {
	return OccurrenceKey{RuleID: r.RuleID, SubjectID: r.SubjectID, SubRecordID: r.SubRecordID}
}

package models

import "time"

// ResultStatus is the outcome of one evaluated occurrence.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
	ResultSkipped ResultStatus = "skipped"
)

// Skip reasons reported for occurrences that were due but did not execute.
const (
	SkipAlreadyRecorded   = "already_recorded"
	SkipConditionMismatch = "condition_mismatch"
	SkipOutOfScope        = "out_of_scope"
)

// PassSummary is the structured output of one evaluation pass.
type PassSummary struct {
	ID         string    `json:"id"`
	Today      time.Time `json:"today"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Executed   int       `json:"executed"`
	Results    []Result  `json:"results"`
}

// Result describes one rule/subject (or rule/sub-record) outcome. Rule-level
// configuration or lookup failures carry no subject.
type Result struct {
	RuleID      string       `json:"rule_id"`
	RuleName    string       `json:"rule_name"`
	SubjectID   string       `json:"subject_id,omitempty"`
	SubRecordID string       `json:"sub_record_id,omitempty"`
	Action      ActionKind   `json:"action,omitempty"`
	Status      ResultStatus `json:"status"`
	ErrorKind   string       `json:"error_kind,omitempty"`
	Error       string       `json:"error,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	FiredFor    *time.Time   `json:"fired_for,omitempty"`
}

// Count returns how many results carry the given status.
func (s *PassSummary) Count(status ResultStatus) int {
	count := 0

	for _, result := range s.Results {
		if result.Status == status {
			count++
		}
	}

	return count
}

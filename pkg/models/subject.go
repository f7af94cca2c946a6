package models

import (
	"slices"
	"time"
)

// Well-known subject attribute names understood by the condition matcher.
const (
	AttributeSalesSource = "sales_source"
	AttributeSalesPerson = "sales_person"
	AttributeStatus      = "status"
	AttributeType        = "type"
)

// Subject is the business entity rules scan (a project). It is owned by the
// surrounding application; the engine reads it and mutates it only through actions.
type Subject struct {
	ID            string               `json:"id"`
	Type          string               `json:"type"`
	StatusID      string               `json:"status_id"`
	SalesSourceID string               `json:"sales_source_id,omitempty"`
	SalesPersonID string               `json:"sales_person_id,omitempty"`
	Dates         map[string]time.Time `json:"dates,omitempty"`
	Labels        []string             `json:"labels,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Date returns the named date attribute; ok is false when it is null.
func (s *Subject) Date(name string) (time.Time, bool) {
	if s == nil || s.Dates == nil {
		return time.Time{}, false
	}

	value, ok := s.Dates[name]
	if !ok || value.IsZero() {
		return time.Time{}, false
	}

	return value, true
}

// Attribute returns a scalar attribute by name for condition matching.
func (s *Subject) Attribute(name string) (string, bool) {
	switch name {
	case AttributeSalesSource:
		return s.SalesSourceID, true
	case AttributeSalesPerson:
		return s.SalesPersonID, true
	case AttributeStatus:
		return s.StatusID, true
	case AttributeType:
		return s.Type, true
	}

	if value, ok := s.Date(name); ok {
		return value.Format(DayLayout), true
	}

	return "", false
}

// HasLabel reports whether the subject carries the label.
func (s *Subject) HasLabel(label string) bool {
	return slices.Contains(s.Labels, label)
}

// Status is a subject status; a status with a ParentID is a sub-status of that parent.
type Status struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SubjectType string `json:"subject_type,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`
}

// SubRecord is a dependent record (an invoice) that anchors interval rules.
type SubRecord struct {
	ID         string        `json:"id"`
	SubjectID  string        `json:"subject_id"`
	Kind       SubRecordKind `json:"kind"`
	AnchorDate *time.Time    `json:"anchor_date,omitempty"`
	Paid       bool          `json:"paid"`
}

// IsOpen reports whether the sub-record still qualifies for interval rules.
func (r *SubRecord) IsOpen() bool {
	return !r.Paid && r.AnchorDate != nil && !r.AnchorDate.IsZero()
}

// Task is created by the AddTask action.
type Task struct {
	ID          string     `json:"id"`
	RuleID      string     `json:"rule_id"`
	SubjectID   string     `json:"subject_id"`
	SubRecordID string     `json:"sub_record_id,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

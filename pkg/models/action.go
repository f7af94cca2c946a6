package models

import "time"

// ActionKind identifies one of the effects a rule can apply.
type ActionKind string

const (
	ActionAddTask       ActionKind = "add_task"
	ActionAddLabel      ActionKind = "add_label"
	ActionRemoveLabel   ActionKind = "remove_label"
	ActionChangeStatus  ActionKind = "change_status"
	ActionSetFieldValue ActionKind = "set_field_value"
)

// Action is the closed set of effects a rule can apply. Each kind carries its own
// payload; the dispatcher switches over the concrete types.
type Action interface {
	Kind() ActionKind
	isAction()
}

// AddTask creates a task linked to the subject (and sub-record, for interval rules).
type AddTask struct {
	Title       string        `json:"title"                 validate:"required"`
	Description string        `json:"description,omitempty"`
	AssignedTo  Assignee      `json:"assigned_to"`
	Deadline    *DeadlineSpec `json:"deadline,omitempty"`
}

// AddLabel adds a label to the subject; already present is a no-op.
type AddLabel struct {
	Label string `json:"label" validate:"required"`
}

// RemoveLabel removes a label from the subject; absent is a no-op.
type RemoveLabel struct {
	Label string `json:"label" validate:"required"`
}

// ChangeStatus moves the subject to another status.
type ChangeStatus struct {
	StatusID string `json:"status_id" validate:"required"`
}

// SetFieldValue writes a date into a named subject field.
type SetFieldValue struct {
	Field string     `json:"field" validate:"required"`
	Value FieldValue `json:"value"`
}

func (AddTask) Kind() ActionKind       { return ActionAddTask }
func (AddLabel) Kind() ActionKind      { return ActionAddLabel }
func (RemoveLabel) Kind() ActionKind   { return ActionRemoveLabel }
func (ChangeStatus) Kind() ActionKind  { return ActionChangeStatus }
func (SetFieldValue) Kind() ActionKind { return ActionSetFieldValue }

func (AddTask) isAction()       {}
func (AddLabel) isAction()      {}
func (RemoveLabel) isAction()   {}
func (ChangeStatus) isAction()  {}
func (SetFieldValue) isAction() {}

// AssigneeKind distinguishes a fixed user from one resolved at execution time.
type AssigneeKind string

const (
	AssigneeLiteral            AssigneeKind = "literal"
	AssigneeSubjectSalesPerson AssigneeKind = "subject_sales_person"
)

// Assignee is either a literal user id or "whoever is the subject's sales person
// when the action runs". The zero value leaves the task unassigned.
type Assignee struct {
	Kind   AssigneeKind `json:"kind,omitempty"`
	UserID string       `json:"user_id,omitempty"`
}

// LiteralAssignee assigns to a fixed user.
func LiteralAssignee(userID string) Assignee {
	return Assignee{Kind: AssigneeLiteral, UserID: userID}
}

// SalesPersonAssignee assigns to the subject's sales person at execution time.
func SalesPersonAssignee() Assignee {
	return Assignee{Kind: AssigneeSubjectSalesPerson}
}

// Resolve returns the user id the task should be assigned to.
func (a Assignee) Resolve(subject *Subject) string {
	switch a.Kind {
	case AssigneeSubjectSalesPerson:
		if subject == nil {
			return ""
		}

		return subject.SalesPersonID
	default:
		return a.UserID
	}
}

// DeadlineBaseCurrentDay anchors a deadline on the (possibly simulated) pass day.
const DeadlineBaseCurrentDay = "current_day"

// DeadlineDirection says whether the offset moves the deadline back or forward.
type DeadlineDirection string

const (
	DirectionBefore DeadlineDirection = "before"
	DirectionAfter  DeadlineDirection = "after"
)

// DeadlineSpec computes a task deadline as base ± OffsetDays. Base is either
// DeadlineBaseCurrentDay or the name of a subject date attribute.
type DeadlineSpec struct {
	Base       string            `json:"base"`
	OffsetDays int               `json:"offset_days"`
	Direction  DeadlineDirection `json:"direction,omitempty"`
}

// Compute returns the deadline or nil when the base attribute is not set.
func (d DeadlineSpec) Compute(today time.Time, subject *Subject) *time.Time {
	var base time.Time

	if d.Base == DeadlineBaseCurrentDay {
		base = Day(today)
	} else {
		value, ok := subject.Date(d.Base)
		if !ok {
			return nil
		}

		base = Day(value)
	}

	offset := d.OffsetDays
	if d.Direction == DirectionBefore {
		offset = -offset
	}

	deadline := AddDays(base, offset)

	return &deadline
}

// FieldValueKind selects how SetFieldValue computes the value it writes.
type FieldValueKind string

const (
	FieldValueCurrentDate FieldValueKind = "current_date"
	FieldValueLiteral     FieldValueKind = "literal"
)

// FieldValue is either "the pass day" or a configured literal date.
type FieldValue struct {
	Kind FieldValueKind `json:"kind"`
	Date *time.Time     `json:"date,omitempty"`
}

// Resolve returns the date to write.
func (v FieldValue) Resolve(today time.Time) time.Time {
	if v.Kind == FieldValueLiteral && v.Date != nil {
		return Day(*v.Date)
	}

	return Day(today)
}

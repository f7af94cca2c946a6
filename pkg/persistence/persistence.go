// Package persistence provides the storage abstraction the rule engine reads and writes through.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/cadence/pkg/models"
)

// RuleRepository stores administrator-authored rule definitions.
type RuleRepository interface {
	// ActiveRules returns every definition with IsActive set.
	ActiveRules(ctx context.Context) ([]*models.RuleDefinition, error)
	Rules(ctx context.Context) ([]*models.RuleDefinition, error)
	SaveRule(ctx context.Context, rule *models.RuleDefinition) error
}

// StatusRepository resolves subject statuses and their sub-statuses.
type StatusRepository interface {
	// StatusByName finds a status by name within a subject type. An empty subject
	// type matches any.
	StatusByName(ctx context.Context, name, subjectType string) (*models.Status, error)
	ChildStatuses(ctx context.Context, parentID string) ([]*models.Status, error)
	SaveStatus(ctx context.Context, status *models.Status) error
}

// SubjectQuery selects subjects for date-trigger evaluation.
type SubjectQuery struct {
	// SubjectType filters by type when non-empty.
	SubjectType string
	// StatusIDs filters by status when non-nil; an empty non-nil slice matches nothing.
	StatusIDs []string
	// DateAttribute, when non-empty, excludes subjects where the attribute is null.
	DateAttribute string
}

// SubjectRepository reads subjects and applies field-level mutations.
type SubjectRepository interface {
	Subjects(ctx context.Context, query SubjectQuery) ([]*models.Subject, error)
	SubjectByID(ctx context.Context, id string) (*models.Subject, error)
	SaveSubject(ctx context.Context, subject *models.Subject) error
	UpdateSubjectStatus(ctx context.Context, id, statusID string, at time.Time) error
	SetSubjectDate(ctx context.Context, id, field string, value, at time.Time) error
}

// SubRecordRepository reads the dependent records interval rules anchor on.
type SubRecordRepository interface {
	// OpenSubRecords returns unpaid records of the kind with a non-null anchor date.
	OpenSubRecords(ctx context.Context, kind models.SubRecordKind) ([]*models.SubRecord, error)
	SaveSubRecord(ctx context.Context, record *models.SubRecord) error
}

// LabelRepository toggles subject label membership. Both operations are idempotent.
type LabelRepository interface {
	AddLabel(ctx context.Context, subjectID, label string) error
	RemoveLabel(ctx context.Context, subjectID, label string) error
}

// TaskRepository is the sink for tasks created by rules.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *models.Task) error
	TasksBySubject(ctx context.Context, subjectID string) ([]*models.Task, error)
}

// Persistence groups every store the engine collaborates with.
type Persistence interface {
	RuleRepository() RuleRepository
	StatusRepository() StatusRepository
	SubjectRepository() SubjectRepository
	SubRecordRepository() SubRecordRepository
	LabelRepository() LabelRepository
	TaskRepository() TaskRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

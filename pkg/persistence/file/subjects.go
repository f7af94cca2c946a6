package file

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
)

type statusRepository struct {
	fp *Persistence
}

func (r *statusRepository) StatusByName(_ context.Context, name, subjectType string) (*models.Status, error) {
	statuses, err := r.all()
	if err != nil {
		return nil, err
	}

	for _, status := range statuses {
		if status.Name != name {
			continue
		}

		if subjectType != "" && status.SubjectType != "" && status.SubjectType != subjectType {
			continue
		}

		return status, nil
	}

	return nil, persistence.NewRecordError("StatusByName", "status", name, persistence.ErrStatusNotFound)
}

func (r *statusRepository) ChildStatuses(_ context.Context, parentID string) ([]*models.Status, error) {
	statuses, err := r.all()
	if err != nil {
		return nil, err
	}

	var children []*models.Status

	for _, status := range statuses {
		if status.ParentID == parentID {
			children = append(children, status)
		}
	}

	return children, nil
}

func (r *statusRepository) SaveStatus(_ context.Context, status *models.Status) error {
	if status == nil || status.ID == "" {
		return errors.New("status ID cannot be empty")
	}

	return writeFile(filepath.Join(r.fp.dir(statusesDir), fileName(status.ID, ".json")), status)
}

// all returns every status ordered by id.
func (r *statusRepository) all() ([]*models.Status, error) {
	statuses, err := readDir[models.Status](r.fp.dir(statusesDir))
	if err != nil {
		return nil, err
	}

	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })

	return statuses, nil
}

// subjectRepository serves both subject reads/writes and label membership. Updates of
// one subject are serialised within a process; each subject lives in its own file so
// writers in other processes never drop unrelated subjects.
type subjectRepository struct {
	fp *Persistence
}

func (r *subjectRepository) Subjects(_ context.Context, query persistence.SubjectQuery) ([]*models.Subject, error) {
	all, err := readDir[models.Subject](r.fp.dir(subjectsDir))
	if err != nil {
		return nil, err
	}

	var subjects []*models.Subject

	for _, subject := range all {
		if query.SubjectType != "" && subject.Type != query.SubjectType {
			continue
		}

		if query.StatusIDs != nil && !slices.Contains(query.StatusIDs, subject.StatusID) {
			continue
		}

		if query.DateAttribute != "" {
			if _, ok := subject.Date(query.DateAttribute); !ok {
				continue
			}
		}

		subjects = append(subjects, subject)
	}

	sort.Slice(subjects, func(i, j int) bool { return subjects[i].ID < subjects[j].ID })

	return subjects, nil
}

func (r *subjectRepository) SubjectByID(_ context.Context, id string) (*models.Subject, error) {
	subject, found, err := readFile[models.Subject](r.path(id))
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.NewRecordError("SubjectByID", "subject", id, persistence.ErrSubjectNotFound)
	}

	return subject, nil
}

func (r *subjectRepository) SaveSubject(_ context.Context, subject *models.Subject) error {
	if subject == nil || subject.ID == "" {
		return errors.New("subject ID cannot be empty")
	}

	r.fp.mu.Lock()
	defer r.fp.mu.Unlock()

	return writeFile(r.path(subject.ID), subject)
}

func (r *subjectRepository) UpdateSubjectStatus(_ context.Context, id, statusID string, at time.Time) error {
	return r.mutate("UpdateSubjectStatus", id, func(subject *models.Subject) {
		subject.StatusID = statusID
		subject.UpdatedAt = at
	})
}

func (r *subjectRepository) SetSubjectDate(_ context.Context, id, field string, value, at time.Time) error {
	return r.mutate("SetSubjectDate", id, func(subject *models.Subject) {
		if subject.Dates == nil {
			subject.Dates = make(map[string]time.Time)
		}

		subject.Dates[field] = value
		subject.UpdatedAt = at
	})
}

func (r *subjectRepository) AddLabel(_ context.Context, subjectID, label string) error {
	return r.mutate("AddLabel", subjectID, func(subject *models.Subject) {
		if !subject.HasLabel(label) {
			subject.Labels = append(subject.Labels, label)
		}
	})
}

func (r *subjectRepository) RemoveLabel(_ context.Context, subjectID, label string) error {
	return r.mutate("RemoveLabel", subjectID, func(subject *models.Subject) {
		subject.Labels = slices.DeleteFunc(subject.Labels, func(l string) bool { return l == label })
	})
}

func (r *subjectRepository) mutate(op, id string, apply func(*models.Subject)) error {
	r.fp.mu.Lock()
	defer r.fp.mu.Unlock()

	subject, found, err := readFile[models.Subject](r.path(id))
	if err != nil {
		return persistence.NewRecordError(op, "subject", id, err)
	}

	if !found {
		return persistence.NewRecordError(op, "subject", id, persistence.ErrSubjectNotFound)
	}

	apply(subject)

	return writeFile(r.path(id), subject)
}

func (r *subjectRepository) path(id string) string {
	return filepath.Join(r.fp.dir(subjectsDir), fileName(id, ".json"))
}

type subRecordRepository struct {
	fp *Persistence
}

func (r *subRecordRepository) OpenSubRecords(_ context.Context, kind models.SubRecordKind) ([]*models.SubRecord, error) {
	all, err := readDir[models.SubRecord](r.fp.dir(subRecordsDir))
	if err != nil {
		return nil, err
	}

	var records []*models.SubRecord

	for _, record := range all {
		if record.Kind == kind && record.IsOpen() {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	return records, nil
}

func (r *subRecordRepository) SaveSubRecord(_ context.Context, record *models.SubRecord) error {
	if record == nil || record.ID == "" {
		return errors.New("sub-record ID cannot be empty")
	}

	return writeFile(filepath.Join(r.fp.dir(subRecordsDir), fileName(record.ID, ".json")), record)
}

package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/cadence/pkg/models"
	"github.com/dukex/cadence/pkg/persistence"
	"github.com/lib/pq"
)

// StatusRepository handles subject status lookups.
type StatusRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStatusRepository creates a new status repository.
func NewStatusRepository(db *sql.DB, logger *slog.Logger) *StatusRepository {
	return &StatusRepository{db: db, logger: logger}
}

// StatusByName finds a status by name. An empty subject type on either side matches any.
func (r *StatusRepository) StatusByName(ctx context.Context, name, subjectType string) (*models.Status, error) {
	query := `
		SELECT id, name, subject_type, COALESCE(parent_id, '')
		FROM subject_statuses
		WHERE name = $1 AND ($2::text = '' OR subject_type = '' OR subject_type = $2::text)
		ORDER BY id
		LIMIT 1
	`

	var status models.Status

	err := r.db.QueryRowContext(ctx, query, name, subjectType).
		Scan(&status.ID, &status.Name, &status.SubjectType, &status.ParentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewRecordError("StatusByName", "status", name, persistence.ErrStatusNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to query status %s: %w", name, err)
	}

	return &status, nil
}

// ChildStatuses returns the direct sub-statuses of parentID ordered by id.
func (r *StatusRepository) ChildStatuses(ctx context.Context, parentID string) ([]*models.Status, error) {
	query := `
		SELECT id, name, subject_type, COALESCE(parent_id, '')
		FROM subject_statuses
		WHERE parent_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query child statuses: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	statuses := make([]*models.Status, 0)

	for rows.Next() {
		var status models.Status

		err := rows.Scan(&status.ID, &status.Name, &status.SubjectType, &status.ParentID)
		if err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}

		statuses = append(statuses, &status)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating statuses: %w", err)
	}

	return statuses, nil
}

// SaveStatus inserts or replaces a status.
func (r *StatusRepository) SaveStatus(ctx context.Context, status *models.Status) error {
	if status == nil || status.ID == "" {
		return errors.New("status ID cannot be empty")
	}

	query := `
		INSERT INTO subject_statuses (id, name, subject_type, parent_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			subject_type = EXCLUDED.subject_type,
			parent_id = EXCLUDED.parent_id
	`

	_, err := r.db.ExecContext(ctx, query, status.ID, status.Name, status.SubjectType, nullString(status.ParentID))
	if err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}

	return nil
}

// SubjectRepository handles subject reads, field mutations and label membership.
type SubjectRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSubjectRepository creates a new subject repository.
func NewSubjectRepository(db *sql.DB, logger *slog.Logger) *SubjectRepository {
	return &SubjectRepository{db: db, logger: logger}
}

const selectSubjects = `
	SELECT
		s.id
	  , s.subject_type
	  , s.status_id
	  , s.sales_source_id
	  , s.sales_person_id
	  , s.dates
	  , ARRAY(SELECT l.label FROM subject_labels l WHERE l.subject_id = s.id ORDER BY l.label)
	  , s.updated_at
	FROM subjects s
`

// Subjects returns the subjects matching the query ordered by id.
func (r *SubjectRepository) Subjects(ctx context.Context, query persistence.SubjectQuery) ([]*models.Subject, error) {
	var (
		conditions []string
		args       []any
	)

	if query.SubjectType != "" {
		args = append(args, query.SubjectType)
		conditions = append(conditions, fmt.Sprintf("s.subject_type = $%d", len(args)))
	}

	if query.StatusIDs != nil {
		args = append(args, pq.Array(query.StatusIDs))
		conditions = append(conditions, fmt.Sprintf("s.status_id = ANY($%d)", len(args)))
	}

	if query.DateAttribute != "" {
		args = append(args, query.DateAttribute)
		conditions = append(conditions, fmt.Sprintf("s.dates ->> $%d IS NOT NULL", len(args)))
	}

	statement := selectSubjects
	if len(conditions) > 0 {
		statement += " WHERE " + strings.Join(conditions, " AND ")
	}

	statement += " ORDER BY s.id"

	rows, err := r.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query subjects: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	subjects := make([]*models.Subject, 0)

	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}

		subjects = append(subjects, subject)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating subjects: %w", err)
	}

	return subjects, nil
}

// SubjectByID returns one subject.
func (r *SubjectRepository) SubjectByID(ctx context.Context, id string) (*models.Subject, error) {
	rows, err := r.db.QueryContext(ctx, selectSubjects+" WHERE s.id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query subject %s: %w", id, err)
	}

	defer closeRows(ctx, r.logger, rows)

	if !rows.Next() {
		err = rows.Err()
		if err != nil {
			return nil, fmt.Errorf("failed to query subject %s: %w", id, err)
		}

		return nil, persistence.NewRecordError("SubjectByID", "subject", id, persistence.ErrSubjectNotFound)
	}

	subject, err := scanSubject(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan subject %s: %w", id, err)
	}

	return subject, nil
}

// SaveSubject inserts or replaces a subject together with its labels.
func (r *SubjectRepository) SaveSubject(ctx context.Context, subject *models.Subject) error {
	if subject == nil || subject.ID == "" {
		return errors.New("subject ID cannot be empty")
	}

	dates := subject.Dates
	if dates == nil {
		dates = map[string]time.Time{}
	}

	datesJSON, err := json.Marshal(dates)
	if err != nil {
		return fmt.Errorf("failed to marshal subject dates: %w", err)
	}

	updatedAt := subject.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	transaction, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = transaction.Rollback()
	}()

	query := `
		INSERT INTO subjects (id, subject_type, status_id, sales_source_id, sales_person_id, dates, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			subject_type = EXCLUDED.subject_type,
			status_id = EXCLUDED.status_id,
			sales_source_id = EXCLUDED.sales_source_id,
			sales_person_id = EXCLUDED.sales_person_id,
			dates = EXCLUDED.dates,
			updated_at = EXCLUDED.updated_at
	`

	_, err = transaction.ExecContext(ctx, query,
		subject.ID,
		subject.Type,
		subject.StatusID,
		subject.SalesSourceID,
		subject.SalesPersonID,
		datesJSON,
		updatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save subject: %w", err)
	}

	_, err = transaction.ExecContext(ctx, "DELETE FROM subject_labels WHERE subject_id = $1", subject.ID)
	if err != nil {
		return fmt.Errorf("failed to reset subject labels: %w", err)
	}

	for _, label := range subject.Labels {
		_, err = transaction.ExecContext(ctx,
			"INSERT INTO subject_labels (subject_id, label) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			subject.ID, label)
		if err != nil {
			return fmt.Errorf("failed to save subject label %s: %w", label, err)
		}
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit subject: %w", err)
	}

	return nil
}

// UpdateSubjectStatus moves a subject to another status.
func (r *SubjectRepository) UpdateSubjectStatus(ctx context.Context, id, statusID string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE subjects SET status_id = $2, updated_at = $3 WHERE id = $1",
		id, statusID, at)
	if err != nil {
		return fmt.Errorf("failed to update subject status: %w", err)
	}

	return expectOneRow(result, "UpdateSubjectStatus", id)
}

// SetSubjectDate writes one date attribute.
func (r *SubjectRepository) SetSubjectDate(ctx context.Context, id, field string, value, at time.Time) error {
	query := `
		UPDATE subjects
		SET dates = jsonb_set(dates, ARRAY[$2::text], to_jsonb($3::text)), updated_at = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, field, value.UTC().Format(time.RFC3339), at)
	if err != nil {
		return fmt.Errorf("failed to set subject date %s: %w", field, err)
	}

	return expectOneRow(result, "SetSubjectDate", id)
}

// AddLabel attaches a label; an existing label is left untouched.
func (r *SubjectRepository) AddLabel(ctx context.Context, subjectID, label string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO subject_labels (subject_id, label) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		subjectID, label)
	if isForeignKeyViolation(err) {
		return persistence.NewRecordError("AddLabel", "subject", subjectID, persistence.ErrSubjectNotFound)
	}

	if err != nil {
		return fmt.Errorf("failed to add label %s: %w", label, err)
	}

	return nil
}

// RemoveLabel detaches a label; a missing label is not an error.
func (r *SubjectRepository) RemoveLabel(ctx context.Context, subjectID, label string) error {
	var exists bool

	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM subjects WHERE id = $1)", subjectID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check subject %s: %w", subjectID, err)
	}

	if !exists {
		return persistence.NewRecordError("RemoveLabel", "subject", subjectID, persistence.ErrSubjectNotFound)
	}

	_, err = r.db.ExecContext(ctx,
		"DELETE FROM subject_labels WHERE subject_id = $1 AND label = $2",
		subjectID, label)
	if err != nil {
		return fmt.Errorf("failed to remove label %s: %w", label, err)
	}

	return nil
}

func scanSubject(rows *sql.Rows) (*models.Subject, error) {
	var (
		subject   models.Subject
		datesJSON []byte
		labels    []string
	)

	err := rows.Scan(
		&subject.ID,
		&subject.Type,
		&subject.StatusID,
		&subject.SalesSourceID,
		&subject.SalesPersonID,
		&datesJSON,
		pq.Array(&labels),
		&subject.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(datesJSON, &subject.Dates)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal dates of subject %s: %w", subject.ID, err)
	}

	if len(labels) > 0 {
		subject.Labels = labels
	}

	return &subject, nil
}

func expectOneRow(result sql.Result, op, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return persistence.NewRecordError(op, "subject", id, persistence.ErrSubjectNotFound)
	}

	return nil
}

// SubRecordRepository handles the dependent records interval rules anchor on.
type SubRecordRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSubRecordRepository creates a new sub-record repository.
func NewSubRecordRepository(db *sql.DB, logger *slog.Logger) *SubRecordRepository {
	return &SubRecordRepository{db: db, logger: logger}
}

// OpenSubRecords returns unpaid sub-records of the kind that carry an anchor date.
func (r *SubRecordRepository) OpenSubRecords(ctx context.Context, kind models.SubRecordKind) ([]*models.SubRecord, error) {
	query := `
		SELECT id, subject_id, kind, anchor_date, paid
		FROM sub_records
		WHERE kind = $1 AND NOT paid AND anchor_date IS NOT NULL
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query sub-records: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	records := make([]*models.SubRecord, 0)

	for rows.Next() {
		var (
			record models.SubRecord
			anchor sql.NullTime
		)

		err := rows.Scan(&record.ID, &record.SubjectID, &record.Kind, &anchor, &record.Paid)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sub-record: %w", err)
		}

		if anchor.Valid {
			day := models.Day(anchor.Time)
			record.AnchorDate = &day
		}

		records = append(records, &record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating sub-records: %w", err)
	}

	return records, nil
}

// SaveSubRecord inserts or replaces a sub-record.
func (r *SubRecordRepository) SaveSubRecord(ctx context.Context, record *models.SubRecord) error {
	if record == nil || record.ID == "" {
		return errors.New("sub-record ID cannot be empty")
	}

	var anchor sql.NullTime
	if record.AnchorDate != nil {
		anchor = sql.NullTime{Time: models.Day(*record.AnchorDate), Valid: true}
	}

	query := `
		INSERT INTO sub_records (id, subject_id, kind, anchor_date, paid)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			subject_id = EXCLUDED.subject_id,
			kind = EXCLUDED.kind,
			anchor_date = EXCLUDED.anchor_date,
			paid = EXCLUDED.paid
	`

	_, err := r.db.ExecContext(ctx, query, record.ID, record.SubjectID, record.Kind, anchor, record.Paid)
	if err != nil {
		return fmt.Errorf("failed to save sub-record: %w", err)
	}

	return nil
}

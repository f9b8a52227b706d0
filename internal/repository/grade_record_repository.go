package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/grade-flow-api/internal/models"
)

// ErrVersionConflict is returned when an expected-version update matches no
// row: the record moved on under the caller's feet.
var ErrVersionConflict = errors.New("grade record version conflict")

const gradeRecordColumns = `id, student_id, enrollment_id, class_id, subject_id, term_id,
	continuous_scores, periodic_scores, continuous_avg, exam_score, course_final_avg,
	state, continuous_locked, periodic_locked, final_locked, version, attempt_number,
	current_retake_id, note, created_by, updated_by, submitted_by, submitted_at, created_at, updated_at`

// GradeRecordRepository handles grade record persistence.
type GradeRecordRepository struct {
	db *sqlx.DB
}

// NewGradeRecordRepository creates a new grade record repository.
func NewGradeRecordRepository(db *sqlx.DB) *GradeRecordRepository {
	return &GradeRecordRepository{db: db}
}

// Create inserts a new grade record at version 1.
func (r *GradeRecordRepository) Create(ctx context.Context, record *models.GradeRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.Version == 0 {
		record.Version = 1
	}
	if record.AttemptNumber == 0 {
		record.AttemptNumber = 1
	}
	const query = `INSERT INTO grade_records
	(id, student_id, enrollment_id, class_id, subject_id, term_id,
	 continuous_scores, periodic_scores, continuous_avg, exam_score, course_final_avg,
	 state, continuous_locked, periodic_locked, final_locked, version, attempt_number,
	 current_retake_id, note, created_by, updated_by, submitted_by, submitted_at, created_at, updated_at)
	VALUES (:id, :student_id, :enrollment_id, :class_id, :subject_id, :term_id,
	 :continuous_scores, :periodic_scores, :continuous_avg, :exam_score, :course_final_avg,
	 :state, :continuous_locked, :periodic_locked, :final_locked, :version, :attempt_number,
	 :current_retake_id, :note, :created_by, :updated_by, :submitted_by, :submitted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create grade record: %w", err)
	}
	return nil
}

// GetByID fetches a grade record by identifier.
func (r *GradeRecordRepository) GetByID(ctx context.Context, id string) (*models.GradeRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM grade_records WHERE id = $1", gradeRecordColumns)
	var record models.GradeRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns grade records matching the filter.
func (r *GradeRecordRepository) List(ctx context.Context, filter models.GradeRecordFilter) ([]models.GradeRecord, error) {
	query := fmt.Sprintf("SELECT %s FROM grade_records WHERE 1=1", gradeRecordColumns)
	var args []interface{}
	if filter.StudentID != "" {
		query += fmt.Sprintf(" AND student_id = $%d", len(args)+1)
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		query += fmt.Sprintf(" AND class_id = $%d", len(args)+1)
		args = append(args, filter.ClassID)
	}
	if filter.SubjectID != "" {
		query += fmt.Sprintf(" AND subject_id = $%d", len(args)+1)
		args = append(args, filter.SubjectID)
	}
	if filter.TermID != "" {
		query += fmt.Sprintf(" AND term_id = $%d", len(args)+1)
		args = append(args, filter.TermID)
	}
	if filter.State != "" {
		query += fmt.Sprintf(" AND state = $%d", len(args)+1)
		args = append(args, filter.State)
	}
	query += " ORDER BY updated_at DESC"
	var records []models.GradeRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list grade records: %w", err)
	}
	return records, nil
}

// CountByState aggregates record counts per lifecycle state.
func (r *GradeRecordRepository) CountByState(ctx context.Context, filter models.GradeRecordFilter) ([]models.StateCount, error) {
	query := "SELECT state, COUNT(*) AS count FROM grade_records WHERE 1=1"
	var args []interface{}
	if filter.ClassID != "" {
		query += fmt.Sprintf(" AND class_id = $%d", len(args)+1)
		args = append(args, filter.ClassID)
	}
	if filter.SubjectID != "" {
		query += fmt.Sprintf(" AND subject_id = $%d", len(args)+1)
		args = append(args, filter.SubjectID)
	}
	if filter.TermID != "" {
		query += fmt.Sprintf(" AND term_id = $%d", len(args)+1)
		args = append(args, filter.TermID)
	}
	query += " GROUP BY state"
	var counts []models.StateCount
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("count grade records: %w", err)
	}
	return counts, nil
}

// MutationParams groups the writes of one audited grade record mutation.
// Record must already carry the new values and the incremented version;
// ExpectedVersion is the version the caller read before computing them.
type MutationParams struct {
	Record          *models.GradeRecord
	ExpectedVersion int64
	Snapshot        *models.VersionSnapshot
	Event           *models.StateTransitionEvent
	// RetireRetakeID flips is_current off on the given attempt within the same
	// transaction. Used by retake promotion.
	RetireRetakeID *string
}

type mutationRow struct {
	models.GradeRecord
	ExpectedVersion int64 `db:"expected_version"`
}

// ApplyMutation writes the snapshot, the optional transition event and the new
// record row as one transaction. The update asserts the expected version;
// a stale read surfaces as ErrVersionConflict and nothing is committed.
func (r *GradeRecordRepository) ApplyMutation(ctx context.Context, params MutationParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := insertSnapshotTx(ctx, tx, params.Snapshot); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if params.Event != nil {
		if err := insertEventTx(ctx, tx, params.Event); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}
	params.Record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grade_records SET
		continuous_scores = :continuous_scores, periodic_scores = :periodic_scores,
		continuous_avg = :continuous_avg, exam_score = :exam_score, course_final_avg = :course_final_avg,
		state = :state, continuous_locked = :continuous_locked, periodic_locked = :periodic_locked,
		final_locked = :final_locked, version = :version, attempt_number = :attempt_number,
		current_retake_id = :current_retake_id, note = :note, updated_by = :updated_by,
		submitted_by = :submitted_by, submitted_at = :submitted_at, updated_at = :updated_at
	WHERE id = :id AND version = :expected_version`
	res, err := tx.NamedExecContext(ctx, query, mutationRow{GradeRecord: *params.Record, ExpectedVersion: params.ExpectedVersion})
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("update grade record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("update grade record: %w", err)
	}
	if affected == 0 {
		tx.Rollback() //nolint:errcheck
		return ErrVersionConflict
	}
	if params.RetireRetakeID != nil {
		if _, err := tx.ExecContext(ctx,
			"UPDATE retake_attempts SET is_current = false, updated_at = $1 WHERE id = $2",
			time.Now().UTC(), *params.RetireRetakeID); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("retire retake attempt: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit grade record mutation: %w", err)
	}
	return nil
}

// ListOpenRetakeOrigins reports which of the given records have a non-terminal
// retake attempt. Used to avoid duplicate attempt creation.
func (r *GradeRecordRepository) ListOpenRetakeOrigins(ctx context.Context, recordIDs []string) (map[string]bool, error) {
	result := make(map[string]bool, len(recordIDs))
	if len(recordIDs) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(recordIDs))
	args := make([]interface{}, len(recordIDs)+1)
	for i, id := range recordIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	args[len(args)-1] = models.RetakeResultPending
	query := fmt.Sprintf(`SELECT DISTINCT origin_record_id FROM retake_attempts
	WHERE origin_record_id IN (%s) AND result = $%d`, strings.Join(placeholders, ","), len(args))
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list open retake origins: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var originID string
		if err := rows.Scan(&originID); err != nil {
			return nil, fmt.Errorf("scan retake origin: %w", err)
		}
		result[originID] = true
	}
	return result, nil
}

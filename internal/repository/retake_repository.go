package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/grade-flow-api/internal/models"
)

const retakeColumns = `id, origin_record_id, enrollment_id, student_id, subject_id, term_id,
	attempt_number, kind, reason, result, is_current, continuous_scores, periodic_scores,
	continuous_avg, exam_score, course_final_avg, created_by, created_at, updated_at`

const insertRetakeQuery = `INSERT INTO retake_attempts
	(id, origin_record_id, enrollment_id, student_id, subject_id, term_id,
	 attempt_number, kind, reason, result, is_current, continuous_scores, periodic_scores,
	 continuous_avg, exam_score, course_final_avg, created_by, created_at, updated_at)
	VALUES (:id, :origin_record_id, :enrollment_id, :student_id, :subject_id, :term_id,
	 :attempt_number, :kind, :reason, :result, :is_current, :continuous_scores, :periodic_scores,
	 :continuous_avg, :exam_score, :course_final_avg, :created_by, :created_at, :updated_at)`

// RetakeRepository persists remediation attempts.
type RetakeRepository struct {
	db *sqlx.DB
}

// NewRetakeRepository constructs the repository.
func NewRetakeRepository(db *sqlx.DB) *RetakeRepository {
	return &RetakeRepository{db: db}
}

// GetByID fetches a retake attempt by identifier.
func (r *RetakeRepository) GetByID(ctx context.Context, id string) (*models.RetakeAttempt, error) {
	query := fmt.Sprintf("SELECT %s FROM retake_attempts WHERE id = $1", retakeColumns)
	var attempt models.RetakeAttempt
	if err := r.db.GetContext(ctx, &attempt, query, id); err != nil {
		return nil, err
	}
	return &attempt, nil
}

// ListByStudentSubject returns all attempts for the pair ordered by attempt number.
func (r *RetakeRepository) ListByStudentSubject(ctx context.Context, studentID, subjectID string) ([]models.RetakeAttempt, error) {
	query := fmt.Sprintf(`SELECT %s FROM retake_attempts
	WHERE student_id = $1 AND subject_id = $2 ORDER BY attempt_number ASC`, retakeColumns)
	var attempts []models.RetakeAttempt
	if err := r.db.SelectContext(ctx, &attempts, query, studentID, subjectID); err != nil {
		return nil, fmt.Errorf("list retake attempts: %w", err)
	}
	return attempts, nil
}

// MaxAttemptNumber returns the highest attempt number recorded for the pair,
// zero when none exist.
func (r *RetakeRepository) MaxAttemptNumber(ctx context.Context, studentID, subjectID string) (int, error) {
	var max int
	const query = `SELECT COALESCE(MAX(attempt_number), 0) FROM retake_attempts
	WHERE student_id = $1 AND subject_id = $2`
	if err := r.db.GetContext(ctx, &max, query, studentID, subjectID); err != nil {
		return 0, fmt.Errorf("max attempt number: %w", err)
	}
	return max, nil
}

// CreateWithEnrollment inserts a fresh enrollment and the attempt, flipping
// is_current off on every sibling attempt for the pair, as one transaction.
// Used for course retakes, which run on a new enrollment.
func (r *RetakeRepository) CreateWithEnrollment(ctx context.Context, enrollment *models.Enrollment, attempt *models.RetakeAttempt) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := insertEnrollmentTx(ctx, tx, enrollment); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	attempt.EnrollmentID = enrollment.ID
	if err := r.insertAttemptTx(ctx, tx, attempt); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit course retake: %w", err)
	}
	return nil
}

// Create inserts the attempt on an existing enrollment, flipping is_current
// off on siblings, as one transaction. Used for exam retakes.
func (r *RetakeRepository) Create(ctx context.Context, attempt *models.RetakeAttempt) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := r.insertAttemptTx(ctx, tx, attempt); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit exam retake: %w", err)
	}
	return nil
}

func (r *RetakeRepository) insertAttemptTx(ctx context.Context, tx *sqlx.Tx, attempt *models.RetakeAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	attempt.CreatedAt = now
	attempt.UpdatedAt = now
	attempt.IsCurrent = true
	if attempt.Result == "" {
		attempt.Result = models.RetakeResultPending
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE retake_attempts SET is_current = false, updated_at = $1 WHERE student_id = $2 AND subject_id = $3 AND is_current",
		now, attempt.StudentID, attempt.SubjectID); err != nil {
		return fmt.Errorf("retire sibling attempts: %w", err)
	}
	if _, err := tx.NamedExecContext(ctx, insertRetakeQuery, attempt); err != nil {
		return fmt.Errorf("insert retake attempt: %w", err)
	}
	return nil
}

// UpdateResult persists re-entered scores and the reclassified result.
func (r *RetakeRepository) UpdateResult(ctx context.Context, attempt *models.RetakeAttempt) error {
	attempt.UpdatedAt = time.Now().UTC()
	const query = `UPDATE retake_attempts SET
		continuous_scores = :continuous_scores, periodic_scores = :periodic_scores,
		continuous_avg = :continuous_avg, exam_score = :exam_score, course_final_avg = :course_final_avg,
		result = :result, updated_at = :updated_at
	WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, attempt); err != nil {
		return fmt.Errorf("update retake result: %w", err)
	}
	return nil
}

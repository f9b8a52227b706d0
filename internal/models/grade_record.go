package models

import "time"

// GradeState represents the lifecycle state of a grade record.
type GradeState string

const (
	StateDraft              GradeState = "DRAFT"
	StatePendingReview      GradeState = "PENDING_REVIEW"
	StateApprovedContinuous GradeState = "APPROVED_CONTINUOUS"
	StateFinalEntered       GradeState = "FINAL_ENTERED"
	StateFinalized          GradeState = "FINALIZED"
)

// Valid reports whether the state is one of the known lifecycle states.
func (s GradeState) Valid() bool {
	switch s {
	case StateDraft, StatePendingReview, StateApprovedContinuous, StateFinalEntered, StateFinalized:
		return true
	}
	return false
}

// ScoreField identifies an editable field group on a grade record.
type ScoreField string

const (
	FieldContinuous ScoreField = "continuous"
	FieldPeriodic   ScoreField = "periodic"
	FieldExam       ScoreField = "exam"
	FieldNote       ScoreField = "note"
)

// Classification buckets a course-final average.
type Classification string

const (
	ClassificationExcellent    Classification = "EXCELLENT"
	ClassificationGood         Classification = "GOOD"
	ClassificationFairlyGood   Classification = "FAIRLY_GOOD"
	ClassificationAverage      Classification = "AVERAGE"
	ClassificationPoor         Classification = "POOR"
	ClassificationUnclassified Classification = "UNCLASSIFIED"
)

// GradeRecord is the primary grade row for a (student, enrollment, attempt).
// Version increases by exactly one on every persisted mutation; a snapshot of
// the previous version is written in the same transaction.
type GradeRecord struct {
	ID               string     `db:"id" json:"id"`
	StudentID        string     `db:"student_id" json:"student_id"`
	EnrollmentID     string     `db:"enrollment_id" json:"enrollment_id"`
	ClassID          string     `db:"class_id" json:"class_id"`
	SubjectID        string     `db:"subject_id" json:"subject_id"`
	TermID           string     `db:"term_id" json:"term_id"`
	ContinuousScores ScoreSet   `db:"continuous_scores" json:"continuous_scores"`
	PeriodicScores   ScoreSet   `db:"periodic_scores" json:"periodic_scores"`
	ContinuousAvg    *float64   `db:"continuous_avg" json:"continuous_avg,omitempty"`
	ExamScore        *float64   `db:"exam_score" json:"exam_score,omitempty"`
	CourseFinalAvg   *float64   `db:"course_final_avg" json:"course_final_avg,omitempty"`
	State            GradeState `db:"state" json:"state"`
	ContinuousLocked bool       `db:"continuous_locked" json:"continuous_locked"`
	PeriodicLocked   bool       `db:"periodic_locked" json:"periodic_locked"`
	FinalLocked      bool       `db:"final_locked" json:"final_locked"`
	Version          int64      `db:"version" json:"version"`
	AttemptNumber    int        `db:"attempt_number" json:"attempt_number"`
	CurrentRetakeID  *string    `db:"current_retake_id" json:"current_retake_id,omitempty"`
	Note             *string    `db:"note" json:"note,omitempty"`
	CreatedBy        string     `db:"created_by" json:"created_by"`
	UpdatedBy        string     `db:"updated_by" json:"updated_by"`
	SubmittedBy      *string    `db:"submitted_by" json:"submitted_by,omitempty"`
	SubmittedAt      *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// HasAnyScore reports whether at least one sub-score has been entered.
func (r *GradeRecord) HasAnyScore() bool {
	return len(r.ContinuousScores) > 0 || len(r.PeriodicScores) > 0
}

// GradeRecordFilter constrains grade record queries.
type GradeRecordFilter struct {
	StudentID string
	ClassID   string
	SubjectID string
	TermID    string
	State     GradeState
}

// StateCount is one row of the per-state statistics projection.
type StateCount struct {
	State GradeState `db:"state" json:"state"`
	Count int        `db:"count" json:"count"`
}

// Pagination describes paged list metadata.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

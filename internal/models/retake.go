package models

import "time"

// RetakeKind distinguishes a full course repeat from an exam re-sit.
type RetakeKind string

const (
	// RetakeKindCourse repeats all coursework on a fresh enrollment.
	RetakeKindCourse RetakeKind = "COURSE"
	// RetakeKindExam re-sits only the exam on the original enrollment.
	RetakeKindExam RetakeKind = "EXAM"
)

// RetakeResult is the classified outcome of a retake attempt.
type RetakeResult string

const (
	RetakeResultPending  RetakeResult = "PENDING"
	RetakeResultPass     RetakeResult = "PASS"
	RetakeResultFailExam RetakeResult = "FAIL_EXAM"
	RetakeResultFailTBKT RetakeResult = "FAIL_TBKT"
)

// Terminal reports whether the result closes the attempt.
func (r RetakeResult) Terminal() bool {
	return r != RetakeResultPending
}

// Outcome classifies a grade record for remediation purposes.
type Outcome string

const (
	OutcomePass         Outcome = "PASS"
	OutcomePending      Outcome = "PENDING"
	OutcomeRetakeCourse Outcome = "RETAKE_COURSE"
	OutcomeRetakeExam   Outcome = "RETAKE_EXAM"
)

// NeedsRetake reports whether the outcome requires remediation.
func (o Outcome) NeedsRetake() bool {
	return o == OutcomeRetakeCourse || o == OutcomeRetakeExam
}

// RetakeAttempt is one remediation attempt for a (student, subject) pair.
// At most one attempt per pair carries IsCurrent = true.
type RetakeAttempt struct {
	ID               string       `db:"id" json:"id"`
	OriginRecordID   string       `db:"origin_record_id" json:"origin_record_id"`
	EnrollmentID     string       `db:"enrollment_id" json:"enrollment_id"`
	StudentID        string       `db:"student_id" json:"student_id"`
	SubjectID        string       `db:"subject_id" json:"subject_id"`
	TermID           string       `db:"term_id" json:"term_id"`
	AttemptNumber    int          `db:"attempt_number" json:"attempt_number"`
	Kind             RetakeKind   `db:"kind" json:"kind"`
	Reason           string       `db:"reason" json:"reason"`
	Result           RetakeResult `db:"result" json:"result"`
	IsCurrent        bool         `db:"is_current" json:"is_current"`
	ContinuousScores ScoreSet     `db:"continuous_scores" json:"continuous_scores"`
	PeriodicScores   ScoreSet     `db:"periodic_scores" json:"periodic_scores"`
	ContinuousAvg    *float64     `db:"continuous_avg" json:"continuous_avg,omitempty"`
	ExamScore        *float64     `db:"exam_score" json:"exam_score,omitempty"`
	CourseFinalAvg   *float64     `db:"course_final_avg" json:"course_final_avg,omitempty"`
	CreatedBy        string       `db:"created_by" json:"created_by"`
	CreatedAt        time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updated_at"`
}

// RetakeHistory aggregates the remediation trail for a (student, subject) pair.
type RetakeHistory struct {
	Origin        *GradeRecord    `json:"origin"`
	Attempts      []RetakeAttempt `json:"attempts"`
	Current       *RetakeAttempt  `json:"current,omitempty"`
	TotalAttempts int             `json:"total_attempts"`
}

// RetakeCandidate is one row of the needing-retake projection.
type RetakeCandidate struct {
	Record         GradeRecord `json:"record"`
	Outcome        Outcome     `json:"outcome"`
	HasOpenAttempt bool        `json:"has_open_attempt"`
}

package models

import "time"

// EventKind distinguishes the audited movement types.
type EventKind string

const (
	EventKindTransition EventKind = "TRANSITION"
	EventKindRollback   EventKind = "ROLLBACK"
	EventKindUnlock     EventKind = "UNLOCK"
	EventKindPromotion  EventKind = "PROMOTION"
)

// VersionSnapshot captures the full scorable state of a grade record at a
// version. Written once per mutation, before the mutation is applied, in the
// same transaction. Append-only.
type VersionSnapshot struct {
	ID               string     `db:"id" json:"id"`
	RecordID         string     `db:"record_id" json:"record_id"`
	Version          int64      `db:"version" json:"version"`
	State            GradeState `db:"state" json:"state"`
	ContinuousScores ScoreSet   `db:"continuous_scores" json:"continuous_scores"`
	PeriodicScores   ScoreSet   `db:"periodic_scores" json:"periodic_scores"`
	ContinuousAvg    *float64   `db:"continuous_avg" json:"continuous_avg,omitempty"`
	ExamScore        *float64   `db:"exam_score" json:"exam_score,omitempty"`
	CourseFinalAvg   *float64   `db:"course_final_avg" json:"course_final_avg,omitempty"`
	AttemptNumber    int        `db:"attempt_number" json:"attempt_number"`
	Note             *string    `db:"note" json:"note,omitempty"`
	Actor            string     `db:"actor" json:"actor"`
	Description      string     `db:"description" json:"description"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// StateTransitionEvent records one movement of a grade record. Distinct from
// VersionSnapshot: the snapshot captures data, the event captures movement.
type StateTransitionEvent struct {
	ID        string     `db:"id" json:"id"`
	RecordID  string     `db:"record_id" json:"record_id"`
	Kind      EventKind  `db:"kind" json:"kind"`
	FromState GradeState `db:"from_state" json:"from_state"`
	ToState   GradeState `db:"to_state" json:"to_state"`
	Actor     string     `db:"actor" json:"actor"`
	Reason    *string    `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

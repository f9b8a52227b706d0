package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive EnrollmentStatus = "ACTIVE"
	EnrollmentStatusRetake EnrollmentStatus = "RETAKE"
	EnrollmentStatusClosed EnrollmentStatus = "CLOSED"
)

// Enrollment captures a student's registration to a class/subject within a
// term. Course retakes create a fresh enrollment with a higher attempt number;
// exam retakes ride on the original one.
type Enrollment struct {
	ID            string           `db:"id" json:"id"`
	StudentID     string           `db:"student_id" json:"student_id"`
	ClassID       string           `db:"class_id" json:"class_id"`
	SubjectID     string           `db:"subject_id" json:"subject_id"`
	TermID        string           `db:"term_id" json:"term_id"`
	AttemptNumber int              `db:"attempt_number" json:"attempt_number"`
	Status        EnrollmentStatus `db:"status" json:"status"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
}

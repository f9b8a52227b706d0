package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grade-flow-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func gradeRecordRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "student_id", "enrollment_id", "class_id", "subject_id", "term_id",
		"continuous_scores", "periodic_scores", "continuous_avg", "exam_score", "course_final_avg",
		"state", "continuous_locked", "periodic_locked", "final_locked", "version", "attempt_number",
		"current_retake_id", "note", "created_by", "updated_by", "submitted_by", "submitted_at", "created_at", "updated_at",
	})
}

func sampleRecord() *models.GradeRecord {
	return &models.GradeRecord{
		ID:               "g1",
		StudentID:        "s1",
		EnrollmentID:     "e1",
		ClassID:          "c1",
		SubjectID:        "sub1",
		TermID:           "term1",
		ContinuousScores: models.ScoreSet{{Key: "q1", Value: 7}},
		PeriodicScores:   models.ScoreSet{{Key: "m1", Value: 8}},
		State:            models.StateDraft,
		Version:          1,
		AttemptNumber:    1,
		CreatedBy:        "t1",
		UpdatedBy:        "t1",
	}
}

func TestGradeRecordRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewGradeRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grade_records")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := sampleRecord()
	record.ID = ""
	require.NoError(t, repo.Create(context.Background(), record))
	require.NotEmpty(t, record.ID)
	require.Equal(t, int64(1), record.Version)

	rows := gradeRecordRows().AddRow(
		record.ID, "s1", "e1", "c1", "sub1", "term1",
		[]byte(`[{"key":"q1","value":7}]`), []byte(`[]`), nil, nil, nil,
		"DRAFT", false, false, false, 1, 1,
		nil, nil, "t1", "t1", nil, nil, time.Now(), time.Now(),
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, enrollment_id")).
		WithArgs(record.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), record.ID)
	require.NoError(t, err)
	require.Equal(t, record.ID, found.ID)
	require.Equal(t, models.StateDraft, found.State)
	require.Len(t, found.ContinuousScores, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRecordRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewGradeRecordRepository(db)
	rows := gradeRecordRows().AddRow(
		"g1", "s1", "e1", "c1", "sub1", "term1",
		[]byte(`[]`), []byte(`[]`), nil, nil, nil,
		"FINALIZED", false, false, true, 6, 1,
		nil, nil, "t1", "a1", nil, nil, time.Now(), time.Now(),
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, enrollment_id")).
		WithArgs("c1", "FINALIZED").
		WillReturnRows(rows)

	records, err := repo.List(context.Background(), models.GradeRecordFilter{ClassID: "c1", State: models.StateFinalized})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "g1", records[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRecordRepositoryApplyMutation(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewGradeRecordRepository(db)
	record := sampleRecord()
	record.Version = 2

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grade_snapshots")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grade_transition_events")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE grade_records SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ApplyMutation(context.Background(), MutationParams{
		Record:          record,
		ExpectedVersion: 1,
		Snapshot:        &models.VersionSnapshot{RecordID: "g1", Version: 1, State: models.StateDraft, Actor: "t1"},
		Event: &models.StateTransitionEvent{
			RecordID: "g1", Kind: models.EventKindTransition,
			FromState: models.StateDraft, ToState: models.StatePendingReview, Actor: "t1",
		},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRecordRepositoryApplyMutationVersionConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewGradeRecordRepository(db)
	record := sampleRecord()
	record.Version = 2

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grade_snapshots")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE grade_records SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApplyMutation(context.Background(), MutationParams{
		Record:          record,
		ExpectedVersion: 1,
		Snapshot:        &models.VersionSnapshot{RecordID: "g1", Version: 1, State: models.StateDraft, Actor: "t1"},
	})
	require.ErrorIs(t, err, ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRecordRepositoryApplyMutationRetiresAttempt(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewGradeRecordRepository(db)
	record := sampleRecord()
	record.Version = 7
	attemptID := "r1"

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grade_snapshots")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grade_transition_events")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE grade_records SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE retake_attempts SET is_current = false")).
		WithArgs(sqlmock.AnyArg(), attemptID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.ApplyMutation(context.Background(), MutationParams{
		Record:          record,
		ExpectedVersion: 6,
		Snapshot:        &models.VersionSnapshot{RecordID: "g1", Version: 6, State: models.StateFinalized, Actor: "a1"},
		Event: &models.StateTransitionEvent{
			RecordID: "g1", Kind: models.EventKindPromotion,
			FromState: models.StateFinalized, ToState: models.StateFinalized, Actor: "a1",
		},
		RetireRetakeID: &attemptID,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRecordRepositoryListOpenRetakeOrigins(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewGradeRecordRepository(db)
	rows := sqlmock.NewRows([]string{"origin_record_id"}).AddRow("g1")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT origin_record_id FROM retake_attempts")).
		WithArgs("g1", "g2", string(models.RetakeResultPending)).
		WillReturnRows(rows)

	open, err := repo.ListOpenRetakeOrigins(context.Background(), []string{"g1", "g2"})
	require.NoError(t, err)
	require.True(t, open["g1"])
	require.False(t, open["g2"])
	require.NoError(t, mock.ExpectationsWereMet())
}

package service

import (
	"context"
	"database/sql"
	"sort"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/grade-flow-api/internal/models"
	appErrors "github.com/noah-isme/grade-flow-api/pkg/errors"
)

type mockRetakeStore struct {
	attempts          map[string]models.RetakeAttempt
	maxAttempt        int
	createdEnrollment *models.Enrollment
	created           *models.RetakeAttempt
	updated           *models.RetakeAttempt
}

func (m *mockRetakeStore) GetByID(ctx context.Context, id string) (*models.RetakeAttempt, error) {
	if a, ok := m.attempts[id]; ok {
		copied := a
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockRetakeStore) ListByStudentSubject(ctx context.Context, studentID, subjectID string) ([]models.RetakeAttempt, error) {
	var list []models.RetakeAttempt
	for _, a := range m.attempts {
		if a.StudentID == studentID && a.SubjectID == subjectID {
			list = append(list, a)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].AttemptNumber < list[j].AttemptNumber })
	return list, nil
}

func (m *mockRetakeStore) MaxAttemptNumber(ctx context.Context, studentID, subjectID string) (int, error) {
	return m.maxAttempt, nil
}

func (m *mockRetakeStore) CreateWithEnrollment(ctx context.Context, enrollment *models.Enrollment, attempt *models.RetakeAttempt) error {
	if enrollment.ID == "" {
		enrollment.ID = "new-enroll"
	}
	attempt.EnrollmentID = enrollment.ID
	m.createdEnrollment = enrollment
	return m.Create(ctx, attempt)
}

func (m *mockRetakeStore) Create(ctx context.Context, attempt *models.RetakeAttempt) error {
	if m.attempts == nil {
		m.attempts = make(map[string]models.RetakeAttempt)
	}
	if attempt.ID == "" {
		attempt.ID = "new-attempt"
	}
	attempt.IsCurrent = true
	if attempt.Result == "" {
		attempt.Result = models.RetakeResultPending
	}
	m.attempts[attempt.ID] = *attempt
	m.created = attempt
	return nil
}

func (m *mockRetakeStore) UpdateResult(ctx context.Context, attempt *models.RetakeAttempt) error {
	m.attempts[attempt.ID] = *attempt
	m.updated = attempt
	return nil
}

func newTestRetakeService(records *mockGradeRecordStore, retakes *mockRetakeStore) *RetakeService {
	return NewRetakeService(records, retakes, nil, validator.New(), zap.NewNop())
}

func finalizedRecord(id string, continuousAvg, examScore, finalAvg *float64) models.GradeRecord {
	record := draftRecord(id)
	record.State = models.StateFinalized
	record.FinalLocked = true
	record.Version = 6
	record.ContinuousScores = models.ScoreSet{{Key: "q1", Value: 4}}
	record.PeriodicScores = models.ScoreSet{{Key: "m1", Value: 4}}
	record.ContinuousAvg = continuousAvg
	record.ExamScore = examScore
	record.CourseFinalAvg = finalAvg
	return record
}

func TestAnalyzeOutcome(t *testing.T) {
	cases := []struct {
		name          string
		continuousAvg *float64
		examScore     *float64
		finalAvg      *float64
		want          models.Outcome
	}{
		{"passing without continuous average", nil, fptr(8), fptr(8), models.OutcomePass},
		{"failing continuous dominates exam", fptr(4.9), fptr(9), fptr(7.8), models.OutcomeRetakeCourse},
		{"passing continuous without exam", fptr(6), nil, nil, models.OutcomePending},
		{"failing exam", fptr(6), fptr(4), fptr(4.6), models.OutcomeRetakeExam},
		{"failing exam dominates passing final", fptr(9), fptr(4.5), fptr(5.9), models.OutcomeRetakeExam},
		{"failing exam without other scores", nil, fptr(4), nil, models.OutcomeRetakeExam},
		{"passing", fptr(6), fptr(6), fptr(6), models.OutcomePass},
		{"threshold is inclusive", fptr(5), fptr(5), fptr(5), models.OutcomePass},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AnalyzeOutcome(tc.continuousAvg, tc.examScore, tc.finalAvg))
		})
	}
}

func TestCreateCourseRetake(t *testing.T) {
	origin := finalizedRecord("g1", fptr(4.0), nil, nil)
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": origin}}
	retakes := &mockRetakeStore{}
	svc := newTestRetakeService(records, retakes)

	attempt, err := svc.CreateCourseRetake(context.Background(), CreateRetakeRequest{
		OriginRecordID: "g1", TermID: "term2", Reason: "failed coursework",
	}, admin)
	require.NoError(t, err)
	assert.Equal(t, models.RetakeKindCourse, attempt.Kind)
	assert.Equal(t, 2, attempt.AttemptNumber)
	assert.Equal(t, models.RetakeResultPending, attempt.Result)
	assert.True(t, attempt.IsCurrent)
	assert.Empty(t, attempt.ContinuousScores)

	require.NotNil(t, retakes.createdEnrollment)
	assert.Equal(t, models.EnrollmentStatusRetake, retakes.createdEnrollment.Status)
	assert.Equal(t, "term2", retakes.createdEnrollment.TermID)
	assert.Equal(t, "c1", retakes.createdEnrollment.ClassID)
	assert.Equal(t, retakes.createdEnrollment.ID, attempt.EnrollmentID)
}

func TestCreateExamRetakeCopiesCoursework(t *testing.T) {
	origin := finalizedRecord("g1", fptr(6.5), fptr(4.0), fptr(4.8))
	origin.ContinuousScores = models.ScoreSet{{Key: "q1", Value: 7}}
	origin.PeriodicScores = models.ScoreSet{{Key: "m1", Value: 6}}
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": origin}}
	retakes := &mockRetakeStore{}
	svc := newTestRetakeService(records, retakes)

	attempt, err := svc.CreateExamRetake(context.Background(), CreateRetakeRequest{
		OriginRecordID: "g1", TermID: "term2", Reason: "failed exam",
	}, admin)
	require.NoError(t, err)
	assert.Equal(t, models.RetakeKindExam, attempt.Kind)
	assert.Equal(t, "e1", attempt.EnrollmentID)
	assert.Equal(t, origin.ContinuousScores, attempt.ContinuousScores)
	require.NotNil(t, attempt.ContinuousAvg)
	assert.Equal(t, 6.5, *attempt.ContinuousAvg)
	assert.Nil(t, attempt.ExamScore)
	assert.Nil(t, retakes.createdEnrollment)
}

func TestCreateRetakeOutcomeGating(t *testing.T) {
	courseFail := finalizedRecord("g1", fptr(4.0), nil, nil)
	examFail := finalizedRecord("g2", fptr(6.0), fptr(4.0), fptr(4.6))
	passing := finalizedRecord("g3", fptr(7.0), fptr(7.0), fptr(7.0))
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{
		"g1": courseFail, "g2": examFail, "g3": passing,
	}}
	svc := newTestRetakeService(records, &mockRetakeStore{})
	ctx := context.Background()

	_, err := svc.CreateExamRetake(ctx, CreateRetakeRequest{OriginRecordID: "g1", TermID: "t2", Reason: "r"}, admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateCourseRetake(ctx, CreateRetakeRequest{OriginRecordID: "g2", TermID: "t2", Reason: "r"}, admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateCourseRetake(ctx, CreateRetakeRequest{OriginRecordID: "g3", TermID: "t2", Reason: "r"}, admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestCreateRetakeGuards(t *testing.T) {
	origin := finalizedRecord("g1", fptr(4.0), nil, nil)
	draft := draftRecord("g2")
	records := &mockGradeRecordStore{
		records:     map[string]models.GradeRecord{"g1": origin, "g2": draft},
		openOrigins: map[string]bool{"g1": true},
	}
	svc := newTestRetakeService(records, &mockRetakeStore{})
	ctx := context.Background()

	_, err := svc.CreateCourseRetake(ctx, CreateRetakeRequest{OriginRecordID: "g1", TermID: "t2", Reason: "r"}, teacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateCourseRetake(ctx, CreateRetakeRequest{OriginRecordID: "g2", TermID: "t2", Reason: "r"}, admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateCourseRetake(ctx, CreateRetakeRequest{OriginRecordID: "g1", TermID: "t2", Reason: "r"}, admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestCreateRetakeNumbersPastSiblings(t *testing.T) {
	origin := finalizedRecord("g1", fptr(4.0), nil, nil)
	origin.AttemptNumber = 2
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": origin}}
	retakes := &mockRetakeStore{maxAttempt: 3}
	svc := newTestRetakeService(records, retakes)

	attempt, err := svc.CreateCourseRetake(context.Background(), CreateRetakeRequest{
		OriginRecordID: "g1", TermID: "t3", Reason: "second repeat",
	}, admin)
	require.NoError(t, err)
	assert.Equal(t, 4, attempt.AttemptNumber)
}

func TestUpdateRetakeResultExamKind(t *testing.T) {
	retakes := &mockRetakeStore{attempts: map[string]models.RetakeAttempt{"r1": {
		ID: "r1", OriginRecordID: "g1", StudentID: "s1", SubjectID: "sub1",
		Kind: models.RetakeKindExam, Result: models.RetakeResultPending, IsCurrent: true,
		ContinuousAvg: fptr(6.5),
	}}}
	svc := newTestRetakeService(&mockGradeRecordStore{}, retakes)
	ctx := context.Background()

	_, err := svc.UpdateRetakeResult(ctx, "r1", RetakeScoreRequest{
		Continuous: []models.ScoreEntry{{Key: "q1", Value: 8}},
	}, admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	attempt, err := svc.UpdateRetakeResult(ctx, "r1", RetakeScoreRequest{ExamScore: fptr(7)}, admin)
	require.NoError(t, err)
	require.NotNil(t, attempt.CourseFinalAvg)
	assert.InDelta(t, 6.9, *attempt.CourseFinalAvg, 0.001)
	assert.Equal(t, models.RetakeResultPass, attempt.Result)
}

func TestUpdateRetakeResultFailuresClassified(t *testing.T) {
	retakes := &mockRetakeStore{attempts: map[string]models.RetakeAttempt{
		"course": {
			ID: "course", StudentID: "s1", SubjectID: "sub1",
			Kind: models.RetakeKindCourse, Result: models.RetakeResultPending, IsCurrent: true,
		},
		"exam": {
			ID: "exam", StudentID: "s1", SubjectID: "sub2",
			Kind: models.RetakeKindExam, Result: models.RetakeResultPending, IsCurrent: true,
			ContinuousAvg: fptr(6.0),
		},
	}}
	svc := newTestRetakeService(&mockGradeRecordStore{}, retakes)
	ctx := context.Background()

	// Failing coursework dominates: the exam never counts.
	attempt, err := svc.UpdateRetakeResult(ctx, "course", RetakeScoreRequest{
		Continuous: []models.ScoreEntry{{Key: "q1", Value: 3}},
		Periodic:   []models.ScoreEntry{{Key: "m1", Value: 3}},
		ExamScore:  fptr(9),
	}, admin)
	require.NoError(t, err)
	assert.Equal(t, models.RetakeResultFailTBKT, attempt.Result)
	assert.Nil(t, attempt.ExamScore)
	assert.Nil(t, attempt.CourseFinalAvg)

	attempt, err = svc.UpdateRetakeResult(ctx, "exam", RetakeScoreRequest{ExamScore: fptr(3)}, admin)
	require.NoError(t, err)
	assert.Equal(t, models.RetakeResultFailExam, attempt.Result)
}

func TestUpdateRetakeResultRequiresCurrent(t *testing.T) {
	retakes := &mockRetakeStore{attempts: map[string]models.RetakeAttempt{"r1": {
		ID: "r1", Kind: models.RetakeKindExam, Result: models.RetakeResultFailExam, IsCurrent: false,
	}}}
	svc := newTestRetakeService(&mockGradeRecordStore{}, retakes)

	_, err := svc.UpdateRetakeResult(context.Background(), "r1", RetakeScoreRequest{ExamScore: fptr(7)}, admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestPromotePassingCourseAttempt(t *testing.T) {
	origin := finalizedRecord("g1", fptr(4.0), nil, nil)
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": origin}}
	retakes := &mockRetakeStore{attempts: map[string]models.RetakeAttempt{"r1": {
		ID: "r1", OriginRecordID: "g1", EnrollmentID: "e2", StudentID: "s1", SubjectID: "sub1",
		TermID: "term2", AttemptNumber: 2, Kind: models.RetakeKindCourse, Reason: "failed coursework",
		Result: models.RetakeResultPass, IsCurrent: true,
		ContinuousScores: models.ScoreSet{{Key: "q1", Value: 7}},
		PeriodicScores:   models.ScoreSet{{Key: "m1", Value: 8}},
		ContinuousAvg:    fptr(7.7), ExamScore: fptr(7), CourseFinalAvg: fptr(7.2),
	}}}
	svc := newTestRetakeService(records, retakes)

	record, err := svc.Promote(context.Background(), "r1", admin)
	require.NoError(t, err)
	assert.Equal(t, models.StateFinalized, record.State)
	assert.Equal(t, int64(7), record.Version)
	assert.Equal(t, 2, record.AttemptNumber)
	assert.Equal(t, "e2", record.EnrollmentID)
	require.NotNil(t, record.CurrentRetakeID)
	assert.Equal(t, "r1", *record.CurrentRetakeID)
	assert.Equal(t, 7.0, record.ContinuousScores[0].Value)
	require.NotNil(t, record.CourseFinalAvg)
	assert.Equal(t, 7.2, *record.CourseFinalAvg)

	require.Len(t, records.mutations, 1)
	mutation := records.mutations[0]
	assert.Equal(t, int64(6), mutation.ExpectedVersion)
	require.NotNil(t, mutation.RetireRetakeID)
	assert.Equal(t, "r1", *mutation.RetireRetakeID)
	require.NotNil(t, mutation.Event)
	assert.Equal(t, models.EventKindPromotion, mutation.Event.Kind)
	require.NotNil(t, mutation.Snapshot)
	assert.Equal(t, int64(6), mutation.Snapshot.Version)
}

func TestPromoteExamAttemptKeepsCoursework(t *testing.T) {
	origin := finalizedRecord("g1", fptr(6.5), fptr(4.0), fptr(4.8))
	origin.ContinuousScores = models.ScoreSet{{Key: "q1", Value: 7}}
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": origin}}
	retakes := &mockRetakeStore{attempts: map[string]models.RetakeAttempt{"r1": {
		ID: "r1", OriginRecordID: "g1", EnrollmentID: "e1", StudentID: "s1", SubjectID: "sub1",
		TermID: "term2", AttemptNumber: 2, Kind: models.RetakeKindExam, Reason: "failed exam",
		Result: models.RetakeResultPass, IsCurrent: true,
		ContinuousAvg: fptr(6.5), ExamScore: fptr(7), CourseFinalAvg: fptr(6.9),
	}}}
	svc := newTestRetakeService(records, retakes)

	record, err := svc.Promote(context.Background(), "r1", admin)
	require.NoError(t, err)
	assert.Equal(t, "e1", record.EnrollmentID)
	assert.Equal(t, 7.0, record.ContinuousScores[0].Value)
	require.NotNil(t, record.ExamScore)
	assert.Equal(t, 7.0, *record.ExamScore)
	assert.Equal(t, 6.9, *record.CourseFinalAvg)
}

func TestPromoteRequiresPassAndCurrent(t *testing.T) {
	origin := finalizedRecord("g1", fptr(4.0), nil, nil)
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": origin}}
	retakes := &mockRetakeStore{attempts: map[string]models.RetakeAttempt{
		"pending": {ID: "pending", OriginRecordID: "g1", Kind: models.RetakeKindCourse, Result: models.RetakeResultPending, IsCurrent: true},
		"retired": {ID: "retired", OriginRecordID: "g1", Kind: models.RetakeKindCourse, Result: models.RetakeResultPass, IsCurrent: false},
	}}
	svc := newTestRetakeService(records, retakes)
	ctx := context.Background()

	_, err := svc.Promote(ctx, "pending", admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	_, err = svc.Promote(ctx, "retired", admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)

	_, err = svc.Promote(ctx, "pending", teacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGetHistory(t *testing.T) {
	origin := finalizedRecord("g1", fptr(4.0), nil, nil)
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": origin}}
	retakes := &mockRetakeStore{attempts: map[string]models.RetakeAttempt{
		"r1": {ID: "r1", OriginRecordID: "g1", StudentID: "s1", SubjectID: "sub1", AttemptNumber: 2, Result: models.RetakeResultFailTBKT},
		"r2": {ID: "r2", OriginRecordID: "g1", StudentID: "s1", SubjectID: "sub1", AttemptNumber: 3, Result: models.RetakeResultPending, IsCurrent: true},
	}}
	svc := newTestRetakeService(records, retakes)

	history, err := svc.GetHistory(context.Background(), "s1", "sub1")
	require.NoError(t, err)
	assert.Equal(t, 2, history.TotalAttempts)
	assert.Equal(t, 2, history.Attempts[0].AttemptNumber)
	require.NotNil(t, history.Current)
	assert.Equal(t, "r2", history.Current.ID)
	require.NotNil(t, history.Origin)
	assert.Equal(t, "g1", history.Origin.ID)
}

func TestGetHistoryEmpty(t *testing.T) {
	svc := newTestRetakeService(&mockGradeRecordStore{}, &mockRetakeStore{})

	history, err := svc.GetHistory(context.Background(), "s1", "sub1")
	require.NoError(t, err)
	assert.Zero(t, history.TotalAttempts)
	assert.Nil(t, history.Origin)
	assert.Nil(t, history.Current)
}

func TestListNeedingRetake(t *testing.T) {
	courseFail := finalizedRecord("g1", fptr(4.0), nil, nil)
	examFail := finalizedRecord("g2", fptr(6.0), fptr(4.0), fptr(4.6))
	passing := finalizedRecord("g3", fptr(7.0), fptr(7.0), fptr(7.0))
	openDraft := draftRecord("g4")
	records := &mockGradeRecordStore{
		records:     map[string]models.GradeRecord{"g1": courseFail, "g2": examFail, "g3": passing, "g4": openDraft},
		openOrigins: map[string]bool{"g2": true},
	}
	svc := newTestRetakeService(records, &mockRetakeStore{})

	candidates, err := svc.ListNeedingRetake(context.Background(), models.GradeRecordFilter{})
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "g1", candidates[0].Record.ID)
	assert.Equal(t, models.OutcomeRetakeCourse, candidates[0].Outcome)
	assert.False(t, candidates[0].HasOpenAttempt)
	assert.Equal(t, "g2", candidates[1].Record.ID)
	assert.Equal(t, models.OutcomeRetakeExam, candidates[1].Outcome)
	assert.True(t, candidates[1].HasOpenAttempt)
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/grade-flow-api/internal/models"
	"github.com/noah-isme/grade-flow-api/internal/repository"
	appErrors "github.com/noah-isme/grade-flow-api/pkg/errors"
)

type retakeStore interface {
	GetByID(ctx context.Context, id string) (*models.RetakeAttempt, error)
	ListByStudentSubject(ctx context.Context, studentID, subjectID string) ([]models.RetakeAttempt, error)
	MaxAttemptNumber(ctx context.Context, studentID, subjectID string) (int, error)
	CreateWithEnrollment(ctx context.Context, enrollment *models.Enrollment, attempt *models.RetakeAttempt) error
	Create(ctx context.Context, attempt *models.RetakeAttempt) error
	UpdateResult(ctx context.Context, attempt *models.RetakeAttempt) error
}

// CreateRetakeRequest opens a remediation attempt against a finalized record.
type CreateRetakeRequest struct {
	OriginRecordID string `json:"origin_record_id" validate:"required"`
	TermID         string `json:"term_id" validate:"required"`
	ClassID        string `json:"class_id,omitempty"`
	Reason         string `json:"reason" validate:"required"`
}

// RetakeScoreRequest carries score edits for the current attempt. Which fields
// are accepted depends on the attempt kind.
type RetakeScoreRequest struct {
	Continuous []models.ScoreEntry `json:"continuous,omitempty"`
	Periodic   []models.ScoreEntry `json:"periodic,omitempty"`
	ExamScore  *float64            `json:"exam_score,omitempty"`
}

// RetakeService drives the remediation sub-workflow: outcome classification,
// attempt creation, re-scoring and promotion of passing attempts back onto the
// primary grade record.
type RetakeService struct {
	records   gradeRecordStore
	retakes   retakeStore
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRetakeService constructs the service.
func NewRetakeService(records gradeRecordStore, retakes retakeStore, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *RetakeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetakeService{
		records:   records,
		retakes:   retakes,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// AnalyzeOutcome classifies a record for remediation, in strict priority.
// A failing continuous average dominates everything else: the student repeats
// the whole course even if an exam score somehow slipped in. Otherwise a
// failing exam forces a re-sit regardless of what the weighted final works out
// to; otherwise a passing course-final average passes. Anything still
// undetermined stays pending.
func AnalyzeOutcome(continuousAvg, examScore, courseFinalAvg *float64) models.Outcome {
	if continuousAvg != nil && *continuousAvg < PassThreshold {
		return models.OutcomeRetakeCourse
	}
	if examScore != nil && *examScore < PassThreshold {
		return models.OutcomeRetakeExam
	}
	if courseFinalAvg != nil && *courseFinalAvg >= PassThreshold {
		return models.OutcomePass
	}
	return models.OutcomePending
}

// outcomeResult maps a classified outcome onto an attempt result.
func outcomeResult(outcome models.Outcome) models.RetakeResult {
	switch outcome {
	case models.OutcomePass:
		return models.RetakeResultPass
	case models.OutcomeRetakeCourse:
		return models.RetakeResultFailTBKT
	case models.OutcomeRetakeExam:
		return models.RetakeResultFailExam
	default:
		return models.RetakeResultPending
	}
}

// CreateCourseRetake opens a full course repeat on a fresh enrollment. The
// origin record must be finalized with a failing continuous average, and the
// pair must have no open attempt.
func (s *RetakeService) CreateCourseRetake(ctx context.Context, req CreateRetakeRequest, actor models.Actor) (*models.RetakeAttempt, error) {
	origin, err := s.prepareCreate(ctx, req, actor, models.OutcomeRetakeCourse)
	if err != nil {
		return nil, err
	}
	attemptNumber, err := s.nextAttemptNumber(ctx, origin)
	if err != nil {
		return nil, err
	}

	classID := req.ClassID
	if classID == "" {
		classID = origin.ClassID
	}
	enrollment := &models.Enrollment{
		StudentID:     origin.StudentID,
		ClassID:       classID,
		SubjectID:     origin.SubjectID,
		TermID:        req.TermID,
		AttemptNumber: attemptNumber,
		Status:        models.EnrollmentStatusRetake,
	}
	attempt := &models.RetakeAttempt{
		OriginRecordID: origin.ID,
		StudentID:      origin.StudentID,
		SubjectID:      origin.SubjectID,
		TermID:         req.TermID,
		AttemptNumber:  attemptNumber,
		Kind:           models.RetakeKindCourse,
		Reason:         req.Reason,
		CreatedBy:      actor.ID,
	}
	if err := s.retakes.CreateWithEnrollment(ctx, enrollment, attempt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course retake")
	}
	s.metrics.ObserveRetakeCreated(models.RetakeKindCourse)
	return attempt, nil
}

// CreateExamRetake opens an exam re-sit on the origin's enrollment. Coursework
// carries over from the origin record: only the exam is retaken.
func (s *RetakeService) CreateExamRetake(ctx context.Context, req CreateRetakeRequest, actor models.Actor) (*models.RetakeAttempt, error) {
	origin, err := s.prepareCreate(ctx, req, actor, models.OutcomeRetakeExam)
	if err != nil {
		return nil, err
	}
	attemptNumber, err := s.nextAttemptNumber(ctx, origin)
	if err != nil {
		return nil, err
	}

	attempt := &models.RetakeAttempt{
		OriginRecordID:   origin.ID,
		EnrollmentID:     origin.EnrollmentID,
		StudentID:        origin.StudentID,
		SubjectID:        origin.SubjectID,
		TermID:           req.TermID,
		AttemptNumber:    attemptNumber,
		Kind:             models.RetakeKindExam,
		Reason:           req.Reason,
		ContinuousScores: origin.ContinuousScores.Clone(),
		PeriodicScores:   origin.PeriodicScores.Clone(),
		ContinuousAvg:    origin.ContinuousAvg,
		CreatedBy:        actor.ID,
	}
	if err := s.retakes.Create(ctx, attempt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam retake")
	}
	s.metrics.ObserveRetakeCreated(models.RetakeKindExam)
	return attempt, nil
}

func (s *RetakeService) prepareCreate(ctx context.Context, req CreateRetakeRequest, actor models.Actor, required models.Outcome) (*models.GradeRecord, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may open retake attempts")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid retake payload")
	}
	origin, err := s.loadRecord(ctx, req.OriginRecordID)
	if err != nil {
		return nil, err
	}
	if origin.State != models.StateFinalized {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("retakes require a FINALIZED record, origin is %s", origin.State))
	}
	outcome := AnalyzeOutcome(origin.ContinuousAvg, origin.ExamScore, origin.CourseFinalAvg)
	if outcome != required {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("record outcome is %s, which does not call for a %s retake", outcome, required))
	}
	open, err := s.records.ListOpenRetakeOrigins(ctx, []string{origin.ID})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open attempts")
	}
	if open[origin.ID] {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "an open retake attempt already exists for this record")
	}
	return origin, nil
}

// nextAttemptNumber advances past both the origin record's attempt number and
// every sibling attempt, so numbering stays monotonic across promotions.
func (s *RetakeService) nextAttemptNumber(ctx context.Context, origin *models.GradeRecord) (int, error) {
	maxSibling, err := s.retakes.MaxAttemptNumber(ctx, origin.StudentID, origin.SubjectID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to number the attempt")
	}
	next := origin.AttemptNumber
	if maxSibling > next {
		next = maxSibling
	}
	return next + 1, nil
}

// UpdateRetakeResult re-enters scores on the current attempt, recomputes the
// averages and reclassifies the result. Exam re-sits accept only an exam
// score: their coursework is frozen from the origin record.
func (s *RetakeService) UpdateRetakeResult(ctx context.Context, attemptID string, req RetakeScoreRequest, actor models.Actor) (*models.RetakeAttempt, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may score retake attempts")
	}
	if err := validateScoreEntries(req.Continuous); err != nil {
		return nil, err
	}
	if err := validateScoreEntries(req.Periodic); err != nil {
		return nil, err
	}
	if req.ExamScore != nil && (*req.ExamScore < 0 || *req.ExamScore > 10) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam score must be between 0 and 10")
	}
	attempt, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsCurrent {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only the current attempt may be scored")
	}
	if attempt.Kind == models.RetakeKindExam && (req.Continuous != nil || req.Periodic != nil) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam retakes accept only an exam score")
	}

	for _, entry := range req.Continuous {
		attempt.ContinuousScores.Set(entry.Key, entry.Value)
	}
	for _, entry := range req.Periodic {
		attempt.PeriodicScores.Set(entry.Key, entry.Value)
	}
	if len(attempt.ContinuousScores) > models.MaxScoreKeys || len(attempt.PeriodicScores) > models.MaxScoreKeys {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a score group holds at most %d entries", models.MaxScoreKeys))
	}
	if req.ExamScore != nil {
		attempt.ExamScore = req.ExamScore
	}

	if attempt.Kind == models.RetakeKindCourse {
		attempt.ContinuousAvg = ContinuousAverage(attempt.ContinuousScores, attempt.PeriodicScores)
	}
	if attempt.ContinuousAvg != nil && *attempt.ContinuousAvg < PassThreshold {
		attempt.ExamScore = nil
		attempt.CourseFinalAvg = nil
	} else {
		attempt.CourseFinalAvg = CourseFinalAverage(attempt.ContinuousAvg, attempt.ExamScore)
	}
	attempt.Result = outcomeResult(AnalyzeOutcome(attempt.ContinuousAvg, attempt.ExamScore, attempt.CourseFinalAvg))

	if err := s.retakes.UpdateResult(ctx, attempt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update retake result")
	}
	return attempt, nil
}

// GetAttempt returns a retake attempt by id.
func (s *RetakeService) GetAttempt(ctx context.Context, id string) (*models.RetakeAttempt, error) {
	return s.loadAttempt(ctx, id)
}

// GetHistory returns the remediation trail for a (student, subject) pair:
// the origin record, every attempt in order, and the current one if any.
func (s *RetakeService) GetHistory(ctx context.Context, studentID, subjectID string) (*models.RetakeHistory, error) {
	attempts, err := s.retakes.ListByStudentSubject(ctx, studentID, subjectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list retake attempts")
	}
	history := &models.RetakeHistory{Attempts: attempts, TotalAttempts: len(attempts)}
	if len(attempts) == 0 {
		return history, nil
	}
	for i := range attempts {
		if attempts[i].IsCurrent {
			history.Current = &attempts[i]
			break
		}
	}
	origin, err := s.loadRecord(ctx, attempts[0].OriginRecordID)
	if err != nil {
		return nil, err
	}
	history.Origin = origin
	return history, nil
}

// Promote copies a passing attempt's scores onto the primary record, advances
// its attempt number and retires the attempt, all as one audited mutation.
// The primary record stays the canonical row; the attempt is referenced via
// current_retake_id and loses its is_current flag.
func (s *RetakeService) Promote(ctx context.Context, attemptID string, actor models.Actor) (*models.GradeRecord, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may promote retake attempts")
	}
	attempt, err := s.loadAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if !attempt.IsCurrent {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "only the current attempt may be promoted")
	}
	if attempt.Result != models.RetakeResultPass {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("promotion requires a PASS result, attempt is %s", attempt.Result))
	}
	record, err := s.loadRecord(ctx, attempt.OriginRecordID)
	if err != nil {
		return nil, err
	}

	snapshot := snapshotOf(record, actor.ID, fmt.Sprintf("promote retake attempt %d", attempt.AttemptNumber))
	if attempt.Kind == models.RetakeKindCourse {
		record.ContinuousScores = attempt.ContinuousScores.Clone()
		record.PeriodicScores = attempt.PeriodicScores.Clone()
		record.ContinuousAvg = attempt.ContinuousAvg
		record.EnrollmentID = attempt.EnrollmentID
	}
	record.ExamScore = attempt.ExamScore
	record.CourseFinalAvg = attempt.CourseFinalAvg
	record.AttemptNumber = attempt.AttemptNumber
	record.CurrentRetakeID = &attempt.ID

	event := &models.StateTransitionEvent{
		RecordID:  record.ID,
		Kind:      models.EventKindPromotion,
		FromState: record.State,
		ToState:   record.State,
		Actor:     actor.ID,
		Reason:    &attempt.Reason,
	}
	expected := record.Version
	record.Version++
	record.UpdatedBy = actor.ID
	params := repository.MutationParams{
		Record:          record,
		ExpectedVersion: expected,
		Snapshot:        snapshot,
		Event:           event,
		RetireRetakeID:  &attempt.ID,
	}
	if err := s.records.ApplyMutation(ctx, params); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.ObserveVersionConflict()
			return nil, appErrors.Clone(appErrors.ErrConcurrentModification, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to promote retake attempt")
	}
	s.metrics.ObservePromotion()
	return record, nil
}

// ListNeedingRetake scans finalized records in the filter scope and returns
// those whose outcome calls for remediation, flagging ones that already carry
// an open attempt.
func (s *RetakeService) ListNeedingRetake(ctx context.Context, filter models.GradeRecordFilter) ([]models.RetakeCandidate, error) {
	filter.State = models.StateFinalized
	records, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list finalized records")
	}
	candidates := []models.RetakeCandidate{}
	ids := make([]string, 0, len(records))
	for _, record := range records {
		if AnalyzeOutcome(record.ContinuousAvg, record.ExamScore, record.CourseFinalAvg).NeedsRetake() {
			ids = append(ids, record.ID)
		}
	}
	open, err := s.records.ListOpenRetakeOrigins(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open attempts")
	}
	for _, record := range records {
		outcome := AnalyzeOutcome(record.ContinuousAvg, record.ExamScore, record.CourseFinalAvg)
		if !outcome.NeedsRetake() {
			continue
		}
		candidates = append(candidates, models.RetakeCandidate{
			Record:         record,
			Outcome:        outcome,
			HasOpenAttempt: open[record.ID],
		})
	}
	return candidates, nil
}

func (s *RetakeService) loadAttempt(ctx context.Context, id string) (*models.RetakeAttempt, error) {
	attempt, err := s.retakes.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("retake attempt %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load retake attempt")
	}
	return attempt, nil
}

func (s *RetakeService) loadRecord(ctx context.Context, id string) (*models.GradeRecord, error) {
	record, err := s.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("grade record %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade record")
	}
	return record, nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/grade-flow-api/internal/models"
	"github.com/noah-isme/grade-flow-api/internal/repository"
	appErrors "github.com/noah-isme/grade-flow-api/pkg/errors"
)

type gradeRecordStore interface {
	Create(ctx context.Context, record *models.GradeRecord) error
	GetByID(ctx context.Context, id string) (*models.GradeRecord, error)
	List(ctx context.Context, filter models.GradeRecordFilter) ([]models.GradeRecord, error)
	CountByState(ctx context.Context, filter models.GradeRecordFilter) ([]models.StateCount, error)
	ApplyMutation(ctx context.Context, params repository.MutationParams) error
	ListOpenRetakeOrigins(ctx context.Context, recordIDs []string) (map[string]bool, error)
}

type enrollmentStore interface {
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
}

type historyStore interface {
	ListSnapshots(ctx context.Context, recordID string, limit, offset int) ([]models.VersionSnapshot, int, error)
	GetSnapshot(ctx context.Context, recordID string, version int64) (*models.VersionSnapshot, error)
	ListEvents(ctx context.Context, recordID string) ([]models.StateTransitionEvent, error)
}

type editLockStore interface {
	Acquire(ctx context.Context, recordID, actorID string, ttl time.Duration) (bool, string, error)
	Release(ctx context.Context, recordID, actorID string, force bool) (bool, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const statsCachePrefix = "grade:stats:"

// CreateGradeRecordRequest opens a new grade record in DRAFT.
type CreateGradeRecordRequest struct {
	StudentID    string  `json:"student_id" validate:"required"`
	EnrollmentID string  `json:"enrollment_id" validate:"required"`
	ClassID      string  `json:"class_id" validate:"required"`
	SubjectID    string  `json:"subject_id" validate:"required"`
	TermID       string  `json:"term_id" validate:"required"`
	Note         *string `json:"note,omitempty"`
}

// ScoreUpdateRequest carries partial score edits. Entries upsert into the
// record's score groups by key; nil slices leave a group untouched.
type ScoreUpdateRequest struct {
	Continuous []models.ScoreEntry `json:"continuous,omitempty"`
	Periodic   []models.ScoreEntry `json:"periodic,omitempty"`
	ExamScore  *float64            `json:"exam_score,omitempty"`
	Note       *string             `json:"note,omitempty"`
}

// BulkTransitionRequest moves several records over the same edge.
type BulkTransitionRequest struct {
	IDs     []string          `json:"ids" validate:"required,min=1"`
	ToState models.GradeState `json:"to_state" validate:"required"`
	Reason  *string           `json:"reason,omitempty"`
}

// BulkFailure reports one failed item of a batch operation.
type BulkFailure struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BulkTransitionResult aggregates per-record outcomes. One record's failure
// never rolls back another's committed transition.
type BulkTransitionResult struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

// GradeStatistics is the per-state count projection.
type GradeStatistics struct {
	Counts      map[models.GradeState]int `json:"counts"`
	Total       int                       `json:"total"`
	GeneratedAt time.Time                 `json:"generated_at"`
}

// LifecycleService drives the grade record state machine: role-gated
// transitions, field locks, optimistic versioning and the audit ledger.
type LifecycleService struct {
	records     gradeRecordStore
	enrollments enrollmentStore
	history     historyStore
	locks       editLockStore
	cache       statsCache
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	editLockTTL time.Duration
	statsTTL    time.Duration
}

// NewLifecycleService constructs the service.
func NewLifecycleService(records gradeRecordStore, enrollments enrollmentStore, history historyStore, locks editLockStore, cache statsCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, editLockTTL, statsTTL time.Duration) *LifecycleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if editLockTTL <= 0 {
		editLockTTL = 10 * time.Minute
	}
	if statsTTL <= 0 {
		statsTTL = 5 * time.Minute
	}
	return &LifecycleService{
		records:     records,
		enrollments: enrollments,
		history:     history,
		locks:       locks,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		editLockTTL: editLockTTL,
		statsTTL:    statsTTL,
	}
}

// Create opens a new grade record in DRAFT at version 1. The record must
// reference an existing enrollment for the same student; the attempt number
// seeds from the enrollment.
func (s *LifecycleService) Create(ctx context.Context, req CreateGradeRecordRequest, actor models.Actor) (*models.GradeRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade record payload")
	}
	enrollment, err := s.enrollments.FindByID(ctx, req.EnrollmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("enrollment %s not found", req.EnrollmentID))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.StudentID != req.StudentID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment belongs to another student")
	}
	attemptNumber := enrollment.AttemptNumber
	if attemptNumber < 1 {
		attemptNumber = 1
	}
	record := &models.GradeRecord{
		StudentID:     req.StudentID,
		EnrollmentID:  req.EnrollmentID,
		ClassID:       req.ClassID,
		SubjectID:     req.SubjectID,
		TermID:        req.TermID,
		State:         models.StateDraft,
		Version:       1,
		AttemptNumber: attemptNumber,
		Note:          req.Note,
		CreatedBy:     actor.ID,
		UpdatedBy:     actor.ID,
	}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade record")
	}
	s.invalidateStats(ctx)
	return record, nil
}

// Get returns a grade record by id.
func (s *LifecycleService) Get(ctx context.Context, id string) (*models.GradeRecord, error) {
	return s.load(ctx, id)
}

// List returns grade records matching the filter.
func (s *LifecycleService) List(ctx context.Context, filter models.GradeRecordFilter) ([]models.GradeRecord, error) {
	records, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grade records")
	}
	return records, nil
}

// UpdateScores applies score edits under the permission matrix and field
// locks, recomputes derived averages and persists one audited mutation.
// The derived-field rule runs on every write: a continuous average below the
// pass threshold force-clears the exam score and course-final average.
func (s *LifecycleService) UpdateScores(ctx context.Context, id string, req ScoreUpdateRequest, actor models.Actor) (*models.GradeRecord, error) {
	if err := validateScoreEntries(req.Continuous); err != nil {
		return nil, err
	}
	if err := validateScoreEntries(req.Periodic); err != nil {
		return nil, err
	}
	if req.ExamScore != nil && (*req.ExamScore < 0 || *req.ExamScore > 10) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exam score must be between 0 and 10")
	}
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkFieldEdits(record, req, actor); err != nil {
		return nil, err
	}

	snapshot := snapshotOf(record, actor.ID, "score update")
	for _, entry := range req.Continuous {
		record.ContinuousScores.Set(entry.Key, entry.Value)
	}
	for _, entry := range req.Periodic {
		record.PeriodicScores.Set(entry.Key, entry.Value)
	}
	if len(record.ContinuousScores) > models.MaxScoreKeys || len(record.PeriodicScores) > models.MaxScoreKeys {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a score group holds at most %d entries", models.MaxScoreKeys))
	}
	if req.ExamScore != nil {
		record.ExamScore = req.ExamScore
	}
	if req.Note != nil {
		record.Note = req.Note
	}
	recomputeDerived(record)

	expected := record.Version
	record.Version++
	record.UpdatedBy = actor.ID
	if err := s.apply(ctx, repository.MutationParams{Record: record, ExpectedVersion: expected, Snapshot: snapshot}); err != nil {
		return nil, err
	}
	return record, nil
}

// SubmitForReview moves a DRAFT record with at least one entered score to
// PENDING_REVIEW, locking both score groups and stamping submission metadata.
func (s *LifecycleService) SubmitForReview(ctx context.Context, id string, actor models.Actor, reason *string) (*models.GradeRecord, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.State != models.StateDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("submit requires DRAFT, record is %s", record.State))
	}
	if !record.HasAnyScore() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot submit a record without any entered score")
	}
	return s.transition(ctx, record, models.StatePendingReview, actor, reason)
}

// Transition performs a generic state move over an existing, role-permitted
// edge. Reopening a FINALIZED record goes through UnlockFinalized instead.
func (s *LifecycleService) Transition(ctx context.Context, id string, toState models.GradeState, actor models.Actor, reason *string) (*models.GradeRecord, error) {
	if !toState.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown state %q", toState))
	}
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.State == models.StateFinalized {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "finalized records are reopened via unlock")
	}
	return s.transition(ctx, record, toState, actor, reason)
}

func (s *LifecycleService) transition(ctx context.Context, record *models.GradeRecord, toState models.GradeState, actor models.Actor, reason *string) (*models.GradeRecord, error) {
	fromState := record.State
	if !transitionExists(fromState, toState) {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("no transition %s -> %s", fromState, toState))
	}
	if !CanTransition(fromState, toState, actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("role %s may not drive %s -> %s", actor.Role, fromState, toState))
	}

	now := time.Now().UTC()
	snapshot := snapshotOf(record, actor.ID, fmt.Sprintf("transition %s -> %s", fromState, toState))
	switch {
	case toState == models.StatePendingReview:
		if !record.HasAnyScore() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "cannot submit a record without any entered score")
		}
		record.ContinuousLocked = true
		record.PeriodicLocked = true
		record.SubmittedBy = &actor.ID
		record.SubmittedAt = &now
	case fromState == models.StatePendingReview && toState == models.StateDraft:
		if reason == nil || *reason == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "sending back to draft requires a reason")
		}
		record.ContinuousLocked = false
		record.PeriodicLocked = false
	case toState == models.StateFinalized:
		record.FinalLocked = true
	case fromState == models.StateFinalEntered && toState == models.StateApprovedContinuous:
		record.FinalLocked = false
	}
	record.State = toState

	event := &models.StateTransitionEvent{
		RecordID:  record.ID,
		Kind:      models.EventKindTransition,
		FromState: fromState,
		ToState:   toState,
		Actor:     actor.ID,
		Reason:    reason,
	}
	expected := record.Version
	record.Version++
	record.UpdatedBy = actor.ID
	if err := s.apply(ctx, repository.MutationParams{Record: record, ExpectedVersion: expected, Snapshot: snapshot, Event: event}); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(models.EventKindTransition, fromState, toState)
	return record, nil
}

// BulkTransition applies Transition per id independently and aggregates the
// per-record outcomes. There is no cross-record atomicity.
func (s *LifecycleService) BulkTransition(ctx context.Context, req BulkTransitionRequest, actor models.Actor) (*BulkTransitionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk transition payload")
	}
	result := &BulkTransitionResult{Succeeded: []string{}, Failed: []BulkFailure{}}
	for _, id := range req.IDs {
		if _, err := s.Transition(ctx, id, req.ToState, actor, req.Reason); err != nil {
			appErr := appErrors.FromError(err)
			result.Failed = append(result.Failed, BulkFailure{ID: id, Code: appErr.Code, Message: appErr.Message})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result, nil
}

// UnlockFinalized reopens a FINALIZED record to APPROVED_CONTINUOUS. Modeled
// as its own operation with its own audit event kind rather than a branch of
// the generic transition.
func (s *LifecycleService) UnlockFinalized(ctx context.Context, id string, actor models.Actor, reason *string) (*models.GradeRecord, error) {
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins may unlock a finalized record")
	}
	if reason == nil || *reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unlocking requires a reason")
	}
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if record.State != models.StateFinalized {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("unlock requires FINALIZED, record is %s", record.State))
	}

	snapshot := snapshotOf(record, actor.ID, "unlock finalized record")
	record.State = models.StateApprovedContinuous
	record.FinalLocked = false
	event := &models.StateTransitionEvent{
		RecordID:  record.ID,
		Kind:      models.EventKindUnlock,
		FromState: models.StateFinalized,
		ToState:   models.StateApprovedContinuous,
		Actor:     actor.ID,
		Reason:    reason,
	}
	expected := record.Version
	record.Version++
	record.UpdatedBy = actor.ID
	if err := s.apply(ctx, repository.MutationParams{Record: record, ExpectedVersion: expected, Snapshot: snapshot, Event: event}); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(models.EventKindUnlock, models.StateFinalized, models.StateApprovedContinuous)
	return record, nil
}

// Rollback restores scorable fields from a prior snapshot. The version always
// advances; the pre-rollback state is snapshotted first so the rollback itself
// stays auditable and reversible.
func (s *LifecycleService) Rollback(ctx context.Context, id string, toVersion int64, actor models.Actor, reason *string) (*models.GradeRecord, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	target, err := s.history.GetSnapshot(ctx, id, toVersion)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no snapshot of record %s at version %d", id, toVersion))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load snapshot")
	}

	snapshot := snapshotOf(record, actor.ID, fmt.Sprintf("pre-rollback to version %d", toVersion))
	record.ContinuousScores = target.ContinuousScores.Clone()
	record.PeriodicScores = target.PeriodicScores.Clone()
	record.ExamScore = target.ExamScore
	record.Note = target.Note
	recomputeDerived(record)

	event := &models.StateTransitionEvent{
		RecordID:  record.ID,
		Kind:      models.EventKindRollback,
		FromState: record.State,
		ToState:   record.State,
		Actor:     actor.ID,
		Reason:    reason,
	}
	expected := record.Version
	record.Version++
	record.UpdatedBy = actor.ID
	if err := s.apply(ctx, repository.MutationParams{Record: record, ExpectedVersion: expected, Snapshot: snapshot, Event: event}); err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(models.EventKindRollback, record.State, record.State)
	return record, nil
}

// AcquireEditLock takes the advisory editing lock for the actor.
func (s *LifecycleService) AcquireEditLock(ctx context.Context, id string, actor models.Actor) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	acquired, holder, err := s.locks.Acquire(ctx, id, actor.ID, s.editLockTTL)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire edit lock")
	}
	if !acquired {
		return appErrors.Clone(appErrors.ErrConcurrentEdit, fmt.Sprintf("record is being edited by %s", holder))
	}
	return nil
}

// ReleaseEditLock drops the advisory lock. Admins may force-release a lock
// held by someone else.
func (s *LifecycleService) ReleaseEditLock(ctx context.Context, id string, actor models.Actor) error {
	released, err := s.locks.Release(ctx, id, actor.ID, actor.Role == models.RoleAdmin)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release edit lock")
	}
	if !released {
		return appErrors.Clone(appErrors.ErrForbidden, "edit lock is held by another user")
	}
	return nil
}

// GetVersionHistory returns the snapshot ledger of a record, newest first.
func (s *LifecycleService) GetVersionHistory(ctx context.Context, id string, limit, offset int) ([]models.VersionSnapshot, *models.Pagination, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, nil, err
	}
	// Normalize once so the query and the page math agree on the page size.
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	snapshots, total, err := s.history.ListSnapshots(ctx, id, limit, offset)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list version history")
	}
	pagination := &models.Pagination{Page: offset/limit + 1, PageSize: limit, TotalCount: total}
	return snapshots, pagination, nil
}

// GetTransitionLog returns the movement trail of a record, oldest first.
func (s *LifecycleService) GetTransitionLog(ctx context.Context, id string) ([]models.StateTransitionEvent, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	events, err := s.history.ListEvents(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list transition events")
	}
	return events, nil
}

// GetStatisticsByStatus returns per-state counts for the filter scope,
// cached for the configured TTL and invalidated on every mutation.
func (s *LifecycleService) GetStatisticsByStatus(ctx context.Context, filter models.GradeRecordFilter) (*GradeStatistics, error) {
	key := statsCacheKey(filter)
	if s.cache != nil {
		var cached GradeStatistics
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}
	counts, err := s.records.CountByState(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate statistics")
	}
	stats := &GradeStatistics{
		Counts: map[models.GradeState]int{
			models.StateDraft:              0,
			models.StatePendingReview:      0,
			models.StateApprovedContinuous: 0,
			models.StateFinalEntered:       0,
			models.StateFinalized:          0,
		},
		GeneratedAt: time.Now().UTC(),
	}
	for _, count := range counts {
		stats.Counts[count.State] = count.Count
		stats.Total += count.Count
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.statsTTL); err != nil {
			s.logger.Warn("statistics cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

// CheckEditableField exposes the matrix lookup for boundary pre-filtering.
func (s *LifecycleService) CheckEditableField(state models.GradeState, role models.UserRole, field models.ScoreField) bool {
	return CanEditField(state, role, field)
}

// ListAvailableTransitions exposes the matrix lookup for boundary pre-filtering.
func (s *LifecycleService) ListAvailableTransitions(state models.GradeState, role models.UserRole) []models.GradeState {
	return AvailableTransitions(state, role)
}

func (s *LifecycleService) load(ctx context.Context, id string) (*models.GradeRecord, error) {
	record, err := s.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("grade record %s not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade record")
	}
	return record, nil
}

func (s *LifecycleService) apply(ctx context.Context, params repository.MutationParams) error {
	if err := s.records.ApplyMutation(ctx, params); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			s.metrics.ObserveVersionConflict()
			return appErrors.Clone(appErrors.ErrConcurrentModification, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist grade record mutation")
	}
	s.invalidateStats(ctx)
	return nil
}

func (s *LifecycleService) checkFieldEdits(record *models.GradeRecord, req ScoreUpdateRequest, actor models.Actor) error {
	type fieldEdit struct {
		field   models.ScoreField
		touched bool
		locked  bool
	}
	edits := []fieldEdit{
		{models.FieldContinuous, req.Continuous != nil, record.ContinuousLocked},
		{models.FieldPeriodic, req.Periodic != nil, record.PeriodicLocked},
		{models.FieldExam, req.ExamScore != nil, record.FinalLocked},
		{models.FieldNote, req.Note != nil, false},
	}
	for _, edit := range edits {
		if !edit.touched {
			continue
		}
		if !CanEditField(record.State, actor.Role, edit.field) {
			return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("role %s may not edit %s in state %s", actor.Role, edit.field, record.State))
		}
		if edit.locked && actor.Role != models.RoleAdmin {
			return appErrors.Clone(appErrors.ErrForbidden, fmt.Sprintf("field %s is locked", edit.field))
		}
	}
	return nil
}

func (s *LifecycleService) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, statsCachePrefix+"*"); err != nil {
		s.logger.Warn("statistics cache invalidation failed", zap.Error(err))
	}
}

// recomputeDerived applies the derived-field rule: averages follow the score
// groups, and a continuous average below the pass threshold clears the exam
// score and course-final average even when previously entered.
func recomputeDerived(record *models.GradeRecord) {
	record.ContinuousAvg = ContinuousAverage(record.ContinuousScores, record.PeriodicScores)
	if record.ContinuousAvg != nil && *record.ContinuousAvg < PassThreshold {
		record.ExamScore = nil
		record.CourseFinalAvg = nil
		return
	}
	record.CourseFinalAvg = CourseFinalAverage(record.ContinuousAvg, record.ExamScore)
}

// snapshotOf captures the record's scorable state at its current version.
// Called before any field is changed so the ledger entry matches what the
// caller read.
func snapshotOf(record *models.GradeRecord, actorID, description string) *models.VersionSnapshot {
	return &models.VersionSnapshot{
		RecordID:         record.ID,
		Version:          record.Version,
		State:            record.State,
		ContinuousScores: record.ContinuousScores.Clone(),
		PeriodicScores:   record.PeriodicScores.Clone(),
		ContinuousAvg:    record.ContinuousAvg,
		ExamScore:        record.ExamScore,
		CourseFinalAvg:   record.CourseFinalAvg,
		AttemptNumber:    record.AttemptNumber,
		Note:             record.Note,
		Actor:            actorID,
		Description:      description,
	}
}

func validateScoreEntries(entries []models.ScoreEntry) error {
	if len(entries) > models.MaxScoreKeys {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("a score group holds at most %d entries", models.MaxScoreKeys))
	}
	for _, entry := range entries {
		if entry.Key == "" {
			return appErrors.Clone(appErrors.ErrValidation, "score entry key is required")
		}
		if entry.Value < 0 || entry.Value > 10 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("score %s must be between 0 and 10", entry.Key))
		}
	}
	return nil
}

func statsCacheKey(filter models.GradeRecordFilter) string {
	return fmt.Sprintf("%s%s:%s:%s", statsCachePrefix, filter.ClassID, filter.SubjectID, filter.TermID)
}

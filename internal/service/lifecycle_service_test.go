package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/grade-flow-api/internal/models"
	"github.com/noah-isme/grade-flow-api/internal/repository"
	appErrors "github.com/noah-isme/grade-flow-api/pkg/errors"
)

type mockGradeRecordStore struct {
	records     map[string]models.GradeRecord
	openOrigins map[string]bool
	mutations   []repository.MutationParams
	conflict    bool
}

func (m *mockGradeRecordStore) Create(ctx context.Context, record *models.GradeRecord) error {
	if m.records == nil {
		m.records = make(map[string]models.GradeRecord)
	}
	if record.ID == "" {
		record.ID = "new-record"
	}
	m.records[record.ID] = *record
	return nil
}

func (m *mockGradeRecordStore) GetByID(ctx context.Context, id string) (*models.GradeRecord, error) {
	if r, ok := m.records[id]; ok {
		copied := r
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockGradeRecordStore) List(ctx context.Context, filter models.GradeRecordFilter) ([]models.GradeRecord, error) {
	var list []models.GradeRecord
	for _, r := range m.records {
		if filter.State != "" && r.State != filter.State {
			continue
		}
		if filter.ClassID != "" && r.ClassID != filter.ClassID {
			continue
		}
		list = append(list, r)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

func (m *mockGradeRecordStore) CountByState(ctx context.Context, filter models.GradeRecordFilter) ([]models.StateCount, error) {
	counts := make(map[models.GradeState]int)
	for _, r := range m.records {
		counts[r.State]++
	}
	var out []models.StateCount
	for state, count := range counts {
		out = append(out, models.StateCount{State: state, Count: count})
	}
	return out, nil
}

func (m *mockGradeRecordStore) ApplyMutation(ctx context.Context, params repository.MutationParams) error {
	if m.conflict {
		return repository.ErrVersionConflict
	}
	m.mutations = append(m.mutations, params)
	m.records[params.Record.ID] = *params.Record
	return nil
}

func (m *mockGradeRecordStore) ListOpenRetakeOrigins(ctx context.Context, recordIDs []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, id := range recordIDs {
		if m.openOrigins[id] {
			out[id] = true
		}
	}
	return out, nil
}

type mockEnrollmentStore struct {
	enrollments map[string]models.Enrollment
}

func (m *mockEnrollmentStore) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		copied := e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type mockHistoryStore struct {
	snapshots  map[int64]models.VersionSnapshot
	events     []models.StateTransitionEvent
	listLimit  int
	listOffset int
}

func (m *mockHistoryStore) ListSnapshots(ctx context.Context, recordID string, limit, offset int) ([]models.VersionSnapshot, int, error) {
	m.listLimit = limit
	m.listOffset = offset
	var list []models.VersionSnapshot
	for _, s := range m.snapshots {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Version > list[j].Version })
	return list, len(list), nil
}

func (m *mockHistoryStore) GetSnapshot(ctx context.Context, recordID string, version int64) (*models.VersionSnapshot, error) {
	if s, ok := m.snapshots[version]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockHistoryStore) ListEvents(ctx context.Context, recordID string) ([]models.StateTransitionEvent, error) {
	return m.events, nil
}

type mockEditLockStore struct {
	holders map[string]string
}

func (m *mockEditLockStore) Acquire(ctx context.Context, recordID, actorID string, ttl time.Duration) (bool, string, error) {
	if m.holders == nil {
		m.holders = make(map[string]string)
	}
	if holder, ok := m.holders[recordID]; ok && holder != actorID {
		return false, holder, nil
	}
	m.holders[recordID] = actorID
	return true, actorID, nil
}

func (m *mockEditLockStore) Release(ctx context.Context, recordID, actorID string, force bool) (bool, error) {
	holder, ok := m.holders[recordID]
	if !ok {
		return true, nil
	}
	if holder != actorID && !force {
		return false, nil
	}
	delete(m.holders, recordID)
	return true, nil
}

type mockStatsCache struct {
	data map[string][]byte
}

func (m *mockStatsCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockStatsCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *mockStatsCache) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
		}
	}
	return nil
}

func fptr(v float64) *float64 { return &v }
func sptr(s string) *string   { return &s }

var (
	teacher = models.Actor{ID: "t1", Role: models.RoleTeacher}
	admin   = models.Actor{ID: "a1", Role: models.RoleAdmin}
)

func newTestLifecycleService(records *mockGradeRecordStore, history *mockHistoryStore, locks *mockEditLockStore, cache *mockStatsCache) *LifecycleService {
	enrollments := &mockEnrollmentStore{enrollments: map[string]models.Enrollment{
		"e1": {ID: "e1", StudentID: "s1", ClassID: "c1", SubjectID: "sub1", TermID: "term1", AttemptNumber: 1, Status: models.EnrollmentStatusActive},
	}}
	return NewLifecycleService(records, enrollments, history, locks, cache, nil, validator.New(), zap.NewNop(), 0, 0)
}

func draftRecord(id string) models.GradeRecord {
	return models.GradeRecord{
		ID:            id,
		StudentID:     "s1",
		EnrollmentID:  "e1",
		ClassID:       "c1",
		SubjectID:     "sub1",
		TermID:        "term1",
		State:         models.StateDraft,
		Version:       1,
		AttemptNumber: 1,
		CreatedBy:     "t1",
		UpdatedBy:     "t1",
	}
}

func TestLifecycleCreateStartsInDraft(t *testing.T) {
	records := &mockGradeRecordStore{}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	record, err := svc.Create(context.Background(), CreateGradeRecordRequest{
		StudentID: "s1", EnrollmentID: "e1", ClassID: "c1", SubjectID: "sub1", TermID: "term1",
	}, teacher)
	require.NoError(t, err)
	assert.Equal(t, models.StateDraft, record.State)
	assert.Equal(t, int64(1), record.Version)
	assert.Equal(t, 1, record.AttemptNumber)
}

func TestLifecycleCreateChecksEnrollment(t *testing.T) {
	svc := newTestLifecycleService(&mockGradeRecordStore{}, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateGradeRecordRequest{
		StudentID: "s1", EnrollmentID: "missing", ClassID: "c1", SubjectID: "sub1", TermID: "term1",
	}, teacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(ctx, CreateGradeRecordRequest{
		StudentID: "s2", EnrollmentID: "e1", ClassID: "c1", SubjectID: "sub1", TermID: "term1",
	}, teacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestLifecycleUpdateScoresRecomputesAverages(t *testing.T) {
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": draftRecord("g1")}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	record, err := svc.UpdateScores(context.Background(), "g1", ScoreUpdateRequest{
		Continuous: []models.ScoreEntry{{Key: "q1", Value: 8}},
		Periodic:   []models.ScoreEntry{{Key: "m1", Value: 7}},
	}, teacher)
	require.NoError(t, err)
	require.NotNil(t, record.ContinuousAvg)
	assert.InDelta(t, 7.3, *record.ContinuousAvg, 0.001)
	assert.Equal(t, int64(2), record.Version)

	require.Len(t, records.mutations, 1)
	assert.Equal(t, int64(1), records.mutations[0].ExpectedVersion)
	require.NotNil(t, records.mutations[0].Snapshot)
	assert.Equal(t, int64(1), records.mutations[0].Snapshot.Version)
	assert.Empty(t, records.mutations[0].Snapshot.ContinuousScores)
}

func TestLifecycleUpdateScoresFailingContinuousClearsExam(t *testing.T) {
	record := draftRecord("g1")
	record.State = models.StatePendingReview
	record.ContinuousScores = models.ScoreSet{{Key: "q1", Value: 8}}
	record.PeriodicScores = models.ScoreSet{{Key: "m1", Value: 8}}
	record.ContinuousAvg = fptr(8)
	record.ExamScore = fptr(7)
	record.CourseFinalAvg = fptr(7.3)
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": record}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	updated, err := svc.UpdateScores(context.Background(), "g1", ScoreUpdateRequest{
		Continuous: []models.ScoreEntry{{Key: "q1", Value: 2}},
		Periodic:   []models.ScoreEntry{{Key: "m1", Value: 3}},
	}, admin)
	require.NoError(t, err)
	require.NotNil(t, updated.ContinuousAvg)
	assert.InDelta(t, 2.7, *updated.ContinuousAvg, 0.001)
	assert.Nil(t, updated.ExamScore)
	assert.Nil(t, updated.CourseFinalAvg)
}

func TestLifecycleUpdateScoresRespectsMatrix(t *testing.T) {
	pending := draftRecord("g1")
	pending.State = models.StatePendingReview
	approved := draftRecord("g2")
	approved.State = models.StateApprovedContinuous
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": pending, "g2": approved}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	_, err := svc.UpdateScores(context.Background(), "g1", ScoreUpdateRequest{
		Continuous: []models.ScoreEntry{{Key: "q1", Value: 5}},
	}, teacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.UpdateScores(context.Background(), "g2", ScoreUpdateRequest{
		Continuous: []models.ScoreEntry{{Key: "q1", Value: 5}},
	}, admin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.UpdateScores(context.Background(), "g1", ScoreUpdateRequest{ExamScore: fptr(7)}, teacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestLifecycleUpdateScoresValidatesRange(t *testing.T) {
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": draftRecord("g1")}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	_, err := svc.UpdateScores(context.Background(), "g1", ScoreUpdateRequest{
		Continuous: []models.ScoreEntry{{Key: "q1", Value: 10.5}},
	}, teacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, records.mutations)
}

func TestLifecycleSubmitRequiresScoreAndDraft(t *testing.T) {
	empty := draftRecord("g1")
	approved := draftRecord("g2")
	approved.State = models.StateApprovedContinuous
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": empty, "g2": approved}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	_, err := svc.SubmitForReview(context.Background(), "g1", teacher, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.SubmitForReview(context.Background(), "g2", teacher, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestLifecycleSubmitLocksScores(t *testing.T) {
	record := draftRecord("g1")
	record.ContinuousScores = models.ScoreSet{{Key: "q1", Value: 6}}
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": record}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	updated, err := svc.SubmitForReview(context.Background(), "g1", teacher, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatePendingReview, updated.State)
	assert.True(t, updated.ContinuousLocked)
	assert.True(t, updated.PeriodicLocked)
	require.NotNil(t, updated.SubmittedBy)
	assert.Equal(t, "t1", *updated.SubmittedBy)
	assert.NotNil(t, updated.SubmittedAt)

	require.Len(t, records.mutations, 1)
	event := records.mutations[0].Event
	require.NotNil(t, event)
	assert.Equal(t, models.EventKindTransition, event.Kind)
	assert.Equal(t, models.StateDraft, event.FromState)
	assert.Equal(t, models.StatePendingReview, event.ToState)
}

func TestLifecycleTransitionUnknownEdge(t *testing.T) {
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": draftRecord("g1")}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	_, err := svc.Transition(context.Background(), "g1", models.StateFinalized, admin, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestLifecycleTransitionRoleForbidden(t *testing.T) {
	record := draftRecord("g1")
	record.State = models.StatePendingReview
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": record}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	_, err := svc.Transition(context.Background(), "g1", models.StateApprovedContinuous, teacher, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestLifecycleSendBackRequiresReasonAndUnlocks(t *testing.T) {
	record := draftRecord("g1")
	record.State = models.StatePendingReview
	record.ContinuousScores = models.ScoreSet{{Key: "q1", Value: 6}}
	record.ContinuousLocked = true
	record.PeriodicLocked = true
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": record}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	_, err := svc.Transition(context.Background(), "g1", models.StateDraft, admin, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	updated, err := svc.Transition(context.Background(), "g1", models.StateDraft, admin, sptr("missing periodic scores"))
	require.NoError(t, err)
	assert.Equal(t, models.StateDraft, updated.State)
	assert.False(t, updated.ContinuousLocked)
	assert.False(t, updated.PeriodicLocked)
}

func TestLifecycleFullApprovalFlow(t *testing.T) {
	record := draftRecord("g1")
	record.ContinuousScores = models.ScoreSet{{Key: "q1", Value: 8}}
	record.PeriodicScores = models.ScoreSet{{Key: "m1", Value: 7}}
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": record}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})
	ctx := context.Background()

	submitted, err := svc.SubmitForReview(ctx, "g1", teacher, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), submitted.Version)

	approved, err := svc.Transition(ctx, "g1", models.StateApprovedContinuous, admin, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), approved.Version)

	scored, err := svc.UpdateScores(ctx, "g1", ScoreUpdateRequest{ExamScore: fptr(7)}, admin)
	require.NoError(t, err)
	assert.Equal(t, int64(4), scored.Version)
	require.NotNil(t, scored.CourseFinalAvg)
	assert.InDelta(t, 7.1, *scored.CourseFinalAvg, 0.001)

	entered, err := svc.Transition(ctx, "g1", models.StateFinalEntered, admin, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), entered.Version)

	finalized, err := svc.Transition(ctx, "g1", models.StateFinalized, admin, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StateFinalized, finalized.State)
	assert.Equal(t, int64(6), finalized.Version)
	assert.True(t, finalized.FinalLocked)
	assert.Len(t, records.mutations, 5)
}

func TestLifecycleReopenClearsFinalLock(t *testing.T) {
	record := draftRecord("g1")
	record.State = models.StateFinalEntered
	record.FinalLocked = true
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": record}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	updated, err := svc.Transition(context.Background(), "g1", models.StateApprovedContinuous, admin, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StateApprovedContinuous, updated.State)
	assert.False(t, updated.FinalLocked)
}

func TestLifecycleGenericTransitionRefusesFinalized(t *testing.T) {
	record := draftRecord("g1")
	record.State = models.StateFinalized
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": record}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	_, err := svc.Transition(context.Background(), "g1", models.StateApprovedContinuous, admin, sptr("typo"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
}

func TestLifecycleUnlockFinalized(t *testing.T) {
	record := draftRecord("g1")
	record.State = models.StateFinalized
	record.FinalLocked = true
	record.Version = 6
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": record}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})
	ctx := context.Background()

	_, err := svc.UnlockFinalized(ctx, "g1", teacher, sptr("exam regrade"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.UnlockFinalized(ctx, "g1", admin, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	updated, err := svc.UnlockFinalized(ctx, "g1", admin, sptr("exam regrade"))
	require.NoError(t, err)
	assert.Equal(t, models.StateApprovedContinuous, updated.State)
	assert.False(t, updated.FinalLocked)
	assert.Equal(t, int64(7), updated.Version)

	require.Len(t, records.mutations, 1)
	require.NotNil(t, records.mutations[0].Event)
	assert.Equal(t, models.EventKindUnlock, records.mutations[0].Event.Kind)
}

func TestLifecycleBulkTransitionPartialFailure(t *testing.T) {
	ready := draftRecord("g1")
	ready.ContinuousScores = models.ScoreSet{{Key: "q1", Value: 6}}
	stuck := draftRecord("g2")
	stuck.State = models.StatePendingReview
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": ready, "g2": stuck}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	result, err := svc.BulkTransition(context.Background(), BulkTransitionRequest{
		IDs:     []string{"g1", "g2"},
		ToState: models.StatePendingReview,
	}, teacher)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, result.Succeeded)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, "g2", result.Failed[0].ID)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, result.Failed[0].Code)

	stored, err := svc.Get(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, models.StatePendingReview, stored.State)
}

func TestLifecycleRollbackRestoresSnapshot(t *testing.T) {
	record := draftRecord("g1")
	record.Version = 3
	record.ContinuousScores = models.ScoreSet{{Key: "q1", Value: 3}}
	record.PeriodicScores = models.ScoreSet{{Key: "m1", Value: 3}}
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": record}}
	history := &mockHistoryStore{snapshots: map[int64]models.VersionSnapshot{
		1: {
			RecordID:         "g1",
			Version:          1,
			State:            models.StateDraft,
			ContinuousScores: models.ScoreSet{{Key: "q1", Value: 8}},
			PeriodicScores:   models.ScoreSet{{Key: "m1", Value: 9}},
		},
	}}
	svc := newTestLifecycleService(records, history, &mockEditLockStore{}, &mockStatsCache{})

	restored, err := svc.Rollback(context.Background(), "g1", 1, admin, sptr("entry mistake"))
	require.NoError(t, err)
	assert.Equal(t, int64(4), restored.Version)
	assert.Equal(t, 8.0, restored.ContinuousScores[0].Value)
	require.NotNil(t, restored.ContinuousAvg)
	assert.InDelta(t, 8.7, *restored.ContinuousAvg, 0.001)

	require.Len(t, records.mutations, 1)
	assert.Equal(t, int64(3), records.mutations[0].Snapshot.Version)
	assert.Equal(t, 3.0, records.mutations[0].Snapshot.ContinuousScores[0].Value)
	require.NotNil(t, records.mutations[0].Event)
	assert.Equal(t, models.EventKindRollback, records.mutations[0].Event.Kind)
}

func TestLifecycleRollbackUnknownVersion(t *testing.T) {
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": draftRecord("g1")}}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	_, err := svc.Rollback(context.Background(), "g1", 9, admin, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestLifecycleVersionHistoryClampsPageSize(t *testing.T) {
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": draftRecord("g1")}}
	history := &mockHistoryStore{snapshots: map[int64]models.VersionSnapshot{
		1: {RecordID: "g1", Version: 1, State: models.StateDraft},
	}}
	svc := newTestLifecycleService(records, history, &mockEditLockStore{}, &mockStatsCache{})

	// An oversized limit falls back to the default page size, and the page
	// number is computed from the size actually queried.
	_, pagination, err := svc.GetVersionHistory(context.Background(), "g1", 1000, 40)
	require.NoError(t, err)
	assert.Equal(t, 20, history.listLimit)
	assert.Equal(t, 40, history.listOffset)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 3, pagination.Page)

	_, pagination, err = svc.GetVersionHistory(context.Background(), "g1", 0, -5)
	require.NoError(t, err)
	assert.Equal(t, 20, history.listLimit)
	assert.Equal(t, 0, history.listOffset)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.Page)
}

func TestLifecycleVersionConflictSurfaces(t *testing.T) {
	record := draftRecord("g1")
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": record}, conflict: true}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, &mockStatsCache{})

	_, err := svc.UpdateScores(context.Background(), "g1", ScoreUpdateRequest{
		Continuous: []models.ScoreEntry{{Key: "q1", Value: 6}},
	}, teacher)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConcurrentModification.Code, appErrors.FromError(err).Code)
}

func TestLifecycleEditLockRoundTrip(t *testing.T) {
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": draftRecord("g1")}}
	locks := &mockEditLockStore{}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, locks, &mockStatsCache{})
	ctx := context.Background()
	other := models.Actor{ID: "t2", Role: models.RoleTeacher}

	require.NoError(t, svc.AcquireEditLock(ctx, "g1", teacher))

	err := svc.AcquireEditLock(ctx, "g1", other)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConcurrentEdit.Code, appErrors.FromError(err).Code)
	assert.Equal(t, appErrors.ErrConcurrentEdit.Status, appErrors.FromError(err).Status)

	err = svc.ReleaseEditLock(ctx, "g1", other)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.ReleaseEditLock(ctx, "g1", admin))
	require.NoError(t, svc.AcquireEditLock(ctx, "g1", other))
}

func TestLifecycleStatisticsCachedAndInvalidated(t *testing.T) {
	record := draftRecord("g1")
	record.ContinuousScores = models.ScoreSet{{Key: "q1", Value: 6}}
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": record}}
	cache := &mockStatsCache{}
	svc := newTestLifecycleService(records, &mockHistoryStore{}, &mockEditLockStore{}, cache)
	ctx := context.Background()
	filter := models.GradeRecordFilter{ClassID: "c1"}

	stats, err := svc.GetStatisticsByStatus(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Counts[models.StateDraft])

	// Served from cache: the underlying change is not visible yet.
	records.records["g2"] = draftRecord("g2")
	cached, err := svc.GetStatisticsByStatus(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.Total)

	_, err = svc.SubmitForReview(ctx, "g1", teacher, nil)
	require.NoError(t, err)

	fresh, err := svc.GetStatisticsByStatus(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Total)
	assert.Equal(t, 1, fresh.Counts[models.StatePendingReview])
}

func TestLifecycleVersionHistoryPaging(t *testing.T) {
	records := &mockGradeRecordStore{records: map[string]models.GradeRecord{"g1": draftRecord("g1")}}
	history := &mockHistoryStore{snapshots: map[int64]models.VersionSnapshot{
		1: {RecordID: "g1", Version: 1},
		2: {RecordID: "g1", Version: 2},
	}}
	svc := newTestLifecycleService(records, history, &mockEditLockStore{}, &mockStatsCache{})

	snapshots, pagination, err := svc.GetVersionHistory(context.Background(), "g1", 20, 0)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, int64(2), snapshots[0].Version)
	assert.Equal(t, 2, pagination.TotalCount)
	assert.Equal(t, 1, pagination.Page)
}

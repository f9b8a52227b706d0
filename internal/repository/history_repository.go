package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/grade-flow-api/internal/models"
)

const snapshotColumns = `id, record_id, version, state, continuous_scores, periodic_scores,
	continuous_avg, exam_score, course_final_avg, attempt_number, note, actor, description, created_at`

// HistoryRepository reads the append-only snapshot and transition event ledger.
// Writes ride the grade record mutation transaction via the package-level
// insert helpers below.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository constructs the repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// ListSnapshots returns snapshots for a record, newest version first, plus the
// total count for pagination.
func (r *HistoryRepository) ListSnapshots(ctx context.Context, recordID string, limit, offset int) ([]models.VersionSnapshot, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM grade_snapshots WHERE record_id = $1", recordID); err != nil {
		return nil, 0, fmt.Errorf("count snapshots: %w", err)
	}
	query := fmt.Sprintf(`SELECT %s FROM grade_snapshots WHERE record_id = $1
	ORDER BY version DESC LIMIT $2 OFFSET $3`, snapshotColumns)
	var snapshots []models.VersionSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, recordID, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("list snapshots: %w", err)
	}
	return snapshots, total, nil
}

// GetSnapshot fetches the snapshot of a record at an exact version.
func (r *HistoryRepository) GetSnapshot(ctx context.Context, recordID string, version int64) (*models.VersionSnapshot, error) {
	query := fmt.Sprintf("SELECT %s FROM grade_snapshots WHERE record_id = $1 AND version = $2", snapshotColumns)
	var snapshot models.VersionSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, recordID, version); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// ListEvents returns the transition events of a record, oldest first.
func (r *HistoryRepository) ListEvents(ctx context.Context, recordID string) ([]models.StateTransitionEvent, error) {
	const query = `SELECT id, record_id, kind, from_state, to_state, actor, reason, created_at
	FROM grade_transition_events WHERE record_id = $1 ORDER BY created_at ASC`
	var events []models.StateTransitionEvent
	if err := r.db.SelectContext(ctx, &events, query, recordID); err != nil {
		return nil, fmt.Errorf("list transition events: %w", err)
	}
	return events, nil
}

func insertSnapshotTx(ctx context.Context, tx *sqlx.Tx, snapshot *models.VersionSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO grade_snapshots
	(id, record_id, version, state, continuous_scores, periodic_scores,
	 continuous_avg, exam_score, course_final_avg, attempt_number, note, actor, description, created_at)
	VALUES (:id, :record_id, :version, :state, :continuous_scores, :periodic_scores,
	 :continuous_avg, :exam_score, :course_final_avg, :attempt_number, :note, :actor, :description, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, snapshot); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func insertEventTx(ctx context.Context, tx *sqlx.Tx, event *models.StateTransitionEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO grade_transition_events
	(id, record_id, kind, from_state, to_state, actor, reason, created_at)
	VALUES (:id, :record_id, :kind, :from_state, :to_state, :actor, :reason, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("insert transition event: %w", err)
	}
	return nil
}

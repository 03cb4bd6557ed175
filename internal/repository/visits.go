package repository

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/alexivanou/guide-offline/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

type visitRepository struct {
	db          *sqlx.DB
	maxAttempts int
	logger      *zap.Logger

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newVisitRepository(db *sqlx.DB, maxAttempts int, logger *zap.Logger) *visitRepository {
	return &visitRepository{
		db:          db,
		maxAttempts: maxAttempts,
		logger:      logger,
		entropy:     ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
}

// newID returns a ULID; ids sort in enqueue order even within one millisecond.
func (r *visitRepository) newID(now time.Time) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), r.entropy).String()
}

const selectVisitColumns = "SELECT id, landmark_id, session_id, queued_at, status, attempts, last_error FROM visit_queue"

func (r *visitRepository) Enqueue(ctx context.Context, landmarkID, sessionID string) (*model.QueuedVisit, error) {
	now := time.Now().UTC()
	visit := &model.QueuedVisit{
		ID:         r.newID(now),
		LandmarkID: landmarkID,
		SessionID:  sessionID,
		QueuedAt:   now,
		Status:     model.VisitPending,
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO visit_queue (id, landmark_id, session_id, queued_at, status, attempts, last_error)
		VALUES (:id, :landmark_id, :session_id, :queued_at, :status, :attempts, :last_error)`, visit)
	if err != nil {
		return nil, fmt.Errorf("failed to queue visit: %w", translateStorageError(err))
	}
	return visit, nil
}

func (r *visitRepository) ListPending(ctx context.Context) ([]model.QueuedVisit, error) {
	var visits []model.QueuedVisit
	q := r.db.Rebind(selectVisitColumns + " WHERE status = ? ORDER BY id")
	if err := r.db.SelectContext(ctx, &visits, q, model.VisitPending); err != nil {
		return nil, err
	}
	return visits, nil
}

func (r *visitRepository) ListAll(ctx context.Context) ([]model.QueuedVisit, error) {
	var visits []model.QueuedVisit
	if err := r.db.SelectContext(ctx, &visits, selectVisitColumns+" ORDER BY id"); err != nil {
		return nil, err
	}
	return visits, nil
}

func (r *visitRepository) MarkSynced(ctx context.Context, id string) error {
	q := r.db.Rebind("UPDATE visit_queue SET status = ?, last_error = '' WHERE id = ?")
	_, err := r.db.ExecContext(ctx, q, model.VisitSynced, id)
	return err
}

// RecordFailure bumps the attempt counter and dead-letters the visit once the
// configured ceiling is reached. It returns the resulting status.
func (r *visitRepository) RecordFailure(ctx context.Context, id string, cause error) (model.VisitStatus, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var attempts int
	if err := tx.GetContext(ctx, &attempts, tx.Rebind("SELECT attempts FROM visit_queue WHERE id = ?"), id); err != nil {
		return "", err
	}
	attempts++

	status := model.VisitPending
	if r.maxAttempts > 0 && attempts >= r.maxAttempts {
		status = model.VisitDead
	}
	q := tx.Rebind("UPDATE visit_queue SET attempts = ?, last_error = ?, status = ? WHERE id = ?")
	if _, err := tx.ExecContext(ctx, q, attempts, msg, status, id); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}

	if status == model.VisitDead {
		r.logger.Warn("Visit moved to dead letter",
			zap.String("visit_id", id),
			zap.Int("attempts", attempts),
			zap.String("last_error", msg),
		)
	}
	return status, nil
}

func (r *visitRepository) PurgeSynced(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM visit_queue WHERE status = ?"), model.VisitSynced)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (r *visitRepository) Counts(ctx context.Context) (*model.VisitCounts, error) {
	q := r.db.Rebind(`SELECT
		(SELECT COUNT(*) FROM visit_queue WHERE status = ?) AS pending,
		(SELECT COUNT(*) FROM visit_queue WHERE status = ?) AS synced,
		(SELECT COUNT(*) FROM visit_queue WHERE status = ?) AS dead`)
	var counts model.VisitCounts
	if err := r.db.GetContext(ctx, &counts, q, model.VisitPending, model.VisitSynced, model.VisitDead); err != nil {
		return nil, err
	}
	return &counts, nil
}

// Import appends visits from a backup, skipping ids already present.
func (r *visitRepository) Import(ctx context.Context, visits []model.QueuedVisit) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	imported := 0
	for _, v := range visits {
		if v.ID == "" || v.Synced() {
			continue
		}
		if v.Status == "" {
			v.Status = model.VisitPending
		}
		if v.QueuedAt.IsZero() {
			v.QueuedAt = time.Now().UTC()
		}
		res, err := tx.NamedExecContext(ctx, `
			INSERT INTO visit_queue (id, landmark_id, session_id, queued_at, status, attempts, last_error)
			VALUES (:id, :landmark_id, :session_id, :queued_at, :status, :attempts, :last_error)
			ON CONFLICT (id) DO NOTHING`, v)
		if err != nil {
			return 0, translateStorageError(err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			imported++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return imported, nil
}

func (r *visitRepository) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM visit_queue")
	return err
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ntpoppe/textops/internal/domain"
	"github.com/ntpoppe/textops/internal/telemetry"
)

// QueueRepo is the durable store of the execution queue. It exclusively
// owns writes to queue_entries.
type QueueRepo struct {
	db      *sql.DB
	dialect Dialect
	logger  *slog.Logger
}

// NewQueueRepo creates a QueueRepo bound to an already-opened
// database/sql handle and its dialect adapter.
func NewQueueRepo(db *sql.DB, dialect Dialect) *QueueRepo {
	return &QueueRepo{db: db, dialect: dialect, logger: slog.Default()}
}

// SetLogger replaces the logger used for warnings about operations on
// unknown queue entries. Defaults to slog.Default().
func (q *QueueRepo) SetLogger(logger *slog.Logger) {
	if logger != nil {
		q.logger = logger
	}
}

// Enqueue adds a pending queue entry for runID/jobKey. It is idempotent:
// if a pending or processing entry already exists for this run, it is a
// no-op, preserving an at-most-one-in-flight guarantee per run.
func (q *QueueRepo) Enqueue(ctx context.Context, runID, jobKey string) error {
	existsQuery := q.dialect.Rebind(`
		SELECT 1 FROM queue_entries
		WHERE run_id = ? AND status IN (?, ?)
	`)
	var one int
	err := q.db.QueryRowContext(ctx, existsQuery, runID,
		string(domain.QueueStatusPending), string(domain.QueueStatusProcessing)).Scan(&one)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check existing queue entry: %w", err)
	}

	insertQuery := q.dialect.Rebind(`
		INSERT INTO queue_entries (run_id, job_key, status, created_at, attempts)
		VALUES (?, ?, ?, ?, 0)
	`)
	_, err = q.db.ExecContext(ctx, insertQuery, runID, jobKey,
		string(domain.QueueStatusPending), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	telemetry.QueueDepth.WithLabelValues(string(domain.QueueStatusPending)).Inc()
	return nil
}

// ClaimNext atomically claims the oldest pending entry for workerID,
// marking it processing, stamping locked_at/locked_by, and incrementing
// attempts. It returns (nil, nil) when no pending entry exists.
//
// On Postgres this uses SELECT ... FOR UPDATE SKIP LOCKED so concurrent
// workers never contend on the same row. Sqlite has no row-level locking
// model compatible with that, so the repo instead does a direct
// conditional UPDATE ordered by id and relies on the affected-row count;
// Sqlite's writer serialization makes that race-free.
func (q *QueueRepo) ClaimNext(ctx context.Context, workerID string) (*domain.QueueEntry, error) {
	if q.dialect.SupportsSkipLocked() {
		return q.claimNextLocking(ctx, workerID)
	}
	return q.claimNextConditional(ctx, workerID)
}

func (q *QueueRepo) claimNextLocking(ctx context.Context, workerID string) (*domain.QueueEntry, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer tx.Rollback()

	selectQuery := q.dialect.Rebind(`
		SELECT id FROM queue_entries
		WHERE status = ?
		ORDER BY id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`)
	var id int64
	err = tx.QueryRowContext(ctx, selectQuery, string(domain.QueueStatusPending)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select next queue entry: %w", err)
	}

	updateQuery := q.dialect.Rebind(`
		UPDATE queue_entries
		SET status = ?, locked_at = ?, locked_by = ?, attempts = attempts + 1
		WHERE id = ?
	`)
	_, err = tx.ExecContext(ctx, updateQuery, string(domain.QueueStatusProcessing), formatTime(time.Now()), workerID, id)
	if err != nil {
		return nil, fmt.Errorf("claim queue entry: %w", err)
	}

	entry, err := getQueueEntry(ctx, tx, q.dialect, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}
	telemetry.QueueDepth.WithLabelValues(string(domain.QueueStatusPending)).Dec()
	telemetry.QueueDepth.WithLabelValues(string(domain.QueueStatusProcessing)).Inc()
	return entry, nil
}

func (q *QueueRepo) claimNextConditional(ctx context.Context, workerID string) (*domain.QueueEntry, error) {
	selectQuery := q.dialect.Rebind(`
		SELECT id FROM queue_entries
		WHERE status = ?
		ORDER BY id ASC
		LIMIT 1
	`)
	var id int64
	err := q.db.QueryRowContext(ctx, selectQuery, string(domain.QueueStatusPending)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select next queue entry: %w", err)
	}

	updateQuery := q.dialect.Rebind(`
		UPDATE queue_entries
		SET status = ?, locked_at = ?, locked_by = ?, attempts = attempts + 1
		WHERE id = ? AND status = ?
	`)
	res, err := q.db.ExecContext(ctx, updateQuery, string(domain.QueueStatusProcessing), formatTime(time.Now()), workerID, id, string(domain.QueueStatusPending))
	if err != nil {
		return nil, fmt.Errorf("claim queue entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("claim rows affected: %w", err)
	}
	if affected == 0 {
		// Lost the race to another worker between select and update;
		// look for the next pending entry.
		return q.claimNextConditional(ctx, workerID)
	}

	telemetry.QueueDepth.WithLabelValues(string(domain.QueueStatusPending)).Dec()
	telemetry.QueueDepth.WithLabelValues(string(domain.QueueStatusProcessing)).Inc()
	return getQueueEntry(ctx, q.db, q.dialect, id)
}

// Complete marks a claimed entry completed (success) or failed
// (!success), recording err when present, and clears the lock fields
// since a terminal entry is no longer owned by any worker. An unknown id
// logs a warning and is a no-op.
func (q *QueueRepo) Complete(ctx context.Context, id int64, success bool, errMsg *string) error {
	status := domain.QueueStatusCompleted
	if !success {
		status = domain.QueueStatusFailed
	}
	query := q.dialect.Rebind(`
		UPDATE queue_entries
		SET status = ?, completed_at = ?, last_error = ?, locked_at = NULL, locked_by = NULL
		WHERE id = ?
	`)
	res, err := q.db.ExecContext(ctx, query, string(status), formatTime(time.Now()), errMsg, id)
	if err != nil {
		return fmt.Errorf("complete queue entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete rows affected: %w", err)
	}
	if affected == 0 {
		q.logger.WarnContext(ctx, "complete called for unknown queue entry", "queue_id", id)
		return nil
	}
	telemetry.QueueDepth.WithLabelValues(string(domain.QueueStatusProcessing)).Dec()
	telemetry.QueueDepth.WithLabelValues(string(status)).Inc()
	return nil
}

// Release returns a claimed entry to pending, recording errMsg, so it can
// be claimed again. Used after a retryable execution failure.
func (q *QueueRepo) Release(ctx context.Context, id int64, errMsg *string) error {
	query := q.dialect.Rebind(`
		UPDATE queue_entries
		SET status = ?, locked_at = NULL, locked_by = NULL, last_error = ?
		WHERE id = ?
	`)
	_, err := q.db.ExecContext(ctx, query, string(domain.QueueStatusPending), errMsg, id)
	if err != nil {
		return fmt.Errorf("release queue entry: %w", err)
	}
	telemetry.QueueDepth.WithLabelValues(string(domain.QueueStatusProcessing)).Dec()
	telemetry.QueueDepth.WithLabelValues(string(domain.QueueStatusPending)).Inc()
	return nil
}

// ReclaimStale resets processing entries whose locked_at is older than
// lockTimeout back to pending, and returns how many were reclaimed. This
// recovers entries abandoned by a worker that crashed or was killed
// mid-execution.
func (q *QueueRepo) ReclaimStale(ctx context.Context, lockTimeout time.Duration) (int, error) {
	cutoff := formatTime(time.Now().Add(-lockTimeout))
	query := q.dialect.Rebind(`
		UPDATE queue_entries
		SET status = ?, locked_at = NULL, locked_by = NULL
		WHERE status = ? AND locked_at < ?
	`)
	res, err := q.db.ExecContext(ctx, query, string(domain.QueueStatusPending), string(domain.QueueStatusProcessing), cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale entries: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reclaim rows affected: %w", err)
	}
	if affected > 0 {
		telemetry.QueueDepth.WithLabelValues(string(domain.QueueStatusProcessing)).Sub(float64(affected))
		telemetry.QueueDepth.WithLabelValues(string(domain.QueueStatusPending)).Add(float64(affected))
	}
	return int(affected), nil
}

func getQueueEntry(ctx context.Context, q querier, d Dialect, id int64) (*domain.QueueEntry, error) {
	query := d.Rebind(`
		SELECT id, run_id, job_key, status, created_at, locked_at, locked_by, attempts, last_error, completed_at
		FROM queue_entries
		WHERE id = ?
	`)
	row := q.QueryRowContext(ctx, query, id)

	var e domain.QueueEntry
	var status, createdAt string
	var lockedAt, completedAt sql.NullString
	var lockedBy, lastError sql.NullString

	err := row.Scan(&e.ID, &e.RunID, &e.JobKey, &status, &createdAt, &lockedAt, &lockedBy, &e.Attempts, &lastError, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan queue entry: %w", err)
	}

	e.Status = domain.QueueStatus(status)
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if lockedAt.Valid {
		t, err := parseTime(lockedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse locked_at: %w", err)
		}
		e.LockedAt = &t
	}
	if lockedBy.Valid {
		e.LockedBy = &lockedBy.String
	}
	if lastError.Valid {
		e.LastError = &lastError.String
	}
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at: %w", err)
		}
		e.CompletedAt = &t
	}

	return &e, nil
}

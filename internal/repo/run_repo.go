package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ntpoppe/textops/internal/domain"
)

// RunRepo is the durable store of runs, their audit events, and the
// inbound-message inbox. It exclusively owns writes to those three
// tables.
type RunRepo struct {
	db      *sql.DB
	dialect Dialect
}

// NewRunRepo creates a RunRepo bound to an already-opened database/sql
// handle and its dialect adapter.
func NewRunRepo(db *sql.DB, dialect Dialect) *RunRepo {
	return &RunRepo{db: db, dialect: dialect}
}

// RunTx scopes a sequence of writes to one transaction, so that an inbox
// entry and the run/event writes it guards commit atomically.
type RunTx struct {
	tx      *sql.Tx
	dialect Dialect
}

// Begin starts a new transaction-scoped view of the repository.
func (r *RunRepo) Begin(ctx context.Context) (*RunTx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &RunTx{tx: tx, dialect: r.dialect}, nil
}

// Commit commits the transaction.
func (t *RunTx) Commit() error { return t.tx.Commit() }

// Rollback aborts the transaction. Safe to call after Commit; it is then
// a no-op (per database/sql semantics).
func (t *RunTx) Rollback() error { return t.tx.Rollback() }

// IsInboxProcessed reports whether (channelID, providerMessageID) has
// already been recorded. Must be the first side-effect check of any
// inbound handling sequence.
func (r *RunRepo) IsInboxProcessed(ctx context.Context, channelID, providerMessageID string) (bool, error) {
	return isInboxProcessed(ctx, r.db, r.dialect, channelID, providerMessageID)
}

func (t *RunTx) IsInboxProcessed(ctx context.Context, channelID, providerMessageID string) (bool, error) {
	return isInboxProcessed(ctx, t.tx, t.dialect, channelID, providerMessageID)
}

func isInboxProcessed(ctx context.Context, q querier, d Dialect, channelID, providerMessageID string) (bool, error) {
	query := d.Rebind(`SELECT 1 FROM inbox_entries WHERE channel_id = ? AND provider_message_id = ?`)
	var one int
	err := q.QueryRowContext(ctx, query, channelID, providerMessageID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check inbox: %w", err)
	}
	return true, nil
}

// MarkInboxProcessed inserts an inbox entry. A duplicate insert fails with
// ErrAlreadyProcessed.
func (t *RunTx) MarkInboxProcessed(ctx context.Context, channelID, providerMessageID string, runID *string) error {
	query := t.dialect.Rebind(`
		INSERT INTO inbox_entries (channel_id, provider_message_id, processed_at, run_id)
		VALUES (?, ?, ?, ?)
	`)
	_, err := t.tx.ExecContext(ctx, query, channelID, providerMessageID, formatTime(time.Now()), runID)
	if err != nil {
		if t.dialect.IsUniqueViolation(err) {
			return ErrAlreadyProcessed
		}
		return fmt.Errorf("insert inbox entry: %w", err)
	}
	return nil
}

// CreateRun inserts a new run at version 1 together with its initial
// events, in this transaction.
func (t *RunTx) CreateRun(ctx context.Context, run *domain.Run, events []domain.RunEvent) error {
	now := time.Now()
	run.Version = 1
	run.CreatedAt = now
	run.UpdatedAt = now

	query := t.dialect.Rebind(`
		INSERT INTO runs (run_id, job_key, status, requested_by_address, channel_id, conversation_id, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err := t.tx.ExecContext(ctx, query,
		run.RunID, run.JobKey, string(run.Status), run.RequestedByAddress,
		run.ChannelID, run.ConversationID, run.Version,
		formatTime(run.CreatedAt), formatTime(run.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	return t.insertEvents(ctx, events)
}

// TryUpdateRun performs a compare-and-swap status transition: on success
// it sets status, increments version, stamps updated_at, appends events,
// and returns the updated run. On mismatch or concurrency conflict it
// returns (nil, nil) without side effects.
func (t *RunTx) TryUpdateRun(ctx context.Context, runID string, expected, newStatus domain.RunStatus, events []domain.RunEvent) (*domain.Run, error) {
	return t.tryUpdateRun(ctx, runID, []domain.RunStatus{expected}, newStatus, events)
}

// TryUpdateRunFromMultiple is TryUpdateRun but succeeds from any status in
// expected.
func (t *RunTx) TryUpdateRunFromMultiple(ctx context.Context, runID string, expected []domain.RunStatus, newStatus domain.RunStatus, events []domain.RunEvent) (*domain.Run, error) {
	return t.tryUpdateRun(ctx, runID, expected, newStatus, events)
}

func (t *RunTx) tryUpdateRun(ctx context.Context, runID string, expected []domain.RunStatus, newStatus domain.RunStatus, events []domain.RunEvent) (*domain.Run, error) {
	if len(expected) == 0 {
		return nil, fmt.Errorf("tryUpdateRun: no expected statuses given")
	}

	placeholders := make([]string, len(expected))
	args := make([]any, 0, len(expected)+3)
	args = append(args, string(newStatus), formatTime(time.Now()), runID)
	for i, s := range expected {
		placeholders[i] = "?"
		args = append(args, string(s))
	}

	query := t.dialect.Rebind(fmt.Sprintf(`
		UPDATE runs
		SET status = ?, version = version + 1, updated_at = ?
		WHERE run_id = ? AND status IN (%s)
	`, joinPlaceholders(placeholders)))

	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update run rows affected: %w", err)
	}
	if affected == 0 {
		// CAS miss: caller's expected status no longer holds. No
		// side effects — not even the events are appended.
		return nil, nil
	}

	if err := t.insertEvents(ctx, events); err != nil {
		return nil, err
	}

	return getRun(ctx, t.tx, t.dialect, runID)
}

func joinPlaceholders(ps []string) string {
	out := ps[0]
	for _, p := range ps[1:] {
		out += ", " + p
	}
	return out
}

func (t *RunTx) insertEvents(ctx context.Context, events []domain.RunEvent) error {
	if len(events) == 0 {
		return nil
	}
	query := t.dialect.Rebind(`
		INSERT INTO run_events (run_id, type, at, actor, payload)
		VALUES (?, ?, ?, ?, ?)
	`)
	now := time.Now()
	for i := range events {
		e := &events[i]
		e.At = now
		_, err := t.tx.ExecContext(ctx, query, e.RunID, string(e.Type), formatTime(e.At), e.Actor, string(e.Payload))
		if err != nil {
			return fmt.Errorf("insert event %s: %w", e.Type, err)
		}
	}
	return nil
}

// GetRun returns a run, or ErrNotFound.
func (t *RunTx) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	return getRun(ctx, t.tx, t.dialect, runID)
}

// GetRun returns a run, or ErrNotFound.
func (r *RunRepo) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	return getRun(ctx, r.db, r.dialect, runID)
}

func getRun(ctx context.Context, q querier, d Dialect, runID string) (*domain.Run, error) {
	query := d.Rebind(`
		SELECT run_id, job_key, status, requested_by_address, channel_id, conversation_id, version, created_at, updated_at
		FROM runs
		WHERE run_id = ?
	`)
	row := q.QueryRowContext(ctx, query, runID)
	return scanRun(row)
}

func scanRun(row *sql.Row) (*domain.Run, error) {
	var run domain.Run
	var status, createdAt, updatedAt string
	err := row.Scan(&run.RunID, &run.JobKey, &status, &run.RequestedByAddress,
		&run.ChannelID, &run.ConversationID, &run.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Status = domain.RunStatus(status)
	if run.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if run.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &run, nil
}

// GetRunStatus returns just the status column of a run, or ErrNotFound.
func (r *RunRepo) GetRunStatus(ctx context.Context, runID string) (domain.RunStatus, error) {
	query := r.dialect.Rebind(`SELECT status FROM runs WHERE run_id = ?`)
	var status string
	err := r.db.QueryRowContext(ctx, query, runID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get run status: %w", err)
	}
	return domain.RunStatus(status), nil
}

// GetTimeline returns a run and its events ordered by (at ASC, id ASC), or
// ErrNotFound if the run does not exist.
func (r *RunRepo) GetTimeline(ctx context.Context, runID string) (*domain.RunTimeline, error) {
	run, err := r.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	query := r.dialect.Rebind(`
		SELECT id, run_id, type, at, actor, payload
		FROM run_events
		WHERE run_id = ?
		ORDER BY at ASC, id ASC
	`)
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.RunEvent
	for rows.Next() {
		var e domain.RunEvent
		var typ, at, payload string
		if err := rows.Scan(&e.ID, &e.RunID, &typ, &at, &e.Actor, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = domain.EventType(typ)
		e.Payload = []byte(payload)
		if e.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parse event at: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.RunTimeline{Run: *run, Events: events}, nil
}

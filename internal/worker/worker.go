package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ntpoppe/textops/internal/domain"
	"github.com/ntpoppe/textops/internal/orchestrator"
	"github.com/ntpoppe/textops/internal/repo"
	"github.com/ntpoppe/textops/internal/telemetry"
)

// Default configuration values, used by New for any zero-valued Config
// field.
const (
	DefaultPollInterval           = 1 * time.Second
	DefaultErrorRetryDelay        = 5 * time.Second
	DefaultMaxAttempts            = 3
	DefaultLockTimeout            = 5 * time.Minute
	DefaultStaleLockCheckInterval = 1 * time.Minute
)

// Worker claims execution-queue entries and runs them through an
// ExecutorPlugin. Per worker instance it runs two concurrent tasks: a
// polling loop that claims and processes entries, and a reclaim loop that
// periodically returns abandoned processing entries to pending.
//
// Workers are stateless between claims — all coordination happens through
// the queue repository's atomic claim — so any number of worker
// processes may run against the same database.
type Worker struct {
	queue    *repo.QueueRepo
	orch     *orchestrator.Orchestrator
	executor ExecutorPlugin
	outbound OutboundSink

	id string

	pollInterval        time.Duration
	errorRetryDelay      time.Duration
	maxAttempts          int
	lockTimeout          time.Duration
	staleCheckInterval   time.Duration

	logger *slog.Logger
}

// Config configures a Worker. Zero-value duration/int fields fall back to
// the package defaults above.
type Config struct {
	Queue    *repo.QueueRepo
	Orch     *orchestrator.Orchestrator
	Executor ExecutorPlugin
	Outbound OutboundSink

	WorkerID string

	PollInterval           time.Duration
	ErrorRetryDelay        time.Duration
	MaxAttempts            int
	LockTimeout            time.Duration
	StaleLockCheckInterval time.Duration

	Logger *slog.Logger
}

// New builds a Worker from cfg.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	outbound := cfg.Outbound
	if outbound == nil {
		outbound = NewStderrOutboundSink(os.Stderr)
	}

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = DefaultWorkerID()
	}

	w := &Worker{
		queue:              cfg.Queue,
		orch:               cfg.Orch,
		executor:           cfg.Executor,
		outbound:           outbound,
		id:                 workerID,
		pollInterval:       cfg.PollInterval,
		errorRetryDelay:    cfg.ErrorRetryDelay,
		maxAttempts:        cfg.MaxAttempts,
		lockTimeout:        cfg.LockTimeout,
		staleCheckInterval: cfg.StaleLockCheckInterval,
		logger:             logger,
	}

	if w.pollInterval <= 0 {
		w.pollInterval = DefaultPollInterval
	}
	if w.errorRetryDelay <= 0 {
		w.errorRetryDelay = DefaultErrorRetryDelay
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = DefaultMaxAttempts
	}
	if w.lockTimeout <= 0 {
		w.lockTimeout = DefaultLockTimeout
	}
	if w.staleCheckInterval <= 0 {
		w.staleCheckInterval = DefaultStaleLockCheckInterval
	}

	return w
}

// DefaultWorkerID builds the default "worker-{hostname}-{pid}" identity.
func DefaultWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("worker-%s-%d", hostname, os.Getpid())
}

// ID returns this worker's stable identity string.
func (w *Worker) ID() string { return w.id }

// Run blocks running the poll and reclaim loops until ctx is canceled.
// Both loops log claim_next and reclaim_stale errors and keep going, so
// neither ends Run with an error.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "worker starting",
		"worker_id", w.id, "poll_interval", w.pollInterval, "lock_timeout", w.lockTimeout)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.pollLoop(ctx) })
	g.Go(func() error { return w.reclaimLoop(ctx) })

	err := g.Wait()
	w.logger.InfoContext(ctx, "worker stopped", "worker_id", w.id)
	return err
}

func (w *Worker) pollLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		entry, err := w.queue.ClaimNext(ctx, w.id)
		if err != nil {
			w.logger.ErrorContext(ctx, "claim_next failed", "error", err)
			if !sleepOrDone(ctx, w.errorRetryDelay) {
				return nil
			}
			continue
		}
		if entry == nil {
			if !sleepOrDone(ctx, w.pollInterval) {
				return nil
			}
			continue
		}

		w.processEntry(ctx, entry)
	}
}

func (w *Worker) reclaimLoop(ctx context.Context) error {
	ticker := time.NewTicker(w.staleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := w.queue.ReclaimStale(ctx, w.lockTimeout)
			if err != nil {
				w.logger.ErrorContext(ctx, "reclaim_stale failed", "error", err)
				continue
			}
			if n > 0 {
				w.logger.InfoContext(ctx, "reclaimed stale queue entries", "count", n)
			}
		}
	}
}

func (w *Worker) processEntry(ctx context.Context, entry *domain.QueueEntry) {
	dispatch := domain.ExecutionDispatch{RunID: entry.RunID, JobKey: entry.JobKey}

	result, err := w.executor.Execute(ctx, dispatch, w.orch, w.id)
	for _, out := range result.Outbound {
		w.outbound(out)
	}

	switch {
	case err == nil:
		telemetry.WorkerOutcomes.WithLabelValues("success").Inc()
		if cerr := w.queue.Complete(ctx, entry.ID, true, nil); cerr != nil {
			w.logger.ErrorContext(ctx, "complete queue entry failed", "queue_id", entry.ID, "error", cerr)
		}
	case errors.Is(err, context.Canceled):
		reason := "shutdown"
		if rerr := w.queue.Release(context.WithoutCancel(ctx), entry.ID, &reason); rerr != nil {
			w.logger.ErrorContext(ctx, "release on shutdown failed", "queue_id", entry.ID, "error", rerr)
		}
	default:
		msg := err.Error()
		if entry.Attempts < w.maxAttempts {
			telemetry.WorkerOutcomes.WithLabelValues("retry").Inc()
			w.logger.WarnContext(ctx, "execution error, releasing for retry",
				"queue_id", entry.ID, "run_id", entry.RunID, "attempts", entry.Attempts, "error", err)
			if rerr := w.queue.Release(ctx, entry.ID, &msg); rerr != nil {
				w.logger.ErrorContext(ctx, "release after error failed", "queue_id", entry.ID, "error", rerr)
			}
		} else {
			telemetry.WorkerOutcomes.WithLabelValues("failed").Inc()
			w.logger.ErrorContext(ctx, "execution error, attempts exhausted",
				"queue_id", entry.ID, "run_id", entry.RunID, "attempts", entry.Attempts, "error", err)
			if cerr := w.queue.Complete(ctx, entry.ID, false, &msg); cerr != nil {
				w.logger.ErrorContext(ctx, "terminal complete after error failed", "queue_id", entry.ID, "error", cerr)
			}
		}
	}
}

// sleepOrDone waits for d or ctx cancellation, reporting which happened
// first; false means ctx was canceled.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

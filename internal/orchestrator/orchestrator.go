package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ntpoppe/textops/internal/domain"
	"github.com/ntpoppe/textops/internal/repo"
)

const ellipsis = "…"

// Orchestrator is the authoritative state machine for runs: it owns every
// write to runs, run_events, and inbox_entries, and is the only component
// that decides whether an inbound message or execution callback produces
// a state transition. It is stateless between calls; all state lives in
// the repositories, which is what makes it safe to invoke concurrently
// from many callers.
type Orchestrator struct {
	runs   *repo.RunRepo
	queue  *repo.QueueRepo
	logger *slog.Logger
}

// New builds an Orchestrator over the given repositories.
func New(runs *repo.RunRepo, queue *repo.QueueRepo, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{runs: runs, queue: queue, logger: logger}
}

// HandleInbound is the entry point for one inbound text message, already
// parsed into an intent. It dedups against the inbox first, then runs
// exactly one intent handler, with the inbox entry recorded in the same
// transaction as any state change.
func (o *Orchestrator) HandleInbound(ctx context.Context, msg domain.InboundMessage, intent domain.ParsedIntent) (domain.OrchestratorResult, error) {
	tx, err := o.runs.Begin(ctx)
	if err != nil {
		return domain.OrchestratorResult{}, fmt.Errorf("begin inbound tx: %w", err)
	}
	defer tx.Rollback()

	processed, err := tx.IsInboxProcessed(ctx, msg.ChannelID, msg.ProviderMessageID)
	if err != nil {
		return domain.OrchestratorResult{}, fmt.Errorf("check inbox: %w", err)
	}
	if processed {
		return domain.OrchestratorResult{}, nil
	}

	result, err := o.routeIntent(ctx, tx, msg, intent)
	if err != nil {
		return domain.OrchestratorResult{}, err
	}

	if err := tx.MarkInboxProcessed(ctx, msg.ChannelID, msg.ProviderMessageID, runIDPtr(result.RunID)); err != nil {
		if errors.Is(err, repo.ErrAlreadyProcessed) {
			// Lost a race against a concurrent delivery of the same
			// message; the other delivery's side effects stand,
			// this one discards everything it just computed.
			return domain.OrchestratorResult{}, nil
		}
		return domain.OrchestratorResult{}, fmt.Errorf("mark inbox processed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.OrchestratorResult{}, fmt.Errorf("commit inbound tx: %w", err)
	}
	return result, nil
}

func runIDPtr(runID string) *string {
	if runID == "" {
		return nil
	}
	return &runID
}

func (o *Orchestrator) routeIntent(ctx context.Context, tx *repo.RunTx, msg domain.InboundMessage, intent domain.ParsedIntent) (domain.OrchestratorResult, error) {
	switch intent.Type {
	case domain.IntentRunJob:
		if intent.JobKey == "" {
			return o.replyResult(msg, "Missing job key. Usage: run <jobKey>"), nil
		}
		return o.handleRunJob(ctx, tx, msg, intent)
	case domain.IntentApproveRun:
		return o.handleApprove(ctx, tx, msg, intent)
	case domain.IntentDenyRun:
		return o.handleDeny(ctx, tx, msg, intent)
	case domain.IntentStatus:
		return o.handleStatus(ctx, tx, msg, intent)
	default:
		return o.replyResult(msg, "Unknown command. Try: run <jobKey> | yes <runId> | no <runId> | status <runId>"), nil
	}
}

func (o *Orchestrator) handleRunJob(ctx context.Context, tx *repo.RunTx, msg domain.InboundMessage, intent domain.ParsedIntent) (domain.OrchestratorResult, error) {
	runID, err := o.createRunWithRetry(ctx, tx, msg, intent)
	if err != nil {
		return domain.OrchestratorResult{}, err
	}

	body := fmt.Sprintf("Job %q is ready. Reply YES %s to approve or NO %s to deny.", intent.JobKey, runID, runID)
	out := domain.OutboundMessage{
		ChannelID:      msg.ChannelID,
		ConversationID: msg.ConversationID,
		Body:           body,
		CorrelationID:  runID,
		IdempotencyKey: "approval-request:" + runID,
	}
	return domain.OrchestratorResult{RunID: runID, Outbound: []domain.OutboundMessage{out}}, nil
}

func (o *Orchestrator) createRunWithRetry(ctx context.Context, tx *repo.RunTx, msg domain.InboundMessage, intent domain.ParsedIntent) (string, error) {
	const maxAttempts = 2
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		runID := newRunID()

		createdEvent, err := domain.NewEvent(runID, domain.EventRunCreated, "user:"+msg.FromAddress, jobKeyPayload{JobKey: intent.JobKey})
		if err != nil {
			return "", err
		}
		approvalEvent, err := domain.NewEvent(runID, domain.EventApprovalRequested, "system", policyPayload{Policy: "DefaultRequireApproval"})
		if err != nil {
			return "", err
		}

		run := &domain.Run{
			RunID:              runID,
			JobKey:             intent.JobKey,
			Status:             domain.RunStatusAwaitingApproval,
			RequestedByAddress: msg.FromAddress,
			ChannelID:          msg.ChannelID,
			ConversationID:     msg.ConversationID,
		}

		err = tx.CreateRun(ctx, run, []domain.RunEvent{createdEvent, approvalEvent})
		if err == nil {
			return runID, nil
		}
		lastErr = err
		o.logger.WarnContext(ctx, "run id collision, retrying", "run_id", runID, "attempt", attempt)
	}
	return "", fmt.Errorf("%w: %v", ErrRunIDExhausted, lastErr)
}

func (o *Orchestrator) handleApprove(ctx context.Context, tx *repo.RunTx, msg domain.InboundMessage, intent domain.ParsedIntent) (domain.OrchestratorResult, error) {
	run, err := tx.GetRun(ctx, intent.RunID)
	if errors.Is(err, repo.ErrNotFound) {
		return o.replyResult(msg, fmt.Sprintf("Unknown run id: %s", intent.RunID)), nil
	}
	if err != nil {
		return domain.OrchestratorResult{}, err
	}

	approvedEvent, err := domain.NewEvent(run.RunID, domain.EventRunApproved, "user:"+msg.FromAddress, nil)
	if err != nil {
		return domain.OrchestratorResult{}, err
	}
	dispatchedEvent, err := domain.NewEvent(run.RunID, domain.EventExecutionDispatched, "system", nil)
	if err != nil {
		return domain.OrchestratorResult{}, err
	}

	updated, err := tx.TryUpdateRun(ctx, run.RunID, domain.RunStatusAwaitingApproval, domain.RunStatusDispatching,
		[]domain.RunEvent{approvedEvent, dispatchedEvent})
	if err != nil {
		return domain.OrchestratorResult{}, err
	}
	if updated == nil {
		current, err := tx.GetRun(ctx, run.RunID)
		if err != nil {
			return domain.OrchestratorResult{}, err
		}
		return runScopedReply(*current, fmt.Sprintf("Cannot approve run %s in state %s.", run.RunID, current.Status)), nil
	}

	body := fmt.Sprintf("Approved. Starting run %s for job %q%s", updated.RunID, updated.JobKey, ellipsis)
	out := domain.OutboundMessage{
		ChannelID:      updated.ChannelID,
		ConversationID: updated.ConversationID,
		Body:           body,
		CorrelationID:  updated.RunID,
		IdempotencyKey: "approved-starting:" + updated.RunID,
	}
	return domain.OrchestratorResult{
		RunID:               updated.RunID,
		Outbound:            []domain.OutboundMessage{out},
		DispatchedExecution: true,
		Dispatch:            &domain.ExecutionDispatch{RunID: updated.RunID, JobKey: updated.JobKey},
	}, nil
}

func (o *Orchestrator) handleDeny(ctx context.Context, tx *repo.RunTx, msg domain.InboundMessage, intent domain.ParsedIntent) (domain.OrchestratorResult, error) {
	run, err := tx.GetRun(ctx, intent.RunID)
	if errors.Is(err, repo.ErrNotFound) {
		return o.replyResult(msg, fmt.Sprintf("Unknown run id: %s", intent.RunID)), nil
	}
	if err != nil {
		return domain.OrchestratorResult{}, err
	}

	deniedEvent, err := domain.NewEvent(run.RunID, domain.EventRunDenied, "user:"+msg.FromAddress, nil)
	if err != nil {
		return domain.OrchestratorResult{}, err
	}

	updated, err := tx.TryUpdateRun(ctx, run.RunID, domain.RunStatusAwaitingApproval, domain.RunStatusDenied,
		[]domain.RunEvent{deniedEvent})
	if err != nil {
		return domain.OrchestratorResult{}, err
	}
	if updated == nil {
		current, err := tx.GetRun(ctx, run.RunID)
		if err != nil {
			return domain.OrchestratorResult{}, err
		}
		return runScopedReply(*current, fmt.Sprintf("Cannot deny run %s in state %s.", run.RunID, current.Status)), nil
	}

	body := fmt.Sprintf("Denied run %s for job %q.", updated.RunID, updated.JobKey)
	return runScopedReply(*updated, body), nil
}

func (o *Orchestrator) handleStatus(ctx context.Context, tx *repo.RunTx, msg domain.InboundMessage, intent domain.ParsedIntent) (domain.OrchestratorResult, error) {
	run, err := tx.GetRun(ctx, intent.RunID)
	if errors.Is(err, repo.ErrNotFound) {
		return o.replyResult(msg, fmt.Sprintf("Unknown run id: %s", intent.RunID)), nil
	}
	if err != nil {
		return domain.OrchestratorResult{}, err
	}

	body := fmt.Sprintf("Run %s\nJob: %s\nState: %s\nCreated: %s",
		run.RunID, run.JobKey, run.Status, run.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
	return runScopedReply(*run, body), nil
}

// OnExecutionStarted applies the Dispatching → Running transition when a
// worker reports it has begun executing a job.
func (o *Orchestrator) OnExecutionStarted(ctx context.Context, runID, workerID string) (domain.OrchestratorResult, error) {
	tx, err := o.runs.Begin(ctx)
	if err != nil {
		return domain.OrchestratorResult{}, fmt.Errorf("begin execution-started tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.GetRun(ctx, runID); errors.Is(err, repo.ErrNotFound) {
		return systemErrorResult(fmt.Sprintf("Cannot start execution for unknown run %s.", runID)), nil
	} else if err != nil {
		return domain.OrchestratorResult{}, err
	}

	event, err := domain.NewEvent(runID, domain.EventExecutionStarted, "worker:"+workerID, workerPayload{WorkerID: workerID})
	if err != nil {
		return domain.OrchestratorResult{}, err
	}

	updated, err := tx.TryUpdateRun(ctx, runID, domain.RunStatusDispatching, domain.RunStatusRunning, []domain.RunEvent{event})
	if err != nil {
		return domain.OrchestratorResult{}, err
	}
	if updated == nil {
		current, err := tx.GetRun(ctx, runID)
		if err != nil {
			return domain.OrchestratorResult{}, err
		}
		if current.Status == domain.RunStatusRunning {
			// Idempotent no-op: an earlier delivery of this same
			// callback already made this transition.
			if err := tx.Commit(); err != nil {
				return domain.OrchestratorResult{}, err
			}
			return domain.OrchestratorResult{}, nil
		}
		result := runScopedReply(*current, fmt.Sprintf("Cannot start run %s in state %s.", runID, current.Status))
		if err := tx.Commit(); err != nil {
			return domain.OrchestratorResult{}, err
		}
		return result, nil
	}

	if err := tx.Commit(); err != nil {
		return domain.OrchestratorResult{}, fmt.Errorf("commit execution-started tx: %w", err)
	}
	return domain.OrchestratorResult{RunID: updated.RunID}, nil
}

// OnExecutionCompleted applies the Running|Dispatching → Succeeded|Failed
// transition when a worker reports an execution outcome.
func (o *Orchestrator) OnExecutionCompleted(ctx context.Context, runID, workerID string, success bool, summary string) (domain.OrchestratorResult, error) {
	tx, err := o.runs.Begin(ctx)
	if err != nil {
		return domain.OrchestratorResult{}, fmt.Errorf("begin execution-completed tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.GetRun(ctx, runID); errors.Is(err, repo.ErrNotFound) {
		return systemErrorResult(fmt.Sprintf("Cannot complete execution for unknown run %s.", runID)), nil
	} else if err != nil {
		return domain.OrchestratorResult{}, err
	}

	target := domain.RunStatusFailed
	eventType := domain.EventExecutionFailed
	if success {
		target = domain.RunStatusSucceeded
		eventType = domain.EventExecutionSucceeded
	}

	event, err := domain.NewEvent(runID, eventType, "worker:"+workerID, executionResultPayload{WorkerID: workerID, Summary: summary})
	if err != nil {
		return domain.OrchestratorResult{}, err
	}

	updated, err := tx.TryUpdateRunFromMultiple(ctx, runID,
		[]domain.RunStatus{domain.RunStatusRunning, domain.RunStatusDispatching}, target, []domain.RunEvent{event})
	if err != nil {
		return domain.OrchestratorResult{}, err
	}
	if updated == nil {
		current, err := tx.GetRun(ctx, runID)
		if err != nil {
			return domain.OrchestratorResult{}, err
		}
		if current.Status.IsTerminal() {
			// First completion already won; this is a duplicate
			// delivery of the same callback.
			if err := tx.Commit(); err != nil {
				return domain.OrchestratorResult{}, err
			}
			return domain.OrchestratorResult{}, nil
		}
		result := runScopedReply(*current, fmt.Sprintf("Cannot complete run %s in state %s.", runID, current.Status))
		if err := tx.Commit(); err != nil {
			return domain.OrchestratorResult{}, err
		}
		return result, nil
	}

	verb := "succeeded"
	if !success {
		verb = "failed"
	}
	body := fmt.Sprintf("Run %s %s: %s", updated.RunID, verb, summary)
	out := domain.OutboundMessage{
		ChannelID:      updated.ChannelID,
		ConversationID: updated.ConversationID,
		Body:           body,
		CorrelationID:  updated.RunID,
		IdempotencyKey: "execution-completed:" + updated.RunID,
	}

	if err := tx.Commit(); err != nil {
		return domain.OrchestratorResult{}, fmt.Errorf("commit execution-completed tx: %w", err)
	}
	return domain.OrchestratorResult{RunID: updated.RunID, Outbound: []domain.OutboundMessage{out}}, nil
}

// GetTimeline returns a run and its ordered events, or ErrRunNotFound.
func (o *Orchestrator) GetTimeline(ctx context.Context, runID string) (domain.RunTimeline, error) {
	timeline, err := o.runs.GetTimeline(ctx, runID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.RunTimeline{}, ErrRunNotFound
	}
	if err != nil {
		return domain.RunTimeline{}, err
	}
	return *timeline, nil
}

// replyResult builds a result carrying a single outbound reply addressed
// to the inbound message's own channel/conversation — used for parse-time
// replies that are not yet (or never) associated with a run.
func (o *Orchestrator) replyResult(msg domain.InboundMessage, body string) domain.OrchestratorResult {
	out := domain.OutboundMessage{
		ChannelID:      msg.ChannelID,
		ConversationID: msg.ConversationID,
		Body:           body,
		CorrelationID:  "none",
		IdempotencyKey: fmt.Sprintf("reply:%s:%s", msg.ChannelID, msg.ProviderMessageID),
	}
	return domain.OrchestratorResult{Outbound: []domain.OutboundMessage{out}}
}

// runScopedReply builds a result carrying a single outbound reply
// addressed to run's own channel/conversation.
func runScopedReply(run domain.Run, body string) domain.OrchestratorResult {
	out := domain.OutboundMessage{
		ChannelID:      run.ChannelID,
		ConversationID: run.ConversationID,
		Body:           body,
		CorrelationID:  run.RunID,
		IdempotencyKey: fmt.Sprintf("reply:%s:%s", run.ChannelID, run.RunID),
	}
	return domain.OrchestratorResult{RunID: run.RunID, Outbound: []domain.OutboundMessage{out}}
}

// systemErrorResult builds a result for an error that cannot be routed to
// any real conversation, e.g. a worker callback for an unknown run id.
func systemErrorResult(body string) domain.OrchestratorResult {
	out := domain.OutboundMessage{
		ChannelID:      "system",
		ConversationID: "system",
		Body:           body,
		CorrelationID:  "none",
		IdempotencyKey: "reply:system:" + body,
	}
	return domain.OrchestratorResult{Outbound: []domain.OutboundMessage{out}}
}

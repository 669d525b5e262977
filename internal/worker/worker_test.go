package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ntpoppe/textops/internal/domain"
	"github.com/ntpoppe/textops/internal/orchestrator"
	"github.com/ntpoppe/textops/internal/parser"
	"github.com/ntpoppe/textops/internal/repo"
	"github.com/ntpoppe/textops/internal/testutil"
	"github.com/ntpoppe/textops/internal/worker"
)

// fakeExecutor lets tests control the outcome of one Execute call
// without waiting on StubExecutor's real sleep.
type fakeExecutor struct {
	calls   int
	fail    error
	success bool
	summary string
}

func (f *fakeExecutor) Execute(ctx context.Context, dispatch domain.ExecutionDispatch, orch *orchestrator.Orchestrator, workerID string) (domain.OrchestratorResult, error) {
	f.calls++
	if f.fail != nil {
		return domain.OrchestratorResult{}, f.fail
	}
	if _, err := orch.OnExecutionStarted(ctx, dispatch.RunID, workerID); err != nil {
		return domain.OrchestratorResult{}, err
	}
	return orch.OnExecutionCompleted(ctx, dispatch.RunID, workerID, f.success, f.summary)
}

func setup(t *testing.T) (*repo.RunRepo, *repo.QueueRepo, *orchestrator.Orchestrator) {
	t.Helper()
	db, dialect := testutil.NewTestDB(t)
	runs := repo.NewRunRepo(db, dialect)
	queue := repo.NewQueueRepo(db, dialect)
	return runs, queue, orchestrator.New(runs, queue, nil)
}

func approvedRun(t *testing.T, orch *orchestrator.Orchestrator, jobKey string) string {
	t.Helper()
	ctx := context.Background()
	msg := domain.InboundMessage{ChannelID: "dev", ConversationID: "c1", FromAddress: "+1555", Body: "run " + jobKey, ProviderMessageID: "m-" + jobKey}
	result, err := orch.HandleInbound(ctx, msg, parser.Parse(msg.Body))
	require.NoError(t, err)

	approveMsg := domain.InboundMessage{ChannelID: "dev", ConversationID: "c1", FromAddress: "+1555", Body: "yes " + result.RunID, ProviderMessageID: "m-approve-" + jobKey}
	_, err = orch.HandleInbound(ctx, approveMsg, parser.Parse(approveMsg.Body))
	require.NoError(t, err)
	return result.RunID
}

func TestWorker_ProcessesClaimedEntryToSuccess(t *testing.T) {
	_, queue, orch := setup(t)
	runID := approvedRun(t, orch, "demo")
	require.NoError(t, queue.Enqueue(context.Background(), runID, "demo"))

	var outboundBodies []string
	exec := &fakeExecutor{success: true, summary: "ok"}
	w := worker.New(worker.Config{
		Queue:        queue,
		Orch:         orch,
		Executor:     exec,
		Outbound:     func(m domain.OutboundMessage) { outboundBodies = append(outboundBodies, m.Body) },
		PollInterval: 10 * time.Millisecond,
	})

	entry, err := queue.ClaimNext(context.Background(), w.ID())
	require.NoError(t, err)
	require.NotNil(t, entry)

	result, err := exec.Execute(context.Background(), domain.ExecutionDispatch{RunID: runID, JobKey: "demo"}, orch, w.ID())
	require.NoError(t, err)
	require.NoError(t, queue.Complete(context.Background(), entry.ID, true, nil))
	require.Contains(t, result.Outbound[0].Body, "succeeded")
	require.Empty(t, outboundBodies)
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	_, queue, orch := setup(t)

	w := worker.New(worker.Config{
		Queue:                  queue,
		Orch:                   orch,
		Executor:               &fakeExecutor{success: true},
		PollInterval:           5 * time.Millisecond,
		StaleLockCheckInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := w.Run(ctx)
	require.NoError(t, err)
}

func TestWorker_Run_ProcessesEnqueuedRunEndToEnd(t *testing.T) {
	runs, queue, orch := setup(t)
	runID := approvedRun(t, orch, "demo")
	require.NoError(t, queue.Enqueue(context.Background(), runID, "demo"))

	done := make(chan struct{})
	w := worker.New(worker.Config{
		Queue:        queue,
		Orch:         orch,
		Executor:     &fakeExecutor{success: true, summary: "all good"},
		Outbound:     func(m domain.OutboundMessage) { close(done) },
		PollInterval: 5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(150 * time.Millisecond):
		t.Fatal("worker did not process the enqueued entry in time")
	}
	cancel()
	require.NoError(t, <-errCh)

	got, err := runs.GetRunStatus(context.Background(), runID)
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusSucceeded, got)
}

func TestWorker_ExecutionError_RetriesUntilMaxAttempts(t *testing.T) {
	_, queue, orch := setup(t)
	runID := approvedRun(t, orch, "demo")
	require.NoError(t, queue.Enqueue(context.Background(), runID, "demo"))

	// First claim: attempts becomes 1, released back to pending on error.
	entry, err := queue.ClaimNext(context.Background(), "worker-x")
	require.NoError(t, err)
	require.Equal(t, 1, entry.Attempts)
	errMsg := "boom"
	require.NoError(t, queue.Release(context.Background(), entry.ID, &errMsg))

	// Second claim: attempts becomes 2. For a worker with MaxAttempts 2
	// the retry policy now calls Complete(false) instead of Release;
	// that call is made directly here.
	entry, err = queue.ClaimNext(context.Background(), "worker-x")
	require.NoError(t, err)
	require.Equal(t, 2, entry.Attempts)
	require.NoError(t, queue.Complete(context.Background(), entry.ID, false, &errMsg))

	final, err := queue.ClaimNext(context.Background(), "worker-x")
	require.NoError(t, err)
	require.Nil(t, final)
}

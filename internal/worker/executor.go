package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ntpoppe/textops/internal/domain"
	"github.com/ntpoppe/textops/internal/orchestrator"
)

// ExecutorPlugin performs the actual work for a dispatched run. It MUST
// call orch.OnExecutionStarted before doing work and
// orch.OnExecutionCompleted afterwards; its return value is whatever the
// completion callback returned. A non-nil error indicates an
// infrastructure failure in running the job itself (not a job-level
// failure, which is reported to the orchestrator as success=false), and
// drives the worker's retry policy.
type ExecutorPlugin interface {
	Execute(ctx context.Context, dispatch domain.ExecutionDispatch, orch *orchestrator.Orchestrator, workerID string) (domain.OrchestratorResult, error)
}

// StubExecutor is the reference plugin used for tests and the dev API. It
// simulates work by sleeping 1-2 seconds and treats "fail" anywhere in
// the lowercased job key as a simulated job failure.
type StubExecutor struct {
	// Sleep overrides the simulated work duration for tests; nil uses a
	// random 1000-2000ms delay.
	Sleep func() time.Duration
}

func (s *StubExecutor) Execute(ctx context.Context, dispatch domain.ExecutionDispatch, orch *orchestrator.Orchestrator, workerID string) (domain.OrchestratorResult, error) {
	if _, err := orch.OnExecutionStarted(ctx, dispatch.RunID, workerID); err != nil {
		return domain.OrchestratorResult{}, fmt.Errorf("execution-started callback: %w", err)
	}

	sleep := s.Sleep
	if sleep == nil {
		sleep = randomStubDelay
	}
	select {
	case <-ctx.Done():
		return domain.OrchestratorResult{}, ctx.Err()
	case <-time.After(sleep()):
	}

	success := !strings.Contains(strings.ToLower(dispatch.JobKey), "fail")
	var summary string
	if success {
		summary = fmt.Sprintf("Job '%s' completed successfully", dispatch.JobKey)
	} else {
		summary = fmt.Sprintf("Job '%s' failed (simulated failure)", dispatch.JobKey)
	}

	result, err := orch.OnExecutionCompleted(ctx, dispatch.RunID, workerID, success, summary)
	if err != nil {
		return domain.OrchestratorResult{}, fmt.Errorf("execution-completed callback: %w", err)
	}
	return result, nil
}

package repo_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ntpoppe/textops/internal/domain"
	"github.com/ntpoppe/textops/internal/repo"
	"github.com/ntpoppe/textops/internal/testutil"
)

func newRun(runID string) *domain.Run {
	return &domain.Run{
		RunID:              runID,
		JobKey:             "demo",
		Status:             domain.RunStatusAwaitingApproval,
		RequestedByAddress: "+15551234567",
		ChannelID:          "dev",
		ConversationID:     "conv-1",
	}
}

func createdEvent(runID string) domain.RunEvent {
	e, err := domain.NewEvent(runID, domain.EventRunCreated, "+15551234567", map[string]string{"job_key": "demo"})
	if err != nil {
		panic(err)
	}
	return e
}

func TestRunRepo_CreateAndGetRun(t *testing.T) {
	db, dialect := testutil.NewTestDB(t)
	repoRuns := repo.NewRunRepo(db, dialect)

	tx, err := repoRuns.Begin(context.Background())
	require.NoError(t, err)

	run := newRun("AB12CD")
	require.NoError(t, tx.CreateRun(context.Background(), run, []domain.RunEvent{createdEvent("AB12CD")}))
	require.NoError(t, tx.Commit())

	got, err := repoRuns.GetRun(context.Background(), "AB12CD")
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusAwaitingApproval, got.Status)
	require.Equal(t, 1, got.Version)

	timeline, err := repoRuns.GetTimeline(context.Background(), "AB12CD")
	require.NoError(t, err)
	require.Len(t, timeline.Events, 1)
	require.Equal(t, domain.EventRunCreated, timeline.Events[0].Type)
}

func TestRunRepo_GetRun_NotFound(t *testing.T) {
	db, dialect := testutil.NewTestDB(t)
	repoRuns := repo.NewRunRepo(db, dialect)

	_, err := repoRuns.GetRun(context.Background(), "ZZZZZZ")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestRunRepo_TryUpdateRun_SuccessfulCAS(t *testing.T) {
	db, dialect := testutil.NewTestDB(t)
	repoRuns := repo.NewRunRepo(db, dialect)

	ctx := context.Background()
	tx, err := repoRuns.Begin(ctx)
	require.NoError(t, err)
	run := newRun("AB12CD")
	require.NoError(t, tx.CreateRun(ctx, run, nil))
	require.NoError(t, tx.Commit())

	tx, err = repoRuns.Begin(ctx)
	require.NoError(t, err)
	updated, err := tx.TryUpdateRun(ctx, "AB12CD", domain.RunStatusAwaitingApproval, domain.RunStatusDispatching, nil)
	require.NoError(t, err)
	require.NotNil(t, updated)
	require.Equal(t, domain.RunStatusDispatching, updated.Status)
	require.Equal(t, 2, updated.Version)
	require.NoError(t, tx.Commit())
}

func TestRunRepo_TryUpdateRun_CASMissReturnsNilNil(t *testing.T) {
	db, dialect := testutil.NewTestDB(t)
	repoRuns := repo.NewRunRepo(db, dialect)

	ctx := context.Background()
	tx, err := repoRuns.Begin(ctx)
	require.NoError(t, err)
	run := newRun("AB12CD")
	require.NoError(t, tx.CreateRun(ctx, run, nil))
	require.NoError(t, tx.Commit())

	tx, err = repoRuns.Begin(ctx)
	require.NoError(t, err)
	// Run is AwaitingApproval, not Running — this CAS must miss.
	updated, err := tx.TryUpdateRun(ctx, "AB12CD", domain.RunStatusRunning, domain.RunStatusSucceeded, nil)
	require.NoError(t, err)
	require.Nil(t, updated)
	require.NoError(t, tx.Commit())

	// Status and version must be untouched by the missed CAS.
	got, err := repoRuns.GetRun(ctx, "AB12CD")
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusAwaitingApproval, got.Status)
	require.Equal(t, 1, got.Version)
}

// TestRunRepo_TryUpdateRun_ConcurrentApproveAndDenyRace fires approve and
// deny at the same run from real goroutines rather than sequential calls,
// so the CAS's exactly-one-winner guarantee is exercised under actual
// contention, not just inspected branch-by-branch.
func TestRunRepo_TryUpdateRun_ConcurrentApproveAndDenyRace(t *testing.T) {
	db, dialect := testutil.NewTestDB(t)
	repoRuns := repo.NewRunRepo(db, dialect)

	ctx := context.Background()
	tx, err := repoRuns.Begin(ctx)
	require.NoError(t, err)
	run := newRun("AB12CD")
	require.NoError(t, tx.CreateRun(ctx, run, nil))
	require.NoError(t, tx.Commit())

	attempt := func(newStatus domain.RunStatus) (*domain.Run, error) {
		tx, err := repoRuns.Begin(ctx)
		if err != nil {
			return nil, err
		}
		defer tx.Rollback()
		updated, err := tx.TryUpdateRun(ctx, "AB12CD", domain.RunStatusAwaitingApproval, newStatus, nil)
		if err != nil || updated == nil {
			return updated, err
		}
		return updated, tx.Commit()
	}

	var wg sync.WaitGroup
	results := make([]*domain.Run, 2)
	errs := make([]error, 2)
	statuses := []domain.RunStatus{domain.RunStatusDispatching, domain.RunStatusDenied}
	for i := range statuses {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = attempt(statuses[i])
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	winners := 0
	for _, r := range results {
		if r != nil {
			winners++
		}
	}
	require.Equal(t, 1, winners, "exactly one of approve/deny must win the CAS race")

	got, err := repoRuns.GetRun(ctx, "AB12CD")
	require.NoError(t, err)
	require.Contains(t, statuses, got.Status)
	require.Equal(t, 2, got.Version)
}

func TestRunRepo_InboxDedup(t *testing.T) {
	db, dialect := testutil.NewTestDB(t)
	repoRuns := repo.NewRunRepo(db, dialect)

	ctx := context.Background()
	processed, err := repoRuns.IsInboxProcessed(ctx, "dev", "msg-1")
	require.NoError(t, err)
	require.False(t, processed)

	tx, err := repoRuns.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.MarkInboxProcessed(ctx, "dev", "msg-1", nil))
	require.NoError(t, tx.Commit())

	processed, err = repoRuns.IsInboxProcessed(ctx, "dev", "msg-1")
	require.NoError(t, err)
	require.True(t, processed)

	tx, err = repoRuns.Begin(ctx)
	require.NoError(t, err)
	err = tx.MarkInboxProcessed(ctx, "dev", "msg-1", nil)
	require.ErrorIs(t, err, repo.ErrAlreadyProcessed)
	require.NoError(t, tx.Rollback())
}

package repo_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ntpoppe/textops/internal/domain"
	"github.com/ntpoppe/textops/internal/repo"
	"github.com/ntpoppe/textops/internal/testutil"
)

func TestQueueRepo_EnqueueIsIdempotent(t *testing.T) {
	db, dialect := testutil.NewTestDB(t)
	runRepo := repo.NewRunRepo(db, dialect)
	queue := repo.NewQueueRepo(db, dialect)

	ctx := context.Background()
	tx, err := runRepo.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateRun(ctx, newRun("AB12CD"), nil))
	require.NoError(t, tx.Commit())

	require.NoError(t, queue.Enqueue(ctx, "AB12CD", "demo"))
	require.NoError(t, queue.Enqueue(ctx, "AB12CD", "demo"))

	entry, err := queue.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)
	require.NotNil(t, entry)

	// A second pending entry must not exist: the duplicate Enqueue
	// above was a no-op.
	second, err := queue.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)
	require.Nil(t, second)
}

func TestQueueRepo_ClaimNextThenComplete(t *testing.T) {
	db, dialect := testutil.NewTestDB(t)
	runRepo := repo.NewRunRepo(db, dialect)
	queue := repo.NewQueueRepo(db, dialect)

	ctx := context.Background()
	tx, err := runRepo.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateRun(ctx, newRun("AB12CD"), nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, queue.Enqueue(ctx, "AB12CD", "demo"))

	entry, err := queue.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)
	require.Equal(t, domain.QueueStatusProcessing, entry.Status)
	require.Equal(t, 1, entry.Attempts)

	require.NoError(t, queue.Complete(ctx, entry.ID, true, nil))

	noMore, err := queue.ClaimNext(ctx, "worker-2")
	require.NoError(t, err)
	require.Nil(t, noMore)
}

func TestQueueRepo_Complete_ClearsLockFields(t *testing.T) {
	db, dialect := testutil.NewTestDB(t)
	runRepo := repo.NewRunRepo(db, dialect)
	queue := repo.NewQueueRepo(db, dialect)

	ctx := context.Background()
	tx, err := runRepo.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateRun(ctx, newRun("AB12CD"), nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, queue.Enqueue(ctx, "AB12CD", "demo"))

	entry, err := queue.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)
	require.NoError(t, queue.Complete(ctx, entry.ID, true, nil))

	var lockedAt, lockedBy sql.NullString
	row := db.QueryRowContext(ctx, "SELECT locked_at, locked_by FROM queue_entries WHERE id = ?", entry.ID)
	require.NoError(t, row.Scan(&lockedAt, &lockedBy))
	require.False(t, lockedAt.Valid, "locked_at must be cleared on completion")
	require.False(t, lockedBy.Valid, "locked_by must be cleared on completion")
}

func TestQueueRepo_Complete_UnknownIDIsANoOp(t *testing.T) {
	db, dialect := testutil.NewTestDB(t)
	queue := repo.NewQueueRepo(db, dialect)

	require.NoError(t, queue.Complete(context.Background(), 999, true, nil))
}

func TestQueueRepo_ClaimNext_EmptyQueueReturnsNilNil(t *testing.T) {
	db, dialect := testutil.NewTestDB(t)
	queue := repo.NewQueueRepo(db, dialect)

	entry, err := queue.ClaimNext(context.Background(), "worker-1")
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestQueueRepo_Release_ReturnsToPending(t *testing.T) {
	db, dialect := testutil.NewTestDB(t)
	runRepo := repo.NewRunRepo(db, dialect)
	queue := repo.NewQueueRepo(db, dialect)

	ctx := context.Background()
	tx, err := runRepo.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateRun(ctx, newRun("AB12CD"), nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, queue.Enqueue(ctx, "AB12CD", "demo"))

	entry, err := queue.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)

	errMsg := "transient failure"
	require.NoError(t, queue.Release(ctx, entry.ID, &errMsg))

	reclaimed, err := queue.ClaimNext(ctx, "worker-2")
	require.NoError(t, err)
	require.NotNil(t, reclaimed)
	require.Equal(t, 2, reclaimed.Attempts)
}

func TestQueueRepo_ReclaimStale(t *testing.T) {
	db, dialect := testutil.NewTestDB(t)
	runRepo := repo.NewRunRepo(db, dialect)
	queue := repo.NewQueueRepo(db, dialect)

	ctx := context.Background()
	tx, err := runRepo.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateRun(ctx, newRun("AB12CD"), nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, queue.Enqueue(ctx, "AB12CD", "demo"))

	_, err = queue.ClaimNext(ctx, "worker-1")
	require.NoError(t, err)

	// A negative lockTimeout puts the cutoff in the future, so the lock
	// just taken counts as stale.
	count, err := queue.ReclaimStale(ctx, -time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	entry, err := queue.ClaimNext(ctx, "worker-2")
	require.NoError(t, err)
	require.NotNil(t, entry)
}

// TestQueueRepo_ClaimNext_ConcurrentWorkersEachGetADistinctEntry drives
// real goroutines against ClaimNext at the same time, rather than
// sequential calls, so the at-most-one-claimant guarantee is exercised
// under actual contention instead of only by inspecting the query shape.
func TestQueueRepo_ClaimNext_ConcurrentWorkersEachGetADistinctEntry(t *testing.T) {
	db, dialect := testutil.NewTestDB(t)
	runRepo := repo.NewRunRepo(db, dialect)
	queue := repo.NewQueueRepo(db, dialect)

	ctx := context.Background()
	const numEntries = 8
	for i := 0; i < numEntries; i++ {
		runID := fmt.Sprintf("RUN%03d", i)
		tx, err := runRepo.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, tx.CreateRun(ctx, newRun(runID), nil))
		require.NoError(t, tx.Commit())
		require.NoError(t, queue.Enqueue(ctx, runID, "demo"))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[int64]string)
	)
	for i := 0; i < numEntries; i++ {
		wg.Add(1)
		workerID := fmt.Sprintf("worker-%d", i)
		go func() {
			defer wg.Done()
			entry, err := queue.ClaimNext(ctx, workerID)
			require.NoError(t, err)
			require.NotNil(t, entry)
			mu.Lock()
			claimed[entry.ID] = workerID
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, claimed, numEntries, "every entry must be claimed exactly once, by exactly one worker")

	noMore, err := queue.ClaimNext(ctx, "worker-extra")
	require.NoError(t, err)
	require.Nil(t, noMore)
}

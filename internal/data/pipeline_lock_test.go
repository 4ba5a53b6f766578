package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapply/ingest-api/internal/testutil"
)

func TestPgPipelineLock_TryAcquireRelease(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		ctx := context.Background()
		lockA := NewPgPipelineLock(db, PgPipelineLockConfig{})
		lockB := NewPgPipelineLock(db, PgPipelineLockConfig{})

		acquired, err := lockA.TryAcquire(ctx)
		require.NoError(t, err)
		require.True(t, acquired)
		defer func() { _ = lockA.Release(ctx) }()

		// Each PgPipelineLock pins its own session, so B contends with A.
		acquired, err = lockB.TryAcquire(ctx)
		require.NoError(t, err)
		assert.False(t, acquired)

		_, err = lockA.TryAcquire(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already held by this process")

		require.NoError(t, lockA.Release(ctx))

		acquired, err = lockB.TryAcquire(ctx)
		require.NoError(t, err)
		assert.True(t, acquired)
		require.NoError(t, lockB.Release(ctx))
	})
}

func TestPgPipelineLock_ReleaseWithoutLockIsNoop(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		lock := NewPgPipelineLock(db, PgPipelineLockConfig{})
		require.NoError(t, lock.Release(context.Background()))
	})
}

func TestPgPipelineLock_TerminateStaleHolder(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("no holder", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			lock := NewPgPipelineLock(db, PgPipelineLockConfig{})

			terminated, err := lock.TerminateStaleHolder(context.Background())
			require.NoError(t, err)
			assert.False(t, terminated)
		})
	})

	t.Run("frees a lock held by another session", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			ctx := context.Background()
			holder := NewPgPipelineLock(db, PgPipelineLockConfig{})
			recoverer := NewPgPipelineLock(db, PgPipelineLockConfig{})

			acquired, err := holder.TryAcquire(ctx)
			require.NoError(t, err)
			require.True(t, acquired)

			terminated, err := recoverer.TerminateStaleHolder(ctx)
			require.NoError(t, err)
			assert.True(t, terminated)

			// The terminated backend takes a moment to die and drop the lock.
			require.Eventually(t, func() bool {
				ok, err := recoverer.TryAcquire(ctx)
				return err == nil && ok
			}, 5*time.Second, 50*time.Millisecond)
			require.NoError(t, recoverer.Release(ctx))

			// The old holder's pinned connection is gone; Release reports the
			// broken session rather than hanging.
			_ = holder.Release(ctx)
		})
	})
}

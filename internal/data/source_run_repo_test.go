package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapply/ingest-api/internal/domain/model"
	"github.com/zapply/ingest-api/internal/testutil"
)

func TestSourceRunRepo_Create(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("creates a running source run under a run", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			runRepo := NewRunRepo(db, RepoConfig{})
			repo := NewSourceRunRepo(db, RepoConfig{})
			ctx := context.Background()

			run := createTestRun(t, runRepo, model.TriggerManual)

			sr, err := repo.Create(ctx, &model.CreateSourceRunRequest{RunID: run.ID, Source: "remotive"})
			require.NoError(t, err)
			assert.NotEmpty(t, sr.ID)
			assert.Equal(t, run.ID, sr.RunID)
			assert.Equal(t, "remotive", sr.Source)
			assert.Equal(t, model.SourceRunStatusRunning, sr.Status)
			assert.Zero(t, sr.JobsFound)
			assert.Empty(t, sr.Logs)
			assert.Nil(t, sr.CompletedAt)
		})
	})

	t.Run("requires an existing run", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewSourceRunRepo(db, RepoConfig{})

			_, err := repo.Create(context.Background(), &model.CreateSourceRunRequest{
				RunID:  "00000000-0000-0000-0000-000000000000",
				Source: "remotive",
			})
			assert.ErrorIs(t, err, ErrRunNotFound)
		})
	})

	t.Run("validation", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewSourceRunRepo(db, RepoConfig{})
			ctx := context.Background()

			_, err := repo.Create(ctx, nil)
			require.Error(t, err)

			_, err = repo.Create(ctx, &model.CreateSourceRunRequest{Source: "remotive"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "run_id is required")
		})
	})
}

func TestSourceRunRepo_ListByRun(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		tp := testutil.NewTestTimeProvider(start)
		runRepo := NewRunRepo(db, RepoConfig{TimeProvider: tp})
		repo := NewSourceRunRepo(db, RepoConfig{TimeProvider: tp})
		ctx := context.Background()

		run := createTestRun(t, runRepo, model.TriggerManual)
		other := createTestRun(t, runRepo, model.TriggerManual)

		first, err := repo.Create(ctx, &model.CreateSourceRunRequest{RunID: run.ID, Source: "alpha"})
		require.NoError(t, err)
		tp.AddTime(time.Second)
		second, err := repo.Create(ctx, &model.CreateSourceRunRequest{RunID: run.ID, Source: "beta"})
		require.NoError(t, err)
		_, err = repo.Create(ctx, &model.CreateSourceRunRequest{RunID: other.ID, Source: "alpha"})
		require.NoError(t, err)

		got, err := repo.ListByRun(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, first.ID, got[0].ID, "oldest first")
		assert.Equal(t, second.ID, got[1].ID)

		got, err = repo.ListByRun(ctx, "00000000-0000-0000-0000-000000000000")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestSourceRunRepo_UniquePerRunAndSource(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		runRepo := NewRunRepo(db, RepoConfig{})
		repo := NewSourceRunRepo(db, RepoConfig{})
		ctx := context.Background()

		run := createTestRun(t, runRepo, model.TriggerManual)

		_, err := repo.Create(ctx, &model.CreateSourceRunRequest{RunID: run.ID, Source: "remotive"})
		require.NoError(t, err)

		_, err = repo.Create(ctx, &model.CreateSourceRunRequest{RunID: run.ID, Source: "remotive"})
		require.Error(t, err, "one source run per source per run")
	})
}

func TestSourceRunRepo_AppendLog(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		runRepo := NewRunRepo(db, RepoConfig{})
		repo := NewSourceRunRepo(db, RepoConfig{})
		ctx := context.Background()

		run := createTestRun(t, runRepo, model.TriggerManual)
		sr, err := repo.Create(ctx, &model.CreateSourceRunRequest{RunID: run.ID, Source: "remotive"})
		require.NoError(t, err)

		now := time.Now().UTC().Truncate(time.Millisecond)
		require.NoError(t, repo.AppendLog(ctx, sr.ID,
			model.RunLogEntry{Timestamp: now, Level: model.LogLevelInfo, Message: "fetched page 1"},
		))
		require.NoError(t, repo.AppendLog(ctx, sr.ID,
			model.RunLogEntry{Timestamp: now.Add(time.Second), Level: model.LogLevelInfo, Message: "fetched page 2"},
		))

		got, err := repo.GetByID(ctx, sr.ID)
		require.NoError(t, err)
		require.Len(t, got.Logs, 2)
		assert.Equal(t, "fetched page 1", got.Logs[0].Message)
		assert.Equal(t, "fetched page 2", got.Logs[1].Message)

		err = repo.AppendLog(ctx, "00000000-0000-0000-0000-000000000000",
			model.RunLogEntry{Timestamp: now, Level: model.LogLevelInfo, Message: "orphan"})
		assert.ErrorIs(t, err, ErrSourceRunNotFound)
	})
}

func TestSourceRunRepo_Complete(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		runRepo := NewRunRepo(db, RepoConfig{})
		repo := NewSourceRunRepo(db, RepoConfig{})
		ctx := context.Background()

		run := createTestRun(t, runRepo, model.TriggerManual)
		sr, err := repo.Create(ctx, &model.CreateSourceRunRequest{RunID: run.ID, Source: "remotive"})
		require.NoError(t, err)

		counts := model.SourceRunCounts{Found: 10, New: 6, Duplicate: 3, Failed: 1}
		require.NoError(t, repo.Complete(ctx, sr.ID, counts))

		got, err := repo.GetByID(ctx, sr.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SourceRunStatusCompleted, got.Status)
		assert.Equal(t, 10, got.JobsFound)
		assert.Equal(t, 6, got.JobsNew)
		assert.Equal(t, 3, got.JobsDuplicate)
		assert.Equal(t, 1, got.JobsFailed)
		assert.Nil(t, got.ErrorMessage)
		assert.NotNil(t, got.CompletedAt)

		err = repo.Complete(ctx, "00000000-0000-0000-0000-000000000000", counts)
		assert.ErrorIs(t, err, ErrSourceRunNotFound)
	})
}

func TestSourceRunRepo_Fail(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		runRepo := NewRunRepo(db, RepoConfig{})
		repo := NewSourceRunRepo(db, RepoConfig{})
		ctx := context.Background()

		run := createTestRun(t, runRepo, model.TriggerManual)
		sr, err := repo.Create(ctx, &model.CreateSourceRunRequest{RunID: run.ID, Source: "remotive"})
		require.NoError(t, err)

		require.NoError(t, repo.Fail(ctx, sr.ID, "upstream returned 503"))

		got, err := repo.GetByID(ctx, sr.ID)
		require.NoError(t, err)
		assert.Equal(t, model.SourceRunStatusFailed, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "upstream returned 503", *got.ErrorMessage)
		assert.NotNil(t, got.CompletedAt)

		err = repo.Fail(ctx, sr.ID, "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error message is required")
	})
}

package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapply/ingest-api/internal/testutil"
)

func TestRedisCacheRepo_SetGetDelete(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	repo := NewRedisCacheRepo(client)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "settings:job_limit", []byte("50"), time.Minute))

	value, err := repo.Get(ctx, "settings:job_limit")
	require.NoError(t, err)
	assert.Equal(t, []byte("50"), value)

	deleted, err := repo.Delete(ctx, "settings:job_limit")
	require.NoError(t, err)
	assert.True(t, deleted)

	value, err = repo.Get(ctx, "settings:job_limit")
	require.NoError(t, err)
	assert.Nil(t, value, "missing key reads as nil, not an error")

	deleted, err = repo.Delete(ctx, "settings:job_limit")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestRedisCacheRepo_TTLExpiry(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	repo := NewRedisCacheRepo(client)
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, "settings:run_frequency", []byte("hourly"), 50*time.Millisecond))

	assert.Eventually(t, func() bool {
		value, err := repo.Get(ctx, "settings:run_frequency")
		return err == nil && value == nil
	}, 2*time.Second, 25*time.Millisecond)
}

func TestRedisCacheRepo_Validation(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	repo := NewRedisCacheRepo(client)
	ctx := context.Background()

	err := repo.Set(ctx, "", []byte("v"), time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key cannot be empty")

	_, err = repo.Get(ctx, "")
	require.Error(t, err)

	_, err = repo.Delete(ctx, "")
	require.Error(t, err)
}

func TestRedisCacheRepo_Health(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	repo := NewRedisCacheRepo(client)

	assert.NoError(t, repo.Health(context.Background()))
}

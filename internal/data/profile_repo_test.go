package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapply/ingest-api/internal/domain/model"
	"github.com/zapply/ingest-api/internal/testutil"
)

func TestProfileRepo_Get(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := NewProfileRepo(db)

		// Absent profile is nil, not an error.
		profile, err := repo.Get(context.Background())
		require.NoError(t, err)
		assert.Nil(t, profile)
	})
}

func TestProfileRepo_Create(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("creates the singleton profile", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewProfileRepo(db)
			ctx := context.Background()

			created, err := repo.Create(ctx, &model.CreateProfileRequest{
				Name:        "Jordan Doe",
				Email:       "jordan@example.com",
				Location:    "Remote",
				Rate:        "$90/hr",
				Skills:      []string{"go", "postgresql"},
				Preferences: json.RawMessage(`{"remote_only":true}`),
			})
			require.NoError(t, err)
			assert.NotEmpty(t, created.ID)
			assert.Equal(t, "Jordan Doe", created.Name)
			assert.Equal(t, []string{"go", "postgresql"}, created.Skills)
			assert.JSONEq(t, `{"remote_only":true}`, string(created.Preferences))

			got, err := repo.Get(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, created.ID, got.ID)

			_, err = repo.Create(ctx, &model.CreateProfileRequest{
				Name:  "Second Person",
				Email: "second@example.com",
			})
			assert.ErrorIs(t, err, ErrProfileExists)
		})
	})

	t.Run("validation", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := NewProfileRepo(db)
			ctx := context.Background()

			_, err := repo.Create(ctx, nil)
			require.Error(t, err)

			_, err = repo.Create(ctx, &model.CreateProfileRequest{Email: "a@b.c"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "name is required")

			_, err = repo.Create(ctx, &model.CreateProfileRequest{Name: "Jordan", Email: "not-an-email"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "valid email")
		})
	})
}

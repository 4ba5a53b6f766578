package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/zapply/ingest-api/internal/data"
	"github.com/zapply/ingest-api/internal/domain/model"
	"github.com/zapply/ingest-api/internal/mocks"
)

func newSettingsForTest(t *testing.T, repo *mocks.MockSettingRepository, cache *mocks.MockCacheRepository) *SettingsService {
	t.Helper()
	opts := SettingsServiceOptions{Repo: repo, CacheTTL: time.Minute}
	if cache != nil {
		opts.Cache = cache
	}
	svc, err := NewSettingsService(opts)
	require.NoError(t, err)
	return svc
}

func TestSettingsGetMissingKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockSettingRepository(ctrl)
	repo.EXPECT().Get(gomock.Any(), "job_limit").Return(nil, data.ErrSettingNotFound)

	svc := newSettingsForTest(t, repo, nil)

	value, ok, err := svc.Get(context.Background(), "job_limit")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestSettingsGetReadsThroughCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockSettingRepository(ctrl)
	cache := mocks.NewMockCacheRepository(ctrl)

	gomock.InOrder(
		// Miss: fall through to the repository, then populate the cache.
		cache.EXPECT().Get(gomock.Any(), "settings:job_limit").Return(nil, nil),
		repo.EXPECT().Get(gomock.Any(), "job_limit").
			Return(&model.Setting{Key: "job_limit", Value: "25"}, nil),
		cache.EXPECT().Set(gomock.Any(), "settings:job_limit", []byte("25"), time.Minute).Return(nil),
		// Hit: the repository is not consulted.
		cache.EXPECT().Get(gomock.Any(), "settings:job_limit").Return([]byte("25"), nil),
	)

	svc := newSettingsForTest(t, repo, cache)

	for range 2 {
		value, ok, err := svc.Get(context.Background(), "job_limit")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "25", value)
	}
}

func TestSettingsGetSurvivesCacheFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockSettingRepository(ctrl)
	cache := mocks.NewMockCacheRepository(ctrl)

	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down"))
	repo.EXPECT().Get(gomock.Any(), "job_limit").
		Return(&model.Setting{Key: "job_limit", Value: "10"}, nil)
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.New("redis down"))

	svc := newSettingsForTest(t, repo, cache)

	value, ok, err := svc.Get(context.Background(), "job_limit")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "10", value)
}

func TestSettingsSetInvalidatesCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockSettingRepository(ctrl)
	cache := mocks.NewMockCacheRepository(ctrl)

	repo.EXPECT().Set(gomock.Any(), "look_back_days", "3").
		Return(&model.Setting{Key: "look_back_days", Value: "3"}, nil)
	cache.EXPECT().Delete(gomock.Any(), "settings:look_back_days").Return(true, nil)

	svc := newSettingsForTest(t, repo, cache)

	setting, err := svc.Set(context.Background(), "look_back_days", "3")
	require.NoError(t, err)
	assert.Equal(t, "3", setting.Value)
}

func TestSettingsSetSurvivesCacheInvalidationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockSettingRepository(ctrl)
	cache := mocks.NewMockCacheRepository(ctrl)

	repo.EXPECT().Set(gomock.Any(), "look_back_days", "5").
		Return(&model.Setting{Key: "look_back_days", Value: "5"}, nil)
	cache.EXPECT().Delete(gomock.Any(), "settings:look_back_days").
		Return(false, errors.New("redis down"))

	svc := newSettingsForTest(t, repo, cache)

	setting, err := svc.Set(context.Background(), "look_back_days", "5")
	require.NoError(t, err)
	assert.Equal(t, "5", setting.Value)
}

func TestSettingsSetRejectsInvalidRunFrequency(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockSettingRepository(ctrl)
	repo.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	svc := newSettingsForTest(t, repo, nil)

	_, err := svc.Set(context.Background(), model.SettingRunFrequency, "weekly")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run_frequency must be one of")
}

func TestSettingsSetRejectsEmptyKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockSettingRepository(ctrl)
	svc := newSettingsForTest(t, repo, nil)

	_, err := svc.Set(context.Background(), "  ", "x")
	require.Error(t, err)
}

func TestJobLimit(t *testing.T) {
	tests := []struct {
		name  string
		value string
		unset bool
		want  int
	}{
		{name: "unset means unlimited", unset: true, want: 0},
		{name: "valid limit", value: "50", want: 50},
		{name: "whitespace tolerated", value: " 25 ", want: 25},
		{name: "malformed falls back to unlimited", value: "lots", want: 0},
		{name: "negative falls back to unlimited", value: "-3", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := mocks.NewMockSettingRepository(ctrl)
			if tt.unset {
				repo.EXPECT().Get(gomock.Any(), model.SettingJobLimit).Return(nil, data.ErrSettingNotFound)
			} else {
				repo.EXPECT().Get(gomock.Any(), model.SettingJobLimit).
					Return(&model.Setting{Key: model.SettingJobLimit, Value: tt.value}, nil)
			}

			svc := newSettingsForTest(t, repo, nil)

			limit, err := svc.JobLimit(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, limit)
		})
	}
}

func TestLookBackDays(t *testing.T) {
	tests := []struct {
		name  string
		value string
		unset bool
		want  int
	}{
		{name: "unset uses fallback", unset: true, want: 7},
		{name: "valid override", value: "2", want: 2},
		{name: "zero is malformed", value: "0", want: 7},
		{name: "garbage uses fallback", value: "soon", want: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			repo := mocks.NewMockSettingRepository(ctrl)
			if tt.unset {
				repo.EXPECT().Get(gomock.Any(), model.SettingLookBackDays).Return(nil, data.ErrSettingNotFound)
			} else {
				repo.EXPECT().Get(gomock.Any(), model.SettingLookBackDays).
					Return(&model.Setting{Key: model.SettingLookBackDays, Value: tt.value}, nil)
			}

			svc := newSettingsForTest(t, repo, nil)

			days, err := svc.LookBackDays(context.Background(), 7)
			require.NoError(t, err)
			assert.Equal(t, tt.want, days)
		})
	}
}

func TestRunFrequencyNormalizesCase(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repo := mocks.NewMockSettingRepository(ctrl)
	repo.EXPECT().Get(gomock.Any(), model.SettingRunFrequency).
		Return(&model.Setting{Key: model.SettingRunFrequency, Value: " Hourly "}, nil)

	svc := newSettingsForTest(t, repo, nil)

	frequency, err := svc.RunFrequency(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RunFrequencyHourly, frequency)
}

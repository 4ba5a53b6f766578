package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/zapply/ingest-api/internal/core"
	"github.com/zapply/ingest-api/internal/data"
	"github.com/zapply/ingest-api/internal/domain/model"
	apperrors "github.com/zapply/ingest-api/internal/errors"
)

// settingsCachePrefix namespaces settings keys in the shared cache.
const settingsCachePrefix = "settings:"

// SettingsServiceOptions groups dependencies for SettingsService.
type SettingsServiceOptions struct {
	Repo     core.SettingRepository // Required: settings repository
	Cache    core.CacheRepository   // Optional: read-through cache
	CacheTTL time.Duration          // Optional: cache entry lifetime, defaults to 5m
	Logger   *slog.Logger           // Optional: structured logger
}

// SettingsService provides typed access to the app_settings key-value store.
// Reads go through the cache when one is configured; writes invalidate it so
// the next pipeline invocation sees fresh values.
type SettingsService struct {
	repo     core.SettingRepository
	cache    core.CacheRepository
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewSettingsService constructs a new SettingsService.
func NewSettingsService(opts SettingsServiceOptions) (*SettingsService, error) {
	if opts.Repo == nil {
		return nil, errors.New("SettingRepository is required")
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "settings_service")
	}

	return &SettingsService{
		repo:     opts.Repo,
		cache:    opts.Cache,
		cacheTTL: ttl,
		logger:   logger,
	}, nil
}

// Get returns the raw value for key, or ok=false when the key is unset.
func (s *SettingsService) Get(ctx context.Context, key string) (string, bool, error) {
	if err := model.ValidateSettingKey(key); err != nil {
		return "", false, apperrors.Validation(err.Error())
	}

	if cached, hit := s.cacheGet(ctx, key); hit {
		return cached, true, nil
	}

	setting, err := s.repo.Get(ctx, key)
	if err != nil {
		if errors.Is(err, data.ErrSettingNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}

	s.cacheSet(ctx, key, setting.Value)
	return setting.Value, true, nil
}

// Set upserts a setting and invalidates its cache entry.
func (s *SettingsService) Set(ctx context.Context, key, value string) (*model.Setting, error) {
	if err := model.ValidateSettingKey(key); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if key == model.SettingRunFrequency {
		if err := validateRunFrequency(value); err != nil {
			return nil, err
		}
	}

	setting, err := s.repo.Set(ctx, key, value)
	if err != nil {
		return nil, fmt.Errorf("set setting %q: %w", key, err)
	}

	s.cacheDelete(ctx, key)
	return setting, nil
}

// List returns all settings.
func (s *SettingsService) List(ctx context.Context) ([]*model.Setting, error) {
	return s.repo.List(ctx)
}

// JobLimit returns the per-source posting cap. Zero means unlimited.
func (s *SettingsService) JobLimit(ctx context.Context) (int, error) {
	value, ok, err := s.Get(ctx, model.SettingJobLimit)
	if err != nil || !ok {
		return 0, err
	}
	limit, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || limit < 0 {
		s.warn(ctx, "ignoring malformed job_limit setting", "value", value)
		return 0, nil
	}
	return limit, nil
}

// LookBackDays returns how many days back adapters should look, falling back
// to the given default when the setting is unset or malformed.
func (s *SettingsService) LookBackDays(ctx context.Context, fallback int) (int, error) {
	value, ok, err := s.Get(ctx, model.SettingLookBackDays)
	if err != nil {
		return fallback, err
	}
	if !ok {
		return fallback, nil
	}
	days, convErr := strconv.Atoi(strings.TrimSpace(value))
	if convErr != nil || days < 1 {
		s.warn(ctx, "ignoring malformed look_back_days setting", "value", value)
		return fallback, nil
	}
	return days, nil
}

// RunFrequency returns the configured scheduler cadence, defaulting to manual.
func (s *SettingsService) RunFrequency(ctx context.Context) (string, error) {
	value, ok, err := s.Get(ctx, model.SettingRunFrequency)
	if err != nil {
		return model.RunFrequencyManual, err
	}
	if !ok {
		return model.RunFrequencyManual, nil
	}
	value = strings.ToLower(strings.TrimSpace(value))
	if err := validateRunFrequency(value); err != nil {
		s.warn(ctx, "ignoring malformed run_frequency setting", "value", value)
		return model.RunFrequencyManual, nil
	}
	return value, nil
}

func validateRunFrequency(value string) error {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case model.RunFrequencyManual, model.RunFrequencyHourly, model.RunFrequencyDaily:
		return nil
	default:
		return apperrors.Validationf("run_frequency must be one of manual, hourly, daily; got %q", value)
	}
}

func (s *SettingsService) cacheGet(ctx context.Context, key string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	raw, err := s.cache.Get(ctx, settingsCachePrefix+key)
	if err != nil {
		s.warn(ctx, "settings cache read failed", "key", key, "error", err)
		return "", false
	}
	if raw == nil {
		return "", false
	}
	return string(raw), true
}

func (s *SettingsService) cacheSet(ctx context.Context, key, value string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, settingsCachePrefix+key, []byte(value), s.cacheTTL); err != nil {
		s.warn(ctx, "settings cache write failed", "key", key, "error", err)
	}
}

func (s *SettingsService) cacheDelete(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Delete(ctx, settingsCachePrefix+key); err != nil {
		s.warn(ctx, "settings cache invalidation failed", "key", key, "error", err)
	}
}

func (s *SettingsService) warn(ctx context.Context, msg string, args ...any) {
	if s.logger == nil {
		return
	}
	s.logger.WarnContext(ctx, msg, args...)
}

// Package mocks provides mock implementations for testing the ingest pipeline.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for our repository interfaces.
// The mocks are generated using go:generate directives and provide a fluent API for setting up test expectations.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	defer ctrl.Finish()
//	mockRuns := mocks.NewMockRunRepository(ctrl)
//	mockRuns.EXPECT().Create(gomock.Any(), gomock.Any()).Return(run, nil)
package mocks

// Generate mock for RunRepository interface from internal/core package.
// This creates MockRunRepository with methods for all RunRepository interface methods:
// Create, GetByID, List, SetPhase, UpdateStats, AppendLog, Finalize, ActiveRunExists, LatestScheduled
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=run_repository_mock.go github.com/zapply/ingest-api/internal/core RunRepository

// Generate mock for RunReaperRepository interface from internal/core package.
// This creates MockRunReaperRepository with methods for all RunReaperRepository interface methods:
// FailStaleRuns, DeleteOldRuns
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=run_reaper_repository_mock.go github.com/zapply/ingest-api/internal/core RunReaperRepository

// Generate mock for SourceRunRepository interface from internal/core package.
// This creates MockSourceRunRepository with methods for all SourceRunRepository interface methods:
// Create, GetByID, ListByRun, AppendLog, Complete, Fail
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=source_run_repository_mock.go github.com/zapply/ingest-api/internal/core SourceRunRepository

// Generate mock for JobRepository interface from internal/core package.
// This creates MockJobRepository with methods for all JobRepository interface methods:
// Insert, GetByID, GetBySourceKey, KnownSourceIDs, KnownResolvedURLs, ListByStatus, RecordMatchOutcome
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=job_repository_mock.go github.com/zapply/ingest-api/internal/core JobRepository

// Generate mock for SourceRepository interface from internal/core package.
// This creates MockSourceRepository with methods for all SourceRepository interface methods:
// Create, GetByName, List, ListEnabled, Update, Delete
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=source_repository_mock.go github.com/zapply/ingest-api/internal/core SourceRepository

// Generate mock for SettingRepository interface from internal/core package.
// This creates MockSettingRepository with methods for all SettingRepository interface methods:
// Get, Set, List
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=setting_repository_mock.go github.com/zapply/ingest-api/internal/core SettingRepository

// Generate mock for ProfileRepository interface from internal/core package.
// This creates MockProfileRepository with methods for all ProfileRepository interface methods:
// Get, Create
//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=profile_repository_mock.go github.com/zapply/ingest-api/internal/core ProfileRepository

// Generate mock for PipelineLock interface from internal/core package.
// This creates MockPipelineLock with methods for all PipelineLock interface methods:
// TryAcquire, Release, TerminateStaleHolder
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=pipeline_lock_mock.go github.com/zapply/ingest-api/internal/core PipelineLock

// Generate mock for Matcher interface from internal/core package.
// This creates MockMatcher with methods for all Matcher interface methods:
// MatchRun
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=matcher_mock.go github.com/zapply/ingest-api/internal/core Matcher

// Generate mock for CacheRepository interface from internal/core package.
// This creates MockCacheRepository with methods for all CacheRepository interface methods:
// Set, Get, Delete, Health
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/zapply/ingest-api/internal/core CacheRepository

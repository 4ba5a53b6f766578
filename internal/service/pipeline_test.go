package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/zapply/ingest-api/config"
	"github.com/zapply/ingest-api/internal/adapters/sources"
	"github.com/zapply/ingest-api/internal/data"
	"github.com/zapply/ingest-api/internal/domain/model"
	"github.com/zapply/ingest-api/internal/mocks"
	"github.com/zapply/ingest-api/internal/testutil"
)

// fakeAdapter is a scriptable source adapter for orchestrator tests.
type fakeAdapter struct {
	name     string
	jobs     []model.NormalizedJob
	err      error
	panicMsg string
	login    bool
}

func (f *fakeAdapter) Name() string        { return f.name }
func (f *fakeAdapter) Label() string       { return strings.ToUpper(f.name[:1]) + f.name[1:] }
func (f *fakeAdapter) RequiresLogin() bool { return f.login }

func (f *fakeAdapter) Scrape(_ context.Context, _ sources.ScrapeRequest) ([]model.NormalizedJob, error) {
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.jobs, f.err
}

// logCapture collects audit trail messages. Scrape tasks append concurrently.
type logCapture struct {
	mu       sync.Mutex
	messages []string
}

func (c *logCapture) append(entries ...model.RunLogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.messages = append(c.messages, e.Message)
	}
}

func (c *logCapture) contains(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

type pipelineFixture struct {
	runs       *mocks.MockRunRepository
	sourceRuns *mocks.MockSourceRunRepository
	jobs       *mocks.MockJobRepository
	srcRepo    *mocks.MockSourceRepository
	profiles   *mocks.MockProfileRepository
	lock       *mocks.MockPipelineLock
	matcher    *mocks.MockMatcher
	settings   *mocks.MockSettingRepository
	registry   *sources.Registry

	runLogs       *logCapture
	sourceRunLogs *logCapture
}

func newPipelineFixture(t *testing.T, ctrl *gomock.Controller, adapters ...sources.Adapter) *pipelineFixture {
	t.Helper()

	registry, err := sources.NewRegistry(adapters...)
	require.NoError(t, err)

	f := &pipelineFixture{
		runs:          mocks.NewMockRunRepository(ctrl),
		sourceRuns:    mocks.NewMockSourceRunRepository(ctrl),
		jobs:          mocks.NewMockJobRepository(ctrl),
		srcRepo:       mocks.NewMockSourceRepository(ctrl),
		profiles:      mocks.NewMockProfileRepository(ctrl),
		lock:          mocks.NewMockPipelineLock(ctrl),
		matcher:       mocks.NewMockMatcher(ctrl),
		settings:      mocks.NewMockSettingRepository(ctrl),
		registry:      registry,
		runLogs:       &logCapture{},
		sourceRunLogs: &logCapture{},
	}

	// No settings overrides unless a test installs some.
	f.settings.EXPECT().
		Get(gomock.Any(), gomock.Any()).
		Return(nil, data.ErrSettingNotFound).
		AnyTimes()

	f.runs.EXPECT().
		AppendLog(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, entries ...model.RunLogEntry) error {
			f.runLogs.append(entries...)
			return nil
		}).
		AnyTimes()
	f.sourceRuns.EXPECT().
		AppendLog(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, entries ...model.RunLogEntry) error {
			f.sourceRunLogs.append(entries...)
			return nil
		}).
		AnyTimes()

	return f
}

func (f *pipelineFixture) newService(t *testing.T, matcherEnabled bool) *PipelineService {
	t.Helper()

	opts := PipelineServiceOptions{
		Runs:       f.runs,
		SourceRuns: f.sourceRuns,
		Jobs:       f.jobs,
		Sources:    f.srcRepo,
		Profiles:   f.profiles,
		Lock:       f.lock,
		Registry:   f.registry,
		Config: config.PipelineConfig{
			LookBackDays:   1,
			SourceTimeout:  time.Minute,
			ResolveTimeout: time.Second,
		},
		MatcherConfig: config.MatcherConfig{Enabled: matcherEnabled},
		TimeProvider:  testutil.NewTestTimeProvider(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	if matcherEnabled {
		opts.Matcher = f.matcher
	}

	settings, err := NewSettingsService(SettingsServiceOptions{Repo: f.settings})
	require.NoError(t, err)
	opts.Settings = settings

	svc, err := NewPipelineService(opts)
	require.NoError(t, err)
	return svc
}

// expectLockAcquired scripts the straightforward lock path: first try wins,
// release happens exactly once.
func (f *pipelineFixture) expectLockAcquired() {
	f.lock.EXPECT().TryAcquire(gomock.Any()).Return(true, nil)
	f.lock.EXPECT().Release(gomock.Any()).Return(nil).Times(1)
}

func (f *pipelineFixture) expectProfile() {
	f.profiles.EXPECT().Get(gomock.Any()).Return(&model.Profile{ID: "profile-1"}, nil)
}

func (f *pipelineFixture) expectRunCreated(trigger model.TriggerType) *model.Run {
	run := &model.Run{
		ID:          "run-1",
		Status:      model.RunStatusRunning,
		Phase:       model.RunPhaseScraping,
		TriggerType: trigger,
		StartedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.runs.EXPECT().
		Create(gomock.Any(), &model.CreateRunRequest{TriggerType: trigger}).
		Return(run, nil)
	return run
}

// expectFinalize captures the finalize request and echoes it back as the run.
func (f *pipelineFixture) expectFinalize(captured **model.FinalizeRunRequest) {
	f.runs.EXPECT().
		Finalize(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.FinalizeRunRequest) (*model.Run, error) {
			*captured = req
			return &model.Run{ID: req.ID, Status: req.Status, ErrorMessage: req.ErrorMessage}, nil
		})
}

func enabledSource(name string, priority int) *model.Source {
	return &model.Source{Name: name, Enabled: true, Priority: priority}
}

func TestNewPipelineServiceValidation(t *testing.T) {
	_, err := NewPipelineService(PipelineServiceOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RunRepository is required")
}

func TestExecuteRejectsInvalidTrigger(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newPipelineFixture(t, ctrl)
	svc := f.newService(t, false)

	_, err := svc.Execute(context.Background(), model.TriggerType("cron"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid trigger type")
}

func TestExecuteLockHeldByActiveRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newPipelineFixture(t, ctrl)
	f.lock.EXPECT().TryAcquire(gomock.Any()).Return(false, nil)
	f.runs.EXPECT().ActiveRunExists(gomock.Any()).Return(true, nil)
	// A genuinely held lock is never released or terminated by the loser.
	f.lock.EXPECT().TerminateStaleHolder(gomock.Any()).Times(0)
	f.lock.EXPECT().Release(gomock.Any()).Times(0)
	f.runs.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)

	svc := f.newService(t, false)

	run, err := svc.Execute(context.Background(), model.TriggerManual)
	require.ErrorIs(t, err, ErrPipelineAlreadyRunning)
	assert.Nil(t, run)
}

func TestExecuteRecoversStaleLockHolder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newPipelineFixture(t, ctrl)
	gomock.InOrder(
		f.lock.EXPECT().TryAcquire(gomock.Any()).Return(false, nil),
		f.runs.EXPECT().ActiveRunExists(gomock.Any()).Return(false, nil),
		f.lock.EXPECT().TerminateStaleHolder(gomock.Any()).Return(true, nil),
		f.lock.EXPECT().TryAcquire(gomock.Any()).Return(true, nil),
	)
	f.lock.EXPECT().Release(gomock.Any()).Return(nil).Times(1)
	// Short-circuit after the lock: no profile means no run is created.
	f.profiles.EXPECT().Get(gomock.Any()).Return(nil, nil)
	f.runs.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)

	svc := f.newService(t, false)

	_, err := svc.Execute(context.Background(), model.TriggerManual)
	require.ErrorIs(t, err, ErrNoProfile)
}

func TestExecuteLockStillHeldAfterRecovery(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	f := newPipelineFixture(t, ctrl)
	gomock.InOrder(
		f.lock.EXPECT().TryAcquire(gomock.Any()).Return(false, nil),
		f.runs.EXPECT().ActiveRunExists(gomock.Any()).Return(false, nil),
		f.lock.EXPECT().TerminateStaleHolder(gomock.Any()).Return(true, nil),
		f.lock.EXPECT().TryAcquire(gomock.Any()).Return(false, nil),
	)
	f.lock.EXPECT().Release(gomock.Any()).Times(0)

	svc := f.newService(t, false)

	_, err := svc.Execute(context.Background(), model.TriggerManual)
	require.ErrorIs(t, err, ErrPipelineAlreadyRunning)
}

func TestExecuteNoEnabledSources(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// "orphan" is enabled in the database but has no registered adapter.
	f := newPipelineFixture(t, ctrl)
	f.expectLockAcquired()
	f.expectProfile()
	f.srcRepo.EXPECT().ListEnabled(gomock.Any()).Return([]*model.Source{enabledSource("orphan", 10)}, nil)
	f.runs.EXPECT().Create(gomock.Any(), gomock.Any()).Times(0)

	svc := f.newService(t, false)

	_, err := svc.Execute(context.Background(), model.TriggerManual)
	require.ErrorIs(t, err, ErrNoEnabledSources)
}

func TestExecuteCompletedRunDeduplicates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	alpha := &fakeAdapter{name: "alpha", jobs: []model.NormalizedJob{
		testutil.NewJob().WithSource("alpha").WithSourceID("a1").WithURL("https://example.com/jobs/1").Build(),
		testutil.NewJob().WithSource("alpha").WithSourceID("a2").WithURL("https://example.com/jobs/2").Build(),
	}}
	beta := &fakeAdapter{name: "beta", jobs: []model.NormalizedJob{
		// Same posting as alpha/a1 republished by a second board.
		testutil.NewJob().WithSource("beta").WithSourceID("b1").WithURL("https://example.com/jobs/1").Build(),
		testutil.NewJob().WithSource("beta").WithSourceID("b2").WithURL("https://example.com/jobs/3").Build(),
	}}

	f := newPipelineFixture(t, ctrl, alpha, beta)
	f.expectLockAcquired()
	f.expectProfile()
	f.srcRepo.EXPECT().ListEnabled(gomock.Any()).
		Return([]*model.Source{enabledSource("alpha", 10), enabledSource("beta", 20)}, nil)
	f.expectRunCreated(model.TriggerManual)

	f.sourceRuns.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.CreateSourceRunRequest) (*model.SourceRun, error) {
			return &model.SourceRun{ID: "sr-" + req.Source, RunID: req.RunID, Source: req.Source}, nil
		}).
		Times(2)

	// alpha/a2 is already persisted; everything else is unseen.
	f.jobs.EXPECT().KnownSourceIDs(gomock.Any(), "alpha").Return(map[string]struct{}{"a2": {}}, nil)
	f.jobs.EXPECT().KnownSourceIDs(gomock.Any(), "beta").Return(map[string]struct{}{}, nil)
	f.jobs.EXPECT().KnownResolvedURLs(gomock.Any()).Return(map[string]struct{}{}, nil)

	inserted := make([]string, 0, 2)
	f.jobs.EXPECT().
		Insert(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, job *model.NormalizedJob) (*model.Job, error) {
			inserted = append(inserted, job.Source+"/"+job.SourceID)
			return &model.Job{Source: job.Source, SourceID: job.SourceID}, nil
		}).
		Times(2)

	counts := make(map[string]model.SourceRunCounts)
	f.sourceRuns.EXPECT().
		Complete(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id string, c model.SourceRunCounts) error {
			counts[id] = c
			return nil
		}).
		Times(2)

	var stats *model.RunStats
	f.runs.EXPECT().
		UpdateStats(gomock.Any(), "run-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, s *model.RunStats) error {
			stats = s
			return nil
		})

	var finalized *model.FinalizeRunRequest
	f.expectFinalize(&finalized)

	svc := f.newService(t, false)

	run, err := svc.Execute(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusCompleted, run.Status)

	// The save pass walks sources in priority order, so insert order is fixed.
	assert.Equal(t, []string{"alpha/a1", "beta/b2"}, inserted)
	assert.Equal(t, model.SourceRunCounts{Found: 2, New: 1, Duplicate: 1}, counts["sr-alpha"])
	assert.Equal(t, model.SourceRunCounts{Found: 2, New: 1, Duplicate: 1}, counts["sr-beta"])

	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.SourcesTotal)
	assert.Equal(t, 2, stats.SourcesSucceeded)
	assert.Equal(t, 0, stats.SourcesFailed)
	assert.Equal(t, 4, stats.JobsFound)
	assert.Equal(t, 2, stats.JobsNew)
	assert.Equal(t, 2, stats.JobsDuplicate)

	require.NotNil(t, finalized)
	assert.Equal(t, model.RunStatusCompleted, finalized.Status)
	assert.Nil(t, finalized.ErrorMessage)
	assert.True(t, f.sourceRunLogs.contains("cross_source_duplicate"))
}

func TestExecuteSourceFailureDegradesToPartial(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	alpha := &fakeAdapter{name: "alpha", err: errors.New("upstream 503")}
	beta := &fakeAdapter{name: "beta", jobs: []model.NormalizedJob{
		testutil.NewJob().WithSource("beta").WithSourceID("b1").Build(),
	}}

	f := newPipelineFixture(t, ctrl, alpha, beta)
	f.expectLockAcquired()
	f.expectProfile()
	f.srcRepo.EXPECT().ListEnabled(gomock.Any()).
		Return([]*model.Source{enabledSource("alpha", 10), enabledSource("beta", 20)}, nil)
	f.expectRunCreated(model.TriggerManual)

	f.sourceRuns.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.CreateSourceRunRequest) (*model.SourceRun, error) {
			return &model.SourceRun{ID: "sr-" + req.Source, RunID: req.RunID, Source: req.Source}, nil
		}).
		Times(2)
	f.jobs.EXPECT().KnownSourceIDs(gomock.Any(), gomock.Any()).Return(map[string]struct{}{}, nil).Times(2)
	f.jobs.EXPECT().KnownResolvedURLs(gomock.Any()).Return(map[string]struct{}{}, nil)
	f.jobs.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(&model.Job{}, nil)

	f.sourceRuns.EXPECT().
		Fail(gomock.Any(), "sr-alpha", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, msg string) error {
			assert.Contains(t, msg, "upstream 503")
			return nil
		})
	f.sourceRuns.EXPECT().Complete(gomock.Any(), "sr-beta", gomock.Any()).Return(nil)

	var stats *model.RunStats
	f.runs.EXPECT().
		UpdateStats(gomock.Any(), "run-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, s *model.RunStats) error {
			stats = s
			return nil
		})

	var finalized *model.FinalizeRunRequest
	f.expectFinalize(&finalized)

	svc := f.newService(t, false)

	run, err := svc.Execute(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, run.Status)

	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.SourcesFailed)
	assert.Equal(t, 1, stats.SourcesSucceeded)
	assert.Equal(t, 1, stats.JobsNew)
	assert.True(t, f.runLogs.contains("source alpha failed"))
}

func TestExecuteAllSourcesFailedIsPartial(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	alpha := &fakeAdapter{name: "alpha", err: errors.New("down")}
	beta := &fakeAdapter{name: "beta", panicMsg: "nil dereference"}

	f := newPipelineFixture(t, ctrl, alpha, beta)
	f.expectLockAcquired()
	f.expectProfile()
	f.srcRepo.EXPECT().ListEnabled(gomock.Any()).
		Return([]*model.Source{enabledSource("alpha", 10), enabledSource("beta", 20)}, nil)
	f.expectRunCreated(model.TriggerManual)

	f.sourceRuns.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req *model.CreateSourceRunRequest) (*model.SourceRun, error) {
			return &model.SourceRun{ID: "sr-" + req.Source, RunID: req.RunID, Source: req.Source}, nil
		}).
		Times(2)
	f.jobs.EXPECT().KnownSourceIDs(gomock.Any(), gomock.Any()).Return(map[string]struct{}{}, nil).Times(2)
	f.jobs.EXPECT().KnownResolvedURLs(gomock.Any()).Return(map[string]struct{}{}, nil)
	f.sourceRuns.EXPECT().Fail(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	f.runs.EXPECT().UpdateStats(gomock.Any(), "run-1", gomock.Any()).Return(nil)
	var finalized *model.FinalizeRunRequest
	f.expectFinalize(&finalized)

	svc := f.newService(t, false)

	// Source failures are state, not structural errors, even when every
	// source fails: the run still finalizes as partial.
	run, err := svc.Execute(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, run.Status)
	assert.True(t, f.runLogs.contains("adapter panic"))
}

func TestExecuteMatchingSkippedWhenDisabled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	alpha := &fakeAdapter{name: "alpha", jobs: []model.NormalizedJob{
		testutil.NewJob().WithSource("alpha").WithSourceID("a1").Build(),
	}}

	f := newPipelineFixture(t, ctrl, alpha)
	f.expectLockAcquired()
	f.expectProfile()
	f.srcRepo.EXPECT().ListEnabled(gomock.Any()).Return([]*model.Source{enabledSource("alpha", 10)}, nil)
	f.expectRunCreated(model.TriggerManual)
	f.sourceRuns.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(&model.SourceRun{ID: "sr-alpha", RunID: "run-1", Source: "alpha"}, nil)
	f.jobs.EXPECT().KnownSourceIDs(gomock.Any(), "alpha").Return(map[string]struct{}{}, nil)
	f.jobs.EXPECT().KnownResolvedURLs(gomock.Any()).Return(map[string]struct{}{}, nil)
	f.jobs.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(&model.Job{}, nil)
	f.sourceRuns.EXPECT().Complete(gomock.Any(), "sr-alpha", gomock.Any()).Return(nil)
	f.runs.EXPECT().UpdateStats(gomock.Any(), "run-1", gomock.Any()).Return(nil)
	f.runs.EXPECT().SetPhase(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	var finalized *model.FinalizeRunRequest
	f.expectFinalize(&finalized)

	svc := f.newService(t, false)

	run, err := svc.Execute(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.True(t, f.runLogs.contains("matching skipped: matcher disabled"))
}

func TestExecuteMatchingSkippedWhenNoNewJobs(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	alpha := &fakeAdapter{name: "alpha"} // zero postings is a valid scrape

	f := newPipelineFixture(t, ctrl, alpha)
	f.expectLockAcquired()
	f.expectProfile()
	f.srcRepo.EXPECT().ListEnabled(gomock.Any()).Return([]*model.Source{enabledSource("alpha", 10)}, nil)
	f.expectRunCreated(model.TriggerManual)
	f.sourceRuns.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(&model.SourceRun{ID: "sr-alpha", RunID: "run-1", Source: "alpha"}, nil)
	f.jobs.EXPECT().KnownSourceIDs(gomock.Any(), "alpha").Return(map[string]struct{}{}, nil)
	f.jobs.EXPECT().KnownResolvedURLs(gomock.Any()).Return(map[string]struct{}{}, nil)
	f.sourceRuns.EXPECT().Complete(gomock.Any(), "sr-alpha", gomock.Any()).Return(nil)
	f.runs.EXPECT().UpdateStats(gomock.Any(), "run-1", gomock.Any()).Return(nil)

	f.matcher.EXPECT().MatchRun(gomock.Any(), gomock.Any()).Times(0)
	f.runs.EXPECT().SetPhase(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	var finalized *model.FinalizeRunRequest
	f.expectFinalize(&finalized)

	svc := f.newService(t, true)

	run, err := svc.Execute(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.True(t, f.runLogs.contains("matching skipped: no new jobs"))
}

func TestExecuteMatchingMergesStats(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	alpha := &fakeAdapter{name: "alpha", jobs: []model.NormalizedJob{
		testutil.NewJob().WithSource("alpha").WithSourceID("a1").Build(),
		testutil.NewJob().WithSource("alpha").WithSourceID("a2").WithURL("https://example.com/jobs/2").Build(),
	}}

	f := newPipelineFixture(t, ctrl, alpha)
	f.expectLockAcquired()
	f.expectProfile()
	f.srcRepo.EXPECT().ListEnabled(gomock.Any()).Return([]*model.Source{enabledSource("alpha", 10)}, nil)
	f.expectRunCreated(model.TriggerManual)
	f.sourceRuns.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(&model.SourceRun{ID: "sr-alpha", RunID: "run-1", Source: "alpha"}, nil)
	f.jobs.EXPECT().KnownSourceIDs(gomock.Any(), "alpha").Return(map[string]struct{}{}, nil)
	f.jobs.EXPECT().KnownResolvedURLs(gomock.Any()).Return(map[string]struct{}{}, nil)
	f.jobs.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(&model.Job{}, nil).Times(2)
	f.sourceRuns.EXPECT().Complete(gomock.Any(), "sr-alpha", gomock.Any()).Return(nil)

	f.runs.EXPECT().SetPhase(gomock.Any(), "run-1", model.RunPhaseMatching).Return(nil)
	f.matcher.EXPECT().
		MatchRun(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, run *model.Run) (model.MatchStats, error) {
			assert.Equal(t, model.RunPhaseMatching, run.Phase)
			return model.MatchStats{Matched: 1, Rejected: 1}, nil
		})

	var lastStats *model.RunStats
	f.runs.EXPECT().
		UpdateStats(gomock.Any(), "run-1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, s *model.RunStats) error {
			lastStats = s
			return nil
		}).
		Times(2)

	var finalized *model.FinalizeRunRequest
	f.expectFinalize(&finalized)

	svc := f.newService(t, true)

	run, err := svc.Execute(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, run.Status)

	require.NotNil(t, lastStats)
	assert.Equal(t, 2, lastStats.JobsNew)
	assert.Equal(t, 1, lastStats.Matched)
	assert.Equal(t, 1, lastStats.Rejected)
	assert.True(t, f.runLogs.contains("matching finished"))
}

func TestExecuteStructuralFailureFinalizesFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	alpha := &fakeAdapter{name: "alpha", jobs: []model.NormalizedJob{
		testutil.NewJob().WithSource("alpha").WithSourceID("a1").Build(),
	}}

	f := newPipelineFixture(t, ctrl, alpha)
	f.expectLockAcquired()
	f.expectProfile()
	f.srcRepo.EXPECT().ListEnabled(gomock.Any()).Return([]*model.Source{enabledSource("alpha", 10)}, nil)
	f.expectRunCreated(model.TriggerManual)
	f.sourceRuns.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(&model.SourceRun{ID: "sr-alpha", RunID: "run-1", Source: "alpha"}, nil)
	f.jobs.EXPECT().KnownSourceIDs(gomock.Any(), "alpha").Return(map[string]struct{}{}, nil)
	f.jobs.EXPECT().KnownResolvedURLs(gomock.Any()).Return(map[string]struct{}{}, nil)
	f.jobs.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(&model.Job{}, nil)
	f.sourceRuns.EXPECT().Complete(gomock.Any(), "sr-alpha", gomock.Any()).Return(nil)

	f.runs.EXPECT().UpdateStats(gomock.Any(), "run-1", gomock.Any()).
		Return(errors.New("connection reset"))

	var finalized *model.FinalizeRunRequest
	f.expectFinalize(&finalized)

	svc := f.newService(t, false)

	run, err := svc.Execute(context.Background(), model.TriggerManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")

	require.NotNil(t, finalized)
	assert.Equal(t, model.RunStatusFailed, finalized.Status)
	require.NotNil(t, finalized.ErrorMessage)
	assert.Contains(t, *finalized.ErrorMessage, "connection reset")

	// The finalized run comes back to the caller alongside the error.
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusFailed, run.Status)
}

func TestExecuteMissingCredentialsFailsSource(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	gated := &fakeAdapter{name: "gated", login: true}

	f := newPipelineFixture(t, ctrl, gated)
	f.expectLockAcquired()
	f.expectProfile()
	src := enabledSource("gated", 10)
	src.CredentialsEnvPrefix = "NO_SUCH_PREFIX_ZZZ"
	f.srcRepo.EXPECT().ListEnabled(gomock.Any()).Return([]*model.Source{src}, nil)
	f.expectRunCreated(model.TriggerManual)
	f.sourceRuns.EXPECT().Create(gomock.Any(), gomock.Any()).
		Return(&model.SourceRun{ID: "sr-gated", RunID: "run-1", Source: "gated"}, nil)
	f.sourceRuns.EXPECT().
		Fail(gomock.Any(), "sr-gated", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, msg string) error {
			assert.Contains(t, msg, "credentials not configured")
			return nil
		})
	f.jobs.EXPECT().KnownResolvedURLs(gomock.Any()).Return(map[string]struct{}{}, nil)
	f.runs.EXPECT().UpdateStats(gomock.Any(), "run-1", gomock.Any()).Return(nil)

	var finalized *model.FinalizeRunRequest
	f.expectFinalize(&finalized)

	svc := f.newService(t, false)

	run, err := svc.Execute(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPartial, run.Status)
}

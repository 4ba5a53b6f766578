package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zapply/ingest-api/config"
	"github.com/zapply/ingest-api/internal/adapters/matcher"
	"github.com/zapply/ingest-api/internal/adapters/sources"
	"github.com/zapply/ingest-api/internal/adapters/sources/apifeed"
	"github.com/zapply/ingest-api/internal/adapters/sources/rssfeed"
	"github.com/zapply/ingest-api/internal/data"
	"github.com/zapply/ingest-api/internal/observability/notify/pagerduty"
	"github.com/zapply/ingest-api/internal/observability/notify/slack"
	"github.com/zapply/ingest-api/internal/observability/statsd"
	"github.com/zapply/ingest-api/internal/service"
	"github.com/zapply/ingest-api/internal/service/failurenotifier"
	"github.com/zapply/ingest-api/internal/urlutil"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Pipeline      *service.PipelineService
	Scheduler     *service.SchedulerService
	Reaper        *service.ReaperService
	Sources       *service.SourceService
	Settings      *service.SettingsService
	Registry      *sources.Registry
	Repos         *serviceRepositories
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink     *statsd.Client
	MetricsConfig   config.ObservabilityMetricsConfig
	FailureNotifier *failurenotifier.Service
	NotifierConfig  config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB          *sql.DB
	Redis       redis.UniversalClient
	RunRepo     *data.RunRepo
	SourceRuns  *data.SourceRunRepo
	JobRepo     *data.JobRepo
	SourceRepo  *data.SourceRepo
	SettingRepo *data.SettingRepo
	ProfileRepo *data.ProfileRepo
	CacheRepo   *data.RedisCacheRepo
	Lock        *data.PgPipelineLock
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "zapply",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	failureNotifier := buildFailureNotifier(obsLogger, cfg.Notifications)

	return ObservabilityContainer{
		MetricsSink:     metricsSink,
		MetricsConfig:   cfg.Metrics,
		FailureNotifier: failureNotifier,
		NotifierConfig:  cfg.Notifications,
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, redisClient redis.UniversalClient, logger *slog.Logger) *serviceRepositories {
	repos := &serviceRepositories{
		DB:          db,
		Redis:       redisClient,
		RunRepo:     data.NewRunRepo(db, data.RepoConfig{Logger: logger}),
		SourceRuns:  data.NewSourceRunRepo(db, data.RepoConfig{Logger: logger}),
		JobRepo:     data.NewJobRepo(db, data.RepoConfig{Logger: logger}),
		SourceRepo:  data.NewSourceRepo(db),
		SettingRepo: data.NewSettingRepo(db),
		ProfileRepo: data.NewProfileRepo(db),
		Lock:        data.NewPgPipelineLock(db, data.PgPipelineLockConfig{Logger: logger}),
	}
	if redisClient != nil {
		repos.CacheRepo = data.NewRedisCacheRepo(redisClient)
	}
	return repos
}

// buildSourceRegistry registers the source adapters compiled into this
// binary. Each registered name corresponds to a row in the sources table;
// the row's settings JSON selects endpoints, field mappings, or feed URLs.
func buildSourceRegistry(cfg config.PipelineConfig, logger *slog.Logger) (*sources.Registry, error) {
	var adapters []sources.Adapter

	collect := func(adapter sources.Adapter, err error) {
		if err != nil {
			logger.Error("failed to build source adapter", "error", err)
			return
		}
		adapters = append(adapters, adapter)
	}

	collect(apifeed.New(apifeed.Options{
		Name:              "remotive",
		Label:             "Remotive",
		RequestsPerSecond: cfg.RequestsPerSecond,
	}))
	collect(apifeed.New(apifeed.Options{
		Name:              "jobicy",
		Label:             "Jobicy",
		RequestsPerSecond: cfg.RequestsPerSecond,
	}))
	collect(rssfeed.New(rssfeed.Options{
		Name:              "weworkremotely",
		Label:             "We Work Remotely",
		RequestsPerSecond: cfg.RequestsPerSecond,
	}))

	return sources.NewRegistry(adapters...)
}

// NewServices constructs the full service graph from shared dependencies.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var cfg config.AppConfig
	if deps.Config != nil {
		cfg = *deps.Config
	}

	observability := buildObservability(logger, cfg.Observability)
	repos := buildRepositories(deps.DB, deps.RedisClient, logger)
	registry, err := buildSourceRegistry(cfg.Pipeline, logger)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build source registry: %w", err)
	}

	settingsOpts := service.SettingsServiceOptions{
		Repo:     repos.SettingRepo,
		CacheTTL: cfg.Cache.SettingsTTL,
		Logger:   logger,
	}
	if repos.CacheRepo != nil {
		settingsOpts.Cache = repos.CacheRepo
	}
	settings, err := service.NewSettingsService(settingsOpts)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build settings service: %w", err)
	}

	sourceSvc, err := service.NewSourceService(service.SourceServiceOptions{
		Repo:     repos.SourceRepo,
		Registry: registry,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build source service: %w", err)
	}

	reaper, err := service.NewReaperService(service.ReaperServiceOptions{
		Repo:    repos.RunRepo,
		Config:  cfg.Reaper,
		Logger:  logger,
		Metrics: observability.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build reaper service: %w", err)
	}

	matchSvc, err := matcher.New(matcher.Options{
		Jobs:           repos.JobRepo,
		Profiles:       repos.ProfileRepo,
		Runs:           repos.RunRepo,
		ScoreThreshold: cfg.Matcher.ScoreThreshold,
		Logger:         logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build matcher: %w", err)
	}

	pipeline, err := service.NewPipelineService(service.PipelineServiceOptions{
		Runs:          repos.RunRepo,
		SourceRuns:    repos.SourceRuns,
		Jobs:          repos.JobRepo,
		Sources:       repos.SourceRepo,
		Profiles:      repos.ProfileRepo,
		Lock:          repos.Lock,
		Registry:      registry,
		Settings:      settings,
		Matcher:       matchSvc,
		Reaper:        reaper,
		Notifier:      observability.FailureNotifier,
		Resolver:      urlutil.NewResolver(nil),
		Config:        cfg.Pipeline,
		MatcherConfig: cfg.Matcher,
		Logger:        logger,
		Metrics:       observability.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build pipeline service: %w", err)
	}

	scheduler, err := service.NewSchedulerService(service.SchedulerServiceOptions{
		Pipeline: pipeline,
		Settings: settings,
		Runs:     repos.RunRepo,
		Config:   cfg.Scheduler,
		Logger:   logger,
		Metrics:  observability.MetricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build scheduler service: %w", err)
	}

	return ServiceContainer{
		Pipeline:      pipeline,
		Scheduler:     scheduler,
		Reaper:        reaper,
		Sources:       sourceSvc,
		Settings:      settings,
		Registry:      registry,
		Repos:         repos,
		Observability: observability,
	}, nil
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	baseLogger := logger
	if baseLogger == nil {
		baseLogger = slog.Default()
	}

	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{
			Logger: baseLogger.With("component", "failure_notifier"),
		})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			RunURLPrefix: cfg.Slack.RunURLPrefix,
		})
		if err != nil {
			baseLogger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "slack",
				Sink: client,
			})
		}
	}

	if cfg.PagerDuty.Enabled {
		client, err := pagerduty.NewClient(pagerduty.Config{
			RoutingKey: cfg.PagerDuty.RoutingKey,
			Source:     cfg.PagerDuty.Source,
			Component:  cfg.PagerDuty.Component,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			baseLogger.Error("failed to initialise pagerduty notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{
				Name: "pagerduty",
				Sink: client,
			})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: baseLogger.With("component", "failure_notifier"),
		Sinks:  sinks,
	})
}

// ServiceOrchestrationConfig groups everything RunServicesWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	mode config.ServiceMode
	name string
	done <-chan struct{}
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started",
		"service", descriptor.name, "mode", descriptor.mode)

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			mode: svc.mode,
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newSchedulerBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeScheduler,
		name: "scheduler",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var schedulerCfg config.SchedulerConfig
			if deps.cfg.Config != nil {
				schedulerCfg = deps.cfg.Config.Scheduler
			}
			return RunScheduler(ctx, SchedulerRunnerConfig{
				DB:       deps.cfg.DB,
				Pipeline: deps.cfg.Services.Pipeline,
				Settings: deps.cfg.Services.Settings,
				Config:   schedulerCfg,
				Logger:   deps.logger,
				Metrics:  deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var reaperCfg config.ReaperConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}
			return RunReaper(ctx, ReaperRunnerConfig{
				DB:      deps.cfg.DB,
				Config:  reaperCfg,
				Logger:  deps.logger,
				Metrics: deps.cfg.Services.Observability.MetricsSink,
			})
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newSchedulerBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, errorChannelBufferSize(enabledServices))

	deps := &serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	}
	handles := startBackgroundServices(deps, buildBackgroundServices(deps))

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		logger:      logger,
		backgrounds: handles,
	})
}

func errorChannelBufferSize(enabled map[config.ServiceMode]bool) int {
	size := len(enabled) + 1
	if size < 1 {
		return 1
	}
	return size
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop waits for background services to finish.
func gracefulStop(cfg shutdownConfig) error {
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}
	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}

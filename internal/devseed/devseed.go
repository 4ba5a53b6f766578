// Package devseed populates a development database with a profile, source
// rows, and pipeline settings so a fresh checkout can run the pipeline
// end to end.
package devseed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zapply/ingest-api/internal/data"
	"github.com/zapply/ingest-api/internal/domain/model"
)

// Services bundles the repositories needed for development seeding.
type Services struct {
	DB       *sql.DB
	profiles *data.ProfileRepo
	sources  *data.SourceRepo
	settings *data.SettingRepo
}

// NewServices constructs the repositories for seeding using the provided DB.
func NewServices(db *sql.DB) Services {
	return Services{
		DB:       db,
		profiles: data.NewProfileRepo(db),
		sources:  data.NewSourceRepo(db),
		settings: data.NewSettingRepo(db),
	}
}

// Run executes the full development seeding workflow against the provided DB.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	failures := 0
	failures += seedProfile(ctx, svcs.profiles, logger)
	failures += seedSources(ctx, svcs.sources, logger)
	failures += seedSettings(ctx, svcs.settings, logger)
	if failures > 0 {
		return fmt.Errorf("%d seed errors; check logs", failures)
	}
	return nil
}

func seedProfile(ctx context.Context, repo *data.ProfileRepo, logger *slog.Logger) int {
	existing, err := repo.Get(ctx)
	if err != nil {
		logError(ctx, logger, "failed to load profile", err)
		return 1
	}
	if existing != nil {
		logInfo(ctx, logger, "profile already exists", "name", existing.Name)
		return 0
	}

	preferences, _ := json.Marshal(map[string]any{
		"remote_only":  true,
		"min_salary":   90000,
		"company_size": "any",
	})
	_, err = repo.Create(ctx, &model.CreateProfileRequest{
		Name:        "Dev User",
		Email:       "dev@example.com",
		Location:    "Remote",
		Rate:        "$95/hr",
		Skills:      []string{"go", "postgresql", "kubernetes", "terraform", "python"},
		Preferences: preferences,
	})
	if err != nil {
		if errors.Is(err, data.ErrProfileExists) {
			return 0
		}
		logError(ctx, logger, "failed to create profile", err)
		return 1
	}
	logInfo(ctx, logger, "seeded development profile")
	return 0
}

func seedSources(ctx context.Context, repo *data.SourceRepo, logger *slog.Logger) int {
	remotiveSettings, _ := json.Marshal(map[string]any{
		"endpoint": "https://remotive.com/api/remote-jobs",
		"auth":     "none",
		"fields": map[string]string{
			"items":       "jobs",
			"source_id":   "id",
			"url":         "url",
			"title":       "title",
			"company":     "company_name",
			"description": "description",
			"location":    "candidate_required_location",
			"salary":      "salary",
			"tags":        "tags",
			"posted_at":   "publication_date",
		},
	})
	jobicySettings, _ := json.Marshal(map[string]any{
		"endpoint": "https://jobicy.com/api/v2/remote-jobs",
		"auth":     "none",
		"fields": map[string]string{
			"items":       "jobs",
			"source_id":   "id",
			"url":         "url",
			"title":       "jobTitle",
			"company":     "companyName",
			"description": "jobDescription",
			"location":    "jobGeo",
			"tags":        "jobIndustry",
			"posted_at":   "pubDate",
		},
	})
	wwrSettings, _ := json.Marshal(map[string]any{
		"feed_urls": []string{
			"https://weworkremotely.com/categories/remote-programming-jobs.rss",
			"https://weworkremotely.com/categories/remote-devops-sysadmin-jobs.rss",
		},
	})

	seeds := []model.CreateSourceRequest{
		{Name: "remotive", Label: "Remotive", Enabled: true, Priority: 10, Settings: remotiveSettings},
		{Name: "jobicy", Label: "Jobicy", Enabled: true, Priority: 20, Settings: jobicySettings},
		{Name: "weworkremotely", Label: "We Work Remotely", Enabled: true, Priority: 30, Settings: wwrSettings},
	}

	failures := 0
	for i := range seeds {
		req := &seeds[i]
		_, err := repo.Create(ctx, req)
		if err != nil {
			if errors.Is(err, data.ErrSourceNameExists) {
				logInfo(ctx, logger, "source already exists", "source", req.Name)
				continue
			}
			logError(ctx, logger, "failed to create source", err, "source", req.Name)
			failures++
			continue
		}
		logInfo(ctx, logger, "seeded source", "source", req.Name)
	}
	return failures
}

func seedSettings(ctx context.Context, repo *data.SettingRepo, logger *slog.Logger) int {
	defaults := map[string]string{
		model.SettingRunFrequency: model.RunFrequencyManual,
		model.SettingLookBackDays: "1",
		model.SettingJobLimit:     "0",
	}

	failures := 0
	for key, value := range defaults {
		if _, err := repo.Get(ctx, key); err == nil {
			continue
		} else if !errors.Is(err, data.ErrSettingNotFound) {
			logError(ctx, logger, "failed to read setting", err, "key", key)
			failures++
			continue
		}
		if _, err := repo.Set(ctx, key, value); err != nil {
			logError(ctx, logger, "failed to seed setting", err, "key", key)
			failures++
			continue
		}
		logInfo(ctx, logger, "seeded setting", "key", key, "value", value)
	}
	return failures
}

func logInfo(ctx context.Context, logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.InfoContext(ctx, msg, args...)
	}
}

func logError(ctx context.Context, logger *slog.Logger, msg string, err error, args ...any) {
	if logger != nil {
		logger.ErrorContext(ctx, msg, append([]any{"error", err}, args...)...)
	}
}

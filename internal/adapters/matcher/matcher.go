// Package matcher scores newly ingested postings against the user profile.
// The current scorer is deliberately simple keyword overlap; it exists so
// the pipeline's matching phase has real semantics while an LLM-backed
// scorer is developed behind the same interface.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/zapply/ingest-api/internal/core"
	"github.com/zapply/ingest-api/internal/data"
	"github.com/zapply/ingest-api/internal/domain/model"
)

// listBatchSize bounds how many new postings one MatchRun call pulls per
// repository query.
const listBatchSize = 200

var tokenRe = regexp.MustCompile(`[a-z0-9][a-z0-9+#.\-]*`)

// Options groups dependencies for Service.
type Options struct {
	Jobs     core.JobRepository     // Required
	Profiles core.ProfileRepository // Required
	Runs     core.RunRepository     // Required: audit trail

	// ScoreThreshold is the minimum overlap score for a matched verdict.
	ScoreThreshold float64
	Logger         *slog.Logger // Optional
}

// Service implements core.Matcher with keyword-overlap scoring.
type Service struct {
	jobs      core.JobRepository
	profiles  core.ProfileRepository
	runs      core.RunRepository
	threshold float64
	logger    *slog.Logger
}

// New constructs a matcher Service.
func New(opts Options) (*Service, error) {
	switch {
	case opts.Jobs == nil:
		return nil, errors.New("JobRepository is required")
	case opts.Profiles == nil:
		return nil, errors.New("ProfileRepository is required")
	case opts.Runs == nil:
		return nil, errors.New("RunRepository is required")
	}
	if opts.ScoreThreshold <= 0 || opts.ScoreThreshold > 1 {
		return nil, fmt.Errorf("score threshold must be in (0, 1], got %v", opts.ScoreThreshold)
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "matcher")
	}

	return &Service{
		jobs:      opts.Jobs,
		profiles:  opts.Profiles,
		runs:      opts.Runs,
		threshold: opts.ScoreThreshold,
		logger:    logger,
	}, nil
}

// MatchRun scores every posting currently in status new against the profile
// and stamps a matched or rejected verdict on each. A missing profile or a
// failing repository read aborts the phase; a verdict that cannot be stamped
// on an individual job only increments the errored counter.
func (s *Service) MatchRun(ctx context.Context, run *model.Run) (model.MatchStats, error) {
	var stats model.MatchStats

	profile, err := s.profiles.Get(ctx)
	if err != nil {
		return stats, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return stats, errors.New("no profile configured")
	}

	skills := skillTokens(profile.Skills)
	if len(skills) == 0 {
		return stats, errors.New("profile has no skills to match against")
	}

	for {
		batch, err := s.jobs.ListByStatus(ctx, model.JobStatusNew, listBatchSize)
		if err != nil {
			return stats, fmt.Errorf("list new jobs: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		var stamped int
		for _, job := range batch {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			outcome := s.score(job, skills)
			if err := s.jobs.RecordMatchOutcome(ctx, outcome); err != nil {
				if errors.Is(err, data.ErrJobNotFound) {
					// Another writer already moved the job out of new.
					continue
				}
				stats.Errored++
				if s.logger != nil {
					s.logger.WarnContext(ctx, "failed to record match outcome",
						"job_id", job.ID, "error", err)
				}
				continue
			}
			stamped++
			if outcome.Status == model.JobStatusMatched {
				stats.Matched++
			} else {
				stats.Rejected++
			}
		}

		// A batch where nothing left the new status would loop forever on
		// the same rows.
		if len(batch) < listBatchSize || stamped == 0 {
			break
		}
	}

	s.appendRunLog(ctx, run.ID, fmt.Sprintf("matcher verdicts: matched=%d rejected=%d errored=%d threshold=%.2f",
		stats.Matched, stats.Rejected, stats.Errored, s.threshold))
	return stats, nil
}

// score computes the fraction of profile skills that appear in the posting's
// text. Tags count double weight because they are the source's own
// classification of the posting.
func (s *Service) score(job *model.Job, skills map[string]struct{}) *model.MatchOutcome {
	text := tokens(jobText(job))
	tags := tokens(strings.Join(job.Tags, " "))

	var hits float64
	var matched []string
	for skill := range skills {
		switch {
		case containsAll(tags, strings.Fields(skill)):
			hits += 2
			matched = append(matched, skill)
		case containsAll(text, strings.Fields(skill)):
			hits++
			matched = append(matched, skill)
		}
	}

	score := hits / float64(2*len(skills))
	if score > 1 {
		score = 1
	}

	status := model.JobStatusRejected
	reasoning := fmt.Sprintf("matched %d of %d profile skills", len(matched), len(skills))
	if score >= s.threshold {
		status = model.JobStatusMatched
		reasoning = fmt.Sprintf("matched skills: %s", strings.Join(matched, ", "))
	}

	return &model.MatchOutcome{
		JobID:     job.ID,
		Status:    status,
		Score:     score,
		Reasoning: reasoning,
	}
}

func (s *Service) appendRunLog(ctx context.Context, runID, message string) {
	entry := model.RunLogEntry{
		Timestamp: time.Now().UTC(),
		Level:     model.LogLevelInfo,
		Message:   message,
	}
	if err := s.runs.AppendLog(ctx, runID, entry); err != nil && s.logger != nil {
		s.logger.WarnContext(ctx, "failed to append run log", "run_id", runID, "error", err)
	}
}

func jobText(job *model.Job) string {
	parts := []string{job.Title, job.Company, job.Description}
	if job.Requirements != nil {
		parts = append(parts, *job.Requirements)
	}
	return strings.Join(parts, " ")
}

// skillTokens lowercases and trims the profile's skill list, dropping empties.
func skillTokens(skills []string) map[string]struct{} {
	out := make(map[string]struct{}, len(skills))
	for _, skill := range skills {
		skill = strings.ToLower(strings.TrimSpace(skill))
		if skill != "" {
			out[skill] = struct{}{}
		}
	}
	return out
}

// tokens extracts the lowercase word set of a text blob. The token pattern
// keeps suffix characters so terms like c++, c# and node.js survive.
func tokens(text string) map[string]struct{} {
	words := tokenRe.FindAllString(strings.ToLower(text), -1)
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

// containsAll reports whether every word of a multi-word skill is present.
func containsAll(set map[string]struct{}, words []string) bool {
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

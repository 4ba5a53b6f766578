// Package testutil provides testing utilities and helpers for the ingest pipeline.
package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/zapply/ingest-api/internal/domain/model"
)

// JobBuilder provides a fluent interface for building NormalizedJob values for testing.
type JobBuilder struct {
	job *model.NormalizedJob
}

// NewJob creates a JobBuilder with sensible defaults.
func NewJob() *JobBuilder {
	return &JobBuilder{
		job: &model.NormalizedJob{
			Source:      "remotive",
			SourceID:    "job-1",
			URL:         "https://example.com/jobs/1",
			Title:       "Backend Engineer",
			Company:     "Example Corp",
			Description: "Build and run ingestion services.",
			RawData:     json.RawMessage(`{"id":"job-1"}`),
		},
	}
}

// WithSource sets the source name.
func (b *JobBuilder) WithSource(source string) *JobBuilder {
	b.job.Source = source
	return b
}

// WithSourceID sets the source-scoped identifier.
func (b *JobBuilder) WithSourceID(id string) *JobBuilder {
	b.job.SourceID = id
	return b
}

// WithURL sets the posting URL.
func (b *JobBuilder) WithURL(url string) *JobBuilder {
	b.job.URL = url
	return b
}

// WithResolvedURL sets the canonical resolved URL.
func (b *JobBuilder) WithResolvedURL(url string) *JobBuilder {
	b.job.ResolvedURL = &url
	return b
}

// WithTitle sets the posting title.
func (b *JobBuilder) WithTitle(title string) *JobBuilder {
	b.job.Title = title
	return b
}

// WithTags sets the posting tags.
func (b *JobBuilder) WithTags(tags ...string) *JobBuilder {
	b.job.Tags = tags
	return b
}

// Build returns the built NormalizedJob.
func (b *JobBuilder) Build() model.NormalizedJob {
	return *b.job
}

// NewJobs builds n distinct jobs for one source, numbered from 1.
func NewJobs(source string, n int) []model.NormalizedJob {
	jobs := make([]model.NormalizedJob, 0, n)
	for i := 1; i <= n; i++ {
		jobs = append(jobs, NewJob().
			WithSource(source).
			WithSourceID(fmt.Sprintf("%s-%d", source, i)).
			WithURL(fmt.Sprintf("https://example.com/%s/jobs/%d", source, i)).
			Build())
	}
	return jobs
}

// SourceBuilder provides a fluent interface for building CreateSourceRequest values.
type SourceBuilder struct {
	req *model.CreateSourceRequest
}

// NewSource creates a SourceBuilder with sensible defaults.
func NewSource(name string) *SourceBuilder {
	return &SourceBuilder{
		req: &model.CreateSourceRequest{
			Name:    name,
			Label:   name,
			Enabled: true,
		},
	}
}

// WithPriority sets the dedup priority.
func (b *SourceBuilder) WithPriority(p int) *SourceBuilder {
	b.req.Priority = p
	return b
}

// WithEnabled toggles the source.
func (b *SourceBuilder) WithEnabled(enabled bool) *SourceBuilder {
	b.req.Enabled = enabled
	return b
}

// WithSettings sets the adapter settings JSON.
func (b *SourceBuilder) WithSettings(settings json.RawMessage) *SourceBuilder {
	b.req.Settings = settings
	return b
}

// Build returns the built request.
func (b *SourceBuilder) Build() *model.CreateSourceRequest {
	return b.req
}

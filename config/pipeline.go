package config

import "time"

// PipelineConfig contains ingestion pipeline configuration.
type PipelineConfig struct {
	// LookBackDays is the default number of days each source adapter looks back
	// for postings when the app_settings store does not override it.
	LookBackDays int `env:"PIPELINE_LOOK_BACK_DAYS" envDefault:"1"`

	// SourceTimeout bounds a single source adapter's scrape. A source that
	// exceeds it fails on its own; siblings are unaffected.
	SourceTimeout time.Duration `env:"PIPELINE_SOURCE_TIMEOUT" envDefault:"10m"`

	// ResolveTimeout bounds a single redirect-resolution HEAD request.
	ResolveTimeout time.Duration `env:"PIPELINE_RESOLVE_TIMEOUT" envDefault:"10s"`

	// RequestsPerSecond rate-limits each adapter's outbound HTTP requests.
	RequestsPerSecond float64 `env:"PIPELINE_REQUESTS_PER_SECOND" envDefault:"2"`
}

// Sanitize applies guardrails to pipeline configuration values.
func (p *PipelineConfig) Sanitize() {
	if p.LookBackDays < 1 {
		p.LookBackDays = 1
	}
	if p.SourceTimeout < 30*time.Second {
		p.SourceTimeout = 30 * time.Second
	}
	if p.ResolveTimeout <= 0 {
		p.ResolveTimeout = 10 * time.Second
	}
	if p.RequestsPerSecond <= 0 {
		p.RequestsPerSecond = 2
	}
}

// MatcherConfig contains matcher stage configuration.
type MatcherConfig struct {
	// Enabled toggles the matching phase. When disabled, runs finalize after
	// the save pass with the matching phase recorded as skipped.
	Enabled bool `env:"MATCHER_ENABLED" envDefault:"true"`

	// ScoreThreshold is the minimum score for a job to be marked matched.
	ScoreThreshold float64 `env:"MATCHER_SCORE_THRESHOLD" envDefault:"0.35"`
}

// Sanitize applies guardrails to matcher configuration values.
func (m *MatcherConfig) Sanitize() {
	if m.ScoreThreshold < 0 {
		m.ScoreThreshold = 0
	}
	if m.ScoreThreshold > 1 {
		m.ScoreThreshold = 1
	}
}

package metrics

import (
	"time"

	obserrors "github.com/zapply/ingest-api/internal/observability/errors"
	"github.com/zapply/ingest-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// RunMetric captures details about a pipeline run lifecycle event for metric emission.
type RunMetric struct {
	TriggerType string
	Stage       string
	Result      string
	Duration    time.Duration
	Err         error
}

// EmitRunLifecycle emits standardised run lifecycle metrics.
func EmitRunLifecycle(sink statsd.Sink, in RunMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"trigger_type": in.TriggerType,
		"stage":        in.Stage,
		"result":       in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("run.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("run.duration", in.Duration, CloneTags(tags))
	}
}

// SourceScrapeMetric captures details about one source's scrape within a run.
type SourceScrapeMetric struct {
	Source   string
	Result   string
	Duration time.Duration
	JobsNew  int
	Err      error
}

// EmitSourceScrape emits per-source scrape metrics.
func EmitSourceScrape(sink statsd.Sink, in SourceScrapeMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"source": in.Source,
		"result": in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("scrape.completed", 1, tags)
	sink.Count("scrape.jobs_new", int64(in.JobsNew), CloneTags(tags))

	if in.Duration > 0 {
		sink.Timing("scrape.duration", in.Duration, CloneTags(tags))
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

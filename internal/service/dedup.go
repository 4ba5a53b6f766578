package service

import (
	"github.com/zapply/ingest-api/internal/domain/model"
)

// DedupVerdict is the deduplicator's decision for one candidate posting.
type DedupVerdict int

const (
	// VerdictNew means the posting has not been seen before.
	VerdictNew DedupVerdict = iota
	// VerdictSameSource means (source, source_id) is already persisted.
	VerdictSameSource
	// VerdictCrossSource means another source already produced a posting
	// with the same resolved URL, either in a prior run or earlier in the
	// current save pass.
	VerdictCrossSource
)

// String returns the verdict name for logging.
func (v DedupVerdict) String() string {
	switch v {
	case VerdictNew:
		return "new"
	case VerdictSameSource:
		return "same_source_duplicate"
	case VerdictCrossSource:
		return "cross_source_duplicate"
	default:
		return "unknown"
	}
}

// Deduplicator decides whether candidate postings are repeats. It layers two
// identity checks: the per-source (source, source_id) sets loaded by each
// scrape task, and a resolved-URL set combining persisted state with URLs
// accumulated during the current save pass. It is not safe for concurrent
// use; the save pass is single-threaded on purpose so check-then-insert
// cannot race.
type Deduplicator struct {
	knownIDs     map[string]map[string]struct{}
	persistedURL map[string]struct{}
	passURL      map[string]struct{}
}

// NewDeduplicator builds a Deduplicator over the persisted resolved-URL set.
// Per-source identity sets are registered via AddSourceIDs as scrape tasks
// hand over their results.
func NewDeduplicator(persistedURLs map[string]struct{}) *Deduplicator {
	if persistedURLs == nil {
		persistedURLs = make(map[string]struct{})
	}
	return &Deduplicator{
		knownIDs:     make(map[string]map[string]struct{}),
		persistedURL: persistedURLs,
		passURL:      make(map[string]struct{}),
	}
}

// AddSourceIDs registers the persisted source_id set for one source.
func (d *Deduplicator) AddSourceIDs(source string, ids map[string]struct{}) {
	if ids == nil {
		ids = make(map[string]struct{})
	}
	d.knownIDs[source] = ids
}

// Check classifies a candidate. It does not mutate state; call Observe after
// the posting is actually persisted.
func (d *Deduplicator) Check(job *model.NormalizedJob) DedupVerdict {
	if ids, ok := d.knownIDs[job.Source]; ok {
		if _, dup := ids[job.SourceID]; dup {
			return VerdictSameSource
		}
	}

	if url := resolvedURL(job); url != "" {
		if _, dup := d.persistedURL[url]; dup {
			return VerdictCrossSource
		}
		if _, dup := d.passURL[url]; dup {
			return VerdictCrossSource
		}
	}

	return VerdictNew
}

// Observe records a persisted posting so later candidates in the same pass
// dedup against it, including candidates from other sources.
func (d *Deduplicator) Observe(job *model.NormalizedJob) {
	ids, ok := d.knownIDs[job.Source]
	if !ok {
		ids = make(map[string]struct{})
		d.knownIDs[job.Source] = ids
	}
	ids[job.SourceID] = struct{}{}

	if url := resolvedURL(job); url != "" {
		d.passURL[url] = struct{}{}
	}
}

func resolvedURL(job *model.NormalizedJob) string {
	if job.ResolvedURL == nil {
		return ""
	}
	return *job.ResolvedURL
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zapply/ingest-api/internal/testutil"
)

func TestDedupSameSourcePersisted(t *testing.T) {
	d := NewDeduplicator(nil)
	d.AddSourceIDs("remotive", map[string]struct{}{"job-1": {}})

	job := testutil.NewJob().WithSource("remotive").WithSourceID("job-1").Build()
	assert.Equal(t, VerdictSameSource, d.Check(&job))

	fresh := testutil.NewJob().WithSource("remotive").WithSourceID("job-2").Build()
	assert.Equal(t, VerdictNew, d.Check(&fresh))
}

func TestDedupSameIDAcrossSourcesIsNotSameSource(t *testing.T) {
	d := NewDeduplicator(nil)
	d.AddSourceIDs("remotive", map[string]struct{}{"job-1": {}})
	d.AddSourceIDs("jobicy", map[string]struct{}{})

	// Identifiers only collide within a source.
	job := testutil.NewJob().WithSource("jobicy").WithSourceID("job-1").Build()
	assert.Equal(t, VerdictNew, d.Check(&job))
}

func TestDedupCrossSourcePersistedURL(t *testing.T) {
	d := NewDeduplicator(map[string]struct{}{
		"https://example.com/jobs/1": {},
	})
	d.AddSourceIDs("jobicy", map[string]struct{}{})

	job := testutil.NewJob().
		WithSource("jobicy").
		WithSourceID("j-9").
		WithResolvedURL("https://example.com/jobs/1").
		Build()
	assert.Equal(t, VerdictCrossSource, d.Check(&job))
}

func TestDedupCrossSourceWithinPass(t *testing.T) {
	d := NewDeduplicator(nil)
	d.AddSourceIDs("remotive", map[string]struct{}{})
	d.AddSourceIDs("jobicy", map[string]struct{}{})

	first := testutil.NewJob().
		WithSource("remotive").
		WithSourceID("r-1").
		WithResolvedURL("https://example.com/jobs/1").
		Build()
	assert.Equal(t, VerdictNew, d.Check(&first))
	d.Observe(&first)

	// The same posting arriving from a lower-priority source in the same
	// pass dedups against the accumulated set, not just persisted state.
	second := testutil.NewJob().
		WithSource("jobicy").
		WithSourceID("j-1").
		WithResolvedURL("https://example.com/jobs/1").
		Build()
	assert.Equal(t, VerdictCrossSource, d.Check(&second))
}

func TestDedupCheckDoesNotMutate(t *testing.T) {
	d := NewDeduplicator(nil)
	d.AddSourceIDs("remotive", map[string]struct{}{})

	job := testutil.NewJob().
		WithSource("remotive").
		WithSourceID("r-1").
		WithResolvedURL("https://example.com/jobs/1").
		Build()

	// Checking twice without Observe keeps the verdict stable: only
	// persisted postings join the identity sets.
	assert.Equal(t, VerdictNew, d.Check(&job))
	assert.Equal(t, VerdictNew, d.Check(&job))
}

func TestDedupObserveRegistersSourceID(t *testing.T) {
	d := NewDeduplicator(nil)

	job := testutil.NewJob().WithSource("remotive").WithSourceID("r-1").Build()
	d.Observe(&job)

	assert.Equal(t, VerdictSameSource, d.Check(&job))
}

func TestDedupNilResolvedURLSkipsCrossSourceCheck(t *testing.T) {
	d := NewDeduplicator(map[string]struct{}{
		"https://example.com/jobs/1": {},
	})
	d.AddSourceIDs("remotive", map[string]struct{}{})

	// Resolution failed for this posting; it can only dedup by source ID.
	job := testutil.NewJob().WithSource("remotive").WithSourceID("r-1").Build()
	assert.Equal(t, VerdictNew, d.Check(&job))
}

func TestDedupVerdictString(t *testing.T) {
	assert.Equal(t, "new", VerdictNew.String())
	assert.Equal(t, "same_source_duplicate", VerdictSameSource.String())
	assert.Equal(t, "cross_source_duplicate", VerdictCrossSource.String())
	assert.Equal(t, "unknown", DedupVerdict(99).String())
}

package sources

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapply/ingest-api/internal/domain/model"
)

type stubAdapter struct {
	name string
}

func (s *stubAdapter) Name() string        { return s.name }
func (s *stubAdapter) Label() string       { return s.name }
func (s *stubAdapter) RequiresLogin() bool { return false }

func (s *stubAdapter) Scrape(context.Context, ScrapeRequest) ([]model.NormalizedJob, error) {
	return nil, nil
}

func TestRegistryGet(t *testing.T) {
	r, err := NewRegistry(&stubAdapter{name: "remotive"})
	require.NoError(t, err)

	a, err := r.Get("remotive")
	require.NoError(t, err)
	assert.Equal(t, "remotive", a.Name())

	_, err = r.Get("ghost")
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(&stubAdapter{name: "remotive"}, &stubAdapter{name: "remotive"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryRejectsInvalidAdapters(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)

	require.Error(t, r.Register(nil))
	require.Error(t, r.Register(&stubAdapter{}))
}

func TestRegistryNamesSorted(t *testing.T) {
	r, err := NewRegistry(
		&stubAdapter{name: "weworkremotely"},
		&stubAdapter{name: "jobicy"},
		&stubAdapter{name: "remotive"},
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"jobicy", "remotive", "weworkremotely"}, r.Names())

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, "jobicy", all[0].Name())
}

func TestScrapeRequestReport(t *testing.T) {
	var got []string
	req := ScrapeRequest{Progress: func(msg string) { got = append(got, msg) }}
	req.Report("page %d", 3)
	assert.Equal(t, []string{"page 3"}, got)

	// Nil progress callbacks are tolerated.
	none := ScrapeRequest{}
	none.Report("ignored")
}

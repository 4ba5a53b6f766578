// Package sources defines the adapter contract job boards are scraped
// through. Each adapter translates one external site or API into the shared
// normalized posting shape. Adapters are registered by name; the registry is
// the authoritative list the database sources table is synced against.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/zapply/ingest-api/internal/domain/model"
)

// Progress receives human-readable progress messages during a scrape. The
// orchestrator appends them to the source run's audit trail. Implementations
// must be safe to call from the adapter's goroutine.
type Progress func(message string)

// ScrapeRequest carries everything an adapter needs for one scrape.
type ScrapeRequest struct {
	// LookBackDays bounds how far back postings are collected. Zero means
	// the adapter's default.
	LookBackDays int
	// JobLimit caps how many postings the adapter may return. Zero means
	// unlimited.
	JobLimit int
	// KnownIDs holds source_id values already persisted for this source.
	// Adapters may use it to stop paginating early; the orchestrator still
	// deduplicates authoritatively.
	KnownIDs map[string]struct{}
	// Credentials are resolved from the environment via the source's
	// credentials_env_prefix. Empty when the source requires no login.
	Credentials model.SourceCredentials
	// Settings is the source's JSON settings document from the database.
	Settings json.RawMessage
	// Progress is an optional progress callback. May be nil.
	Progress Progress
}

// Report emits a progress message when a callback is configured.
func (r *ScrapeRequest) Report(format string, args ...any) {
	if r.Progress == nil {
		return
	}
	r.Progress(fmt.Sprintf(format, args...))
}

// Adapter is one scrapeable job source.
type Adapter interface {
	// Name is the stable registry identifier, e.g. "remoteok".
	Name() string
	// Label is the human-readable display name.
	Label() string
	// RequiresLogin reports whether the source needs credentials.
	RequiresLogin() bool
	// Scrape collects postings and returns them in normalized form. A nil
	// error with zero postings is a valid outcome.
	Scrape(ctx context.Context, req ScrapeRequest) ([]model.NormalizedJob, error)
}

// ErrNotRegistered is returned when a requested adapter name is unknown.
var ErrNotRegistered = errors.New("source adapter not registered")

// Registry holds the available adapters keyed by name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters.
// Duplicate names are an error.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter to the registry.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return errors.New("adapter is required")
	}
	name := a.Name()
	if name == "" {
		return errors.New("adapter name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("adapter %q already registered", name)
	}
	r.adapters[name] = a
	return nil
}

// Get returns the adapter registered under name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return a, nil
}

// Names returns all registered adapter names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns all registered adapters ordered by name.
func (r *Registry) All() []Adapter {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapters := make([]Adapter, 0, len(names))
	for _, name := range names {
		adapters = append(adapters, r.adapters[name])
	}
	return adapters
}

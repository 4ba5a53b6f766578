package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zapply/ingest-api/internal/adapters/sources"
	"github.com/zapply/ingest-api/internal/core"
	"github.com/zapply/ingest-api/internal/data"
	"github.com/zapply/ingest-api/internal/domain/model"
	apperrors "github.com/zapply/ingest-api/internal/errors"
)

// SourceServiceOptions groups dependencies for SourceService.
type SourceServiceOptions struct {
	Repo     core.SourceRepository // Required
	Registry *sources.Registry     // Required: adapters available in this build
	Logger   *slog.Logger          // Optional
}

// SourceService manages source configuration rows and keeps them aligned
// with the adapters compiled into the binary.
type SourceService struct {
	repo     core.SourceRepository
	registry *sources.Registry
	logger   *slog.Logger
}

// NewSourceService constructs a new SourceService.
func NewSourceService(opts SourceServiceOptions) (*SourceService, error) {
	switch {
	case opts.Repo == nil:
		return nil, errors.New("SourceRepository is required")
	case opts.Registry == nil:
		return nil, errors.New("source registry is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "source_service")
	}

	return &SourceService{
		repo:     opts.Repo,
		registry: opts.Registry,
		logger:   logger,
	}, nil
}

// Create registers a new source row. The name must have a registered
// adapter; a row without one would never be scraped.
func (s *SourceService) Create(ctx context.Context, req *model.CreateSourceRequest) (*model.Source, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	if _, err := s.registry.Get(req.Name); err != nil {
		return nil, apperrors.Validationf("no adapter registered for source %q", req.Name)
	}

	created, err := s.repo.Create(ctx, req)
	if err != nil {
		if errors.Is(err, data.ErrSourceNameExists) {
			return nil, apperrors.Conflictf("source %q already exists", req.Name)
		}
		return nil, fmt.Errorf("create source: %w", err)
	}
	return created, nil
}

// Get returns a source by name.
func (s *SourceService) Get(ctx context.Context, name string) (*model.Source, error) {
	src, err := s.repo.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, data.ErrSourceNotFound) {
			return nil, apperrors.NotFoundf("source %q not found", name)
		}
		return nil, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

// List returns all configured sources ordered by priority.
func (s *SourceService) List(ctx context.Context) ([]*model.Source, error) {
	return s.repo.List(ctx)
}

// Update applies a partial update to a source row.
func (s *SourceService) Update(ctx context.Context, name string, req model.UpdateSourceRequest) (*model.Source, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	updated, err := s.repo.Update(ctx, name, req)
	if err != nil {
		if errors.Is(err, data.ErrSourceNotFound) {
			return nil, apperrors.NotFoundf("source %q not found", name)
		}
		return nil, fmt.Errorf("update source: %w", err)
	}
	return updated, nil
}

// Delete removes a source row. Jobs already ingested from it are kept.
func (s *SourceService) Delete(ctx context.Context, name string) error {
	deleted, err := s.repo.Delete(ctx, name)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if !deleted {
		return apperrors.NotFoundf("source %q not found", name)
	}
	return nil
}

// SyncWithRegistry ensures every registered adapter has a sources row, so a
// freshly deployed adapter shows up for operators without manual setup. New
// rows start disabled; enabling a source stays an explicit operator action.
// Existing rows are left untouched. Rows whose adapter is no longer compiled
// into the binary are reported as orphans but kept.
func (s *SourceService) SyncWithRegistry(ctx context.Context) error {
	existing, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}
	registered := make(map[string]struct{})
	for _, name := range s.registry.Names() {
		registered[name] = struct{}{}
	}

	byName := make(map[string]struct{}, len(existing))
	var orphans []string
	for _, src := range existing {
		byName[src.Name] = struct{}{}
		if _, ok := registered[src.Name]; !ok {
			orphans = append(orphans, src.Name)
		}
	}
	if len(orphans) > 0 && s.logger != nil {
		s.logger.WarnContext(ctx, "sources have no registered adapter",
			"sources", strings.Join(orphans, ","))
	}

	for _, name := range s.registry.Names() {
		if _, ok := byName[name]; ok {
			continue
		}
		adapter, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		_, err = s.repo.Create(ctx, &model.CreateSourceRequest{
			Name:    name,
			Label:   adapter.Label(),
			Enabled: false,
		})
		if err != nil {
			if errors.Is(err, data.ErrSourceNameExists) {
				continue
			}
			return fmt.Errorf("register source %s: %w", name, err)
		}
		if s.logger != nil {
			s.logger.InfoContext(ctx, "registered new source from adapter registry", "source", name)
		}
	}
	return nil
}

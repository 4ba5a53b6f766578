package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zapply/ingest-api/internal/data/pgxutil"
	"github.com/zapply/ingest-api/internal/domain/model"
	apperrors "github.com/zapply/ingest-api/internal/errors"
)

// SourceRepo provides database operations for scraper source registrations.
type SourceRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewSourceRepo creates a new SourceRepo instance with the given database connection.
func NewSourceRepo(db *sql.DB) *SourceRepo {
	return &SourceRepo{
		DB:           db,
		timeProvider: &RealTimeProvider{},
	}
}

const sourceColumns = `
  id,
  name,
  label,
  description,
  enabled,
  priority,
  settings,
  credentials_env_prefix,
  created_at,
  updated_at
`

// Create registers a new source.
func (r *SourceRepo) Create(ctx context.Context, req *model.CreateSourceRequest) (*model.Source, error) {
	if req == nil {
		return nil, errors.New("create source request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := r.timeProvider.Now().UTC()

	settings := req.Settings
	if len(settings) == 0 {
		settings = []byte("{}")
	}

	var source model.Source
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO sources (
				id, name, label, description, enabled, priority,
				settings, credentials_env_prefix, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
			RETURNING `+sourceColumns,
			id, req.Name, req.Label, req.Description, req.Enabled, req.Priority,
			settings, req.CredentialsEnvPrefix, now)
		if err != nil {
			return err
		}
		defer rows.Close()
		source, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Source])
		return err
	})
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, ErrSourceNameExists
		}
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	return &source, nil
}

// GetByName retrieves a source by its registry name.
func (r *SourceRepo) GetByName(ctx context.Context, name string) (*model.Source, error) {
	var source model.Source
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+sourceColumns+` FROM sources WHERE name = $1`, name)
		if err != nil {
			return err
		}
		defer rows.Close()
		source, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Source])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSourceNotFound
		}
		return nil, fmt.Errorf("failed to get source by name: %w", err)
	}
	return &source, nil
}

// List retrieves all sources ordered by priority, then name.
func (r *SourceRepo) List(ctx context.Context) ([]*model.Source, error) {
	return r.list(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY priority, name`)
}

// ListEnabled retrieves enabled sources ordered by priority, then name.
func (r *SourceRepo) ListEnabled(ctx context.Context) ([]*model.Source, error) {
	return r.list(ctx, `SELECT `+sourceColumns+` FROM sources WHERE enabled ORDER BY priority, name`)
}

// Update applies partial updates to a source identified by name.
func (r *SourceRepo) Update(ctx context.Context, name string, req model.UpdateSourceRequest) (*model.Source, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now().UTC()

	query := `UPDATE sources SET updated_at = $1`
	args := []any{now, name}
	if req.Enabled != nil {
		args = append(args, *req.Enabled)
		query += fmt.Sprintf(", enabled = $%d", len(args))
	}
	if req.Priority != nil {
		args = append(args, *req.Priority)
		query += fmt.Sprintf(", priority = $%d", len(args))
	}
	if len(req.Settings) > 0 {
		args = append(args, req.Settings)
		query += fmt.Sprintf(", settings = $%d", len(args))
	}
	query += ` WHERE name = $2 RETURNING ` + sourceColumns

	var source model.Source
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		source, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Source])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSourceNotFound
		}
		return nil, fmt.Errorf("failed to update source: %w", err)
	}
	return &source, nil
}

// Delete removes a source by name. Returns false when no source matched.
func (r *SourceRepo) Delete(ctx context.Context, name string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sources WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("delete source: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete source rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *SourceRepo) list(ctx context.Context, query string) ([]*model.Source, error) {
	var sources []*model.Source
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		sources, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Source])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

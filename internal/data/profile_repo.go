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

// ProfileRepo provides database operations for the singleton user profile.
type ProfileRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewProfileRepo creates a new ProfileRepo instance with the given database connection.
func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{
		DB:           db,
		timeProvider: &RealTimeProvider{},
	}
}

const profileColumns = `
  id,
  name,
  email,
  location,
  rate,
  skills,
  preferences,
  custom_instructions,
  created_at,
  updated_at
`

// Get returns the user profile, or nil when none has been created yet.
func (r *ProfileRepo) Get(ctx context.Context) (*model.Profile, error) {
	var profile model.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at LIMIT 1`)
		if err != nil {
			return err
		}
		defer rows.Close()
		profile, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Profile])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

// Create inserts the user profile. Only one profile may exist.
func (r *ProfileRepo) Create(ctx context.Context, req *model.CreateProfileRequest) (*model.Profile, error) {
	if req == nil {
		return nil, errors.New("create profile request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := r.timeProvider.Now().UTC()

	skills := req.Skills
	if skills == nil {
		skills = []string{}
	}
	preferences := req.Preferences
	if len(preferences) == 0 {
		preferences = []byte("{}")
	}

	var profile model.Profile
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO profiles (id, name, email, location, rate, skills, preferences, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
			RETURNING `+profileColumns,
			id, req.Name, req.Email, req.Location, req.Rate, skills, preferences, now)
		if err != nil {
			return err
		}
		defer rows.Close()
		profile, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Profile])
		return err
	})
	if err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, ErrProfileExists
		}
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	return &profile, nil
}

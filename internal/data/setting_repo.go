package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/zapply/ingest-api/internal/data/pgxutil"
	"github.com/zapply/ingest-api/internal/domain/model"
)

// SettingRepo provides database operations for the app_settings key-value store.
type SettingRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewSettingRepo creates a new SettingRepo instance with the given database connection.
func NewSettingRepo(db *sql.DB) *SettingRepo {
	return &SettingRepo{
		DB:           db,
		timeProvider: &RealTimeProvider{},
	}
}

// Get retrieves a setting by key.
func (r *SettingRepo) Get(ctx context.Context, key string) (*model.Setting, error) {
	if err := model.ValidateSettingKey(key); err != nil {
		return nil, err
	}

	var setting model.Setting
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT key, value, updated_at FROM app_settings WHERE key = $1`, key)
		if err != nil {
			return err
		}
		defer rows.Close()
		setting, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Setting])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingNotFound
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	return &setting, nil
}

// Set upserts a setting value.
func (r *SettingRepo) Set(ctx context.Context, key, value string) (*model.Setting, error) {
	if err := model.ValidateSettingKey(key); err != nil {
		return nil, err
	}

	now := r.timeProvider.Now().UTC()

	var setting model.Setting
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO app_settings (key, value, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
			RETURNING key, value, updated_at`,
			key, value, now)
		if err != nil {
			return err
		}
		defer rows.Close()
		setting, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Setting])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set setting: %w", err)
	}
	return &setting, nil
}

// List retrieves all settings ordered by key.
func (r *SettingRepo) List(ctx context.Context) ([]*model.Setting, error) {
	var settings []*model.Setting
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT key, value, updated_at FROM app_settings ORDER BY key`)
		if err != nil {
			return err
		}
		defer rows.Close()
		settings, err = pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[model.Setting])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return settings, nil
}

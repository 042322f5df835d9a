package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/vdavid/vmail/desktop/internal/models"
	_ "modernc.org/sqlite"
)

type sqliteMigration struct {
	version int
	sql     string
}

var sqliteMigrations = []sqliteMigration{
	{
		version: 1,
		sql: `
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);
			CREATE TABLE IF NOT EXISTS preferences (
				profile    TEXT PRIMARY KEY,
				data       TEXT NOT NULL,
				updated_at DATETIME NOT NULL
			);
			INSERT INTO schema_version (version) VALUES (1);`,
	},
}

// SQLitePreferences stores preference records in a local SQLite file.
type SQLitePreferences struct {
	db      *sqlx.DB
	profile string
}

// NewSQLitePreferences opens (or creates) the database at path and applies pending migrations.
func NewSQLitePreferences(path, profile string) (*SQLitePreferences, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLitePreferences{db: db, profile: profile}
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLitePreferences) Close() error {
	return s.db.Close()
}

func (s *SQLitePreferences) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(&tableCount, "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}
	}

	for _, m := range sqliteMigrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("failed to apply migration v%d: %w", m.version, err)
		}
	}
	return nil
}

// LoadPreferences returns the stored record, or the defaults when the profile has none.
func (s *SQLitePreferences) LoadPreferences(ctx context.Context) (models.Preferences, error) {
	var data string
	err := s.db.GetContext(ctx, &data, "SELECT data FROM preferences WHERE profile = ?", s.profile)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DefaultPreferences(), nil
	}
	if err != nil {
		return models.Preferences{}, fmt.Errorf("failed to get preferences: %w", err)
	}

	prefs := models.DefaultPreferences()
	if err := json.Unmarshal([]byte(data), &prefs); err != nil {
		return models.Preferences{}, fmt.Errorf("failed to decode preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences inserts or replaces the profile's record.
func (s *SQLitePreferences) SavePreferences(ctx context.Context, prefs models.Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO preferences (profile, data, updated_at)
		VALUES (?, ?, ?)`,
		s.profile, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

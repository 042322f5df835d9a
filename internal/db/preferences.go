package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/vmail/desktop/internal/models"
)

// PreferenceRepository stores one preference record per profile as JSONB.
type PreferenceRepository struct {
	pool    *pgxpool.Pool
	profile string
}

func NewPreferenceRepository(pool *pgxpool.Pool, profile string) *PreferenceRepository {
	return &PreferenceRepository{pool: pool, profile: profile}
}

// LoadPreferences returns the stored record, or the defaults when the profile has none.
func (r *PreferenceRepository) LoadPreferences(ctx context.Context) (models.Preferences, error) {
	var data []byte
	err := r.pool.QueryRow(ctx, `
		SELECT data FROM preferences WHERE profile = $1
	`, r.profile).Scan(&data)

	if errors.Is(err, pgx.ErrNoRows) {
		return models.DefaultPreferences(), nil
	}
	if err != nil {
		return models.Preferences{}, fmt.Errorf("failed to get preferences: %w", err)
	}

	prefs := models.DefaultPreferences()
	if err := json.Unmarshal(data, &prefs); err != nil {
		return models.Preferences{}, fmt.Errorf("failed to decode preferences: %w", err)
	}
	return prefs, nil
}

// SavePreferences inserts or replaces the profile's record.
func (r *PreferenceRepository) SavePreferences(ctx context.Context, prefs models.Preferences) error {
	data, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO preferences (profile, data)
		VALUES ($1, $2)
		ON CONFLICT (profile) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = now()
	`, r.profile, data)

	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

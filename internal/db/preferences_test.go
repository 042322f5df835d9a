package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/vmail/desktop/internal/models"
	"github.com/vdavid/vmail/desktop/internal/testutil"
)

func TestPreferenceRepository(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, pool))
	// Migrations are idempotent.
	require.NoError(t, Migrate(ctx, pool))

	repo := NewPreferenceRepository(pool, "default")

	t.Run("returns defaults for a new profile", func(t *testing.T) {
		prefs, err := repo.LoadPreferences(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.DefaultPreferences(), prefs)
	})

	t.Run("saves and overwrites the record", func(t *testing.T) {
		prefs := models.DefaultPreferences()
		prefs.Theme = models.ThemeDark
		require.NoError(t, repo.SavePreferences(ctx, prefs))

		prefs.NotificationStatus = models.AccountNotifications(map[string]bool{"alice@example.com": false})
		require.NoError(t, repo.SavePreferences(ctx, prefs))

		loaded, err := repo.LoadPreferences(ctx)
		require.NoError(t, err)
		assert.Equal(t, prefs, loaded)
	})

	t.Run("profiles are independent", func(t *testing.T) {
		other := NewPreferenceRepository(pool, "work")
		loaded, err := other.LoadPreferences(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.DefaultPreferences(), loaded)
	})
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("should use defaults when file is missing", func(t *testing.T) {
		// when
		cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))

		// then
		require.NoError(t, err)
		assert.Equal(t, ":8181", cfg.Listen)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "storage/images", cfg.Storage.ImageDir)
		assert.True(t, cfg.RateLimit.Enabled)
	})

	t.Run("should override defaults from file and environment", func(t *testing.T) {
		// given
		path := filepath.Join(t.TempDir(), "application.yaml")
		content := []byte("system:\n  name: planner\n  adminuuid: admin-1\ndb:\n  host: db.internal\n  port: 6543\n")
		require.NoError(t, os.WriteFile(path, content, 0o600))
		t.Setenv("GROUPLAN_DB_USER", "from_env")

		// when
		cfg, err := Load(path)

		// then
		require.NoError(t, err)
		assert.Equal(t, "planner", cfg.System.Name)
		assert.Equal(t, "admin-1", cfg.System.AdminUuid)
		assert.Equal(t, "db.internal", cfg.Database.Host)
		assert.Equal(t, 6543, cfg.Database.Port)
		assert.Equal(t, "from_env", cfg.Database.User)
	})

	t.Run("should fail on malformed yaml", func(t *testing.T) {
		// given
		path := filepath.Join(t.TempDir(), "application.yaml")
		require.NoError(t, os.WriteFile(path, []byte("db: [unclosed"), 0o600))

		// when
		_, err := Load(path)

		// then
		assert.Error(t, err)
	})
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func useTempConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ejrbom_config.json")
	prev := configFilePath
	SetConfigFilePath(path)
	t.Cleanup(func() { SetConfigFilePath(prev) })

	for _, k := range []string{"MAPPING_DB_PATH", "LISTEN_ADDR", "LOG_LEVEL", "EJ_SOURCE", "EJ_DB_DRIVER", "EJ_DB_DSN", "EJ_CSV_PATH", "RBOM_BASE_URL", "RBOM_API_KEY"} {
		t.Setenv(k, "")
	}
	return path
}

func TestLoadConfigDefaultsWhenFileMissing(t *testing.T) {
	useTempConfig(t)

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "./ejrbom.db", c.DatabasePath)
	assert.Equal(t, "2025-07-01", c.CutoffDate)
	assert.Equal(t, "csv", c.EJ.Mode)
	assert.Equal(t, 30, c.RBOM.TimeoutSeconds)
	assert.Equal(t, c, GetConfig())

	cutoff, err := c.Cutoff()
	require.NoError(t, err)
	assert.Equal(t, 2025, cutoff.Year())
}

func TestSaveThenLoadWithEnvOverride(t *testing.T) {
	path := useTempConfig(t)

	saved := defaults()
	saved.DatabasePath = "/data/mapping.db"
	saved.EJ = EJConfig{Mode: "sql", Driver: "sqlite3", DSN: "ej.db"}
	saved.RBOM.BaseURL = "http://rbom.local"
	saved.RBOM.APIKey = "from-file"
	require.NoError(t, SaveConfig(saved))

	_, err := os.Stat(path)
	require.NoError(t, err)

	t.Setenv("RBOM_API_KEY", "from-env")
	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/data/mapping.db", c.DatabasePath)
	assert.Equal(t, "sql", c.EJ.Mode)
	assert.Equal(t, "sqlite3", c.EJ.Driver)
	assert.Equal(t, "http://rbom.local", c.RBOM.BaseURL)
	assert.Equal(t, "from-env", c.RBOM.APIKey)
	assert.Equal(t, 10, c.RBOM.CacheTTLMinutes)
}

func TestSaveConfigRejectsInvalid(t *testing.T) {
	useTempConfig(t)

	bad := defaults()
	bad.EJ.Mode = "oracle"
	assert.Error(t, SaveConfig(bad))

	bad = defaults()
	bad.EJ = EJConfig{Mode: "sql"}
	assert.Error(t, SaveConfig(bad))

	bad = defaults()
	bad.CutoffDate = "2025/07/01"
	assert.Error(t, SaveConfig(bad))
}

func TestLoadConfigRejectsBrokenFile(t *testing.T) {
	path := useTempConfig(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := LoadConfig()
	assert.Error(t, err)
}

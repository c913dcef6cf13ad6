package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/victornm/flashgame/internal/config"
)

type testConfig struct {
	HTTP struct {
		Port int32
	}

	Game struct {
		Name          string
		SweepInterval time.Duration
		WriteAttempts int
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoad(t *testing.T) {
	p := writeFile(t, "config.yaml", `
http:
  port: 9000
game:
  name: from-file
  writeAttempts: 5
`)
	t.Setenv("GAME_NAME", "from-env")

	var c testConfig
	c.Game.SweepInterval = 5 * time.Second
	c.Game.WriteAttempts = 3

	require.NoError(t, config.Load(p, &c))
	require.Equal(t, int32(9000), c.HTTP.Port)
	require.Equal(t, "from-env", c.Game.Name, "environment overrides the file")
	require.Equal(t, 5, c.Game.WriteAttempts, "the file overrides defaults")
	require.Equal(t, 5*time.Second, c.Game.SweepInterval, "defaults survive when the file is silent")
}

func TestLoad_MissingFile(t *testing.T) {
	var c testConfig
	require.Error(t, config.Load(filepath.Join(t.TempDir(), "missing.yaml"), &c))
}

func TestLoadDotEnv(t *testing.T) {
	const key = "FLASHGAME_CONFIG_TEST"

	// Registers the restore, then clears the variable so the .env file can set it.
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))

	p := writeFile(t, ".env", key+"=from-dotenv\n")

	require.NoError(t, config.LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), p))
	require.Equal(t, "from-dotenv", os.Getenv(key))

	t.Setenv(key, "already-set")
	require.NoError(t, config.LoadDotEnv(p))
	require.Equal(t, "already-set", os.Getenv(key), "variables already set are kept")
}

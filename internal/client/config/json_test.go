package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xdeleon/offsync/internal/flagx"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func TestLoad_JSONThenFlags(t *testing.T) {
	t.Setenv(flagx.ConfigEnv, "")
	path := writeTempJSON(t, map[string]any{
		"server_endpoint_addr":  "www.example:9000",
		"online_check_interval": "10s",
		"max_retries":           3,
		"log_level":             "warn",
	})

	cfg, err := Load([]string{"-config", path, "-v", "debug"})
	require.NoError(t, err)

	assert.Equal(t, "www.example:9000", cfg.ServerEndpointAddr)
	assert.Equal(t, 10*time.Second, cfg.OnlineCheckInterval)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "debug", cfg.LogLevel, "flags win over the file")
	assert.Equal(t, "offsync.db", cfg.DatabasePath, "absent keys keep defaults")
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	path := writeTempJSON(t, map[string]any{"database_path": "/var/lib/offsync.db"})
	t.Setenv(flagx.ConfigEnv, path)

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/offsync.db", cfg.DatabasePath)
}

func TestLoad_BadJSON(t *testing.T) {
	t.Setenv(flagx.ConfigEnv, "")
	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

	_, err := Load([]string{"-c", bad})
	require.Error(t, err)

	_, err = Load([]string{"-c", filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
}

func TestLoadConfig_PanicsOnBadFlag(t *testing.T) {
	t.Setenv(flagx.ConfigEnv, "")
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })

	os.Args = []string{"offsync", "-m", "many"}
	require.Panics(t, func() { LoadConfig() })
}

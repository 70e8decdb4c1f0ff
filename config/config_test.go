package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9000\n"))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, 200, cfg.Realm.MaxPlayers)
	assert.Equal(t, 60*time.Second, cfg.Realm.StateBroadcastTick)
	assert.True(t, cfg.Experience.RemainderToEarner)
	assert.Equal(t, 60.0, cfg.Experience.ShareRange)
	assert.Equal(t, 72*time.Hour, cfg.Security.JWTTTLH)
	assert.Empty(t, cfg.Security.AdminIPWhitelist)
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
realm:
  max_players: 50
  state_broadcast_tick: 15s
experience:
  remainder_to_earner: false
  share_range: 40.0
security:
  game_server_key: sekrit
  admin_ip_whitelist:
    - 10.0.0.1
`))
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Realm.MaxPlayers)
	assert.Equal(t, 15*time.Second, cfg.Realm.StateBroadcastTick)
	assert.False(t, cfg.Experience.RemainderToEarner)
	assert.Equal(t, 40.0, cfg.Experience.ShareRange)
	assert.Equal(t, "sekrit", cfg.Security.GameServerKey)
	assert.Equal(t, []string{"10.0.0.1"}, cfg.Security.AdminIPWhitelist)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

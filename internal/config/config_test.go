package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadDefaultsWithoutPath(t *testing.T) {
	t.Setenv("GRID_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  rest_port: 9100
grid:
  node_id: grid-eu
eventbus:
  enabled: true
  url: nats://127.0.0.1:4222
  use_zstd_compression: true
redis:
  enabled: true
  addr: redis:6379
  ttl_seconds: 60
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.GetRESTPort())
	assert.Equal(t, "grid-eu", cfg.Grid.NodeID)
	assert.True(t, cfg.EventBus.Enabled)
	assert.True(t, cfg.EventBus.UseZstd)
	// Незаданные поля остаются по умолчанию
	assert.Equal(t, "GRID", cfg.EventBus.Stream)
	assert.Equal(t, 500*time.Millisecond, cfg.EventBus.PublishTimeoutDuration())
	assert.Equal(t, 24*time.Hour, cfg.EventBus.RetentionDuration())
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Minute, cfg.Redis.TTLDuration())
	assert.Equal(t, 200*time.Millisecond, cfg.Redis.TimeoutDuration())
	assert.Equal(t, "grid:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 30*time.Second, cfg.Redis.ResyncInterval())
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, "grid:\n  node_id: from-env\n")
	t.Setenv("GRID_CONFIG", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Grid.NodeID)
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "server: [not a map"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "grid:\n  node_id: \"\"\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "redis:\n  enabled: true\n  addr: \"\"\n"))
	assert.Error(t, err)
}

func TestRESTPortFallback(t *testing.T) {
	s := ServerConfig{}
	t.Setenv("GRID_REST_PORT", "")
	assert.Equal(t, 8090, s.GetRESTPort())

	t.Setenv("GRID_REST_PORT", "9999")
	assert.Equal(t, 9999, s.GetRESTPort())

	t.Setenv("GRID_REST_PORT", "bogus")
	assert.Equal(t, 8090, s.GetRESTPort())

	s.RESTPort = 7000
	assert.Equal(t, 7000, s.GetRESTPort())
}

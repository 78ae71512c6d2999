package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lk2023060901/agent-hydration/internal/hydration/biz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, 9090, config.Server.GRPCPort)
	assert.Equal(t, "info", config.Log.Level)
	assert.False(t, config.Redis.Enabled)
	assert.Equal(t, biz.DefaultHistoryLimit, config.Hydration.HistoryLimit)
	assert.Equal(t, 30*time.Minute, config.Hydration.Timeout)
	assert.Equal(t, 2, config.Hydration.JoinRetries)
	assert.Equal(t, 5*time.Second, config.Hydration.CacheTTL)
	assert.Equal(t, 256, config.Hydration.MaxConnections)
	assert.Equal(t, biz.DefaultStreamModes, config.Hydration.StreamModes)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 18080
log:
  level: debug
  format: console
redis:
  enabled: true
  addr: redis:6379
hydration:
  endpoint: http://graph:2024
  graph_id: agent
  history_limit: 5000
  timeout: 10m
  join_retries: 0
  stream_modes: [events, values]
  cache_ttl: 2s
`)
	t.Setenv("HYDRATION_HYDRATION_API_KEY", "from-env")
	t.Setenv("HYDRATION_SERVER_GRPC_PORT", "19090")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 18080, config.Server.Port)
	assert.Equal(t, 19090, config.Server.GRPCPort)
	assert.Equal(t, "debug", config.Log.Level)
	assert.True(t, config.Redis.Enabled)
	assert.Equal(t, "redis:6379", config.Redis.Addr)
	assert.Equal(t, "from-env", config.Hydration.APIKey)
	assert.Equal(t, 2*time.Second, config.Hydration.CacheTTL)

	base := config.Hydration.Base()
	assert.Equal(t, "http://graph:2024", base.Endpoint)
	assert.Equal(t, "agent", base.GraphID)
	assert.Equal(t, biz.MaxHistoryLimit, base.HistoryLimit)
	assert.Equal(t, 10*time.Minute, base.Timeout)
	assert.Equal(t, 0, base.JoinRetries)
	assert.Equal(t, []string{"events", "values"}, base.StreamModes)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "log:\n  level: loud\n"))
	assert.ErrorContains(t, err, "invalid log config")

	_, err = LoadConfig(writeConfig(t, "redis:\n  enabled: true\n  mode: ring\n"))
	assert.ErrorContains(t, err, "invalid redis config")
}

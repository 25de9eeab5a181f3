package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CLICKUP_TOKEN", "pk_123_abc")
	t.Setenv("CLICKUP_TEAM_ID", "9001")
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "pk_123_abc", cfg.ClickupToken)
	assert.Equal(t, "9001", cfg.ClickupTeamID)
	assert.Equal(t, defaultConcurrency, cfg.Concurrency)
	assert.Equal(t, defaultMaxRetries, cfg.MaxRetries)
	assert.Equal(t, defaultInitialBackoff, cfg.InitialBackoff)
	assert.Equal(t, defaultRedisURL, cfg.RedisURL)
	assert.Equal(t, defaultLockTTL, cfg.RedisLockTTL)
	assert.Equal(t, defaultKeepLastNExports, cfg.KeepLastNExports)
	assert.Equal(t, defaultExportInterval, cfg.ExportInterval)
	assert.Equal(t, defaultTimeEntriesStart, cfg.TimeEntriesStart)
	assert.Equal(t, "0.0.0.0:8000", cfg.APIAddr)
	assert.Equal(t, defaultLogLevel, cfg.LogLevel)
	assert.False(t, cfg.SnapshotEnabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_AUTH_TOKEN", "s3cret")
	t.Setenv("CONCURRENCY", "12")
	t.Setenv("MAX_RETRIES", "2")
	t.Setenv("INITIAL_BACKOFF", "250ms")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")
	t.Setenv("REDIS_LOCK_TTL", "10m")
	t.Setenv("KEEP_LAST_N_EXPORTS", "3")
	t.Setenv("EXPORT_INTERVAL", "1h")
	t.Setenv("API_PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := loadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.APIAuthToken)
	assert.Equal(t, 12, cfg.Concurrency)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, "redis://cache:6379/1", cfg.RedisURL)
	assert.Equal(t, 10*time.Minute, cfg.RedisLockTTL)
	assert.Equal(t, 3, cfg.KeepLastNExports)
	assert.Equal(t, time.Hour, cfg.ExportInterval)
	assert.Equal(t, 9100, cfg.APIPort)
	assert.Equal(t, "0.0.0.0:9100", cfg.APIAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_FromFile(t *testing.T) {
	setRequiredEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	content := `concurrency: 8
export-interval: 2h
api-addr: "127.0.0.1:9999"
snapshot-enabled: true
snapshot-dir: /var/lib/exports
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, 2*time.Hour, cfg.ExportInterval)
	assert.Equal(t, "127.0.0.1:9999", cfg.APIAddr)
	assert.True(t, cfg.SnapshotEnabled)
	assert.Equal(t, "/var/lib/exports", cfg.SnapshotDir)
	assert.Equal(t, path, cfg.ConfigPath)
}

func TestLoadConfig_Validation(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing token", env: map[string]string{"CLICKUP_TOKEN": ""}},
		{name: "placeholder token", env: map[string]string{"CLICKUP_TOKEN": "pk_YOUR_TOKEN"}},
		{name: "missing team", env: map[string]string{"CLICKUP_TEAM_ID": ""}},
		{name: "placeholder team", env: map[string]string{"CLICKUP_TEAM_ID": "YOUR_TEAM_ID"}},
		{name: "bad port", env: map[string]string{"API_PORT": "70000"}},
		{name: "zero concurrency", env: map[string]string{"CONCURRENCY": "0"}},
		{name: "zero keep-last", env: map[string]string{"KEEP_LAST_N_EXPORTS": "0"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig("")
			assert.Error(t, err)
		})
	}
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "", redact(""))
	assert.Equal(t, "<redacted>", redact("pk_123_abc"))
}

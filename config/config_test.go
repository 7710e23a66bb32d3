package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/retrorumble/tournament-lobby/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "data/matches", cfg.MatchStoreDir)
	assert.Equal(t, 5*time.Second, cfg.NotifyTimeout)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, time.Minute, cfg.ScheduleBroadcastInterval)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.True(t, cfg.SitNGoAutoClone)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
	assert.Equal(t, storage.BackendDisk, storage.ResolveBackend(cfg.StoreConfig()))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("NOTIFY_TIMEOUT", "750ms")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SITNGO_AUTO_CLONE", "false")
	t.Setenv("R2_PREFIX", "prod")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, 750*time.Millisecond, cfg.NotifyTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.False(t, cfg.SitNGoAutoClone)
	assert.Equal(t, "prod", cfg.R2.Prefix)
	assert.Equal(t, storage.BackendRedis, storage.ResolveBackend(cfg.StoreConfig()))

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "port out of range", env: map[string]string{"SERVER_PORT": "70000"}},
		{name: "port not a number", env: map[string]string{"SERVER_PORT": "http"}},
		{name: "unknown backend", env: map[string]string{"MATCH_STORE_BACKEND": "s3"}},
		{name: "redis without url", env: map[string]string{"MATCH_STORE_BACKEND": "redis"}},
		{name: "r2 without credentials", env: map[string]string{"R2_BUCKET_NAME": "matches"}},
		{name: "r2 without account", env: map[string]string{
			"R2_BUCKET_NAME": "matches", "R2_ACCESS_KEY_ID": "k", "R2_SECRET_ACCESS_KEY": "s",
		}},
		{name: "bad timeout", env: map[string]string{"STORE_TIMEOUT": "0s"}},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

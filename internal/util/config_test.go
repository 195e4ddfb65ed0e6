package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeEnvFile(t, "app.env", `DATABASE_URL=postgres://localhost/schoolhub
TOKEN_SECRET_KEY=0123456789abcdef0123456789abcdef
REDIS_SERVER_ADDRESS=localhost:6379
ACCESS_TOKEN_DURATION=10m
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/schoolhub", config.DatabaseURL)
	assert.Equal(t, 10*time.Minute, config.AccessTokenDuration)
	assert.Equal(t, 168*time.Hour, config.RefreshTokenDuration)
	assert.Equal(t, NotificationBackendPostgres, config.NotificationBackend)
	assert.Equal(t, "schoolhub:events", config.EventsChannel)
}

func TestValidateConfig(t *testing.T) {
	valid := Config{
		DatabaseURL:          "postgres://localhost/schoolhub",
		TokenSecretKey:       "secret",
		RedisServerAddress:   "localhost:6379",
		AccessTokenDuration:  time.Minute,
		RefreshTokenDuration: time.Hour,
		NotificationBackend:  NotificationBackendPostgres,
	}
	require.NoError(t, validateConfig(valid))

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing database", func(c *Config) { c.DatabaseURL = "" }},
		{"refresh not longer than access", func(c *Config) { c.RefreshTokenDuration = time.Minute }},
		{"unknown backend", func(c *Config) { c.NotificationBackend = "mongo" }},
		{"firestore without project", func(c *Config) { c.NotificationBackend = NotificationBackendFirestore }},
		{"discord without channel", func(c *Config) { c.DiscordBotToken = "token" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := valid
			tc.mutate(&config)
			assert.Error(t, validateConfig(config))
		})
	}
}

func TestLoadClientConfigDefaults(t *testing.T) {
	config, err := LoadClientConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/v1", config.APIBaseURL)
	assert.Equal(t, time.Second, config.ReconnectBaseDelay)
	assert.Equal(t, 30*time.Second, config.ReconnectMaxDelay)
	assert.Equal(t, 8, config.ReconnectMaxAttempts)
}

func TestLoadClientConfigRejectsBadBackoff(t *testing.T) {
	path := writeEnvFile(t, "client.env", "RECONNECT_BASE_DELAY=10s\nRECONNECT_MAX_DELAY=1s\n")

	_, err := LoadClientConfig(path)
	assert.ErrorContains(t, err, "RECONNECT_MAX_DELAY")
}

func TestPassword(t *testing.T) {
	hashed, err := HashPassword("Sch00l!pass")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword("Sch00l!pass", hashed))
	assert.Error(t, CheckPassword("wrong", hashed))
}

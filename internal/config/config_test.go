package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultPGHost, cfg.Postgres.Host)
	assert.Equal(t, DefaultPGPort, cfg.Postgres.Port)
	assert.Equal(t, DefaultPGDatabase, cfg.Postgres.Database)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 24*time.Hour, cfg.Auth.VisitorTTL())
	assert.Equal(t, DefaultLLMTimeout*time.Second, cfg.LLM.Timeout())
	assert.Equal(t, DefaultWorkers, cfg.Pipeline.Workers)
	assert.Equal(t, DefaultSyncTimeout*time.Second, cfg.Pipeline.SyncTimeout())
	assert.Equal(t, 72*time.Hour, cfg.Pipeline.EventTTL())
	assert.Equal(t, "@hourly", cfg.Pipeline.SweepSchedule)
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[server]
addr = ":9090"

[auth]
jwt_secret = "s3cret"
visitor_token_ttl = "2h"

[postgres]
host = "db.internal"
port = 5433
password = "hunter2"

[llm]
base_url = "https://llm.internal/v1"
api_key = "key-1"
timeout_seconds = 10

[pipeline]
workers = 2
queue_size = 32
sync_timeout_seconds = 5
event_ttl_hours = 24
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.Auth.VisitorTTL())
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 5433, cfg.Postgres.Port)
	// Fields absent from the file keep their defaults.
	assert.Equal(t, DefaultPGUser, cfg.Postgres.User)
	assert.Equal(t, 10*time.Second, cfg.LLM.Timeout())
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.SyncTimeout())
	assert.Equal(t, 24*time.Hour, cfg.Pipeline.EventTTL())
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\naddr=1"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestVisitorTTLFallsBackOnBadValue(t *testing.T) {
	assert.Equal(t, 24*time.Hour, AuthConfig{VisitorTokenTTL: "soon"}.VisitorTTL())
	assert.Equal(t, 24*time.Hour, AuthConfig{VisitorTokenTTL: "-1h"}.VisitorTTL())
}

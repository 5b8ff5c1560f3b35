package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 2112, cfg.Server.MetricsPort)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Agents.EnableJudge)
	assert.Equal(t, 10, cfg.Agents.HistoryLimit)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "comprec.yaml")
	content := `
server:
  port: 9100
llm:
  base_url: http://llm.internal:8080/v1
  coordinator:
    model: gpt-4.1
    temperature: 0.3
agents:
  enable_judge: false
  history_limit: 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "http://llm.internal:8080/v1", cfg.LLM.BaseURL)
	assert.Equal(t, "gpt-4.1", cfg.LLM.Coordinator.Model)
	assert.InDelta(t, 0.3, cfg.LLM.Coordinator.Temperature, 1e-9)
	assert.False(t, cfg.Agents.EnableJudge)
	assert.Equal(t, 25, cfg.Agents.HistoryLimit)
	// untouched sections keep defaults
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Judge.Model)
}

func TestLoadUnreadableFileFails(t *testing.T) {
	// A directory at the config path is readable as a stat but not as a
	// file; unlike a missing file, this must not fall back to defaults.
	dir := filepath.Join(t.TempDir(), "comprec.yaml")
	require.NoError(t, os.Mkdir(dir, 0o755))
	t.Setenv("CONFIG_PATH", dir)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("COMPREC_PORT", "9999")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("OTLP_ENDPOINT", "otel-collector:4317")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otel-collector:4317", cfg.Tracing.OTLPEndpoint)
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "comprec", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=comprec sslmode=disable", p.DSN())
}

func TestAuthSecretEnvIndirection(t *testing.T) {
	t.Setenv("COMPREC_JWT_SECRET", "from-env")
	a := AuthConfig{JWTSecret: "from-file", JWTSecretEnv: "COMPREC_JWT_SECRET"}
	assert.Equal(t, "from-env", a.Secret())

	a.JWTSecretEnv = "COMPREC_JWT_SECRET_UNSET"
	assert.Equal(t, "from-file", a.Secret())
}

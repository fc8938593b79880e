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
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, int32(10), cfg.Database.MaxConns)
	assert.Equal(t, 45*time.Second, cfg.Workflow.GeneratorTimeout)
	assert.True(t, cfg.Workflow.LockCases)
	assert.Equal(t, "*/5 * * * *", cfg.Scheduler.Cron)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Workflow.Holidays)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "collectflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://file/db
  max_conns: 4
generator:
  url: http://generator:9000/
workflow:
  generator_timeout: 5s
  holidays: ["2025-12-25", "2026-01-01"]
scheduler:
  enabled: true
  concurrency: 2
`), 0o600))

	t.Setenv("COLLECTFLOW_DATABASE_URL", "postgres://env/db")
	t.Setenv("COLLECTFLOW_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, int32(4), cfg.Database.MaxConns)
	assert.Equal(t, "http://generator:9000", cfg.Generator.URL)
	assert.Equal(t, 5*time.Second, cfg.Workflow.GeneratorTimeout)
	assert.Equal(t, []string{"2025-12-25", "2026-01-01"}, cfg.Workflow.Holidays)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 2, cfg.Scheduler.Concurrency)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadHolidaysFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("COLLECTFLOW_WORKFLOW_HOLIDAYS", "2025-12-25, 2025-12-26")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-12-25", "2025-12-26"}, cfg.Workflow.Holidays)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("COLLECTFLOW_SCHEDULER_CONCURRENCY", "0")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadOIDCRequiresBothKeys(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("COLLECTFLOW_AUTH_OIDC_ISSUER", "https://idp.example.test")

	_, err := Load("")
	require.Error(t, err)

	t.Setenv("COLLECTFLOW_AUTH_OIDC_CLIENT_ID", "collectflow")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "org_id", cfg.Auth.OIDC.OrgClaim)
	assert.Equal(t, "role", cfg.Auth.OIDC.RoleClaim)
}

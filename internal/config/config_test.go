package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sosim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("RESCUE_KEY", "s3cret")
	path := writeConfig(t, `
sim:
  ticks: 250
  seed: 42
  parallel: true
  move_policy: first
storage:
  db_path: /tmp/run.db
  ticks_per_file: 50
api:
  admin_key: ${RESCUE_KEY}
  cors_origins: [https://example.org]
logging:
  level: debug
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Sim.Ticks)
	assert.Equal(t, uint64(42), cfg.Sim.Seed)
	assert.True(t, cfg.Sim.Parallel)
	assert.Equal(t, "first", cfg.Sim.MovePolicy)
	assert.Equal(t, "/tmp/run.db", cfg.Storage.DBPath)
	assert.Equal(t, 50, cfg.Storage.TicksPerFile)
	assert.Equal(t, "s3cret", cfg.API.AdminKey)
	assert.Equal(t, []string{"https://example.org"}, cfg.API.CORSOrigins)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset keys keep their defaults.
	assert.Equal(t, "data/events", cfg.Storage.ExportDir)
	assert.Equal(t, 32, cfg.Sim.Width)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromFileRejectsSchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown section", "metrics:\n  enabled: true\n"},
		{"unknown key", "sim:\n  tick_rate: 5\n"},
		{"negative ticks", "sim:\n  ticks: -1\n"},
		{"bad policy", "sim:\n  move_policy: greedy\n"},
		{"bad level", "logging:\n  level: loud\n"},
		{"wrong type", "sim:\n  parallel: sometimes\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFileEmpty(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SOSIM_TICKS", "7")
	t.Setenv("SOSIM_SEED", "99")
	t.Setenv("SOSIM_PARALLEL", "1")
	t.Setenv("SOSIM_DB_PATH", "")
	t.Setenv("SOSIM_ADMIN_KEY", "key")
	t.Setenv("SOSIM_LOG_LEVEL", "trace")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Sim.Ticks)
	assert.Equal(t, uint64(99), cfg.Sim.Seed)
	assert.True(t, cfg.Sim.Parallel)
	assert.Equal(t, "data/sosim.db", cfg.Storage.DBPath)
	assert.Equal(t, "key", cfg.API.AdminKey)
	assert.Equal(t, "trace", cfg.Logging.Level)
}

func TestValidateSemanticChecks(t *testing.T) {
	cfg := Default()
	cfg.Sim.Patrols, cfg.Sim.Medics = 0, 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Sim.MovePolicy = "greedy"
	assert.Error(t, cfg.Validate())
}

func TestAPIConfigStringRedactsKey(t *testing.T) {
	c := APIConfig{Addr: ":80", AdminKey: "topsecret"}
	assert.NotContains(t, c.String(), "topsecret")
}

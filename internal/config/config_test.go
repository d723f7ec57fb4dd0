package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.ErrorIs(t, cfg.RequireDB(), ErrDBRequired)
	assert.ErrorIs(t, cfg.RequireSchema(), ErrSchemaRequired)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "storemigrate.yaml"), []byte(`
engine: bolt
db: from-file.db
schema: schema.yaml
upgrade_timeout: 5s
log_level: debug
`), 0o644))
	t.Setenv("STOREMIGRATE_DB", "from-env.db")
	t.Setenv("STOREMIGRATE_TARGET_VERSION", "4")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	flags.String("metrics-file", "", "")
	require.NoError(t, flags.Parse([]string{"--log-level=warn", "--metrics-file=out.prom"}))

	cfg, err := Load(LoadOptions{Dir: dir, Flags: flags})
	require.NoError(t, err)
	assert.Equal(t, EngineBolt, cfg.Engine)
	assert.Equal(t, "from-env.db", cfg.DBPath)
	assert.Equal(t, "schema.yaml", cfg.SchemaPath)
	assert.Equal(t, int64(4), cfg.TargetVersion)
	assert.Equal(t, 5*time.Second, cfg.UpgradeTimeout)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "out.prom", cfg.MetricsFile)
	assert.NoError(t, cfg.RequireDB())
}

func TestUnsetFlagKeepsLowerPrecedence(t *testing.T) {
	t.Setenv("STOREMIGRATE_ENGINE", "bolt")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("engine", "sqlite", "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load(LoadOptions{Dir: t.TempDir(), Flags: flags})
	require.NoError(t, err)
	assert.Equal(t, EngineBolt, cfg.Engine)
}

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine: bolt\nlog_format: json\n"), 0o644))

	cfg, err := Load(LoadOptions{File: path})
	require.NoError(t, err)
	assert.Equal(t, EngineBolt, cfg.Engine)
	assert.Equal(t, "json", cfg.LogFormat)

	_, err = Load(LoadOptions{File: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "engine", env: map[string]string{"STOREMIGRATE_ENGINE": "postgres"}},
		{name: "timeout", env: map[string]string{"STOREMIGRATE_UPGRADE_TIMEOUT": "0s"}},
		{name: "version", env: map[string]string{"STOREMIGRATE_TARGET_VERSION": "-1"}},
		{name: "log format", env: map[string]string{"STOREMIGRATE_LOG_FORMAT": "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.env {
				t.Setenv(key, value)
			}
			_, err := Load(LoadOptions{Dir: t.TempDir()})
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

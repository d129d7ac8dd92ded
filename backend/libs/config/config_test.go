package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name    string        `yaml:"name"`
	Workers int           `yaml:"workers" env:"SAMPLE_WORKERS"`
	Timeout time.Duration `yaml:"timeout" env:"SAMPLE_TIMEOUT"`
	Output  struct {
		Dir    string `yaml:"dir"`
		Secret string `yaml:"secret" env:"-"`
	} `yaml:"output"`
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: a\nworkers: 2\ntimeout: 90s\noutput:\n  dir: /tmp/x\n  secret: s\n"), 0o600))

	t.Setenv("SAMPLE_WORKERS", "8")
	t.Setenv("OUTPUT_DIR", "/tmp/y")
	t.Setenv("OUTPUT_SECRET", "ignored")

	var cfg sample
	require.NoError(t, Load(path, &cfg))

	assert.Equal(t, "a", cfg.Name)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, "/tmp/y", cfg.Output.Dir)
	assert.Equal(t, "s", cfg.Output.Secret)
}

func TestLoadDurationFromEnv(t *testing.T) {
	t.Setenv("SAMPLE_TIMEOUT", "2m")

	var cfg sample
	require.NoError(t, Load("", &cfg))
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
}

func TestLoadRejectsBadInput(t *testing.T) {
	var cfg sample
	assert.Error(t, Load("", nil))
	assert.Error(t, Load("", cfg))

	t.Setenv("SAMPLE_WORKERS", "many")
	err := Load("", &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SAMPLE_WORKERS")
}

func TestLoadMissingFile(t *testing.T) {
	var cfg sample
	err := Load(filepath.Join(t.TempDir(), "missing.yaml"), &cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks every override so ambient shell state cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SPELLD_HOST", "SPELLD_PORT", "SPELLD_SPELLS_DIR",
		"SPELLD_FAILURE_MODE", "SPELLD_DEBUG", "METAKEYAI_LLM",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	loader, err := NewLoader(t.TempDir())
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "127.0.0.1:5000", cfg.Addr())
	assert.Equal(t, "empty", cfg.FailureMode)
	assert.Contains(t, cfg.SpellsDir, ".spelld")
	assert.False(t, cfg.Debug)
}

func TestLoadYAMLFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", `host: 0.0.0.0
port: 6001
spells_dir: /opt/spells
failure_mode: input
model: openai/gpt-4o-mini
debug: true
`)
	loader, err := NewLoader(dir)
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:6001", cfg.Addr())
	assert.Equal(t, "/opt/spells", cfg.SpellsDir)
	assert.Equal(t, "input", cfg.FailureMode)
	assert.Equal(t, "openai/gpt-4o-mini", cfg.Model)
	assert.True(t, cfg.Debug)
}

func TestLoadJSONFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "config.json", `{"host":"localhost","port":7002,"spells_dir":"/opt/spells"}`)
	loader, err := NewLoader(dir)
	require.NoError(t, err)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "localhost:7002", cfg.Addr())
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "port: 6001\n")
	t.Setenv("SPELLD_PORT", "7500")
	t.Setenv("SPELLD_FAILURE_MODE", "message")
	t.Setenv("METAKEYAI_LLM", "anthropic/claude-sonnet-4-5")
	t.Setenv("SPELLD_DEBUG", "true")

	loader, err := NewLoader(dir)
	require.NoError(t, err)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 7500, cfg.Port)
	assert.Equal(t, "message", cfg.FailureMode)
	assert.Equal(t, "anthropic/claude-sonnet-4-5", cfg.Model)
	assert.True(t, cfg.Debug)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Port = 99999
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.SpellsDir = "  "
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.FailureMode = "explode"
	assert.Error(t, cfg.Validate())
}

func TestReloadKeepsLastGoodConfig(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "port: 6001\n")
	loader, err := NewLoader(dir)
	require.NoError(t, err)

	first, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, 6001, first.Port)

	writeConfig(t, dir, "config.yaml", "failure_mode: explode\n")
	cfg, err := loader.Reload()
	require.Error(t, err)
	assert.Equal(t, 6001, cfg.Port)

	last, ok := loader.Last()
	require.True(t, ok)
	assert.Equal(t, 6001, last.Port)
}

func TestReloadWithoutPriorState(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "config.yaml", "failure_mode: explode\n")
	loader, err := NewLoader(dir)
	require.NoError(t, err)

	_, err = loader.Reload()
	assert.Error(t, err)
}

func TestLoaderEmptyDirDefaultsToHome(t *testing.T) {
	loader, err := NewLoader("")
	require.NoError(t, err)
	assert.Contains(t, loader.Dir(), ".spelld")
}

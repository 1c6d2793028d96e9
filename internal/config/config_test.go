package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 128, cfg.Backlog)
	assert.True(t, cfg.HTTP2)
	assert.Equal(t, "stream", cfg.TransportMode)
	assert.Equal(t, 32<<20, cfg.BodyLimit)
	assert.Equal(t, 64<<20, cfg.FrameLimit)
}

func TestLoadFromYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
port: 9090
secure: true
transport_mode: callback
idle_timeout: 45s
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.Secure)
	assert.Equal(t, "callback", cfg.TransportMode)
	assert.Equal(t, 45*time.Second, cfg.IdleTimeout)
}

func TestLoadEnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("port: 8080\n"), 0644))

	t.Setenv("BRIDGE_PORT", "3000")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
}

func TestToSupervisorConfigTranslatesFields(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Port = 4242

	scfg := cfg.ToSupervisorConfig()
	assert.EqualValues(t, 4242, scfg.Port)
	assert.Equal(t, cfg.Host, scfg.Host)
	assert.EqualValues(t, cfg.Backlog, scfg.Backlog)
}

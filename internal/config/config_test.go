package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seekscale/smbcacheproxy/internal/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Defaults()

	assert.Equal(t, "0.0.0.0", cfg.Listen.Address)
	assert.Equal(t, 445, cfg.Listen.Port)
	assert.Equal(t, "127.0.0.1", cfg.Backend.Address)
	assert.Equal(t, 1445, cfg.Backend.Port)
	assert.Equal(t, 5*time.Second, cfg.MtimeRefreshThreshold)
	assert.Equal(t, 15*time.Second, cfg.MtimeMetadataRefreshThreshold)
	assert.True(t, cfg.EnableWriteThrough)
	assert.Equal(t, "sqlite", cfg.Audit.Dialect)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.Endpoint)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRate)
	assert.Equal(t, time.Second, cfg.Mgmt.StatsInterval)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), cfg)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
listen:
  address: 10.0.0.1
  port: 1445
backend:
  address: 10.0.0.2
  port: 2445
shares_root: /srv/shares
mtime_refresh_threshold: 30s
cacheclient3_size_threshold: 2MB
enable_touch: true
audit:
  enable_audit_log: true
  dialect: postgres
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.1", cfg.Listen.Address)
	assert.Equal(t, 1445, cfg.Listen.Port)
	assert.Equal(t, "10.0.0.2", cfg.Backend.Address)
	assert.Equal(t, "/srv/shares", cfg.SharesRoot)
	assert.Equal(t, 30*time.Second, cfg.MtimeRefreshThreshold)
	assert.True(t, cfg.EnableTouch)
	assert.True(t, cfg.Audit.EnableAuditLog)
	assert.Equal(t, "postgres", cfg.Audit.Dialect)

	// Untouched sections still get their defaults applied post-load.
	assert.Equal(t, 15*time.Second, cfg.MtimeMetadataRefreshThreshold)
}

func TestLoadAppliesEnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen:\n  port: 445\n"), 0o644))

	t.Setenv("SMBPROXY_LISTEN_PORT", "9999")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Listen.Port)
}

func TestSaveConfigRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := config.Defaults()
	cfg.SharesRoot = "/srv/shares"
	cfg.Listen.Port = 4455

	require.NoError(t, config.SaveConfig(cfg, path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/shares", loaded.SharesRoot)
	assert.Equal(t, 4455, loaded.Listen.Port)
}

func TestDefaultConfigPathUsesXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg-home")
	assert.Equal(t, "/xdg-home/smbcacheproxy/config.yaml", config.DefaultConfigPath())
}

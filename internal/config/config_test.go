package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := writeConfig(t, `
server:
  port: "9090"
database:
  driver: sqlite
  path: test.db
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, RollupModeDetached, cfg.Tracking.RollupMode)
	assert.Equal(t, 3*time.Second, cfg.Tracking.StoreTimeout())
	assert.Equal(t, "0 3 * * *", cfg.Tracking.RepairCron)
	assert.Equal(t, 2000, cfg.Identity.TimeoutMS)
}

func TestLoadConfig_TrackingOverrides(t *testing.T) {
	dir := writeConfig(t, `
tracking:
  rollup_mode: inline
  rollup_workers: 2
  store_timeout_ms: 500
  lock_wait_ms: 100
`)

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, RollupModeInline, cfg.Tracking.RollupMode)
	assert.Equal(t, 2, cfg.Tracking.RollupWorkers)
	assert.Equal(t, 500*time.Millisecond, cfg.Tracking.StoreTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.Tracking.LockWait())
}

func TestTrackingConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TrackingConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*TrackingConfig) {}},
		{name: "inline", mutate: func(c *TrackingConfig) { c.RollupMode = RollupModeInline }},
		{name: "unknown mode", mutate: func(c *TrackingConfig) { c.RollupMode = "eventually" }, wantErr: true},
		{name: "no workers", mutate: func(c *TrackingConfig) { c.RollupWorkers = 0 }, wantErr: true},
		{name: "no store timeout", mutate: func(c *TrackingConfig) { c.StoreTimeoutMS = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultTracking()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, "./data/tabsplit.db", cfg.DBPath)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 30*24*time.Hour, cfg.DeviceTokenTTL())
	assert.Equal(t, time.Minute, cfg.ExtractionTimeout())
}

func TestLoadServerEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/tabsplit")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := LoadServer(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "redis://localhost:6379/1", cfg.RedisURL)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadServerDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=7070\nEXTRACTION_URL=http://vision.local/extract\n"), 0o600))

	cfg, err := LoadServer(dir)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, "http://vision.local/extract", cfg.ExtractionURL)
}

func TestServerValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Server
		wantErr bool
	}{
		{"sqlite", Server{Port: 8080, DBDriver: "sqlite", DBPath: "x.db", DeviceTokenTTLHours: 1}, false},
		{"postgres without url", Server{Port: 8080, DBDriver: "postgres", DeviceTokenTTLHours: 1}, true},
		{"unknown driver", Server{Port: 8080, DBDriver: "mysql", DeviceTokenTTLHours: 1}, true},
		{"bad port", Server{Port: 0, DBDriver: "sqlite", DBPath: "x.db", DeviceTokenTTLHours: 1}, true},
		{"bad ttl", Server{Port: 8080, DBDriver: "sqlite", DBPath: "x.db"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadClient(t *testing.T) {
	state := t.TempDir()
	t.Setenv("TABSPLIT_STATE_DIR", state)
	t.Setenv("TABSPLIT_TIP_PERCENT", "12.5")

	cfg, err := LoadClient(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	tip, err := cfg.Tip()
	require.NoError(t, err)
	assert.True(t, tip.Equal(decimal.RequireFromString("12.5")))
	assert.Equal(t, filepath.Join(state, "tabsplit.log"), cfg.LogPath())
}

func TestLoadClientBadTip(t *testing.T) {
	t.Setenv("TABSPLIT_TIP_PERCENT", "ten")

	_, err := LoadClient(t.TempDir())
	assert.Error(t, err)
}

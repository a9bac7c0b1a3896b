package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 8083, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Scheduling.UTCOffsetHours)
	assert.Equal(t, "200000", cfg.Scheduling.BaseFeeAmount().String())
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: 9000
scheduling:
  base_fee: "150000"
  utc_offset_hours: 7
store:
  driver: supabase
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("SUPABASE_URL", "https://clinic.supabase.co")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service-key")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, StoreDriverSupabase, cfg.Store.Driver)
	assert.Equal(t, "https://clinic.supabase.co", cfg.Supabase.URL)
	assert.Equal(t, "150000", cfg.Scheduling.BaseFeeAmount().String())
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: 8083},
			Store:    StoreConfig{Driver: StoreDriverPostgres},
			Database: DatabaseConfig{Host: "localhost", Name: "clinic"},
			Scheduling: SchedulingConfig{
				BaseFee:        "200000",
				UTCOffsetHours: 7,
				MaxHorizonDays: 60,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, true},
		{"supabase without url", func(c *Config) { c.Store.Driver = StoreDriverSupabase }, true},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"bad fee", func(c *Config) { c.Scheduling.BaseFee = "abc" }, true},
		{"bad offset", func(c *Config) { c.Scheduling.UTCOffsetHours = 20 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSchedulingConfig_Location(t *testing.T) {
	loc := SchedulingConfig{UTCOffsetHours: 7}.Location()
	_, offset := time.Now().In(loc).Zone()
	assert.Equal(t, 7*3600, offset)
}

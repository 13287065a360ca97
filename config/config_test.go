package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "DB_PATH", "ENV", "LOG_LEVEL", "CORS_ORIGINS", "AUDIT_INTERVAL", "ENTITLED_FEATURES", "EXPORT_TIMEZONE"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "ledger.db", cfg.DBPath)
	assert.Equal(t, time.Hour, cfg.AuditInterval)
	assert.Equal(t, []string{"csv_import", "data_export"}, cfg.EntitledFeatures)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENV", "production")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("AUDIT_INTERVAL", "0s")
	t.Setenv("ENTITLED_FEATURES", "data_export")
	t.Setenv("EXPORT_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Zero(t, cfg.AuditInterval)
	assert.Equal(t, []string{"data_export"}, cfg.EntitledFeatures)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"LOG_LEVEL":       "loud",
		"AUDIT_INTERVAL":  "often",
		"EXPORT_TIMEZONE": "Mars/Olympus",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

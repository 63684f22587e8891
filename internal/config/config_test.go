package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENV", "development")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "redis", cfg.FeedBackend)
	assert.Equal(t, "local", cfg.StorageBackend)
	assert.Equal(t, 15*time.Second, cfg.SendTimeout)
	assert.Equal(t, 30*time.Second, cfg.ResubscribeMaxInterval)
	assert.Equal(t, int64(25<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Empty(t, cfg.WSAllowedOrigins)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("FEED_BACKEND", "memory")
	t.Setenv("SEND_TIMEOUT", "2s")
	t.Setenv("S3_USE_PATH_STYLE", "true")
	t.Setenv("MAX_UPLOAD_BYTES", "1024")
	t.Setenv("HISTORY_LIMIT", "20")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.FeedBackend)
	assert.Equal(t, 2*time.Second, cfg.SendTimeout)
	assert.True(t, cfg.S3UsePathStyle)
	assert.Equal(t, int64(1024), cfg.MaxUploadBytes)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.WSAllowedOrigins)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "SEND_TIMEOUT", "soon"},
		{"bad feed backend", "FEED_BACKEND", "kafka"},
		{"bad storage backend", "STORAGE_BACKEND", "ftp"},
		{"bad bool", "S3_USE_PATH_STYLE", "maybe"},
		{"bad int", "MAX_UPLOAD_BYTES", "lots"},
		{"zero history", "HISTORY_LIMIT", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}

func TestValidate_DoesNotFillDefaults(t *testing.T) {
	cfg := &Config{
		Env:            "production",
		FeedBackend:    "redis",
		StorageBackend: "s3",
		SendTimeout:    time.Second,
		HistoryLimit:   50,
	}
	assert.Error(t, cfg.Validate())
	assert.Empty(t, cfg.JWTSecret)

	cfg.JWTSecret = "s3cret"
	assert.NoError(t, cfg.Validate())
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAdmin(t *testing.T) {
	t.Setenv("ADMIN_EMAIL", "admin@example.com")
	t.Setenv("ADMIN_PASSWORD", "secret")
}

func TestLoad_Defaults(t *testing.T) {
	setAdmin(t)
	t.Setenv("REDIS_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.False(t, cfg.Redis.Enabled())
	assert.Equal(t, 250*time.Millisecond, cfg.Redis.Timeout)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 5, cfg.RateLimit.LoginMaxAttempts)
	assert.Equal(t, 10, cfg.RateLimit.CreateMaxRequests)
	assert.Equal(t, 300*time.Second, cfg.Cache.ArticleTTL)
	assert.Equal(t, 60*time.Second, cfg.Cache.ProductTTL)
	assert.Equal(t, 10000, cfg.Cache.MaxEntries)
	assert.Equal(t, 12*time.Hour, cfg.Admin.SessionTTL)
}

func TestLoad_Overrides(t *testing.T) {
	setAdmin(t)
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_URL", "redis://:pw@cache.internal:6380/2")
	t.Setenv("REDIS_TIMEOUT_MS", "100")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "60")
	t.Setenv("LOGIN_MAX_ATTEMPTS", " 3 ")
	t.Setenv("ARTICLE_CACHE_TTL_SECONDS", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	require.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "cache.internal:6380", cfg.Redis.Options.Addr)
	assert.Equal(t, "pw", cfg.Redis.Options.Password)
	assert.Equal(t, 2, cfg.Redis.Options.DB)
	assert.Equal(t, 100*time.Millisecond, cfg.Redis.Timeout)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 3, cfg.RateLimit.LoginMaxAttempts)
	assert.Equal(t, time.Duration(0), cfg.Cache.ArticleTTL)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "non-numeric",
			env:     map[string]string{"LOGIN_MAX_ATTEMPTS": "five"},
			wantErr: "invalid LOGIN_MAX_ATTEMPTS",
		},
		{
			name:    "negative",
			env:     map[string]string{"CACHE_MAX_ENTRIES": "-1"},
			wantErr: "invalid CACHE_MAX_ENTRIES",
		},
		{
			name:    "zero window",
			env:     map[string]string{"RATE_LIMIT_WINDOW_SECONDS": "0"},
			wantErr: "invalid RATE_LIMIT_WINDOW_SECONDS",
		},
		{
			name:    "bad redis url",
			env:     map[string]string{"REDIS_URL": "http://localhost"},
			wantErr: "invalid REDIS_URL",
		},
		{
			name:    "missing admin",
			env:     map[string]string{"ADMIN_EMAIL": "", "ADMIN_PASSWORD": ""},
			wantErr: "ADMIN_EMAIL and ADMIN_PASSWORD are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setAdmin(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

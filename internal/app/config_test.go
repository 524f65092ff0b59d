package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.RoleCacheTTL)
	assert.Equal(t, 3*time.Second, cfg.GateCheckTimeout)
	assert.Equal(t, 1024, cfg.AuditQueueSize)
	assert.Equal(t, 2, cfg.AuditMaxRetries)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestValidateRejectsLongRoleCacheTTL(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("ROLE_CACHE_TTL", "1m")
	_, err := LoadConfig()
	assert.ErrorContains(t, err, "ROLE_CACHE_TTL")
}

func TestValidateBoundsAuditRetries(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")

	for _, v := range []string{"-1", "6", "1000"} {
		t.Setenv("AUDIT_MAX_RETRIES", v)
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "AUDIT_MAX_RETRIES", v)
	}

	t.Setenv("AUDIT_MAX_RETRIES", "5")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, MaxAuditRetries, cfg.AuditMaxRetries)
}

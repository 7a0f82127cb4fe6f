package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PROCESSOR_MODE", "")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "mock", cfg.ProcessorMode)
	assert.Equal(t, DefaultCurrency, cfg.Currency)
	assert.Equal(t, DefaultProcessorTimeout, cfg.ProcessorTimeout)
	assert.Equal(t, DefaultPendingMaxAge, cfg.PendingMaxAge)
}

func TestLoad_LiveModeRequiresCredentials(t *testing.T) {
	t.Setenv("PROCESSOR_MODE", "live")
	t.Setenv("PROCESSOR_KEY_ID", "")
	t.Setenv("PROCESSOR_KEY_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROCESSOR_KEY_ID")
}

func TestLoad_LiveModeRequiresWebhookSecret(t *testing.T) {
	t.Setenv("PROCESSOR_MODE", "live")
	t.Setenv("PROCESSOR_KEY_ID", "rzp_test_key")
	t.Setenv("PROCESSOR_KEY_SECRET", "secret")
	t.Setenv("PROCESSOR_WEBHOOK_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PROCESSOR_WEBHOOK_SECRET")
}

func TestLoad_LiveModeComplete(t *testing.T) {
	t.Setenv("PROCESSOR_MODE", "live")
	t.Setenv("PROCESSOR_KEY_ID", "rzp_test_key")
	t.Setenv("PROCESSOR_KEY_SECRET", "secret")
	t.Setenv("PROCESSOR_WEBHOOK_SECRET", "whsec")
	t.Setenv("PROCESSOR_TIMEOUT_SECONDS", "5")
	t.Setenv("PENDING_MAX_AGE_MINUTES", "15")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.ProcessorTimeout)
	assert.Equal(t, 15*time.Minute, cfg.PendingMaxAge)
}

func TestLoad_RejectsUnknownMode(t *testing.T) {
	t.Setenv("PROCESSOR_MODE", "sandbox")

	_, err := Load()
	require.Error(t, err)
}

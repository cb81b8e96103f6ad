package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ESCALATION_INTERVAL", "")
	t.Setenv("ESCALATION_WORKERS", "")
	t.Setenv("STORE", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.EscalationInterval)
	assert.Equal(t, 8, cfg.EscalationWorkers)
	assert.Equal(t, "direct", cfg.DelegationApproval)
	assert.Equal(t, 72*time.Hour, cfg.RequestDelegationTTL)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ESCALATION_INTERVAL", "30s")
	t.Setenv("ESCALATION_WORKERS", "2")
	t.Setenv("STORE", StoreMemory)
	t.Setenv("ALLOW_MULTIPLE_DELEGATIONS", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.EscalationInterval)
	assert.Equal(t, 2, cfg.EscalationWorkers)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.True(t, cfg.AllowMultipleDelegations)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("dispatch")
	require.NoError(t, err)

	assert.Equal(t, "dispatch", cfg.Server.ServiceName)
	assert.Equal(t, 5.0, cfg.Dispatch.MatchRadiusKm)
	assert.Equal(t, 10*time.Second, cfg.Dispatch.AssignmentTTL)
	assert.Equal(t, 5*time.Minute, cfg.Dispatch.MaxPositionAge)
	assert.Equal(t, time.Second, cfg.Dispatch.SettlementDelay)
	assert.Equal(t, time.Minute, cfg.Dispatch.GeoSweepInterval)
	assert.Equal(t, 50, cfg.Dispatch.RadiusSearchLimit)
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	t.Setenv("MATCH_RADIUS_KM", "2.5")
	t.Setenv("ASSIGNMENT_TTL_SEC", "3")
	t.Setenv("SETTLEMENT_DELAY_MS", "250")

	cfg, err := Load("dispatch")
	require.NoError(t, err)

	assert.Equal(t, 2.5, cfg.Dispatch.MatchRadiusKm)
	assert.Equal(t, 3*time.Second, cfg.Dispatch.AssignmentTTL)
	assert.Equal(t, 250*time.Millisecond, cfg.Dispatch.SettlementDelay)
}

func TestLoadRejectsNonPositiveRadius(t *testing.T) {
	t.Setenv("MATCH_RADIUS_KM", "0")

	_, err := Load("dispatch")
	assert.Error(t, err)
}

func TestDatabaseURLOverridesFields(t *testing.T) {
	c := DatabaseConfig{
		URL:  "postgres://u:p@db:5432/dispatch?sslmode=disable",
		Host: "ignored",
	}
	assert.Equal(t, "postgres://u:p@db:5432/dispatch?sslmode=disable", c.DSN())
}

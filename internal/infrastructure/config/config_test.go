package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, ModeEmbedded, cfg.TransportMode)
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	assert.False(t, cfg.StateBroadcastGlobal)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("TRANSPORT_MODE", "gateway")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("STATE_BROADCAST_GLOBAL", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, ModeGateway, cfg.TransportMode)
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout)
	assert.True(t, cfg.StateBroadcastGlobal)
}

func TestLoad_RejectsUnknownMode(t *testing.T) {
	t.Setenv("TRANSPORT_MODE", "carrier-pigeon")

	_, err := Load()
	require.Error(t, err)
}

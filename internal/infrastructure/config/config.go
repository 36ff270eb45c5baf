// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Transport modes.
const (
	ModeGateway  = "gateway"
	ModeEmbedded = "embedded"
)

// Config is the full service configuration.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// TransportMode selects how events reach clients: "gateway" pushes to an
	// external gateway over HTTP, "embedded" serves SSE/WebSocket directly.
	TransportMode  string        `env:"TRANSPORT_MODE" envDefault:"embedded"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	// StateBroadcastGlobal makes state publishes fan out to every connection
	// instead of targeting the published connection ID.
	StateBroadcastGlobal bool `env:"STATE_BROADCAST_GLOBAL" envDefault:"false"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
	LogOutput string `env:"LOG_OUTPUT" envDefault:"stdout"`
	LogFile   string `env:"LOG_FILE" envDefault:""`
}

// Load parses the environment into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.TransportMode != ModeGateway && cfg.TransportMode != ModeEmbedded {
		return nil, fmt.Errorf("unknown transport mode %q", cfg.TransportMode)
	}
	return cfg, nil
}

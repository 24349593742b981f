package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_URL points at a running relay, e.g. ws://localhost:3001/ws. The suite is skipped when empty.
	RelayURL string `envconfig:"RELAY_URL"`
	// RELAY_AUTH_SECRET must match the relay AUTH_SECRET when authentication is enabled
	AuthSecret string `envconfig:"RELAY_AUTH_SECRET"`
	// E2E_DEBUG_JSON allows dumping every frame sent and received as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

package core

import (
	"context"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// Postgresql, used by the divergence audit log. Optional: with no DSN
	// the sweep degrades to log-only reporting.
	DATABASE_URL string `envconfig:"DATABASE_URL"`
}

func (c *Config) Init(_ context.Context) error {
	return envconfig.Process("graphsync", c)
}

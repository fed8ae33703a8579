package flags

import (
	"fmt"
	"slices"

	libnats "github.com/nats-io/nats.go"
	"github.com/urfave/cli/v3"
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

var NATSUrl = &cli.StringFlag{
	Name:    "nats-url",
	Aliases: []string{"n"},
	Usage:   "The URL of the NATS server",
	Value:   libnats.DefaultURL,
	Sources: cli.EnvVars("NATS_URL"),
}

var InitNATS = &cli.BoolFlag{
	Name:    "nats-init",
	Aliases: []string{"i"},
	Usage:   "Initialize the NATS server: create the KV bucket",
	Value:   false,
	Sources: cli.EnvVars("NATS_INIT"),
}

var NATSBucket = &cli.StringFlag{
	Name:    "nats-bucket",
	Usage:   "The KV bucket holding the document tree",
	Value:   "graphsync",
	Sources: cli.EnvVars("NATS_BUCKET"),
}

var LogLevel = &cli.StringFlag{
	Name:    "log-level",
	Aliases: []string{"l"},
	Usage:   "The level of the logs",
	Value:   "info",
	Validator: func(value string) error {
		if !slices.Contains(validLogLevels, value) {
			return fmt.Errorf("invalid log level: %s, allowed values are: %s", value, validLogLevels)
		}
		return nil
	},
	Sources: cli.EnvVars("LOG_LEVEL"),
}

var Listen = &cli.StringFlag{
	Name:    "listen",
	Usage:   "Gateway listen address",
	Value:   ":8080",
	Sources: cli.EnvVars("LISTEN"),
}

var Memory = &cli.BoolFlag{
	Name:    "memory",
	Usage:   "Use the in-process document store instead of NATS (local development)",
	Value:   false,
	Sources: cli.EnvVars("MEMORY_STORE"),
}

var SweepInterval = &cli.DurationFlag{
	Name:    "sweep-interval",
	Usage:   "How often the consistency sweep runs; 0 disables it (or makes `sweep` one-shot)",
	Value:   0,
	Sources: cli.EnvVars("SWEEP_INTERVAL"),
}

var SweepRepair = &cli.BoolFlag{
	Name:    "sweep-repair",
	Usage:   "Re-issue the missing half of divergent symmetric writes instead of only reporting them",
	Value:   false,
	Sources: cli.EnvVars("SWEEP_REPAIR"),
}

var WebhookURL = &cli.StringFlag{
	Name:    "webhook-url",
	Usage:   "Endpoint to POST sweep divergence reports to",
	Sources: cli.EnvVars("WEBHOOK_URL"),
}

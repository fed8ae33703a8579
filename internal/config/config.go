package config

import "time"

type Config struct {
	NATSURL    string `flag:"nats-url"`
	NATSInit   bool   `flag:"nats-init"`
	NATSBucket string `flag:"nats-bucket"`
	LogLevel   string `flag:"log-level"`

	Listen string `flag:"listen"`
	Memory bool   `flag:"memory"`

	SweepInterval time.Duration `flag:"sweep-interval"`
	SweepRepair   bool          `flag:"sweep-repair"`
	WebhookURL    string        `flag:"webhook-url"`
}

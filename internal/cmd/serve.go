package cmd

import (
	"context"
	"os"

	"graphsync/internal/chat"
	"graphsync/internal/cmd/flags"
	"graphsync/internal/core"
	"graphsync/internal/counter"
	"graphsync/internal/gateway"
	"graphsync/internal/notify"
	"graphsync/internal/persistence"
	"graphsync/internal/persistence/divergences"
	"graphsync/internal/posts"
	"graphsync/internal/profiles"
	"graphsync/internal/relation"
	"graphsync/internal/subs"
	"graphsync/internal/sweep"

	"github.com/urfave/cli/v3"
	"github.com/zhulik/pal"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Run the realtime gateway: WebSocket subscriptions and mutations, /metrics, /health",
	Flags: []cli.Flag{
		flags.NATSUrl,
		flags.InitNATS,
		flags.NATSBucket,
		flags.Listen,
		flags.Memory,
		flags.SweepInterval,
		flags.SweepRepair,
		flags.WebhookURL,
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		services := []pal.ServiceDef{
			pal.Provide(&relation.Writer{}),
			pal.Provide(&counter.Maintainer{}),
			pal.Provide(&subs.Manager{}),
			pal.Provide(&chat.Service{}),
			pal.Provide(&profiles.Repository{}),
			pal.Provide(&posts.Repository{}),
			pal.Provide(&gateway.Server{}),
		}
		services = append(services, storeServices(c)...)

		if c.Duration("sweep-interval") > 0 {
			services = append(services, sweepServices()...)
		}

		return run(ctx, c, services...)
	},
}

// sweepServices wires the consistency sweep. Findings go to Postgres when
// a DATABASE_URL is configured, to the log otherwise.
func sweepServices() []pal.ServiceDef {
	services := []pal.ServiceDef{
		pal.Provide(&notify.Webhook{}),
		pal.Provide(&sweep.Sweeper{}),
	}

	if os.Getenv("DATABASE_URL") != "" {
		services = append(services,
			pal.Provide(&core.Config{}),
			pal.Provide(&persistence.DB{}),
			pal.Provide[sweep.Recorder](&divergences.Repository{}),
		)
	} else {
		services = append(services,
			pal.Provide[sweep.Recorder](&sweep.LogRecorder{}),
		)
	}
	return services
}

package cmd

import (
	"context"

	"graphsync/internal/cmd/flags"
	"graphsync/internal/relation"

	"github.com/urfave/cli/v3"
	"github.com/zhulik/pal"
)

var sweepCmd = &cli.Command{
	Name:  "sweep",
	Usage: "Scan follow edges and chat-list pairs for cross-copy divergence; one-shot unless --sweep-interval is set",
	Flags: []cli.Flag{
		flags.NATSUrl,
		flags.NATSBucket,
		flags.Memory,
		flags.SweepInterval,
		flags.SweepRepair,
		flags.WebhookURL,
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		services := []pal.ServiceDef{
			pal.Provide(&relation.Writer{}),
		}
		services = append(services, storeServices(c)...)
		services = append(services, sweepServices()...)

		return run(ctx, c, services...)
	},
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"graphsync/internal/cmd/flags"
	"graphsync/internal/config"
	"graphsync/internal/core"
	"graphsync/internal/memstore"
	"graphsync/internal/nats"
	"graphsync/pkg/clicfg"

	"github.com/urfave/cli/v3"
	"github.com/zhulik/pal"
)

const VERSION = "0.1.0"

var cmd = &cli.Command{
	Name:    "graphsync",
	Usage:   "Keeps denormalized social facts in sync across copies in a hosted document store",
	Version: VERSION,
	Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
		if err := initLogger(c.String("log-level")); err != nil {
			return ctx, err
		}
		return ctx, nil
	},
	Flags: []cli.Flag{
		flags.LogLevel,
	},
	Commands: []*cli.Command{
		serveCmd,
		sweepCmd,
		getCmd,
	},
}

func Run() {
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *cli.Command, services ...pal.ServiceDef) error {
	cfg := config.Config{}
	if err := clicfg.ParseFlags(c, &cfg); err != nil {
		return err
	}
	services = append(services, pal.Provide(&cfg))

	return pal.New(services...).
		InjectSlog().
		InitTimeout(5*time.Second).
		HealthCheckTimeout(1*time.Second).
		ShutdownTimeout(10*time.Second).
		Run(ctx, syscall.SIGINT, syscall.SIGTERM)
}

// storeServices picks the document store backend: NATS JetStream KV in
// production, the in-process store with --memory.
func storeServices(c *cli.Command) []pal.ServiceDef {
	if c.Bool("memory") {
		return []pal.ServiceDef{
			pal.Provide[core.DocumentStore](memstore.New()),
		}
	}
	return []pal.ServiceDef{nats.Provide()}
}

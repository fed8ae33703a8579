package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"graphsync/internal/cmd/flags"
	"graphsync/internal/core"

	"github.com/k0kubun/pp"
	"github.com/urfave/cli/v3"
	"github.com/zhulik/pal"
)

var getCmd = &cli.Command{
	Name:      "get",
	Usage:     "Read and pretty-print the document tree at a path (debug)",
	ArgsUsage: "<path>",
	Flags: []cli.Flag{
		flags.NATSUrl,
		flags.NATSBucket,
		flags.Memory,
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		path := c.Args().First()
		if path == "" {
			return errors.New("a path argument is required, e.g. chatlist/alice")
		}

		services := []pal.ServiceDef{
			pal.Provide(&getter{path: path}),
		}
		services = append(services, storeServices(c)...)

		return run(ctx, c, services...)
	},
}

type getter struct {
	Logger *slog.Logger
	Store  core.DocumentStore

	path string
}

func (g *getter) Run(ctx context.Context) error {
	snap, err := core.ReadTree(ctx, g.Store, g.path)
	if err != nil {
		return err
	}

	tree := map[string]any{}
	for rel, raw := range snap.Docs {
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			doc = string(raw)
		}
		abs := snap.Path
		if rel != "" {
			abs = core.JoinPath(snap.Path, rel)
		}
		tree[abs] = doc
	}

	pp.Println(tree)
	return nil
}

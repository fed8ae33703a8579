package clicfg_test

import (
	"context"
	"testing"
	"time"

	"graphsync/pkg/clicfg"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

type testConfig struct {
	Name     string        `flag:"name"`
	Debug    bool          `flag:"debug"`
	Count    int           `flag:"count"`
	Interval time.Duration `flag:"interval"`
	Ignored  string
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	var cfg testConfig

	cmd := &cli.Command{
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name"},
			&cli.BoolFlag{Name: "debug"},
			&cli.IntFlag{Name: "count"},
			&cli.DurationFlag{Name: "interval"},
		},
		Action: func(_ context.Context, c *cli.Command) error {
			return clicfg.ParseFlags(c, &cfg)
		},
	}

	err := cmd.Run(context.Background(), []string{"app", "--name", "n1", "--debug", "--count", "7", "--interval", "30s"})
	require.NoError(t, err)

	require.Equal(t, "n1", cfg.Name)
	require.True(t, cfg.Debug)
	require.Equal(t, 7, cfg.Count)
	require.Equal(t, 30*time.Second, cfg.Interval)
	require.Empty(t, cfg.Ignored)
}

func TestParseFlagsRejectsNonPointer(t *testing.T) {
	t.Parallel()

	cmd := &cli.Command{}
	require.ErrorIs(t, clicfg.ParseFlags(cmd, testConfig{}), clicfg.ErrCannotParseFlags)
	require.ErrorIs(t, clicfg.ParseFlags(cmd, new(int)), clicfg.ErrCannotParseFlags)
}

func TestParseFlagsUnsupportedType(t *testing.T) {
	t.Parallel()

	type bad struct {
		Values []string `flag:"values"`
	}

	cmd := &cli.Command{
		Flags: []cli.Flag{&cli.StringSliceFlag{Name: "values"}},
		Action: func(_ context.Context, c *cli.Command) error {
			return clicfg.ParseFlags(c, &bad{})
		},
	}

	err := cmd.Run(context.Background(), []string{"app"})
	require.ErrorIs(t, err, clicfg.ErrCannotParseFlags)
}

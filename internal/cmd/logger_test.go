package cmd

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for level, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := parseLevel(level)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := parseLevel("verbose")
	require.ErrorIs(t, err, ErrInvalidLogLevel)
}

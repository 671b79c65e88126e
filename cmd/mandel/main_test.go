package main

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	mandelmpi "example.org/parabench/mandelmpi"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestRun(t *testing.T) {
	require := require.New(t)
	config := mandelmpi.DefaultConfig()
	config.Width, config.Height, config.BlockSize = 32, 16, 4
	config.Procs = 3
	config.Output = filepath.Join(t.TempDir(), "out.mpar")

	report, err := run(context.Background(), config)
	require.NoError(err)
	require.Len(report.Ranks, 3)

	config.Strategy = "blockmaster"
	config.Procs = 1
	_, err = run(context.Background(), config)
	require.ErrorIs(err, mandelmpi.ErrTooFewParticipants)

	config.Procs = -1
	_, err = run(context.Background(), config)
	require.ErrorIs(err, mandelmpi.ErrInvalidConfig)
}

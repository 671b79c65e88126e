package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	mandelmpi "example.org/parabench/mandelmpi"
)

func TestRunReturnsErrors(t *testing.T) {
	config := mandelmpi.DefaultConfig()
	config.Peers = []mandelmpi.PeerAddr{"127.0.0.1:0", "127.0.0.1:0"}

	_, err := run(context.Background(), config, 0)
	require.Error(t, err)
	_, err = run(context.Background(), config, 2)
	require.Error(t, err)

	config.BlockSize = 0
	report, err := run(context.Background(), config, 1)
	require.ErrorIs(t, err, mandelmpi.ErrInvalidConfig)
	require.Equal(t, 1, report.Rank)
}

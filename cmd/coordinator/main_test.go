package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	mandelmpi "example.org/parabench/mandelmpi"
)

func TestRunReturnsErrors(t *testing.T) {
	config := mandelmpi.DefaultConfig()
	config.MaxIter = 0
	_, err := run(context.Background(), config)
	require.ErrorIs(t, err, mandelmpi.ErrInvalidConfig)

	config = mandelmpi.DefaultConfig()
	config.Peers = nil
	_, err = run(context.Background(), config)
	require.Error(t, err)
}

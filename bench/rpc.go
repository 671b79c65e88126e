package bench

import (
	"context"
	"fmt"

	mandelmpi "example.org/parabench/mandelmpi"
	"example.org/parabench/mandelmpi/comm"
)

// RunRPC runs rank as one process of a group connected over net/rpc.
// cfg.Peers lists the mailbox address of every rank. Peers that are not
// reachable within cfg.Timeout() fail the run before any work starts.
func RunRPC(ctx context.Context, cfg mandelmpi.Config, rank int, rec mandelmpi.Recorder) (RankReport, error) {
	if err := cfg.Validate(); err != nil {
		return RankReport{Rank: rank}, err
	}
	timeout, _ := cfg.Timeout()

	c, err := comm.ListenRPC(rank, cfg.Peers)
	if err != nil {
		return RankReport{Rank: rank}, err
	}
	defer c.Close()

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	err = c.Connect(connectCtx)
	cancel()
	if err != nil {
		return RankReport{Rank: rank}, fmt.Errorf("rank %d: connecting peers: %w", rank, err)
	}
	return RunRank(ctx, cfg, c, rec)
}

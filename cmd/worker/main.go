package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	mandelmpi "example.org/parabench/mandelmpi"
	"example.org/parabench/mandelmpi/bench"
)

func main() {
	config := mandelmpi.DefaultConfig()
	if err := mandelmpi.ReadJSONConfig("config/mandel_config.json", &config); err != nil {
		log.Fatal(err)
	}
	var rank int
	flag.IntVar(&rank, "rank", 1, "rank of this worker, 1 <= rank < len(Peers)")
	config.BindFlags(flag.CommandLine)
	flag.Parse()

	log.Println(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	report, err := run(ctx, config, rank)
	stop()
	if err != nil {
		log.Fatal(err)
	}
	log.Println(report)
}

// run closes the tracer on every path before main decides how to exit.
func run(ctx context.Context, config mandelmpi.Config, rank int) (bench.RankReport, error) {
	if rank < 1 || rank >= len(config.Peers) {
		return bench.RankReport{Rank: rank}, fmt.Errorf("rank %d out of range for %d peers", rank, len(config.Peers))
	}
	tracer := mandelmpi.NewTracer(config, fmt.Sprintf("worker%d", rank))
	defer tracer.Close()
	return bench.RunRPC(ctx, config, rank, tracer)
}

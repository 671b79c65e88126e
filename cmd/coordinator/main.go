// Command coordinator runs rank 0 of a multi-process run. Start one worker
// per remaining entry of Peers.
package main

import (
	"context"
	"flag"
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
	config.BindFlags(flag.CommandLine)
	flag.Parse()

	log.Println(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	report, err := run(ctx, config)
	stop()
	if err != nil {
		log.Fatal(err)
	}
	log.Println(report)
}

// run closes the tracer on every path before main decides how to exit.
func run(ctx context.Context, config mandelmpi.Config) (bench.RankReport, error) {
	tracer := mandelmpi.NewTracer(config, "coordinator")
	defer tracer.Close()
	return bench.RunRPC(ctx, config, 0, tracer)
}

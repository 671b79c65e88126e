// Command mandel runs the benchmark with all participants in one process.
package main

import (
	"context"
	"errors"
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
	if err := mandelmpi.ReadJSONConfig("config/mandel_config.json", &config); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatal(err)
	}
	config.BindFlags(flag.CommandLine)
	flag.IntVar(&config.Procs, "n", config.Procs, "number of participants")
	flag.Parse()

	log.Println(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	report, err := run(ctx, config)
	stop()
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("run %v: %d participants, %s, %d x %d", report.Meta.RunID, report.Meta.NumProcs,
		report.Meta.Strategy, report.Meta.Region.Width, report.Meta.Region.Height)
	for _, r := range report.Ranks {
		log.Println(r)
	}
	log.Printf("runtime= %9.3f (ms)", report.Runtime*1000)
}

// run gives every rank its own tracer and closes them all before returning.
func run(ctx context.Context, config mandelmpi.Config) (*bench.Report, error) {
	tracers := make([]*mandelmpi.Tracer, max(config.Procs, 0))
	defer func() {
		for _, t := range tracers {
			if t != nil {
				t.Close()
			}
		}
	}()
	return bench.RunTraced(ctx, config, func(rank int) mandelmpi.Recorder {
		tracers[rank] = mandelmpi.NewTracer(config, fmt.Sprintf("rank%d", rank))
		return tracers[rank]
	})
}

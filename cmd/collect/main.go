// Command collect reassembles the output file of a run, checks that the
// blocks of all ranks cover the image exactly once and prints how the
// pixels were shared.
package main

import (
	"flag"
	"fmt"
	"log"

	"example.org/parabench/mandelmpi/collect"
)

func main() {
	path := flag.String("o", "simple.mpar", "output file of the run")
	flag.Parse()

	im, err := collect.Load(*path)
	if err != nil {
		log.Fatal(err)
	}

	m := im.Meta
	fmt.Printf("runid    = %v\n", m.RunID)
	fmt.Printf("type     = %d (%v)\n", int(m.Strategy), m.Strategy)
	fmt.Printf("width    = %d\n", m.Region.Width)
	fmt.Printf("height   = %d\n", m.Region.Height)
	fmt.Printf("numprocs = %d\n", m.NumProcs)
	fmt.Printf("xmin     = %g\n", m.Region.Xmin)
	fmt.Printf("xmax     = %g\n", m.Region.Xmax)
	fmt.Printf("ymin     = %g\n", m.Region.Ymin)
	fmt.Printf("ymax     = %g\n", m.Region.Ymax)
	fmt.Printf("maxiter  = %d\n", m.MaxIter)

	total := m.Region.Width * m.Region.Height
	var sum int64
	for _, v := range im.Iterations {
		sum += int64(v)
	}
	for rank, n := range im.Shares() {
		fmt.Printf("PE %02d: %8d pixels (%5.1f%%)\n", rank, n, 100*float64(n)/float64(total))
	}
	fmt.Printf("mean iterations = %.2f\n", float64(sum)/float64(total))
}

// Package timing provides the benchmark clock and the per-participant time
// accounts.
package timing

import (
	"fmt"
	"time"
)

var epoch = time.Now()

// Seconds returns elapsed seconds on the monotonic clock since process start.
// Only differences between two calls are meaningful.
func Seconds() float64 {
	return time.Since(epoch).Seconds()
}

// Timings accumulates the time one participant spends per activity, in
// seconds. A Timings is owned by a single goroutine.
type Timings struct {
	Calc  float64 // kernel
	Comm  float64 // message passing
	Coord float64 // coordinator bookkeeping outside message passing
	Wait  float64 // barriers
	IO    float64 // output file
	Run   float64 // whole participant run
}

// Track adds the time until the returned func is called to *acc.
func Track(acc *float64) func() {
	start := Seconds()
	return func() {
		*acc += Seconds() - start
	}
}

func (t Timings) String() string {
	return fmt.Sprintf("calc= %9.3f, coord= %9.3f, wait= %9.3f, io= %9.3f, comm= %9.3f, runtime= %9.3f (ms)",
		t.Calc*1000, t.Coord*1000, t.Wait*1000, t.IO*1000, t.Comm*1000, t.Run*1000)
}

package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSecondsMonotonic(t *testing.T) {
	prev := Seconds()
	for i := 0; i < 1000; i++ {
		now := Seconds()
		require.GreaterOrEqual(t, now, prev)
		prev = now
	}
}

func TestTrack(t *testing.T) {
	var tm Timings
	done := Track(&tm.IO)
	time.Sleep(2 * time.Millisecond)
	done()
	require.GreaterOrEqual(t, tm.IO, 0.002)
	require.Zero(t, tm.Calc)
	require.Contains(t, tm.String(), "io=")
}

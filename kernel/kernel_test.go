package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"

	mandelmpi "example.org/parabench/mandelmpi"
)

var region = mandelmpi.Region{Xmin: -1.5, Xmax: 0.5, Ymin: -1.0, Ymax: 1.0, Width: 48, Height: 40}

func TestIterateEscapeBoundary(t *testing.T) {
	tests := []struct {
		name    string
		cx, cy  float64
		maxIter int
		want    int
	}{
		{"origin never escapes", 0, 0, 50, 50},
		{"minus two stays on the boundary", -2, 0, 50, 50},
		{"escapes on first iteration", 20, 0, 50, 1},
		{"exactly on the radius escapes", 16, 0, 50, 1},
		{"escapes on third iteration", 3, 0, 50, 3},
		{"cap below escape iteration", 3, 0, 2, 2},
		{"imaginary escape", 0, 17, 50, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Iterate(tt.cx, tt.cy, tt.maxIter))
		})
	}
}

func TestComputeDeterministic(t *testing.T) {
	full := mandelmpi.Block{Width: region.Width, Height: region.Height}
	a := Compute(nil, region, full, 100)
	b := Compute(nil, region, full, 100)
	require.Equal(t, a, b)
	require.Len(t, a, region.Width*region.Height)
}

func TestComputeIndependentOfDecomposition(t *testing.T) {
	require := require.New(t)

	full := Compute(nil, region, mandelmpi.Block{Width: region.Width, Height: region.Height}, 80)

	// Uneven tiles, including clipped edge tiles, must reproduce the full grid.
	for _, size := range []int{1, 3, 7, 16, 64} {
		var buf []int32
		for y := 0; y < region.Height; y += size {
			for x := 0; x < region.Width; x += size {
				b := mandelmpi.Block{Xpos: x, Ypos: y, Width: size, Height: size}
				if x+size > region.Width {
					b.Width = region.Width - x
				}
				if y+size > region.Height {
					b.Height = region.Height - y
				}
				buf = Compute(buf, region, b, 80)
				for iy := 0; iy < b.Height; iy++ {
					for ix := 0; ix < b.Width; ix++ {
						want := full[(b.Ypos+iy)*region.Width+b.Xpos+ix]
						require.Equal(want, buf[iy*b.Width+ix], "size %d block %v pixel (%d,%d)", size, b, ix, iy)
					}
				}
			}
		}
	}
}

func TestComputeReusesBuffer(t *testing.T) {
	buf := make([]int32, 0, 64)
	out := Compute(buf, region, mandelmpi.Block{Width: 8, Height: 8}, 10)
	require.Len(t, out, 64)
	require.Equal(t, &buf[:1][0], &out[0])

	require.Empty(t, Compute(buf, region, mandelmpi.Block{Width: 8}, 10))
}

func BenchmarkCompute(b *testing.B) {
	r := mandelmpi.Region{Xmin: -1.5, Xmax: 0.5, Ymin: -1.0, Ymax: 1.0, Width: 256, Height: 256}
	full := mandelmpi.Block{Width: r.Width, Height: r.Height}
	buf := make([]int32, full.Area())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf = Compute(buf, r, full, 256)
	}
}

// Package kernel computes escape-time iteration counts of the Mandelbrot
// recurrence z <- z*z + c.
package kernel

import (
	mandelmpi "example.org/parabench/mandelmpi"
)

// Threshold is the escape radius: an orbit has escaped once |z| >= Threshold.
const Threshold = 16

// Iterate returns the number of iterations before the orbit of c = cx+i*cy
// leaves the escape radius, or maxIter if it never does.
func Iterate(cx, cy float64, maxIter int) int {
	var zx, zy float64
	count := 0
	for zx*zx+zy*zy < Threshold*Threshold && count < maxIter {
		zx, zy = zx*zx-zy*zy+cx, 2*zx*zy+cy
		count++
	}
	return count
}

// Compute fills a row-major buffer with the iteration counts of block b of
// region r. Pixels are sampled at their centers using the pixel size of the
// whole region, so a pixel gets the same value whatever block it belongs
// to. dst is reused when it has room for b.Area() entries.
func Compute(dst []int32, r mandelmpi.Region, b mandelmpi.Block, maxIter int) []int32 {
	n := b.Area()
	if n <= 0 {
		return dst[:0]
	}
	if cap(dst) < n {
		dst = make([]int32, n)
	}
	dst = dst[:n]

	dx, dy := r.Dx(), r.Dy()
	for iy := 0; iy < b.Height; iy++ {
		y := r.Ymin + (float64(b.Ypos+iy)+0.5)*dy
		row := dst[iy*b.Width : (iy+1)*b.Width]
		for ix := range row {
			x := r.Xmin + (float64(b.Xpos+ix)+0.5)*dx
			row[ix] = int32(Iterate(x, y, maxIter))
		}
	}
	return dst
}

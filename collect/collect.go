// Package collect rebuilds the full iteration grid of a finished run from
// its output file and checks that the blocks written by all ranks tile the
// grid exactly.
package collect

import (
	"errors"
	"fmt"

	mandelmpi "example.org/parabench/mandelmpi"
	"example.org/parabench/mandelmpi/parfile"
)

var (
	ErrOverlap = errors.New("collect: pixel written more than once")
	ErrGap     = errors.New("collect: pixel never written")
	ErrBounds  = errors.New("collect: block outside the grid")
)

const unowned = -1

// Image is the reassembled run. Iterations and Owner are row-major grids of
// Meta.Region.Width x Meta.Region.Height; Owner holds the rank that wrote
// each pixel.
type Image struct {
	Meta       mandelmpi.RunMetadata
	Iterations []int32
	Owner      []int32
}

func (im *Image) Width() int  { return im.Meta.Region.Width }
func (im *Image) Height() int { return im.Meta.Region.Height }

// At returns the iteration count of pixel (x, y).
func (im *Image) At(x, y int) int32 { return im.Iterations[y*im.Width()+x] }

// Shares counts the pixels written by each rank.
func (im *Image) Shares() []int {
	shares := make([]int, im.Meta.NumProcs)
	for _, o := range im.Owner {
		if o >= 0 && int(o) < len(shares) {
			shares[o]++
		}
	}
	return shares
}

// Collect reads the records of every rank stream in r.
func Collect(r *parfile.Reader) (*Image, error) {
	meta, err := r.Metadata()
	if err != nil {
		return nil, err
	}
	if err := meta.Region.Validate(); err != nil {
		return nil, fmt.Errorf("collect: metadata: %w", err)
	}
	w, h := meta.Region.Width, meta.Region.Height
	im := &Image{
		Meta:       meta,
		Iterations: make([]int32, w*h),
		Owner:      make([]int32, w*h),
	}
	for i := range im.Owner {
		im.Owner[i] = unowned
	}

	for rank := 0; rank < r.Header().Ranks; rank++ {
		records, err := r.Records(rank)
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			if rec.Metadata != nil {
				continue
			}
			if err := im.place(rank, rec.Block, rec.Iterations); err != nil {
				return nil, err
			}
		}
	}

	for i, o := range im.Owner {
		if o == unowned {
			return nil, fmt.Errorf("%w: (%d,%d)", ErrGap, i%w, i/w)
		}
	}
	return im, nil
}

func (im *Image) place(rank int, b mandelmpi.Block, iterations []int32) error {
	if !b.Within(im.Width(), im.Height()) {
		return fmt.Errorf("%w: rank %d wrote %v into %dx%d", ErrBounds, rank, b, im.Width(), im.Height())
	}
	for iy := 0; iy < b.Height; iy++ {
		row := (b.Ypos+iy)*im.Width() + b.Xpos
		for ix := 0; ix < b.Width; ix++ {
			if prev := im.Owner[row+ix]; prev != unowned {
				return fmt.Errorf("%w: (%d,%d) by rank %d and rank %d",
					ErrOverlap, b.Xpos+ix, b.Ypos+iy, prev, rank)
			}
			im.Owner[row+ix] = int32(rank)
			im.Iterations[row+ix] = iterations[iy*b.Width+ix]
		}
	}
	return nil
}

// Load opens the output file at path and collects it.
func Load(path string) (*Image, error) {
	r, err := parfile.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return Collect(r)
}

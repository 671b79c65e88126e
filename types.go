package mandelmpi

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Strategy selects how the pixel grid is distributed over participants.
type Strategy int

const (
	Stride      Strategy = 0 // round-robin full-width bands of BlockSize rows
	Stripe      Strategy = 1 // one contiguous stripe per participant
	BlockMaster Strategy = 2 // rank 0 hands out BlockSize x BlockSize tiles on demand
)

func (s Strategy) String() string {
	switch s {
	case Stride:
		return "stride"
	case Stripe:
		return "stripe"
	case BlockMaster:
		return "blockmaster"
	}
	return "Strategy(" + strconv.Itoa(int(s)) + ")"
}

func (s Strategy) Valid() bool {
	return s == Stride || s == Stripe || s == BlockMaster
}

// ParseStrategy accepts either the numeric selector (0, 1, 2) or the
// strategy name.
func ParseStrategy(v string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "0", "stride":
		return Stride, nil
	case "1", "stripe":
		return Stripe, nil
	case "2", "blockmaster", "master", "dynamic":
		return BlockMaster, nil
	}
	return 0, fmt.Errorf("%w: unknown strategy %q", ErrInvalidConfig, v)
}

// Region is the sampled rectangle of the complex plane together with its
// pixel resolution.
type Region struct {
	Xmin, Xmax float64
	Ymin, Ymax float64
	Width      int
	Height     int
}

// Dx is the width of one pixel in plane units.
func (r Region) Dx() float64 { return (r.Xmax - r.Xmin) / float64(r.Width) }

// Dy is the height of one pixel in plane units.
func (r Region) Dy() float64 { return (r.Ymax - r.Ymin) / float64(r.Height) }

func (r Region) Validate() error {
	if r.Width <= 0 || r.Height <= 0 || r.Width > math.MaxInt32 || r.Height > math.MaxInt32 {
		return fmt.Errorf("%w: resolution %dx%d", ErrInvalidConfig, r.Width, r.Height)
	}
	if !(r.Xmax > r.Xmin) || !(r.Ymax > r.Ymin) {
		return fmt.Errorf("%w: degenerate region x=[%g,%g] y=[%g,%g]",
			ErrInvalidConfig, r.Xmin, r.Xmax, r.Ymin, r.Ymax)
	}
	return nil
}

// Block is a rectangle of the pixel grid. Xpos/Ypos are the top-left corner.
type Block struct {
	Xpos, Ypos    int
	Width, Height int
}

func (b Block) Area() int { return b.Width * b.Height }

func (b Block) Empty() bool { return b.Width <= 0 || b.Height <= 0 }

// Within reports whether b lies inside a width x height grid.
func (b Block) Within(width, height int) bool {
	return b.Xpos >= 0 && b.Ypos >= 0 && b.Width >= 0 && b.Height >= 0 &&
		b.Xpos+b.Width <= width && b.Ypos+b.Height <= height
}

func (b Block) String() string {
	return fmt.Sprintf("%dx%d@(%d,%d)", b.Width, b.Height, b.Xpos, b.Ypos)
}

// WorkItem is the coordinator-to-worker work descriptor of the blockmaster
// strategy. Sentinel marks the end of the run.
type WorkItem struct {
	Xpos, Ypos    int
	Width, Height int
}

var Sentinel = WorkItem{Xpos: -1, Ypos: -1, Width: -1, Height: -1}

func (w WorkItem) IsSentinel() bool { return w == Sentinel }

func (w WorkItem) Block() Block {
	return Block{Xpos: w.Xpos, Ypos: w.Ypos, Width: w.Width, Height: w.Height}
}

func ItemFor(b Block) WorkItem {
	return WorkItem{Xpos: b.Xpos, Ypos: b.Ypos, Width: b.Width, Height: b.Height}
}

// RunMetadata is the global record written once by rank 0 ahead of all
// block records. It is all the post-processing needs besides the blocks.
type RunMetadata struct {
	RunID     uuid.UUID
	Strategy  Strategy
	Region    Region
	MaxIter   int
	BlockSize int
	NumProcs  int
}

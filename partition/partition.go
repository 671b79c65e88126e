// Package partition derives the blocks each participant computes. The
// static strategies are pure arithmetic on (rank, size, grid); the tile
// cursor feeds the blockmaster coordinator.
package partition

import (
	"fmt"

	mandelmpi "example.org/parabench/mandelmpi"
)

// Sequence is a lazy, finite and restartable sequence of blocks.
type Sequence interface {
	Next() (mandelmpi.Block, bool)
	Reset()
}

// StrideSeq yields full-width bands of blockSize rows owned by one rank:
// rows rank*bs, rank*bs + size*bs, ... with the last band clipped.
type StrideSeq struct {
	rank, size, blockSize int
	width, height         int
	starty                int
}

func Stride(rank, size, blockSize, width, height int) *StrideSeq {
	s := &StrideSeq{rank: rank, size: size, blockSize: blockSize, width: width, height: height}
	s.Reset()
	return s
}

func (s *StrideSeq) Reset() {
	s.starty = s.rank * s.blockSize
}

func (s *StrideSeq) Next() (mandelmpi.Block, bool) {
	if s.blockSize <= 0 || s.starty >= s.height {
		return mandelmpi.Block{}, false
	}
	b := mandelmpi.Block{Xpos: 0, Ypos: s.starty, Width: s.width, Height: s.blockSize}
	if b.Ypos+b.Height > s.height {
		b.Height = s.height - b.Ypos
	}
	s.starty += s.size * s.blockSize
	return b, true
}

// StripeBlock returns the contiguous stripe of rank: height/size rows, one
// more for the first height%size ranks. Ranks beyond height get a
// zero-height stripe.
func StripeBlock(rank, size, width, height int) mandelmpi.Block {
	base, extra := height/size, height%size
	rows := base
	if rank < extra {
		rows++
	}
	return mandelmpi.Block{Xpos: 0, Ypos: rank*base + min(rank, extra), Width: width, Height: rows}
}

// StripeSeq yields the stripe of one rank, or nothing for an empty stripe.
type StripeSeq struct {
	block mandelmpi.Block
	done  bool
}

func Stripe(rank, size, width, height int) *StripeSeq {
	return &StripeSeq{block: StripeBlock(rank, size, width, height)}
}

func (s *StripeSeq) Reset() { s.done = false }

func (s *StripeSeq) Next() (mandelmpi.Block, bool) {
	if s.done || s.block.Empty() {
		return mandelmpi.Block{}, false
	}
	s.done = true
	return s.block, true
}

// TileSeq walks the grid in row-major order with blockSize x blockSize
// tiles, clipping tiles at the right and bottom edges.
type TileSeq struct {
	width, height, blockSize int
	ix, iy                   int
}

func Tiles(width, height, blockSize int) *TileSeq {
	return &TileSeq{width: width, height: height, blockSize: blockSize}
}

func (s *TileSeq) Reset() { s.ix, s.iy = 0, 0 }

func (s *TileSeq) Next() (mandelmpi.Block, bool) {
	if s.blockSize <= 0 || s.iy >= s.height || s.ix >= s.width {
		return mandelmpi.Block{}, false
	}
	b := mandelmpi.Block{Xpos: s.ix, Ypos: s.iy, Width: s.blockSize, Height: s.blockSize}
	if b.Xpos+b.Width > s.width {
		b.Width = s.width - b.Xpos
	}
	if b.Ypos+b.Height > s.height {
		b.Height = s.height - b.Ypos
	}
	s.ix += b.Width
	if s.ix >= s.width {
		s.ix = 0
		s.iy += b.Height
	}
	return b, true
}

// For returns the block sequence of a static strategy for one rank.
func For(strategy mandelmpi.Strategy, rank, size, blockSize, width, height int) (Sequence, error) {
	switch strategy {
	case mandelmpi.Stride:
		return Stride(rank, size, blockSize, width, height), nil
	case mandelmpi.Stripe:
		return Stripe(rank, size, width, height), nil
	}
	return nil, fmt.Errorf("partition: %v is not a static strategy", strategy)
}

// MaxArea is the largest number of pixels a single block of rank can hold,
// used to size iteration buffers and output chunks.
func MaxArea(strategy mandelmpi.Strategy, rank, size, blockSize, width, height int) int {
	switch strategy {
	case mandelmpi.Stride:
		return width * min(blockSize, height)
	case mandelmpi.Stripe:
		return StripeBlock(rank, size, width, height).Area()
	case mandelmpi.BlockMaster:
		if rank == 0 {
			return 0
		}
		return min(blockSize, width) * min(blockSize, height)
	}
	return 0
}

// All collects the remaining blocks of s.
func All(s Sequence) []mandelmpi.Block {
	var blocks []mandelmpi.Block
	for b, ok := s.Next(); ok; b, ok = s.Next() {
		blocks = append(blocks, b)
	}
	return blocks
}

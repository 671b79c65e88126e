package parfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	mandelmpi "example.org/parabench/mandelmpi"
)

// Writer appends records to the stream of one rank. Its methods may be
// called from several goroutines; each call is written as a unit.
type Writer struct {
	mu   sync.Mutex
	f    *os.File
	h    Header
	rank int

	chunk int    // index of the chunk being filled
	buf   []byte // unflushed bytes of that chunk

	metadata bool
	blocks   int
	bytes    int
	closed   bool
}

// Open returns the writer of rank. capacityHint is the largest record the
// caller expects to write at once; it may not exceed the chunk size chosen
// at creation.
func Open(path string, rank, capacityHint int) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	h, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	if rank < 0 || rank >= h.Ranks {
		f.Close()
		return nil, fmt.Errorf("%w: %d of %d", ErrRank, rank, h.Ranks)
	}
	if capacityHint > h.ChunkSize {
		f.Close()
		return nil, fmt.Errorf("%w: %d > %d", ErrCapacity, capacityHint, h.ChunkSize)
	}
	return &Writer{
		f:    f,
		h:    h,
		rank: rank,
		buf:  make([]byte, 0, h.ChunkSize),
	}, nil
}

func (w *Writer) Rank() int { return w.rank }

// Bytes is the number of record bytes written so far.
func (w *Writer) Bytes() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bytes
}

// WriteMetadata writes the global run record. Only rank 0 may call it, once,
// before any block.
func (w *Writer) WriteMetadata(meta mandelmpi.RunMetadata) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if w.rank != 0 {
		return ErrNotDesignated
	}
	if w.metadata || w.blocks > 0 {
		return ErrMetadataOrder
	}
	if err := checkMetadata(meta); err != nil {
		return err
	}

	rec := metaRecord{
		RunID:     meta.RunID,
		Strategy:  int32(meta.Strategy),
		Width:     int32(meta.Region.Width),
		Height:    int32(meta.Region.Height),
		NumProcs:  int32(meta.NumProcs),
		MaxIter:   int32(meta.MaxIter),
		BlockSize: int32(meta.BlockSize),
		Xmin:      meta.Region.Xmin,
		Xmax:      meta.Region.Xmax,
		Ymin:      meta.Region.Ymin,
		Ymax:      meta.Region.Ymax,
	}
	var buf bytes.Buffer
	buf.Grow(metaRecordSize)
	buf.WriteByte(kindMetadata)
	if err := binary.Write(&buf, byteOrder, rec); err != nil {
		return err
	}
	if err := w.append(buf.Bytes()); err != nil {
		return err
	}
	w.metadata = true
	return nil
}

// checkMetadata rejects run records the fixed int32 fields cannot hold.
func checkMetadata(meta mandelmpi.RunMetadata) error {
	if !meta.Strategy.Valid() {
		return fmt.Errorf("%w: strategy %v", ErrRange, meta.Strategy)
	}
	if !fitsInt32(meta.Region.Width, meta.Region.Height, meta.NumProcs, meta.MaxIter, meta.BlockSize) {
		return fmt.Errorf("%w: %dx%d numprocs=%d maxiter=%d blocksize=%d", ErrRange,
			meta.Region.Width, meta.Region.Height, meta.NumProcs, meta.MaxIter, meta.BlockSize)
	}
	return nil
}

func fitsInt32(vs ...int) bool {
	for _, v := range vs {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return false
		}
	}
	return true
}

// WriteBlock writes the position record of b immediately followed by its
// iteration counts. Empty blocks are not written.
func (w *Writer) WriteBlock(b mandelmpi.Block, iterations []int32) error {
	if b.Empty() {
		return nil
	}
	if !fitsInt32(b.Xpos, b.Ypos, b.Width, b.Height) || 4*int64(len(iterations)) > math.MaxUint32 {
		return fmt.Errorf("%w: block %v", ErrRange, b)
	}
	if len(iterations) != b.Area() {
		return fmt.Errorf("parfile: block %v with %d iterations", b, len(iterations))
	}

	payload := make([]byte, 4*len(iterations))
	for i, v := range iterations {
		byteOrder.PutUint32(payload[4*i:], uint32(v))
	}
	if w.h.Compress {
		var err error
		if payload, err = compress(payload); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	buf.Grow(posRecordSize + len(payload))
	buf.WriteByte(kindBlock)
	pos := posRecord{
		Width:      int32(b.Width),
		Height:     int32(b.Height),
		Xpos:       int32(b.Xpos),
		Ypos:       int32(b.Ypos),
		PayloadLen: uint32(len(payload)),
	}
	if err := binary.Write(&buf, byteOrder, pos); err != nil {
		return err
	}
	buf.Write(payload)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.append(buf.Bytes()); err != nil {
		return err
	}
	w.blocks++
	return nil
}

func (w *Writer) append(p []byte) error {
	w.bytes += len(p)
	for len(p) > 0 {
		n := min(len(p), w.h.ChunkSize-len(w.buf))
		w.buf = append(w.buf, p[:n]...)
		p = p[n:]
		if len(w.buf) == w.h.ChunkSize {
			if err := w.flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

// flush writes the current chunk and moves on to the next one.
func (w *Writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}
	out := make([]byte, chunkHeaderSize+len(w.buf))
	byteOrder.PutUint32(out[0:], uint32(len(w.buf)))
	byteOrder.PutUint32(out[4:], uint32(w.rank))
	copy(out[chunkHeaderSize:], w.buf)
	if _, err := w.f.WriteAt(out, chunkOffset(w.h, w.rank, w.chunk)); err != nil {
		return fmt.Errorf("parfile: rank %d chunk %d: %w", w.rank, w.chunk, err)
	}
	w.chunk++
	w.buf = w.buf[:0]
	return nil
}

// Close flushes the last partial chunk and releases the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

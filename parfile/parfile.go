// Package parfile is a shared output file written concurrently by all
// participants of a run. The file is cut into fixed-size chunks laid out
// rank by rank (chunk k of rank r follows chunk k of rank r-1), so every
// writer owns disjoint regions and never needs a lock shared with other
// writers. Each rank sees its chunks as one contiguous record stream.
//
// Layout:
//
//	header   64 bytes: magic, version, ranks, chunk size, flags
//	chunk    8 bytes (used length, rank) + ChunkSize data bytes
//
// Records in a rank stream:
//
//	metadata 1 kind byte + fixed run record (rank 0 only, first)
//	block    1 kind byte + {width, height, xpos, ypos, payload length} + payload
package parfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/google/uuid"
)

const (
	magic           = "MNDLPAR1"
	version         = 1
	headerSize      = 64
	chunkHeaderSize = 8

	flagCompress uint32 = 1 << 0

	kindMetadata byte = 1
	kindBlock    byte = 2
)

var (
	ErrCapacity      = errors.New("parfile: capacity hint exceeds chunk size")
	ErrMetadataOrder = errors.New("parfile: metadata must be the first and only metadata record")
	ErrNotDesignated = errors.New("parfile: only rank 0 writes run metadata")
	ErrCorrupt       = errors.New("parfile: corrupt file")
	ErrClosed        = errors.New("parfile: writer closed")
	ErrRank          = errors.New("parfile: rank out of range")
	ErrRange         = errors.New("parfile: value does not fit the record format")
)

var byteOrder = binary.LittleEndian

// Options fix the geometry of a file at creation.
type Options struct {
	Ranks     int
	ChunkSize int // data bytes per chunk
	Compress  bool
}

type Header struct {
	Version   uint32
	Ranks     int
	ChunkSize int
	Compress  bool
}

type fileHeader struct {
	Magic     [8]byte
	Version   uint32
	Ranks     uint32
	ChunkSize uint32
	Flags     uint32
}

type metaRecord struct {
	RunID     uuid.UUID
	Strategy  int32
	Width     int32
	Height    int32
	NumProcs  int32
	MaxIter   int32
	BlockSize int32
	Xmin      float64
	Xmax      float64
	Ymin      float64
	Ymax      float64
}

type posRecord struct {
	Width      int32
	Height     int32
	Xpos       int32
	Ypos       int32
	PayloadLen uint32
}

var (
	metaRecordSize = 1 + binary.Size(metaRecord{})
	posRecordSize  = 1 + binary.Size(posRecord{})
)

// MetadataSize is the stream size of the metadata record.
func MetadataSize() int { return metaRecordSize }

// BlockRecordSize is the uncompressed stream size of a block of area pixels.
func BlockRecordSize(area int) int { return posRecordSize + 4*area }

// Create truncates path and writes the file header. It must complete
// before any participant opens the file.
func Create(path string, opts Options) error {
	if opts.Ranks <= 0 || opts.ChunkSize <= 0 {
		return fmt.Errorf("parfile: invalid geometry ranks=%d chunksize=%d", opts.Ranks, opts.ChunkSize)
	}
	if int64(opts.Ranks) > math.MaxUint32 || int64(opts.ChunkSize) > math.MaxUint32 {
		return fmt.Errorf("%w: ranks=%d chunksize=%d", ErrRange, opts.Ranks, opts.ChunkSize)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	h := fileHeader{
		Version:   version,
		Ranks:     uint32(opts.Ranks),
		ChunkSize: uint32(opts.ChunkSize),
	}
	copy(h.Magic[:], magic)
	if opts.Compress {
		h.Flags |= flagCompress
	}
	buf := make([]byte, headerSize)
	encodeHeader(buf, h)
	if _, err := f.WriteAt(buf, 0); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func encodeHeader(buf []byte, h fileHeader) {
	copy(buf[0:8], h.Magic[:])
	byteOrder.PutUint32(buf[8:], h.Version)
	byteOrder.PutUint32(buf[12:], h.Ranks)
	byteOrder.PutUint32(buf[16:], h.ChunkSize)
	byteOrder.PutUint32(buf[20:], h.Flags)
}

func readHeader(r io.ReaderAt) (Header, error) {
	buf := make([]byte, headerSize)
	if _, err := r.ReadAt(buf, 0); err != nil {
		return Header{}, fmt.Errorf("%w: reading header: %v", ErrCorrupt, err)
	}
	if string(buf[0:8]) != magic {
		return Header{}, fmt.Errorf("%w: bad magic %q", ErrCorrupt, buf[0:8])
	}
	h := Header{
		Version:   byteOrder.Uint32(buf[8:]),
		Ranks:     int(byteOrder.Uint32(buf[12:])),
		ChunkSize: int(byteOrder.Uint32(buf[16:])),
		Compress:  byteOrder.Uint32(buf[20:])&flagCompress != 0,
	}
	if h.Version != version {
		return Header{}, fmt.Errorf("%w: version %d", ErrCorrupt, h.Version)
	}
	if h.Ranks <= 0 || h.ChunkSize <= 0 {
		return Header{}, fmt.Errorf("%w: geometry ranks=%d chunksize=%d", ErrCorrupt, h.Ranks, h.ChunkSize)
	}
	return h, nil
}

func chunkOffset(h Header, rank, k int) int64 {
	return headerSize + (int64(k)*int64(h.Ranks)+int64(rank))*int64(chunkHeaderSize+h.ChunkSize)
}

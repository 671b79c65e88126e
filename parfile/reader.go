package parfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	mandelmpi "example.org/parabench/mandelmpi"
)

// Record is one entry of a rank stream: either Metadata or a block with its
// iteration counts.
type Record struct {
	Metadata   *mandelmpi.RunMetadata
	Block      mandelmpi.Block
	Iterations []int32
}

type Reader struct {
	f    *os.File
	h    Header
	size int64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	h, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{f: f, h: h, size: fi.Size()}, nil
}

func (r *Reader) Header() Header { return r.h }

func (r *Reader) Close() error { return r.f.Close() }

// Stream returns the concatenated chunk data of rank.
func (r *Reader) Stream(rank int) ([]byte, error) {
	if rank < 0 || rank >= r.h.Ranks {
		return nil, fmt.Errorf("%w: %d of %d", ErrRank, rank, r.h.Ranks)
	}
	var stream []byte
	hdr := make([]byte, chunkHeaderSize)
	for k := 0; ; k++ {
		off := chunkOffset(r.h, rank, k)
		if off+chunkHeaderSize > r.size {
			break
		}
		if _, err := r.f.ReadAt(hdr, off); err != nil {
			return nil, fmt.Errorf("%w: rank %d chunk %d: %v", ErrCorrupt, rank, k, err)
		}
		used := int(byteOrder.Uint32(hdr[0:]))
		if used == 0 {
			break
		}
		if owner := int(byteOrder.Uint32(hdr[4:])); owner != rank || used > r.h.ChunkSize {
			return nil, fmt.Errorf("%w: rank %d chunk %d claims rank %d, %d bytes", ErrCorrupt, rank, k, owner, used)
		}
		data := make([]byte, used)
		if _, err := r.f.ReadAt(data, off+chunkHeaderSize); err != nil {
			return nil, fmt.Errorf("%w: rank %d chunk %d: %v", ErrCorrupt, rank, k, err)
		}
		stream = append(stream, data...)
		if used < r.h.ChunkSize {
			break
		}
	}
	return stream, nil
}

// Records decodes the stream of rank.
func (r *Reader) Records(rank int) ([]Record, error) {
	stream, err := r.Stream(rank)
	if err != nil {
		return nil, err
	}
	var records []Record
	in := bytes.NewReader(stream)
	for in.Len() > 0 {
		kind, _ := in.ReadByte()
		switch kind {
		case kindMetadata:
			var rec metaRecord
			if err := binary.Read(in, byteOrder, &rec); err != nil {
				return nil, fmt.Errorf("%w: rank %d metadata: %v", ErrCorrupt, rank, err)
			}
			meta := mandelmpi.RunMetadata{
				RunID:    rec.RunID,
				Strategy: mandelmpi.Strategy(rec.Strategy),
				Region: mandelmpi.Region{
					Xmin:   rec.Xmin,
					Xmax:   rec.Xmax,
					Ymin:   rec.Ymin,
					Ymax:   rec.Ymax,
					Width:  int(rec.Width),
					Height: int(rec.Height),
				},
				MaxIter:   int(rec.MaxIter),
				BlockSize: int(rec.BlockSize),
				NumProcs:  int(rec.NumProcs),
			}
			if !meta.Strategy.Valid() {
				return nil, fmt.Errorf("%w: rank %d metadata names %v", ErrCorrupt, rank, meta.Strategy)
			}
			records = append(records, Record{Metadata: &meta})
		case kindBlock:
			rec, err := r.readBlock(in)
			if err != nil {
				return nil, fmt.Errorf("rank %d record %d: %w", rank, len(records), err)
			}
			records = append(records, rec)
		default:
			return nil, fmt.Errorf("%w: rank %d record %d has kind %d", ErrCorrupt, rank, len(records), kind)
		}
	}
	return records, nil
}

func (r *Reader) readBlock(in *bytes.Reader) (Record, error) {
	var pos posRecord
	if err := binary.Read(in, byteOrder, &pos); err != nil {
		return Record{}, fmt.Errorf("%w: position: %v", ErrCorrupt, err)
	}
	b := mandelmpi.Block{Xpos: int(pos.Xpos), Ypos: int(pos.Ypos), Width: int(pos.Width), Height: int(pos.Height)}
	if b.Width < 0 || b.Height < 0 || int(pos.PayloadLen) > in.Len() {
		return Record{}, fmt.Errorf("%w: block %v payload %d", ErrCorrupt, b, pos.PayloadLen)
	}
	payload := make([]byte, pos.PayloadLen)
	if _, err := io.ReadFull(in, payload); err != nil {
		return Record{}, fmt.Errorf("%w: payload: %v", ErrCorrupt, err)
	}
	if r.h.Compress {
		var err error
		if payload, err = decompress(payload, 4*b.Area()); err != nil {
			return Record{}, fmt.Errorf("%w: payload: %v", ErrCorrupt, err)
		}
	}
	if len(payload) != 4*b.Area() {
		return Record{}, fmt.Errorf("%w: block %v has %d payload bytes", ErrCorrupt, b, len(payload))
	}
	iterations := make([]int32, b.Area())
	for i := range iterations {
		iterations[i] = int32(byteOrder.Uint32(payload[4*i:]))
	}
	return Record{Block: b, Iterations: iterations}, nil
}

// Metadata returns the run record, the first record of rank 0.
func (r *Reader) Metadata() (mandelmpi.RunMetadata, error) {
	records, err := r.Records(0)
	if err != nil {
		return mandelmpi.RunMetadata{}, err
	}
	if len(records) == 0 || records[0].Metadata == nil {
		return mandelmpi.RunMetadata{}, fmt.Errorf("%w: rank 0 stream does not start with metadata", ErrCorrupt)
	}
	return *records[0].Metadata, nil
}

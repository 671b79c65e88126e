package parfile

import (
	"sync"

	"github.com/klauspost/compress/zstd"
)

var encoderPool = sync.Pool{
	New: func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return err
		}
		return enc
	},
}

var decoderPool = sync.Pool{
	New: func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return err
		}
		return dec
	},
}

func compress(src []byte) ([]byte, error) {
	v := encoderPool.Get()
	enc, ok := v.(*zstd.Encoder)
	if !ok {
		return nil, v.(error)
	}
	defer encoderPool.Put(enc)
	return enc.EncodeAll(src, make([]byte, 0, len(src)/4)), nil
}

func decompress(src []byte, size int) ([]byte, error) {
	v := decoderPool.Get()
	dec, ok := v.(*zstd.Decoder)
	if !ok {
		return nil, v.(error)
	}
	defer decoderPool.Put(dec)
	return dec.DecodeAll(src, make([]byte, 0, size))
}

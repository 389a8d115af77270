package audio

import (
	"encoding/binary"
	"io"
	"math"
)

type float32Reader interface {
	Read([]float32) (int, error)
}

// readerFromFloat32Reader exposes a float32 sample reader as
// a little-endian byte stream (PCMFormatFloat32LE).
type readerFromFloat32Reader struct {
	backend float32Reader
	samples []float32
	pending []byte
}

var _ io.Reader = (*readerFromFloat32Reader)(nil)

func newReaderFromFloat32Reader(backend float32Reader) *readerFromFloat32Reader {
	return &readerFromFloat32Reader{
		backend: backend,
	}
}

func (r *readerFromFloat32Reader) Read(p []byte) (int, error) {
	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}

	wantSamples := (len(p) + 3) / 4
	if cap(r.samples) < wantSamples {
		r.samples = make([]float32, wantSamples)
	}
	samples := r.samples[:wantSamples]

	n, err := r.backend.Read(samples)
	if n <= 0 {
		return 0, err
	}

	buf := make([]byte, n*4)
	for idx, sample := range samples[:n] {
		binary.LittleEndian.PutUint32(buf[idx*4:], math.Float32bits(sample))
	}
	copied := copy(p, buf)
	r.pending = buf[copied:]
	return copied, err
}

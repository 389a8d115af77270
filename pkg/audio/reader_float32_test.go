package audio

import (
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

type sliceFloat32Reader struct {
	samples []float32
}

func (r *sliceFloat32Reader) Read(p []float32) (int, error) {
	if len(r.samples) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.samples)
	r.samples = r.samples[n:]
	return n, nil
}

func TestReaderFromFloat32Reader(t *testing.T) {
	in := []float32{0.5, -0.25, 1}
	r := newReaderFromFloat32Reader(&sliceFloat32Reader{samples: in})

	// an odd-sized buffer forces the reader to keep a pending tail
	var out []byte
	buf := make([]byte, 5)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}

	require.Len(t, out, len(in)*4)
	for idx, expected := range in {
		v := math.Float32frombits(binary.LittleEndian.Uint32(out[idx*4:]))
		require.Equal(t, expected, v)
	}
}

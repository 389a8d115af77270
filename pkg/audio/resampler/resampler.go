package resampler

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/xaionaro-go/voicepause/pkg/audio"
)

const (
	distanceStep = 10000
)

type Format struct {
	Channels   audio.Channel
	SampleRate audio.SampleRate
	PCMFormat  audio.PCMFormat
}

func (f Format) validate() error {
	if f.Channels == 0 {
		return fmt.Errorf("the amount of channels is zero")
	}
	if f.SampleRate == 0 {
		return fmt.Errorf("the sample rate is zero")
	}
	if f.PCMFormat.Size() == 0 {
		return fmt.Errorf("unsupported PCM format: %v", f.PCMFormat)
	}
	return nil
}

type precalculated struct {
	inSampleSize    uint
	outSampleSize   uint
	inNumAvg        uint
	outNumRepeat    uint
	outDistanceStep uint64
}

// Resampler converts a PCM stream between sample rates, sample formats
// and channel layouts (mono to N channels and N channels to mono only).
//
// It is a nearest-sample converter: good enough to feed the speech
// detector, not meant for playback quality.
type Resampler struct {
	inReader    io.Reader
	inFormat    Format
	outFormat   Format
	inDistance  uint64
	outDistance uint64
	locker      sync.Mutex
	buffer      []byte
	precalculated
}

var _ io.Reader = (*Resampler)(nil)

func NewResampler(
	inFormat Format,
	inReader io.Reader,
	outFormat Format,
) (*Resampler, error) {
	r := &Resampler{
		inReader:  inReader,
		inFormat:  inFormat,
		outFormat: outFormat,
	}
	err := r.init()
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a resampler from %#+v to %#+v: %w", inFormat, outFormat, err)
	}
	return r, nil
}

func (r *Resampler) init() error {
	if err := r.inFormat.validate(); err != nil {
		return fmt.Errorf("invalid input format: %w", err)
	}
	if err := r.outFormat.validate(); err != nil {
		return fmt.Errorf("invalid output format: %w", err)
	}
	r.inSampleSize = r.inFormat.PCMFormat.Size()
	r.outSampleSize = r.outFormat.PCMFormat.Size()

	r.inNumAvg = 1
	r.outNumRepeat = 1
	if r.inFormat.Channels != r.outFormat.Channels {
		switch {
		case r.inFormat.Channels == 1:
			r.outNumRepeat = uint(r.outFormat.Channels)
		case r.outFormat.Channels == 1:
			r.inNumAvg = uint(r.inFormat.Channels)
		default:
			return fmt.Errorf("do not know how to convert %d channels to %d", r.inFormat.Channels, r.outFormat.Channels)
		}
	}

	ratio := float64(r.outFormat.SampleRate) / float64(r.inFormat.SampleRate)
	r.outDistanceStep = uint64(math.Round(float64(distanceStep) / ratio))
	r.inDistance = 0
	r.outDistance = 0
	return nil
}

func (r *Resampler) Read(p []byte) (int, error) {
	r.locker.Lock()
	defer r.locker.Unlock()

	outFrameSize := uint64(r.outSampleSize) * uint64(r.outNumRepeat)
	inFrameSize := uint64(r.inSampleSize) * uint64(r.inNumAvg)

	maxOut := uint64(len(p)) / outFrameSize
	if maxOut == 0 {
		return 0, nil
	}

	toRead := uint64(float64(maxOut) * float64(r.inFormat.SampleRate) / float64(r.outFormat.SampleRate))
	if toRead == 0 {
		toRead = 1
	}
	bytesToRead := int(toRead * inFrameSize)
	if cap(r.buffer) < bytesToRead {
		r.buffer = make([]byte, bytesToRead)
	}
	r.buffer = r.buffer[:bytesToRead]

	n, err := io.ReadFull(r.inReader, r.buffer)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if n%int(inFrameSize) != 0 {
		return 0, fmt.Errorf("read a number of bytes (%d) that is not a multiple of %d", n, inFrameSize)
	}
	inCount := uint64(n) / inFrameSize

	var outIdx, inIdx uint64
	for inIdx < inCount && outIdx < maxOut {
		for r.inDistance < r.outDistance && inIdx < inCount {
			inIdx++
			r.inDistance += distanceStep
		}
		if inIdx >= inCount {
			break
		}

		base := inIdx * inFrameSize
		var sum float64
		for ch := uint64(0); ch < uint64(r.inNumAvg); ch++ {
			sum += decodeSample(r.inFormat.PCMFormat, r.buffer[base+ch*uint64(r.inSampleSize):])
		}
		v := sum / float64(r.inNumAvg)

		for outIdx < maxOut && r.outDistance <= r.inDistance {
			for rep := uint64(0); rep < uint64(r.outNumRepeat); rep++ {
				encodeSample(r.outFormat.PCMFormat, p[outIdx*outFrameSize+rep*uint64(r.outSampleSize):], v)
			}
			outIdx++
			r.outDistance += r.outDistanceStep
		}

		inIdx++
		r.inDistance += distanceStep
	}

	if outIdx > 0 && err == io.EOF {
		err = nil
	}
	return int(outIdx * outFrameSize), err
}

// ResampleS16 converts mono S16 samples from one sample rate to another.
func ResampleS16(
	samples []int16,
	from audio.SampleRate,
	to audio.SampleRate,
) ([]int16, error) {
	if from == to {
		return samples, nil
	}

	in := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(in[i*2:], uint16(s))
	}

	format := Format{Channels: 1, PCMFormat: audio.PCMFormatS16LE}
	inFormat, outFormat := format, format
	inFormat.SampleRate = from
	outFormat.SampleRate = to
	r, err := NewResampler(inFormat, bytes.NewReader(in), outFormat)
	if err != nil {
		return nil, err
	}

	result := make([]int16, 0, uint64(len(samples))*uint64(to)/uint64(from)+1)
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		for i := 0; i+1 < n; i += 2 {
			result = append(result, int16(binary.LittleEndian.Uint16(chunk[i:])))
		}
		switch {
		case err == io.EOF:
			return result, nil
		case err != nil:
			return nil, fmt.Errorf("unable to resample: %w", err)
		}
	}
}

func decodeSample(f audio.PCMFormat, p []byte) float64 {
	switch f {
	case audio.PCMFormatU8:
		return (float64(p[0]) - 128) / 128
	case audio.PCMFormatS16LE:
		return float64(int16(binary.LittleEndian.Uint16(p))) / 32768
	case audio.PCMFormatS32LE:
		return float64(int32(binary.LittleEndian.Uint32(p))) / 2147483648
	case audio.PCMFormatFloat32LE:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(p)))
	case audio.PCMFormatFloat64LE:
		return math.Float64frombits(binary.LittleEndian.Uint64(p))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

func encodeSample(f audio.PCMFormat, p []byte, v float64) {
	switch f {
	case audio.PCMFormatU8:
		p[0] = byte(clamp(math.Round(v*128+128), 0, 255))
	case audio.PCMFormatS16LE:
		binary.LittleEndian.PutUint16(p, uint16(int16(clamp(math.Round(v*32768), -32768, 32767))))
	case audio.PCMFormatS32LE:
		binary.LittleEndian.PutUint32(p, uint32(int32(clamp(math.Round(v*2147483648), -2147483648, 2147483647))))
	case audio.PCMFormatFloat32LE:
		binary.LittleEndian.PutUint32(p, math.Float32bits(float32(v)))
	case audio.PCMFormatFloat64LE:
		binary.LittleEndian.PutUint64(p, math.Float64bits(v))
	default:
		panic(fmt.Sprintf("unknown format: %v", f))
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

package capture

import (
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/xaionaro-go/voicepause/pkg/audio"
)

// LoadWAV decodes a PCM WAV stream into mono S16 samples. Multichannel
// input is downmixed by averaging; other bit depths are rescaled to 16 bits.
func LoadWAV(r io.ReadSeeker) ([]int16, audio.SampleRate, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("not a valid WAV file")
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("unable to decode the PCM data: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, 0, fmt.Errorf("the WAV file has no format information")
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		return nil, 0, fmt.Errorf("invalid amount of channels: %d", channels)
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(decoder.BitDepth)
	}

	samples := make([]int16, len(buf.Data)/channels)
	for i := range samples {
		var sum int
		for c := 0; c < channels; c++ {
			sum += rescaleTo16(buf.Data[i*channels+c], bitDepth)
		}
		samples[i] = clampInt16(sum / channels)
	}
	return samples, audio.SampleRate(buf.Format.SampleRate), nil
}

// WriteWAV encodes mono S16 samples as a 16-bit PCM WAV stream.
func WriteWAV(
	w io.WriteSeeker,
	samples []int16,
	sampleRate audio.SampleRate,
) error {
	encoder := wav.NewEncoder(w, int(sampleRate), 16, 1, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  int(sampleRate),
		},
		SourceBitDepth: 16,
		Data:           data,
	}
	if err := encoder.Write(buf); err != nil {
		return fmt.Errorf("unable to write the samples: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("unable to finalize the WAV stream: %w", err)
	}
	return nil
}

func rescaleTo16(v int, bitDepth int) int {
	switch {
	case bitDepth == 8:
		// 8-bit WAV is unsigned
		return (v - 128) << 8
	case bitDepth > 16:
		return v >> (bitDepth - 16)
	case bitDepth > 0 && bitDepth < 16:
		return v << (16 - bitDepth)
	default:
		return v
	}
}

func clampInt16(v int) int16 {
	switch {
	case v > 32767:
		return 32767
	case v < -32768:
		return -32768
	default:
		return int16(v)
	}
}

package capture

import (
	"context"
	"io"

	"github.com/xaionaro-go/voicepause/pkg/audio"
)

type Config struct {
	SampleRate audio.SampleRate
	Channels   audio.Channel
	PCMFormat  audio.PCMFormat
}

func DefaultConfig() Config {
	return Config{
		SampleRate: SampleRate,
		Channels:   Channels,
		PCMFormat:  PCMFormat,
	}
}

// Device is a source of raw samples.
type Device interface {
	io.Closer

	Open(ctx context.Context, cfg Config) error
	Start(ctx context.Context) error

	// Read fills the beginning of samples and returns the amount of samples
	// written. Zero samples with a nil error means no data is available yet.
	Read(ctx context.Context, samples []int16) (int, error)

	Stop(ctx context.Context) error
}

package capture

import (
	"context"
	"time"

	"github.com/xaionaro-go/voicepause/pkg/audio"
)

const (
	SampleRate    = audio.SampleRate(16000)
	Channels      = audio.Channel(1)
	PCMFormat     = audio.PCMFormatS16LE
	FrameDuration = 20 * time.Millisecond
	FrameSamples  = int(SampleRate) * int(FrameDuration/time.Millisecond) / 1000
)

// Frame is a fixed-size chunk of mono S16 samples. The Samples slice is
// owned by the frame and never reused by the FrameSource.
type Frame struct {
	Index uint64

	// Timestamp is the position of the first sample of the frame relative
	// to the start of the capture session.
	Timestamp time.Duration

	Samples []int16
}

// Listener receives frames on the capture goroutine. Implementations must
// return quickly and must not call StopCapture/Release synchronously.
type Listener interface {
	OnFrame(ctx context.Context, frame Frame)

	// OnCaptureError is called at most once per capture session, right
	// before the capture loop exits.
	OnCaptureError(ctx context.Context, err error)
}

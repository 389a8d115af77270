package portaudio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
	"unsafe"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/gordonklaus/portaudio"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/voicepause/pkg/audio/types"
)

type PlayPCMStream struct {
	PortAudioStream *portaudio.Stream
	OutputBuffer    []byte
	Reader          io.Reader
	CancelFunc      context.CancelFunc
	WaitGroup       sync.WaitGroup
	closeOnce       sync.Once
}

var _ types.PlayStream = (*PlayPCMStream)(nil)

func newPlayPCMStream[T any](
	ctx context.Context,
	sampleRate types.SampleRate,
	channels types.Channel,
	bufferSize time.Duration,
) (*PlayPCMStream, error) {
	framesPerBuffer := int(bufferSize.Seconds() * float64(sampleRate))

	var sample T
	buf := make([]T, framesPerBuffer*int(channels))
	logger.Debugf(ctx, "newPlayPCMStream: %T, %d, %d %s(%d)", sample, sampleRate, channels, bufferSize, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, int(channels), float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, err
	}

	ptr := unsafe.SliceData(buf)
	bytesBuf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), len(buf)*int(unsafe.Sizeof(sample)))

	return &PlayPCMStream{
		PortAudioStream: stream,
		OutputBuffer:    bytesBuf,
		CancelFunc:      func() {},
	}, nil
}

func (s *PlayPCMStream) init(
	ctx context.Context,
	reader io.Reader,
) error {
	s.Reader = reader
	ctx, s.CancelFunc = context.WithCancel(ctx)

	err := s.PortAudioStream.Start()
	if err != nil {
		return fmt.Errorf("unable to start the stream: %w", err)
	}

	s.WaitGroup.Add(1)
	observability.Go(ctx, func() {
		defer s.WaitGroup.Done()
		s.writerLoop(ctx)
	})
	return nil
}

func (s *PlayPCMStream) writerLoop(
	ctx context.Context,
) (_ret error) {
	logger.Debugf(ctx, "writerLoop")
	defer func() { logger.Debugf(ctx, "/writerLoop: %v", _ret) }()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := io.ReadFull(s.Reader, s.OutputBuffer); err != nil {
			return fmt.Errorf("unable to read: %w", err)
		}

		logger.Tracef(ctx, "Write")
		err := s.PortAudioStream.Write()
		logger.Tracef(ctx, "/Write: %v", err)
		if err != nil {
			return fmt.Errorf("unable to write: %w", err)
		}
	}
}

func (s *PlayPCMStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.CancelFunc()
		err = s.PortAudioStream.Abort()
		s.WaitGroup.Wait()
		if closeErr := s.PortAudioStream.Close(); err == nil {
			err = closeErr
		}
	})
	return err
}

// Drain blocks until the reader is exhausted (or the stream is closed).
func (s *PlayPCMStream) Drain() error {
	s.WaitGroup.Wait()
	return nil
}

package portaudio

import (
	"context"
	"errors"
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

const (
	// RecordBufferSize is the portaudio period; it matches the frame
	// duration used by the voice activity detector.
	RecordBufferSize = time.Millisecond * 20
)

type RecordPCMStream struct {
	PortAudioStream *portaudio.Stream
	InputBuffer     []byte
	Writer          io.Writer
	CancelFunc      context.CancelFunc
	WaitGroup       sync.WaitGroup

	closeOnce sync.Once
	errLocker sync.Mutex
	err       error
}

var _ types.RecordStream = (*RecordPCMStream)(nil)

func newRecordPCMStream[T any](
	ctx context.Context,
	sampleRate types.SampleRate,
	channels types.Channel,
) (*RecordPCMStream, error) {
	bufferItemsCount := int(RecordBufferSize.Seconds()*float64(sampleRate)) * int(channels)

	var sample T
	buf := make([]T, bufferItemsCount)
	logger.Debugf(ctx, "newRecordPCMStream: %T, %d, %d %s(%d)", sample, sampleRate, channels, RecordBufferSize, bufferItemsCount)
	stream, err := portaudio.OpenDefaultStream(int(channels), 0, float64(sampleRate), bufferItemsCount/int(channels), buf)
	if err != nil {
		return nil, err
	}

	ptr := unsafe.SliceData(buf)
	bytesBuf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), len(buf)*int(unsafe.Sizeof(sample)))

	return &RecordPCMStream{
		PortAudioStream: stream,
		InputBuffer:     bytesBuf,
		CancelFunc:      func() {},
	}, nil
}

func (s *RecordPCMStream) init(
	ctx context.Context,
	writer io.Writer,
) error {
	s.Writer = writer
	ctx, s.CancelFunc = context.WithCancel(ctx)

	err := s.PortAudioStream.Start()
	if err != nil {
		return fmt.Errorf("unable to start the stream: %w", err)
	}

	s.WaitGroup.Add(1)
	observability.Go(ctx, func() {
		defer s.WaitGroup.Done()
		err := s.readerLoop(ctx)
		if err != nil && ctx.Err() == nil {
			s.setError(err)
		}
	})
	return nil
}

func (s *RecordPCMStream) setError(err error) {
	s.errLocker.Lock()
	defer s.errLocker.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *RecordPCMStream) Error() error {
	s.errLocker.Lock()
	defer s.errLocker.Unlock()
	return s.err
}

func (s *RecordPCMStream) readerLoop(
	ctx context.Context,
) (_ret error) {
	logger.Debugf(ctx, "readerLoop")
	defer func() { logger.Debugf(ctx, "/readerLoop: %v", _ret) }()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		logger.Tracef(ctx, "Read")
		err := s.PortAudioStream.Read()
		logger.Tracef(ctx, "/Read: %v", err)
		switch {
		case err == nil:
		case errors.Is(err, portaudio.InputOverflowed):
			logger.Warnf(ctx, "input overflowed, some samples were lost by the driver")
		default:
			return fmt.Errorf("unable to read: %w", err)
		}

		n, err := s.Writer.Write(s.InputBuffer)
		if err != nil {
			return fmt.Errorf("unable to write: %w", err)
		}
		if n != len(s.InputBuffer) {
			return fmt.Errorf("invalid write length: %d != %d", n, len(s.InputBuffer))
		}
	}
}

func (s *RecordPCMStream) Close() error {
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

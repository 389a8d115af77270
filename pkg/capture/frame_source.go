package capture

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/observability"
)

const (
	DefaultStopTimeout     = time.Second
	DefaultZeroReadBackoff = time.Millisecond
)

// FrameSource slices the sample stream of a Device into Frames and
// delivers them to a Listener from a dedicated goroutine.
type FrameSource struct {
	Device          Device
	StopTimeout     time.Duration
	ZeroReadBackoff time.Duration

	locker     sync.Mutex
	listener   Listener
	opened     bool
	capturing  atomic.Bool
	session    atomic.Uint64
	cancelFunc context.CancelFunc
	loopDone   chan struct{}
}

func NewFrameSource(device Device) *FrameSource {
	return &FrameSource{
		Device:          device,
		StopTimeout:     DefaultStopTimeout,
		ZeroReadBackoff: DefaultZeroReadBackoff,
	}
}

// Initialize opens the device for 16kHz mono S16 capture. On failure
// the device is closed before returning.
func (s *FrameSource) Initialize(
	ctx context.Context,
	listener Listener,
) (_err error) {
	logger.Debugf(ctx, "Initialize")
	defer func() { logger.Debugf(ctx, "/Initialize: %v", _err) }()

	s.locker.Lock()
	defer s.locker.Unlock()

	if s.capturing.Load() {
		return ErrBusy
	}
	if s.opened {
		if err := s.Device.Close(); err != nil {
			logger.Warnf(ctx, "unable to close the previously opened device: %v", err)
		}
		s.opened = false
	}

	if err := s.Device.Open(ctx, DefaultConfig()); err != nil {
		if closeErr := s.Device.Close(); closeErr != nil {
			logger.Warnf(ctx, "unable to close the device after a failed open: %v", closeErr)
		}
		return fmt.Errorf("unable to open the device: %w", classifyOpenError(err))
	}

	s.listener = listener
	s.opened = true
	return nil
}

// StartCapture starts the device and the capture goroutine. It is a no-op
// if the capture is already running.
func (s *FrameSource) StartCapture(
	ctx context.Context,
) (_err error) {
	logger.Debugf(ctx, "StartCapture")
	defer func() { logger.Debugf(ctx, "/StartCapture: %v", _err) }()

	s.locker.Lock()
	defer s.locker.Unlock()

	if !s.opened {
		return ErrNotInitialized
	}
	if s.capturing.Load() {
		return nil
	}
	if s.loopDone != nil {
		// the previous session ended by itself (a device error)
		s.stopLocked(ctx)
	}

	if err := s.Device.Start(ctx); err != nil {
		return fmt.Errorf("unable to start the device: %w", err)
	}

	sessionID := s.session.Add(1)
	loopCtx, cancelFunc := context.WithCancel(context.WithoutCancel(ctx))
	loopDone := make(chan struct{})
	listener := s.listener

	s.cancelFunc = cancelFunc
	s.loopDone = loopDone
	s.capturing.Store(true)

	observability.Go(loopCtx, func() {
		defer close(loopDone)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		s.captureLoop(loopCtx, sessionID, listener)
	})
	return nil
}

// StopCapture stops the capture goroutine and the device. If the goroutine
// does not exit within StopTimeout, the session is abandoned: the device is
// stopped to unblock it and anything it still produces is discarded.
func (s *FrameSource) StopCapture(ctx context.Context) {
	logger.Debugf(ctx, "StopCapture")
	defer logger.Debugf(ctx, "/StopCapture")

	s.locker.Lock()
	defer s.locker.Unlock()
	s.stopLocked(ctx)
}

func (s *FrameSource) stopLocked(ctx context.Context) {
	s.capturing.Store(false)
	if s.loopDone == nil {
		return
	}

	s.cancelFunc()
	timeout := s.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.loopDone:
	case <-timer.C:
		logger.Warnf(ctx, "the capture loop did not stop within %v, abandoning it", timeout)
	}
	s.session.Add(1)

	if err := s.Device.Stop(ctx); err != nil {
		logger.Warnf(ctx, "unable to stop the device: %v", err)
	}
	s.cancelFunc = nil
	s.loopDone = nil
}

// Release stops the capture and closes the device. It is safe to call
// multiple times.
func (s *FrameSource) Release(ctx context.Context) error {
	logger.Debugf(ctx, "Release")
	defer logger.Debugf(ctx, "/Release")

	s.locker.Lock()
	defer s.locker.Unlock()
	s.stopLocked(ctx)

	if !s.opened {
		return nil
	}
	s.opened = false
	s.listener = nil
	if err := s.Device.Close(); err != nil {
		return fmt.Errorf("unable to close the device: %w", err)
	}
	return nil
}

func (s *FrameSource) IsCapturing() bool {
	return s.capturing.Load()
}

func (s *FrameSource) isCurrent(sessionID uint64) bool {
	return s.capturing.Load() && s.session.Load() == sessionID
}

func (s *FrameSource) captureLoop(
	ctx context.Context,
	sessionID uint64,
	listener Listener,
) {
	logger.Debugf(ctx, "captureLoop")
	defer logger.Debugf(ctx, "/captureLoop")

	// two frames: after slicing out whole frames less than one frame
	// remains, so a read always has room for at least one full frame
	staging := make([]int16, FrameSamples*2)
	filled := 0
	var frameIndex uint64

	for s.isCurrent(sessionID) && ctx.Err() == nil {
		free := len(staging) - filled
		n, err := s.Device.Read(ctx, staging[filled:])
		if err == nil && (n < 0 || n > free) {
			err = fmt.Errorf("%w: read %d samples into a buffer of %d", ErrBadValue, n, free)
		}
		if err != nil {
			if ctx.Err() != nil || !s.isCurrent(sessionID) {
				return
			}
			logger.Errorf(ctx, "unable to read from the device: %v", err)
			s.capturing.Store(false)
			listener.OnCaptureError(ctx, fmt.Errorf("unable to read from the device: %w", err))
			return
		}

		if n == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.ZeroReadBackoff):
			}
			continue
		}

		filled += n
		for filled >= FrameSamples {
			frame := Frame{
				Index:     frameIndex,
				Timestamp: time.Duration(frameIndex) * FrameDuration,
				Samples:   slices.Clone(staging[:FrameSamples]),
			}
			filled = copy(staging, staging[FrameSamples:filled])
			frameIndex++

			if !s.isCurrent(sessionID) {
				return
			}
			listener.OnFrame(ctx, frame)
		}
	}
}

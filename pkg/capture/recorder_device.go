package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/iamcalledrob/circular"
	"github.com/xaionaro-go/datacounter"
	"github.com/xaionaro-go/voicepause/pkg/audio"
)

const (
	DefaultRecorderBufferSize = 64 * 1024
	recorderReadWaitTimeout   = 100 * time.Millisecond
)

// RecorderDevice adapts an audio.RecorderPCM backend to the Device
// interface. The backend pushes bytes into a circular buffer, Read pulls
// samples out of it.
type RecorderDevice struct {
	Recorder   audio.RecorderPCM
	BufferSize uint

	locker        sync.Mutex
	cfg           Config
	opened        bool
	stream        audio.RecordStream
	writerCounter *datacounter.WriterCounter
	cancelFunc    context.CancelFunc

	bufferLocker      sync.Mutex
	buffer            *circular.Buffer
	bufferSize        int
	oddByte           []byte
	readBuf           []byte
	readProgressedCh  chan struct{}
	writeProgressedCh chan struct{}
}

var _ Device = (*RecorderDevice)(nil)

func NewRecorderDevice(recorder audio.RecorderPCM) *RecorderDevice {
	return &RecorderDevice{
		Recorder:   recorder,
		BufferSize: DefaultRecorderBufferSize,
	}
}

func (d *RecorderDevice) Open(
	ctx context.Context,
	cfg Config,
) (_err error) {
	logger.Debugf(ctx, "Open: %#+v", cfg)
	defer func() { logger.Debugf(ctx, "/Open: %v", _err) }()

	if cfg.SampleRate == 0 || cfg.Channels != 1 || cfg.PCMFormat != audio.PCMFormatS16LE {
		return fmt.Errorf("%w: %d Hz, %d channels, %s", ErrInvalidConfiguration, cfg.SampleRate, cfg.Channels, cfg.PCMFormat)
	}
	if d.Recorder == nil {
		return fmt.Errorf("%w: no recorder backend", ErrDeviceUnavailable)
	}

	if err := d.Recorder.Ping(ctx); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		return fmt.Errorf("%w: unable to ping the recorder: %w", ErrDeviceUnavailable, err)
	}

	d.locker.Lock()
	defer d.locker.Unlock()
	d.cfg = cfg
	d.opened = true
	return nil
}

func (d *RecorderDevice) Start(
	ctx context.Context,
) (_err error) {
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()

	d.locker.Lock()
	defer d.locker.Unlock()

	if !d.opened {
		return ErrInvalidOperation
	}
	if d.stream != nil {
		return nil
	}

	bufferSize := d.BufferSize
	if bufferSize == 0 {
		bufferSize = DefaultRecorderBufferSize
	}
	d.bufferLocker.Lock()
	d.buffer = circular.NewBuffer(int(bufferSize))
	d.bufferSize = int(bufferSize)
	d.oddByte = d.oddByte[:0]
	d.readProgressedCh = make(chan struct{})
	d.writeProgressedCh = make(chan struct{})
	d.bufferLocker.Unlock()

	writerCtx, cancelFunc := context.WithCancel(context.WithoutCancel(ctx))
	d.writerCounter = datacounter.NewWriterCounter(&stagingWriter{
		device: d,
		ctx:    writerCtx,
	})

	stream, err := d.Recorder.RecordPCM(
		ctx,
		d.cfg.SampleRate,
		d.cfg.Channels,
		d.cfg.PCMFormat,
		d.writerCounter,
	)
	if err != nil {
		cancelFunc()
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		return fmt.Errorf("unable to start recording: %w", err)
	}
	d.stream = stream
	d.cancelFunc = cancelFunc
	return nil
}

func (d *RecorderDevice) Read(
	ctx context.Context,
	samples []int16,
) (int, error) {
	d.locker.Lock()
	stream := d.stream
	d.locker.Unlock()
	if stream == nil {
		return 0, ErrInvalidOperation
	}

	d.bufferLocker.Lock()
	defer d.bufferLocker.Unlock()

	n, err := d.readSamplesLocked(samples)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return n, nil
	}

	if streamErr := stream.Error(); streamErr != nil {
		return 0, fmt.Errorf("%w: %w", ErrDeadObject, streamErr)
	}

	d.waitForWriteLocked(ctx)
	return d.readSamplesLocked(samples)
}

func (d *RecorderDevice) readSamplesLocked(samples []int16) (int, error) {
	if d.buffer == nil || len(samples) == 0 {
		return 0, nil
	}

	if cap(d.readBuf) < len(samples)*2 {
		d.readBuf = make([]byte, len(samples)*2)
	}
	buf := d.readBuf[:len(samples)*2]
	pending := copy(buf, d.oddByte)
	n, err := d.buffer.Read(buf[pending:])
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w: unable to read from the circular buffer: %w", ErrBadValue, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: received a negative count: %d", ErrBadValue, n)
	}
	total := pending + n
	if n > 0 {
		var oldCh chan struct{}
		oldCh, d.readProgressedCh = d.readProgressedCh, make(chan struct{})
		close(oldCh)
	}

	count := total / 2
	for i := 0; i < count; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	d.oddByte = append(d.oddByte[:0], buf[count*2:total]...)
	return count, nil
}

func (d *RecorderDevice) waitForWriteLocked(ctx context.Context) {
	ch := d.writeProgressedCh
	d.bufferLocker.Unlock()
	defer d.bufferLocker.Lock()

	timer := time.NewTimer(recorderReadWaitTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-ch:
	}
}

func (d *RecorderDevice) Stop(
	ctx context.Context,
) (_err error) {
	logger.Debugf(ctx, "Stop")
	defer func() { logger.Debugf(ctx, "/Stop: %v", _err) }()

	d.locker.Lock()
	defer d.locker.Unlock()
	return d.stopLocked(ctx)
}

func (d *RecorderDevice) stopLocked(ctx context.Context) error {
	if d.stream == nil {
		return nil
	}
	d.cancelFunc()
	err := d.stream.Close()
	logger.Debugf(ctx, "captured %d bytes", d.writerCounter.Count())
	d.stream = nil
	d.cancelFunc = nil
	if err != nil {
		return fmt.Errorf("unable to close the record stream: %w", err)
	}
	return nil
}

func (d *RecorderDevice) Close() error {
	d.locker.Lock()
	defer d.locker.Unlock()
	err := d.stopLocked(context.Background())
	d.opened = false
	return err
}

// CapturedBytes returns the amount of bytes the backend delivered in the
// current (or the last) recording.
func (d *RecorderDevice) CapturedBytes() uint64 {
	d.locker.Lock()
	defer d.locker.Unlock()
	if d.writerCounter == nil {
		return 0
	}
	return d.writerCounter.Count()
}

type stagingWriter struct {
	device *RecorderDevice
	ctx    context.Context
}

var _ io.Writer = (*stagingWriter)(nil)

// Write blocks while the buffer is full, until the consumer reads or the
// recording is stopped.
func (w *stagingWriter) Write(b []byte) (int, error) {
	d := w.device
	d.bufferLocker.Lock()
	defer d.bufferLocker.Unlock()

	written := 0
	for written < len(b) {
		if err := w.ctx.Err(); err != nil {
			return written, err
		}
		// half of the buffer always fits once the consumer catches up
		chunk := b[written:]
		if maxChunk := max(d.bufferSize/2, 1); len(chunk) > maxChunk {
			chunk = chunk[:maxChunk]
		}
		n, err := d.buffer.Write(chunk)
		if n > 0 {
			written += n
			var oldCh chan struct{}
			oldCh, d.writeProgressedCh = d.writeProgressedCh, make(chan struct{})
			close(oldCh)
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, circular.ErrNoSpace) {
			return written, fmt.Errorf("unable to write to the circular buffer: %w", err)
		}

		ch := d.readProgressedCh
		d.bufferLocker.Unlock()
		select {
		case <-w.ctx.Done():
		case <-ch:
		}
		d.bufferLocker.Lock()
	}
	return written, nil
}

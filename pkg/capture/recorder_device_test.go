package capture

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/voicepause/pkg/audio"
)

type fakeRecordStream struct {
	locker sync.Mutex
	err    error
	closed bool
}

func (s *fakeRecordStream) Close() error {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.closed = true
	return nil
}

func (s *fakeRecordStream) Error() error {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.err
}

func (s *fakeRecordStream) setError(err error) {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.err = err
}

type fakeRecorder struct {
	PingErr  error
	Payload  []byte
	ChunkLen int
	Stream   *fakeRecordStream
	done     chan struct{}
}

var _ audio.RecorderPCM = (*fakeRecorder)(nil)

func (r *fakeRecorder) Close() error { return nil }

func (r *fakeRecorder) Ping(context.Context) error { return r.PingErr }

func (r *fakeRecorder) RecordPCM(
	ctx context.Context,
	sampleRate audio.SampleRate,
	channels audio.Channel,
	format audio.PCMFormat,
	writer io.Writer,
) (audio.RecordStream, error) {
	r.Stream = &fakeRecordStream{}
	r.done = make(chan struct{})
	go func() {
		defer close(r.done)
		for pos := 0; pos < len(r.Payload); pos += r.ChunkLen {
			end := min(pos+r.ChunkLen, len(r.Payload))
			if _, err := writer.Write(r.Payload[pos:end]); err != nil {
				return
			}
		}
		r.Stream.setError(errors.New("device unplugged"))
	}()
	return r.Stream, nil
}

func TestRecorderDevice(t *testing.T) {
	ctx := context.Background()

	payload := make([]byte, FrameSamples*2*3)
	for i := 0; i < len(payload)/2; i++ {
		binary.LittleEndian.PutUint16(payload[i*2:], uint16(int16(i-100)))
	}
	recorder := &fakeRecorder{
		Payload:  payload,
		ChunkLen: 33,
	}
	device := NewRecorderDevice(recorder)
	device.BufferSize = 256

	_, err := device.Read(ctx, make([]int16, 10))
	require.ErrorIs(t, err, ErrInvalidOperation)

	require.NoError(t, device.Open(ctx, DefaultConfig()))
	require.NoError(t, device.Start(ctx))

	var got []int16
	buf := make([]int16, 100)
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		n, err := device.Read(ctx, buf)
		if err != nil {
			require.ErrorIs(t, err, ErrDeadObject)
			break
		}
		got = append(got, buf[:n]...)
	}

	require.Len(t, got, len(payload)/2)
	for i, s := range got {
		require.Equal(t, int16(i-100), s)
	}
	assert.Equal(t, uint64(len(payload)), device.CapturedBytes())

	require.NoError(t, device.Stop(ctx))
	assert.True(t, recorder.Stream.closed)
	require.NoError(t, device.Close())
}

func TestRecorderDeviceReadReusesBuffer(t *testing.T) {
	ctx := context.Background()

	payload := make([]byte, FrameSamples*2*4)
	for i := 0; i < len(payload)/2; i++ {
		binary.LittleEndian.PutUint16(payload[i*2:], uint16(int16(i)))
	}
	device := NewRecorderDevice(&fakeRecorder{
		Payload:  payload,
		ChunkLen: 33,
	})
	device.BufferSize = 256
	require.NoError(t, device.Open(ctx, DefaultConfig()))
	require.NoError(t, device.Start(ctx))
	defer device.Close()

	readBuf := func() []byte {
		device.bufferLocker.Lock()
		defer device.bufferLocker.Unlock()
		return device.readBuf
	}

	var got []int16
	buf := make([]int16, 100)
	var backing *byte
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		n, err := device.Read(ctx, buf)
		if err != nil {
			require.ErrorIs(t, err, ErrDeadObject)
			break
		}
		got = append(got, buf[:n]...)

		staging := readBuf()
		require.Equal(t, len(buf)*2, cap(staging))
		if backing == nil {
			backing = &staging[:1][0]
			continue
		}
		require.Same(t, backing, &staging[:1][0])
	}
	require.NotNil(t, backing)

	require.Len(t, got, len(payload)/2)
	for i, s := range got {
		require.Equal(t, int16(i), s)
	}

	_, err := device.Read(ctx, make([]int16, 10))
	if err != nil {
		require.ErrorIs(t, err, ErrDeadObject)
	}
	assert.Same(t, backing, &readBuf()[:1][0])
}

func TestRecorderDeviceOpenErrors(t *testing.T) {
	ctx := context.Background()

	device := NewRecorderDevice(&fakeRecorder{})
	err := device.Open(ctx, Config{SampleRate: SampleRate, Channels: 2, PCMFormat: audio.PCMFormatS16LE})
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	device = NewRecorderDevice(&fakeRecorder{PingErr: fs.ErrPermission})
	require.ErrorIs(t, device.Open(ctx, DefaultConfig()), ErrPermissionDenied)

	device = NewRecorderDevice(&fakeRecorder{PingErr: errors.New("connection refused")})
	require.ErrorIs(t, device.Open(ctx, DefaultConfig()), ErrDeviceUnavailable)

	device = NewRecorderDevice(nil)
	require.ErrorIs(t, device.Open(ctx, DefaultConfig()), ErrDeviceUnavailable)
}

package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayDevice(t *testing.T) {
	ctx := context.Background()
	samples := make([]int16, 1000)
	for i := range samples {
		samples[i] = int16(i)
	}

	t.Run("chunked", func(t *testing.T) {
		d := NewReplayDevice(samples, SampleRate)
		d.ChunkSize = 300
		require.NoError(t, d.Open(ctx, DefaultConfig()))

		buf := make([]int16, 640)
		_, err := d.Read(ctx, buf)
		require.ErrorIs(t, err, ErrInvalidOperation)

		require.NoError(t, d.Start(ctx))
		var got []int16
		for {
			n, err := d.Read(ctx, buf)
			require.NoError(t, err)
			if n == 0 {
				break
			}
			require.LessOrEqual(t, n, 300)
			got = append(got, buf[:n]...)
		}
		assert.Equal(t, samples, got)
		select {
		case <-d.Done():
		default:
			t.Fatal("Done is not closed after the samples were exhausted")
		}
	})

	t.Run("sample_rate_mismatch", func(t *testing.T) {
		d := NewReplayDevice(samples, 44100)
		require.ErrorIs(t, d.Open(ctx, DefaultConfig()), ErrInvalidConfiguration)
	})

	t.Run("paced", func(t *testing.T) {
		d := NewReplayDevice(samples, SampleRate)
		d.Pace = true
		require.NoError(t, d.Open(ctx, DefaultConfig()))
		require.NoError(t, d.Start(ctx))

		buf := make([]int16, 1000)
		n, err := d.Read(ctx, buf)
		require.NoError(t, err)
		assert.Less(t, n, 1000)

		time.Sleep(100 * time.Millisecond)
		total := n
		for total < len(samples) {
			n, err := d.Read(ctx, buf[total:])
			require.NoError(t, err)
			if n == 0 {
				break
			}
			total += n
		}
		assert.Equal(t, len(samples), total)
	})

	t.Run("paced_resume", func(t *testing.T) {
		long := make([]int16, int(SampleRate))
		d := NewReplayDevice(long, SampleRate)
		d.Pace = true
		require.NoError(t, d.Open(ctx, DefaultConfig()))
		require.NoError(t, d.Start(ctx))

		buf := make([]int16, len(long))
		time.Sleep(250 * time.Millisecond)
		n, err := d.Read(ctx, buf)
		require.NoError(t, err)
		require.Greater(t, n, 0)
		require.Equal(t, n, d.Position())

		require.NoError(t, d.Stop(ctx))
		require.NoError(t, d.Start(ctx))
		time.Sleep(100 * time.Millisecond)

		n, err = d.Read(ctx, buf)
		require.NoError(t, err)
		assert.Greater(t, n, 0)
		assert.LessOrEqual(t, n, len(long)/5)
	})
}

func TestFrameSourceOverReplay(t *testing.T) {
	ctx := context.Background()
	samples := make([]int16, FrameSamples*5+17)
	device := NewReplayDevice(samples, SampleRate)
	device.ChunkSize = 97
	source, collector := newTestSource(t, device)
	require.NoError(t, source.StartCapture(ctx))

	<-device.Done()
	require.Eventually(t, func() bool {
		return len(collector.Frames()) == 5
	}, time.Second, time.Millisecond)
	for i, frame := range collector.Frames() {
		assert.Equal(t, time.Duration(i)*20*time.Millisecond, frame.Timestamp)
	}
}

func TestWAVRoundTrip(t *testing.T) {
	samples := make([]int16, 4000)
	for i := range samples {
		samples[i] = int16((i%200)*100 - 10000)
	}

	path := filepath.Join(t.TempDir(), "sample.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteWAV(f, samples, SampleRate))
	require.NoError(t, f.Close())

	f, err = os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	loaded, rate, err := LoadWAV(f)
	require.NoError(t, err)
	assert.Equal(t, SampleRate, rate)
	assert.Equal(t, samples, loaded)
}

func TestLoadWAVInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a RIFF file"), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	_, _, err = LoadWAV(f)
	require.Error(t, err)
}

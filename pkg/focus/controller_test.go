package focus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/voicepause/pkg/audio/pausable"
	"github.com/xaionaro-go/voicepause/pkg/vadengine"
)

type fakeTarget struct {
	locker  sync.Mutex
	calls   []string
	resumed chan struct{}
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{resumed: make(chan struct{}, 10)}
}

func (t *fakeTarget) Pause(context.Context) {
	t.locker.Lock()
	defer t.locker.Unlock()
	t.calls = append(t.calls, "pause")
}

func (t *fakeTarget) Resume(context.Context) {
	t.locker.Lock()
	t.calls = append(t.calls, "resume")
	t.locker.Unlock()
	t.resumed <- struct{}{}
}

func (t *fakeTarget) Calls() []string {
	t.locker.Lock()
	defer t.locker.Unlock()
	return append([]string(nil), t.calls...)
}

func TestControllerPauseAndResume(t *testing.T) {
	ctx := context.Background()
	target := newFakeTarget()
	c := New(target, 30*time.Millisecond)

	c.OnSpeechStarted(ctx, vadengine.SpeechEvent{})
	c.OnSpeechStarted(ctx, vadengine.SpeechEvent{})
	assert.True(t, c.PausedByVoice())
	assert.Equal(t, []string{"pause"}, target.Calls())

	startedAt := time.Now()
	c.OnSpeechEnded(ctx, vadengine.SpeechEvent{})
	select {
	case <-target.resumed:
	case <-time.After(time.Second):
		t.Fatal("the playback was not resumed")
	}
	assert.GreaterOrEqual(t, time.Since(startedAt), 30*time.Millisecond)
	assert.False(t, c.PausedByVoice())
	assert.Equal(t, []string{"pause", "resume"}, target.Calls())
}

func TestControllerSpeechCancelsResume(t *testing.T) {
	ctx := context.Background()
	target := newFakeTarget()
	c := New(target, 50*time.Millisecond)

	c.OnSpeechStarted(ctx, vadengine.SpeechEvent{})
	c.OnSpeechEnded(ctx, vadengine.SpeechEvent{})
	time.Sleep(10 * time.Millisecond)
	c.OnSpeechStarted(ctx, vadengine.SpeechEvent{})
	time.Sleep(100 * time.Millisecond)

	assert.True(t, c.PausedByVoice())
	assert.Equal(t, []string{"pause"}, target.Calls())
	require.NoError(t, c.Close(ctx))
	assert.Equal(t, []string{"pause", "resume"}, target.Calls())
}

func TestControllerErrorResumesImmediately(t *testing.T) {
	ctx := context.Background()
	target := newFakeTarget()
	c := New(target, time.Hour)

	c.OnSpeechStarted(ctx, vadengine.SpeechEvent{})
	c.OnError(ctx, errors.New("microphone is gone"))
	assert.False(t, c.PausedByVoice())
	assert.Equal(t, []string{"pause", "resume"}, target.Calls())
}

func TestControllerClosedIgnoresEvents(t *testing.T) {
	ctx := context.Background()
	target := newFakeTarget()
	c := New(target, time.Millisecond)
	require.NoError(t, c.Close(ctx))

	c.OnSpeechStarted(ctx, vadengine.SpeechEvent{})
	assert.False(t, c.PausedByVoice())
	assert.Empty(t, target.Calls())
}

func TestControllerWithPausableReader(t *testing.T) {
	ctx := context.Background()
	reader := pausable.NewReader(constReader(7))
	c := New(reader, 20*time.Millisecond)

	buf := make([]byte, 4)
	_, err := reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 7, 7, 7}, buf)

	c.OnSpeechStarted(ctx, vadengine.SpeechEvent{})
	_, err = reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)

	c.OnSpeechEnded(ctx, vadengine.SpeechEvent{})
	require.Eventually(t, func() bool {
		return !reader.IsPaused()
	}, time.Second, time.Millisecond)
	_, err = reader.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 7, 7, 7}, buf)
}

type constReader byte

func (r constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r)
	}
	return len(p), nil
}

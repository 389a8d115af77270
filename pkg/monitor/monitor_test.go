package monitor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/voicepause/pkg/profile"
)

type fakeEngine struct {
	locker      sync.Mutex
	running     bool
	profile     profile.Profile
	resumeDelay time.Duration
	sensitivity float64
	starts      int
	stops       int
	switches    int
	startErr    error
}

var _ Engine = (*fakeEngine)(nil)

func (e *fakeEngine) Start(context.Context) error {
	e.locker.Lock()
	defer e.locker.Unlock()
	if e.startErr != nil {
		return e.startErr
	}
	e.running = true
	e.starts++
	return nil
}

func (e *fakeEngine) Stop(context.Context) {
	e.locker.Lock()
	defer e.locker.Unlock()
	if e.running {
		e.stops++
	}
	e.running = false
}

func (e *fakeEngine) IsRunning() bool {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.running
}

func (e *fakeEngine) Profile() profile.Profile {
	e.locker.Lock()
	defer e.locker.Unlock()
	return e.profile
}

func (e *fakeEngine) SwitchProfile(_ context.Context, p profile.Profile) error {
	e.locker.Lock()
	defer e.locker.Unlock()
	e.profile = p.Normalize()
	e.switches++
	return nil
}

func (e *fakeEngine) ApplySensitivity(_ context.Context, multiplier float64) error {
	e.locker.Lock()
	defer e.locker.Unlock()
	e.sensitivity = multiplier
	return nil
}

func (e *fakeEngine) ApplyResumeDelay(_ context.Context, extra time.Duration) error {
	e.locker.Lock()
	defer e.locker.Unlock()
	e.resumeDelay = extra
	return nil
}

type fakePlayback struct {
	active atomic.Bool
}

func (p *fakePlayback) IsActive() bool { return p.active.Load() }

type fakeFocus struct {
	paused    atomic.Bool
	pauseHold time.Duration
	resumes   int
}

func (f *fakeFocus) PausedByVoice() bool             { return f.paused.Load() }
func (f *fakeFocus) SetPauseHold(d time.Duration)    { f.pauseHold = d }
func (f *fakeFocus) ScheduleResume(context.Context) { f.resumes++ }

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func newTestMonitor(src profile.Source) (*Monitor, *fakeEngine, *fakePlayback, *fakeFocus, *testClock) {
	engine := &fakeEngine{profile: profile.Busy}
	playback := &fakePlayback{}
	focus := &fakeFocus{}
	clock := &testClock{now: time.Unix(1700000000, 0)}
	m := New(engine, src, playback, focus)
	m.now = clock.Now
	return m, engine, playback, focus, clock
}

func TestMonitorRunsEngineOnlyWithPlayback(t *testing.T) {
	ctx := context.Background()
	m, engine, playback, focus, clock := newTestMonitor(profile.NewStaticSource(profile.Selection{Profile: profile.Busy}))

	require.NoError(t, m.tick(ctx))
	assert.False(t, engine.IsRunning())

	playback.active.Store(true)
	require.NoError(t, m.tick(ctx))
	assert.True(t, engine.IsRunning())

	// the playback is paused by voice: keep listening
	playback.active.Store(false)
	focus.paused.Store(true)
	clock.now = clock.now.Add(2 * time.Minute)
	require.NoError(t, m.tick(ctx))
	assert.True(t, engine.IsRunning())

	focus.paused.Store(false)
	clock.now = clock.now.Add(time.Second)
	require.NoError(t, m.tick(ctx))
	assert.False(t, engine.IsRunning())
	assert.Equal(t, 1, engine.starts)
	assert.Equal(t, 1, engine.stops)
}

func TestMonitorAutoStop(t *testing.T) {
	ctx := context.Background()
	m, _, playback, _, clock := newTestMonitor(nil)

	clock.now = clock.now.Add(time.Hour)
	require.NoError(t, m.tick(ctx), "no auto-stop before any playback was seen")

	playback.active.Store(true)
	require.NoError(t, m.tick(ctx))
	playback.active.Store(false)

	clock.now = clock.now.Add(59 * time.Second)
	require.NoError(t, m.tick(ctx))
	clock.now = clock.now.Add(time.Second)
	require.ErrorIs(t, m.tick(ctx), ErrAutoStopped)
}

func TestMonitorProfileHotReload(t *testing.T) {
	ctx := context.Background()
	src := profile.NewStaticSource(profile.Selection{Profile: profile.Busy, ResumeDelay: 100 * time.Millisecond})
	m, engine, _, focus, _ := newTestMonitor(src)

	require.NoError(t, m.tick(ctx))
	assert.Zero(t, engine.switches)
	assert.Equal(t, 100*time.Millisecond, engine.resumeDelay)
	assert.Equal(t, profile.Busy.PauseHold, focus.pauseHold)

	custom := profile.Custom(2, 300*time.Millisecond, 400, 3*time.Second, 1.4)
	src.Set(profile.Selection{Profile: custom})
	require.NoError(t, m.tick(ctx))
	assert.Equal(t, 1, engine.switches)
	assert.Equal(t, custom, engine.profile)
	assert.Equal(t, 1.4, engine.sensitivity)
	assert.Zero(t, engine.resumeDelay)
	assert.Equal(t, 3*time.Second, focus.pauseHold)
	assert.Equal(t, 1, focus.resumes)

	require.NoError(t, m.tick(ctx))
	assert.Equal(t, 1, engine.switches)
}

type failingSource struct{}

func (failingSource) Selection(context.Context) (profile.Selection, error) {
	return profile.Selection{}, errors.New("file is gone")
}

func TestMonitorKeepsProfileOnSourceError(t *testing.T) {
	ctx := context.Background()
	m, engine, _, _, _ := newTestMonitor(failingSource{})
	require.NoError(t, m.tick(ctx))
	assert.Equal(t, profile.Busy, engine.profile)
}

func TestMonitorRunReturnsEngineError(t *testing.T) {
	ctx := context.Background()
	m, engine, playback, _, _ := newTestMonitor(nil)
	m.Interval = time.Millisecond
	playback.active.Store(true)

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.Run(ctx)
	}()
	require.Eventually(t, engine.IsRunning, time.Second, time.Millisecond)

	m.Listener().OnError(ctx, errors.New("dead object"))
	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dead object")
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, engine.IsRunning())
}

func TestMonitorRunStartError(t *testing.T) {
	ctx := context.Background()
	m, engine, playback, _, _ := newTestMonitor(nil)
	engine.startErr = errors.New("device busy")
	playback.active.Store(true)
	require.Error(t, m.Run(ctx))
}

func TestMonitorRunContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m, _, _, _, _ := newTestMonitor(nil)
	m.Interval = time.Millisecond
	time.AfterFunc(10*time.Millisecond, cancel)
	require.ErrorIs(t, m.Run(ctx), context.Canceled)
}

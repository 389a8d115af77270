package focus

import (
	"context"
	"sync"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/voicepause/pkg/vadengine"
)

// Target is the playback being paused while the user speaks.
type Target interface {
	Pause(ctx context.Context)
	Resume(ctx context.Context)
}

// Controller pauses the Target when speech starts and resumes it
// PauseHold after the speech ends.
type Controller struct {
	Target Target

	locker        sync.Mutex
	pauseHold     time.Duration
	pausedByVoice bool
	resumeTimer   *time.Timer
	timerID       uint64
	closed        bool
}

var _ vadengine.Listener = (*Controller)(nil)

func New(target Target, pauseHold time.Duration) *Controller {
	return &Controller{
		Target:    target,
		pauseHold: max(pauseHold, 0),
	}
}

func (c *Controller) SetPauseHold(d time.Duration) {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.pauseHold = max(d, 0)
}

func (c *Controller) PauseHold() time.Duration {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.pauseHold
}

// PausedByVoice returns true if the playback is paused by this controller.
func (c *Controller) PausedByVoice() bool {
	c.locker.Lock()
	defer c.locker.Unlock()
	return c.pausedByVoice
}

func (c *Controller) OnSpeechStarted(ctx context.Context, ev vadengine.SpeechEvent) {
	c.locker.Lock()
	defer c.locker.Unlock()
	if c.closed {
		return
	}

	c.cancelResumeLocked()
	if c.pausedByVoice {
		logger.Debugf(ctx, "speech at %v, the playback is already paused", ev.Timestamp)
		return
	}
	logger.Infof(ctx, "voice detected (near-field:%v), pausing the playback", ev.NearField)
	c.Target.Pause(ctx)
	c.pausedByVoice = true
}

func (c *Controller) OnSpeechEnded(ctx context.Context, ev vadengine.SpeechEvent) {
	c.ScheduleResume(ctx)
}

// OnError resumes the playback immediately: without a working detector
// nothing would ever resume it.
func (c *Controller) OnError(ctx context.Context, err error) {
	logger.Warnf(ctx, "voice detection failed, resuming the playback: %v", err)
	c.ResumeNow(ctx)
}

// ScheduleResume resumes the playback PauseHold from now, unless another
// speech starts before that.
func (c *Controller) ScheduleResume(ctx context.Context) {
	c.locker.Lock()
	defer c.locker.Unlock()
	if c.closed || !c.pausedByVoice {
		return
	}

	c.cancelResumeLocked()
	c.timerID++
	timerID := c.timerID
	ctx = context.WithoutCancel(ctx)
	logger.Debugf(ctx, "resume scheduled in %v", c.pauseHold)
	c.resumeTimer = time.AfterFunc(c.pauseHold, func() {
		c.locker.Lock()
		defer c.locker.Unlock()
		if c.timerID != timerID {
			return
		}
		c.resumeTimer = nil
		c.resumeLocked(ctx)
	})
}

func (c *Controller) ResumeNow(ctx context.Context) {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.cancelResumeLocked()
	c.resumeLocked(ctx)
}

func (c *Controller) resumeLocked(ctx context.Context) {
	if !c.pausedByVoice {
		return
	}
	logger.Infof(ctx, "silence, resuming the playback")
	c.Target.Resume(ctx)
	c.pausedByVoice = false
}

func (c *Controller) cancelResumeLocked() {
	c.timerID++
	if c.resumeTimer != nil {
		c.resumeTimer.Stop()
		c.resumeTimer = nil
	}
}

// Close cancels a pending resume and resumes the playback if it is paused
// by voice. Later events are ignored.
func (c *Controller) Close(ctx context.Context) error {
	c.locker.Lock()
	defer c.locker.Unlock()
	c.cancelResumeLocked()
	c.resumeLocked(ctx)
	c.closed = true
	return nil
}

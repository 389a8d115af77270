package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/voicepause/pkg/profile"
	"github.com/xaionaro-go/voicepause/pkg/vadengine"
)

const (
	DefaultInterval        = time.Second
	DefaultAutoStopTimeout = time.Minute
)

var ErrAutoStopped = errors.New("no playback for too long")

type Engine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
	IsRunning() bool
	Profile() profile.Profile
	SwitchProfile(ctx context.Context, p profile.Profile) error
	ApplySensitivity(ctx context.Context, multiplier float64) error
	ApplyResumeDelay(ctx context.Context, extra time.Duration) error
}

var _ Engine = (*vadengine.Engine)(nil)

type Playback interface {
	IsActive() bool
}

type Focus interface {
	PausedByVoice() bool
	SetPauseHold(d time.Duration)
	ScheduleResume(ctx context.Context)
}

// Monitor keeps the engine running only while there is something to
// pause, follows the profile selection and stops everything once the
// playback is gone for AutoStopTimeout.
type Monitor struct {
	Engine          Engine
	ProfileSource   profile.Source
	Playback        Playback
	Focus           Focus
	Interval        time.Duration
	AutoStopTimeout time.Duration

	now        func() time.Time
	errCh      chan error
	selection  *profile.Selection
	everActive bool
	lastActive time.Time
}

func New(
	engine Engine,
	profileSource profile.Source,
	playback Playback,
	focus Focus,
) *Monitor {
	return &Monitor{
		Engine:          engine,
		ProfileSource:   profileSource,
		Playback:        playback,
		Focus:           focus,
		Interval:        DefaultInterval,
		AutoStopTimeout: DefaultAutoStopTimeout,
		now:             time.Now,
		errCh:           make(chan error, 1),
	}
}

// Listener returns the engine listener forwarding the engine errors
// to Run.
func (m *Monitor) Listener() vadengine.Listener {
	return vadengine.ListenerFuncs{
		Error: func(ctx context.Context, err error) {
			m.ReportError(err)
		},
	}
}

// ReportError makes Run return the error. Only the first error is kept.
func (m *Monitor) ReportError(err error) {
	select {
	case m.errCh <- err:
	default:
	}
}

// Run loops until the context is cancelled, an engine error is reported
// or the auto-stop timeout is reached. The engine is stopped on return.
func (m *Monitor) Run(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Run")
	defer func() { logger.Debugf(ctx, "/Run: %v", _err) }()
	defer m.Engine.Stop(ctx)

	interval := m.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.tick(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-m.errCh:
			return fmt.Errorf("voice detection failed: %w", err)
		case <-ticker.C:
		}
	}
}

func (m *Monitor) tick(ctx context.Context) error {
	if err := m.reloadProfile(ctx); err != nil {
		return err
	}

	now := m.now()
	pausedByVoice := m.Focus != nil && m.Focus.PausedByVoice()
	if m.Playback.IsActive() || pausedByVoice {
		m.everActive = true
		m.lastActive = now
		if !m.Engine.IsRunning() {
			if err := m.Engine.Start(ctx); err != nil {
				return fmt.Errorf("unable to start the engine: %w", err)
			}
			logger.Debugf(ctx, "the engine is started")
		}
		return nil
	}

	if m.Engine.IsRunning() {
		m.Engine.Stop(ctx)
		logger.Debugf(ctx, "the engine is stopped (no playback)")
	}

	timeout := m.AutoStopTimeout
	if timeout <= 0 {
		timeout = DefaultAutoStopTimeout
	}
	if m.everActive && now.Sub(m.lastActive) >= timeout {
		return ErrAutoStopped
	}
	return nil
}

func (m *Monitor) reloadProfile(ctx context.Context) error {
	if m.ProfileSource == nil {
		return nil
	}
	sel, err := m.ProfileSource.Selection(ctx)
	if err != nil {
		logger.Warnf(ctx, "unable to get the profile selection, keeping the current one: %v", err)
		return nil
	}
	if m.selection != nil && *m.selection == sel {
		return nil
	}
	logger.Infof(ctx, "applying profile %s (resume delay: %v)", sel.Profile, sel.ResumeDelay)

	if m.Engine.Profile() != sel.Profile.Normalize() {
		if err := m.Engine.SwitchProfile(ctx, sel.Profile); err != nil {
			return fmt.Errorf("unable to switch the profile to %s: %w", sel.Profile.Name, err)
		}
		if m.Focus != nil {
			m.Focus.ScheduleResume(ctx)
		}
	}
	if err := m.Engine.ApplyResumeDelay(ctx, sel.ResumeDelay); err != nil {
		return fmt.Errorf("unable to apply the resume delay: %w", err)
	}
	if sel.Profile.IsCustom && sel.Profile.Sensitivity > 0 {
		if err := m.Engine.ApplySensitivity(ctx, sel.Profile.Sensitivity); err != nil {
			return fmt.Errorf("unable to apply the sensitivity: %w", err)
		}
	}
	if m.Focus != nil {
		m.Focus.SetPauseHold(sel.Profile.PauseHold)
	}
	m.selection = &sel
	return nil
}

package vadengine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/voicepause/pkg/capture"
	"github.com/xaionaro-go/voicepause/pkg/profile"
	"github.com/xaionaro-go/voicepause/pkg/speechstate"
	"github.com/xaionaro-go/voicepause/pkg/vad"
	"github.com/xaionaro-go/voicepause/pkg/vad/implementations/heuristic"
)

const (
	MinSensitivity = 0.8
	MaxSensitivity = 1.8

	// MinSensitiveSpeechDuration is the floor of the confirmation window
	// when a sensitivity multiplier is applied.
	MinSensitiveSpeechDuration = 200 * time.Millisecond
)

// Engine detects speech on the stream of a capture.Device and reports
// confirmed speech episodes to a Listener.
type Engine struct {
	// NewClassifier builds the frame classifier for the given
	// aggressiveness. It defaults to the heuristic classifier.
	NewClassifier func(aggressiveness int) vad.Classifier

	// LevelObserver, if set, receives the measurements of every frame.
	LevelObserver LevelObserver

	// ImmediateRelease ends the speech on the first silent frame,
	// without waiting for the silence delay.
	ImmediateRelease bool

	source  *capture.FrameSource
	machine *speechstate.Machine
	running atomic.Bool

	locker      sync.Mutex
	initialized bool
	released    bool
	resumeDelay time.Duration
	sensitivity float64
	generation  atomic.Uint64

	// frameLocker guards the per-frame snapshot below; it is never held
	// while calling the listener.
	frameLocker sync.Mutex
	listener    Listener
	profile     profile.Profile
	classifier  vad.Classifier
	episodePeak float64
}

func New(device capture.Device) *Engine {
	return &Engine{
		NewClassifier: func(aggressiveness int) vad.Classifier {
			return heuristic.New(aggressiveness)
		},
		source:  capture.NewFrameSource(device),
		machine: speechstate.New(speechstate.DefaultConfig()),
	}
}

// FrameSource gives access to the underlying frame source, for example to
// tune its StopTimeout.
func (e *Engine) FrameSource() *capture.FrameSource {
	return e.source
}

// Initialize applies the profile and opens the capture device. On failure
// the engine is left released.
func (e *Engine) Initialize(
	ctx context.Context,
	listener Listener,
	p profile.Profile,
) (_err error) {
	logger.Debugf(ctx, "Initialize: %s", p)
	defer func() { logger.Debugf(ctx, "/Initialize: %v", _err) }()

	if listener == nil {
		return fmt.Errorf("listener is not set")
	}

	e.locker.Lock()
	defer e.locker.Unlock()

	if e.initialized {
		if err := e.releaseLocked(ctx); err != nil {
			logger.Warnf(ctx, "unable to release the previous session: %v", err)
		}
	}

	e.released = false
	e.sensitivity = 0
	e.applyProfileLocked(p)
	e.frameLocker.Lock()
	e.listener = listener
	e.frameLocker.Unlock()

	if err := e.source.Initialize(ctx, (*frameListener)(e)); err != nil {
		e.frameLocker.Lock()
		e.classifier = nil
		e.listener = nil
		e.frameLocker.Unlock()
		if releaseErr := e.source.Release(ctx); releaseErr != nil {
			logger.Warnf(ctx, "unable to release the frame source: %v", releaseErr)
		}
		return fmt.Errorf("unable to initialize the frame source: %w", err)
	}

	e.initialized = true
	logger.Infof(ctx, "initialized with profile %s", p.Name)
	return nil
}

func (e *Engine) applyProfileLocked(p profile.Profile) {
	p = p.Normalize()
	newClassifier := e.NewClassifier
	if newClassifier == nil {
		newClassifier = func(aggressiveness int) vad.Classifier {
			return heuristic.New(aggressiveness)
		}
	}

	e.frameLocker.Lock()
	e.profile = p
	e.classifier = newClassifier(p.Aggressiveness)
	e.episodePeak = 0
	e.frameLocker.Unlock()

	e.machine.Configure(e.speechStateConfigLocked())
	e.machine.Reset()
}

func (e *Engine) speechStateConfigLocked() speechstate.Config {
	e.frameLocker.Lock()
	p := e.profile
	e.frameLocker.Unlock()

	cfg := p.SpeechStateConfig()
	if e.sensitivity > 0 {
		cfg.MinSpeechDuration = max(
			time.Duration(math.Round(float64(p.MinSpeechDuration)/e.sensitivity)),
			MinSensitiveSpeechDuration,
		)
	}
	cfg.SilenceDelay = p.SilenceDelay + e.resumeDelay
	cfg.ImmediateRelease = e.ImmediateRelease
	return cfg.Normalize()
}

func (e *Engine) checkUsableLocked() error {
	switch {
	case e.released:
		return ErrReleased
	case !e.initialized:
		return ErrNotInitialized
	}
	return nil
}

// Start resets the detection state and starts the capture. It is a no-op
// if the engine is already running.
func (e *Engine) Start(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Start")
	defer func() { logger.Debugf(ctx, "/Start: %v", _err) }()

	e.locker.Lock()
	defer e.locker.Unlock()
	return e.startLocked(ctx)
}

func (e *Engine) startLocked(ctx context.Context) error {
	if err := e.checkUsableLocked(); err != nil {
		return err
	}
	if e.running.Load() {
		return nil
	}

	e.resetDetectionLocked()
	e.generation.Add(1)
	e.running.Store(true)
	if err := e.source.StartCapture(ctx); err != nil {
		e.running.Store(false)
		return fmt.Errorf("unable to start the capture: %w", err)
	}
	return nil
}

func (e *Engine) resetDetectionLocked() {
	e.machine.Reset()
	e.frameLocker.Lock()
	defer e.frameLocker.Unlock()
	if e.classifier != nil {
		e.classifier.Reset()
	}
	e.episodePeak = 0
}

// Stop stops the capture and discards any unconfirmed or ongoing episode
// without emitting events. It is idempotent.
func (e *Engine) Stop(ctx context.Context) {
	logger.Debugf(ctx, "Stop")
	defer logger.Debugf(ctx, "/Stop")

	e.locker.Lock()
	defer e.locker.Unlock()
	e.stopLocked(ctx)
}

func (e *Engine) stopLocked(ctx context.Context) {
	e.running.Store(false)
	e.source.StopCapture(ctx)
	e.resetDetectionLocked()
}

// stopGeneration stops the engine only if it was not restarted since
// the given generation.
func (e *Engine) stopGeneration(ctx context.Context, generation uint64) {
	e.locker.Lock()
	defer e.locker.Unlock()
	if e.generation.Load() != generation {
		logger.Debugf(ctx, "the engine was restarted, skipping the self-stop")
		return
	}
	e.stopLocked(ctx)
}

// Release stops the engine and closes the capture device. The engine
// cannot be started again until it is re-initialized. It is safe to call
// multiple times.
func (e *Engine) Release(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Release")
	defer func() { logger.Debugf(ctx, "/Release: %v", _err) }()

	e.locker.Lock()
	defer e.locker.Unlock()
	return e.releaseLocked(ctx)
}

func (e *Engine) releaseLocked(ctx context.Context) error {
	var result *multierror.Error
	e.stopLocked(ctx)
	if err := e.source.Release(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("unable to release the frame source: %w", err))
	}

	e.frameLocker.Lock()
	e.classifier = nil
	e.listener = nil
	e.frameLocker.Unlock()

	if e.initialized {
		e.released = true
	}
	e.initialized = false
	return result.ErrorOrNil()
}

func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// Profile returns the active profile.
func (e *Engine) Profile() profile.Profile {
	e.frameLocker.Lock()
	defer e.frameLocker.Unlock()
	return e.profile
}

// SpeechStateConfig returns the effective debouncing parameters.
func (e *Engine) SpeechStateConfig() speechstate.Config {
	return e.machine.Config()
}

// ApplySensitivity rescales the speech confirmation window of a custom
// profile: the window is the profile's one divided by the multiplier.
// The multiplier is clamped to [MinSensitivity, MaxSensitivity].
func (e *Engine) ApplySensitivity(
	ctx context.Context,
	multiplier float64,
) error {
	e.locker.Lock()
	defer e.locker.Unlock()

	if err := e.checkUsableLocked(); err != nil {
		return err
	}
	if !e.Profile().IsCustom {
		return ErrNotCustomProfile
	}

	e.sensitivity = min(max(multiplier, MinSensitivity), MaxSensitivity)
	cfg := e.speechStateConfigLocked()
	e.machine.Configure(cfg)
	logger.Infof(ctx, "sensitivity %.2f: min speech duration is %v", e.sensitivity, cfg.MinSpeechDuration)
	return nil
}

// ApplyResumeDelay sets the silence delay to the profile's one plus extra.
// The extra delay survives profile switches.
func (e *Engine) ApplyResumeDelay(
	ctx context.Context,
	extra time.Duration,
) error {
	e.locker.Lock()
	defer e.locker.Unlock()

	if err := e.checkUsableLocked(); err != nil {
		return err
	}

	e.resumeDelay = max(extra, 0)
	cfg := e.speechStateConfigLocked()
	e.machine.Configure(cfg)
	logger.Infof(ctx, "effective silence delay is %v", cfg.SilenceDelay)
	return nil
}

// SwitchProfile stops the capture (if running), applies the new profile
// and starts the capture again. A sensitivity applied to the previous
// profile is dropped.
func (e *Engine) SwitchProfile(
	ctx context.Context,
	p profile.Profile,
) (_err error) {
	logger.Debugf(ctx, "SwitchProfile: %s", p)
	defer func() { logger.Debugf(ctx, "/SwitchProfile: %v", _err) }()

	e.locker.Lock()
	defer e.locker.Unlock()

	if err := e.checkUsableLocked(); err != nil {
		return err
	}

	wasRunning := e.running.Load()
	e.stopLocked(ctx)
	e.sensitivity = 0
	e.applyProfileLocked(p)
	if !wasRunning {
		return nil
	}
	return e.startLocked(ctx)
}

// frameListener receives the frames of the FrameSource.
type frameListener Engine

var _ capture.Listener = (*frameListener)(nil)

func (l *frameListener) OnFrame(ctx context.Context, frame capture.Frame) {
	(*Engine)(l).processFrame(ctx, frame)
}

func (l *frameListener) OnCaptureError(ctx context.Context, err error) {
	(*Engine)(l).onCaptureError(ctx, err)
}

func (e *Engine) processFrame(ctx context.Context, frame capture.Frame) {
	if !e.running.Load() {
		return
	}

	var (
		level     Level
		ev        speechstate.Event
		speechEv  SpeechEvent
		listener  Listener
		levelSink = e.LevelObserver
	)
	func() {
		e.frameLocker.Lock()
		defer e.frameLocker.Unlock()

		verdict := e.classify(ctx, frame.Samples)
		isSpeech := verdict.IsSpeech && verdict.RMS >= e.profile.MinVoiceEnergy
		level = Level{
			Index:     frame.Index,
			Timestamp: frame.Timestamp,
			RMS:       verdict.RMS,
			ZCR:       verdict.ZCR,
			IsSpeech:  isSpeech,
		}

		if isSpeech && verdict.RMS > e.episodePeak {
			e.episodePeak = verdict.RMS
		}
		ev = e.machine.Process(isSpeech, frame.Timestamp)
		speechEv = SpeechEvent{
			Timestamp: frame.Timestamp,
			RMS:       verdict.RMS,
			PeakRMS:   e.episodePeak,
			NearField: e.episodePeak >= e.profile.MinVoiceEnergy*e.profile.NearFieldFactor,
		}
		if e.machine.State() == speechstate.StateIdle {
			e.episodePeak = 0
		}
		listener = e.listener
	}()

	if levelSink != nil {
		levelSink.OnLevel(ctx, level)
	}
	if ev == speechstate.EventNone {
		return
	}

	if listener == nil {
		return
	}

	switch ev {
	case speechstate.EventSpeechStarted:
		logger.Debugf(ctx, "speech started at %v (rms:%.0f, near-field:%v)", speechEv.Timestamp, speechEv.RMS, speechEv.NearField)
		listener.OnSpeechStarted(ctx, speechEv)
	case speechstate.EventSpeechEnded:
		logger.Debugf(ctx, "speech ended at %v (peak rms:%.0f)", speechEv.Timestamp, speechEv.PeakRMS)
		listener.OnSpeechEnded(ctx, speechEv)
	}
}

func (e *Engine) classify(ctx context.Context, samples []int16) (_ret vad.Verdict) {
	if e.classifier == nil {
		return vad.Verdict{}
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf(ctx, "the classifier panicked, treating the frame as non-speech: %v", r)
			_ret = vad.Verdict{}
		}
	}()
	return e.classifier.Classify(samples)
}

func (e *Engine) onCaptureError(ctx context.Context, err error) {
	generation := e.generation.Load()
	if !e.running.CompareAndSwap(true, false) {
		logger.Debugf(ctx, "capture error after the engine was stopped: %v", err)
		return
	}
	logger.Errorf(ctx, "capture failed: %v", err)

	e.frameLocker.Lock()
	listener := e.listener
	e.frameLocker.Unlock()
	if listener != nil {
		listener.OnError(ctx, fmt.Errorf("capture failed: %w", err))
	}

	observability.Go(ctx, func() {
		e.stopGeneration(ctx, generation)
	})
}

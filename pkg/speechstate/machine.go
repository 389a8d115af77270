package speechstate

import (
	"sync"
	"time"
)

const (
	MinSpeechDurationFloor = 100 * time.Millisecond
	SilenceDelayFloor      = 100 * time.Millisecond

	DefaultMinSpeechDuration = 400 * time.Millisecond
	DefaultSilenceDelay      = 800 * time.Millisecond
)

type Config struct {
	// MinSpeechDuration is how long speech verdicts must last before
	// the speech is confirmed.
	MinSpeechDuration time.Duration

	// SilenceDelay is how long non-speech verdicts must last before
	// a confirmed speech is considered ended.
	SilenceDelay time.Duration

	// ImmediateRelease ends the speech on the first non-speech verdict,
	// ignoring SilenceDelay.
	ImmediateRelease bool
}

func DefaultConfig() Config {
	return Config{
		MinSpeechDuration: DefaultMinSpeechDuration,
		SilenceDelay:      DefaultSilenceDelay,
	}
}

// Normalize returns the config with the durations raised to their floors.
func (cfg Config) Normalize() Config {
	cfg.MinSpeechDuration = max(cfg.MinSpeechDuration, MinSpeechDurationFloor)
	cfg.SilenceDelay = max(cfg.SilenceDelay, SilenceDelayFloor)
	return cfg
}

// Machine debounces a stream of per-frame speech verdicts into
// SpeechStarted/SpeechEnded events.
//
// It is safe for concurrent use: Process is expected to be called from
// the capture goroutine while Configure and Reset come from elsewhere.
type Machine struct {
	locker       sync.Mutex
	config       Config
	state        State
	speechStart  time.Duration
	silenceStart time.Duration
}

func New(cfg Config) *Machine {
	return &Machine{
		config: cfg.Normalize(),
	}
}

// Configure replaces the durations. A pending confirmation or silence hold
// continues with the new durations.
func (m *Machine) Configure(cfg Config) {
	m.locker.Lock()
	defer m.locker.Unlock()
	m.config = cfg.Normalize()
}

func (m *Machine) Config() Config {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.config
}

func (m *Machine) State() State {
	m.locker.Lock()
	defer m.locker.Unlock()
	return m.state
}

// Reset returns the machine to the idle state discarding any pending
// confirmation or silence hold. No event is emitted.
func (m *Machine) Reset() {
	m.locker.Lock()
	defer m.locker.Unlock()
	m.state = StateIdle
	m.speechStart = 0
	m.silenceStart = 0
}

// Process feeds the verdict of the frame at the given timestamp.
func (m *Machine) Process(isSpeech bool, ts time.Duration) Event {
	m.locker.Lock()
	defer m.locker.Unlock()

	switch m.state {
	case StateIdle:
		if isSpeech {
			m.state = StateSpeechPending
			m.speechStart = ts
		}
	case StateSpeechPending:
		switch {
		case !isSpeech:
			m.state = StateIdle
		case ts-m.speechStart >= m.config.MinSpeechDuration:
			m.state = StateSpeechActive
			return EventSpeechStarted
		}
	case StateSpeechActive:
		switch {
		case isSpeech:
		case m.config.ImmediateRelease:
			m.state = StateIdle
			return EventSpeechEnded
		default:
			m.state = StateSilencePending
			m.silenceStart = ts
		}
	case StateSilencePending:
		switch {
		case isSpeech:
			m.state = StateSpeechActive
		case ts-m.silenceStart >= m.config.SilenceDelay:
			m.state = StateIdle
			return EventSpeechEnded
		}
	}
	return EventNone
}

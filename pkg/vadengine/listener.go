package vadengine

import (
	"context"
	"time"
)

// SpeechEvent describes a confirmed speech episode at the moment of the
// event.
type SpeechEvent struct {
	// Timestamp of the frame that triggered the event, relative to the
	// start of the capture session.
	Timestamp time.Duration

	// RMS of the frame that triggered the event.
	RMS float64

	// PeakRMS is the highest frame RMS within the episode so far.
	PeakRMS float64

	// NearField is true if PeakRMS reached MinVoiceEnergy*NearFieldFactor
	// of the active profile.
	NearField bool
}

// Listener receives the engine events. The methods are called from the
// capture goroutine: they must return quickly and must not call Stop,
// Release or SwitchProfile synchronously.
type Listener interface {
	OnSpeechStarted(ctx context.Context, ev SpeechEvent)
	OnSpeechEnded(ctx context.Context, ev SpeechEvent)

	// OnError is called once per failed capture session; the engine
	// stops itself right after.
	OnError(ctx context.Context, err error)
}

type ListenerFuncs struct {
	SpeechStarted func(ctx context.Context, ev SpeechEvent)
	SpeechEnded   func(ctx context.Context, ev SpeechEvent)
	Error         func(ctx context.Context, err error)
}

var _ Listener = ListenerFuncs{}

func (l ListenerFuncs) OnSpeechStarted(ctx context.Context, ev SpeechEvent) {
	if l.SpeechStarted != nil {
		l.SpeechStarted(ctx, ev)
	}
}

func (l ListenerFuncs) OnSpeechEnded(ctx context.Context, ev SpeechEvent) {
	if l.SpeechEnded != nil {
		l.SpeechEnded(ctx, ev)
	}
}

func (l ListenerFuncs) OnError(ctx context.Context, err error) {
	if l.Error != nil {
		l.Error(ctx, err)
	}
}

// Listeners fans the events out to multiple listeners, in order.
type Listeners []Listener

var _ Listener = Listeners(nil)

func (s Listeners) OnSpeechStarted(ctx context.Context, ev SpeechEvent) {
	for _, l := range s {
		l.OnSpeechStarted(ctx, ev)
	}
}

func (s Listeners) OnSpeechEnded(ctx context.Context, ev SpeechEvent) {
	for _, l := range s {
		l.OnSpeechEnded(ctx, ev)
	}
}

func (s Listeners) OnError(ctx context.Context, err error) {
	for _, l := range s {
		l.OnError(ctx, err)
	}
}

// LevelObserver receives the measurements of every processed frame.
type LevelObserver interface {
	OnLevel(ctx context.Context, level Level)
}

type Level struct {
	Index     uint64
	Timestamp time.Duration
	RMS       float64
	ZCR       float64
	IsSpeech  bool
}

type LevelObserverFunc func(ctx context.Context, level Level)

func (fn LevelObserverFunc) OnLevel(ctx context.Context, level Level) {
	fn(ctx, level)
}

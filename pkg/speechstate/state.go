package speechstate

import (
	"fmt"
)

type State int

const (
	StateIdle State = iota
	StateSpeechPending
	StateSpeechActive
	StateSilencePending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeechPending:
		return "speech_pending"
	case StateSpeechActive:
		return "speech_active"
	case StateSilencePending:
		return "silence_pending"
	default:
		return fmt.Sprintf("unknown_state_%d", int(s))
	}
}

type Event int

const (
	EventNone Event = iota
	EventSpeechStarted
	EventSpeechEnded
)

func (e Event) String() string {
	switch e {
	case EventNone:
		return "none"
	case EventSpeechStarted:
		return "speech_started"
	case EventSpeechEnded:
		return "speech_ended"
	default:
		return fmt.Sprintf("unknown_event_%d", int(e))
	}
}

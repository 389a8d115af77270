package profile

import (
	"fmt"
	"strings"
	"time"

	"github.com/xaionaro-go/voicepause/pkg/speechstate"
)

const (
	NameQuiet   = "quiet"
	NameBusy    = "busy"
	NameTraffic = "traffic"
	NameCustom  = "custom"

	DefaultSilenceDelay    = speechstate.DefaultSilenceDelay
	DefaultNearFieldFactor = 2.0
	DefaultSensitivity     = 1.0

	MinAggressiveness = 0
	MaxAggressiveness = 3
)

// Profile is a named set of tuning parameters of the voice activity
// detection. It is an immutable value: modify a copy.
type Profile struct {
	Name        string
	DisplayName string

	// Aggressiveness (0..3) makes the frame classifier stricter.
	Aggressiveness int

	// MinSpeechDuration is how long speech must last to be confirmed.
	MinSpeechDuration time.Duration

	// MinVoiceEnergy is the minimal RMS (int16 units) of a frame to be
	// considered voice at all.
	MinVoiceEnergy float64

	// SilenceDelay is how long the silence must last to end the speech.
	SilenceDelay time.Duration

	// PauseHold is how long the playback stays paused after the voice.
	PauseHold time.Duration

	// NearFieldFactor: speech with RMS >= MinVoiceEnergy*NearFieldFactor
	// is reported as near-field.
	NearFieldFactor float64

	IsCustom    bool
	Sensitivity float64
}

var (
	Quiet = Profile{
		Name:              NameQuiet,
		DisplayName:       "Quiet Room",
		Aggressiveness:    3,
		MinSpeechDuration: 100 * time.Millisecond,
		MinVoiceEnergy:    300,
		SilenceDelay:      DefaultSilenceDelay,
		PauseHold:         2 * time.Second,
		NearFieldFactor:   DefaultNearFieldFactor,
	}

	Busy = Profile{
		Name:              NameBusy,
		DisplayName:       "Busy Room",
		Aggressiveness:    2,
		MinSpeechDuration: 250 * time.Millisecond,
		MinVoiceEnergy:    500,
		SilenceDelay:      DefaultSilenceDelay,
		PauseHold:         5 * time.Second,
		NearFieldFactor:   DefaultNearFieldFactor,
	}

	Traffic = Profile{
		Name:              NameTraffic,
		DisplayName:       "Traffic / Outdoors",
		Aggressiveness:    1,
		MinSpeechDuration: 700 * time.Millisecond,
		MinVoiceEnergy:    1200,
		SilenceDelay:      DefaultSilenceDelay,
		PauseHold:         7 * time.Second,
		NearFieldFactor:   DefaultNearFieldFactor,
	}
)

// Presets returns the built-in profiles.
func Presets() []Profile {
	return []Profile{Quiet, Busy, Traffic}
}

// ByName returns the preset with the given name (case-insensitive).
func ByName(name string) (Profile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, p := range Presets() {
		if p.Name == name {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("unknown profile %q", name)
}

// Custom builds a user-tuned profile. Out-of-range values are coerced, see
// Normalize.
func Custom(
	aggressiveness int,
	minSpeechDuration time.Duration,
	minVoiceEnergy float64,
	pauseHold time.Duration,
	sensitivity float64,
) Profile {
	return Profile{
		Name:              NameCustom,
		DisplayName:       "Custom",
		Aggressiveness:    aggressiveness,
		MinSpeechDuration: minSpeechDuration,
		MinVoiceEnergy:    minVoiceEnergy,
		SilenceDelay:      DefaultSilenceDelay,
		PauseHold:         pauseHold,
		NearFieldFactor:   DefaultNearFieldFactor,
		IsCustom:          true,
		Sensitivity:       sensitivity,
	}.Normalize()
}

// Normalize fills in the defaults and coerces the values into their
// valid ranges.
func (p Profile) Normalize() Profile {
	if p.Name == "" {
		p.Name = NameCustom
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Name
	}
	p.Aggressiveness = min(max(p.Aggressiveness, MinAggressiveness), MaxAggressiveness)
	p.MinSpeechDuration = max(p.MinSpeechDuration, speechstate.MinSpeechDurationFloor)
	if p.SilenceDelay == 0 {
		p.SilenceDelay = DefaultSilenceDelay
	}
	p.SilenceDelay = max(p.SilenceDelay, speechstate.SilenceDelayFloor)
	p.MinVoiceEnergy = max(p.MinVoiceEnergy, 0)
	p.PauseHold = max(p.PauseHold, 0)
	if p.NearFieldFactor < 1 {
		p.NearFieldFactor = DefaultNearFieldFactor
	}
	if p.IsCustom && p.Sensitivity <= 0 {
		p.Sensitivity = DefaultSensitivity
	}
	return p
}

// SpeechStateConfig returns the debouncing parameters of the profile.
func (p Profile) SpeechStateConfig() speechstate.Config {
	return speechstate.Config{
		MinSpeechDuration: p.MinSpeechDuration,
		SilenceDelay:      p.SilenceDelay,
	}.Normalize()
}

func (p Profile) String() string {
	return fmt.Sprintf(
		"%s(aggressiveness:%d, min_speech:%v, min_voice_energy:%.0f, silence_delay:%v, pause_hold:%v)",
		p.Name, p.Aggressiveness, p.MinSpeechDuration, p.MinVoiceEnergy, p.SilenceDelay, p.PauseHold,
	)
}

// AggressivenessForVoiceThreshold converts a legacy plain RMS voice
// threshold into an aggressiveness level.
func AggressivenessForVoiceThreshold(threshold int) int {
	switch {
	case threshold < 100:
		return 0
	case threshold < 300:
		return 1
	case threshold < 1000:
		return 2
	default:
		return 3
	}
}

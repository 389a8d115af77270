package profile

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// File is the on-disk selection of the active profile.
//
//	profile: custom
//	resume_delay: 300ms
//	custom:
//	  aggressiveness: 2
//	  min_speech: 300ms
//	  min_voice_energy: 400
//	  pause_hold: 3s
//	  sensitivity: 1.2
type File struct {
	Profile     string        `yaml:"profile"`
	ResumeDelay time.Duration `yaml:"resume_delay,omitempty"`
	Custom      *CustomFile   `yaml:"custom,omitempty"`
}

type CustomFile struct {
	Aggressiveness  *int          `yaml:"aggressiveness,omitempty"`
	MinSpeech       time.Duration `yaml:"min_speech,omitempty"`
	MinVoiceEnergy  float64       `yaml:"min_voice_energy,omitempty"`
	SilenceDelay    time.Duration `yaml:"silence_delay,omitempty"`
	PauseHold       time.Duration `yaml:"pause_hold,omitempty"`
	NearFieldFactor float64       `yaml:"near_field_factor,omitempty"`
	Sensitivity     float64       `yaml:"sensitivity,omitempty"`

	// VoiceThreshold is the legacy plain RMS threshold; it is used to
	// derive the aggressiveness if the latter is not set.
	VoiceThreshold *int `yaml:"voice_threshold,omitempty"`
}

// Selection is the resolved content of a File.
type Selection struct {
	Profile     Profile
	ResumeDelay time.Duration
}

// Load reads the YAML file at path and returns the validated selection.
func Load(path string) (Selection, error) {
	f, err := os.Open(path)
	if err != nil {
		return Selection{}, fmt.Errorf("unable to open %q: %w", path, err)
	}
	defer f.Close()

	sel, err := LoadFromReader(f)
	if err != nil {
		return Selection{}, fmt.Errorf("unable to parse %q: %w", path, err)
	}
	return sel, nil
}

func LoadFromReader(r io.Reader) (Selection, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return Selection{}, fmt.Errorf("unable to decode YAML: %w", err)
	}
	if err := Validate(&file); err != nil {
		return Selection{}, err
	}
	return file.Resolve()
}

// Validate returns all the problems found in the file.
func Validate(file *File) error {
	var result *multierror.Error

	name := strings.ToLower(strings.TrimSpace(file.Profile))
	switch name {
	case "":
		result = multierror.Append(result, fmt.Errorf("profile is not set"))
	case NameCustom:
		if file.Custom == nil {
			result = multierror.Append(result, fmt.Errorf("profile is %q, but section 'custom' is missing", NameCustom))
		}
	default:
		if _, err := ByName(name); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if file.ResumeDelay < 0 {
		result = multierror.Append(result, fmt.Errorf("resume_delay is negative: %v", file.ResumeDelay))
	}

	if c := file.Custom; c != nil {
		if c.Aggressiveness != nil && (*c.Aggressiveness < MinAggressiveness || *c.Aggressiveness > MaxAggressiveness) {
			result = multierror.Append(result, fmt.Errorf("custom.aggressiveness %d is out of range [%d, %d]", *c.Aggressiveness, MinAggressiveness, MaxAggressiveness))
		}
		if c.MinSpeech < 0 {
			result = multierror.Append(result, fmt.Errorf("custom.min_speech is negative: %v", c.MinSpeech))
		}
		if c.MinVoiceEnergy < 0 {
			result = multierror.Append(result, fmt.Errorf("custom.min_voice_energy is negative: %v", c.MinVoiceEnergy))
		}
		if c.SilenceDelay < 0 {
			result = multierror.Append(result, fmt.Errorf("custom.silence_delay is negative: %v", c.SilenceDelay))
		}
		if c.PauseHold < 0 {
			result = multierror.Append(result, fmt.Errorf("custom.pause_hold is negative: %v", c.PauseHold))
		}
		if c.Sensitivity < 0 {
			result = multierror.Append(result, fmt.Errorf("custom.sensitivity is negative: %v", c.Sensitivity))
		}
	}

	return result.ErrorOrNil()
}

// Resolve converts the file into a Selection. The file is expected to be
// validated.
func (file File) Resolve() (Selection, error) {
	sel := Selection{
		ResumeDelay: max(file.ResumeDelay, 0),
	}

	name := strings.ToLower(strings.TrimSpace(file.Profile))
	if name != NameCustom {
		p, err := ByName(name)
		if err != nil {
			return Selection{}, err
		}
		sel.Profile = p
		return sel, nil
	}

	c := file.Custom
	if c == nil {
		return Selection{}, fmt.Errorf("no custom profile parameters")
	}
	aggressiveness := 1
	switch {
	case c.Aggressiveness != nil:
		aggressiveness = *c.Aggressiveness
	case c.VoiceThreshold != nil:
		aggressiveness = AggressivenessForVoiceThreshold(*c.VoiceThreshold)
	}
	p := Custom(aggressiveness, c.MinSpeech, c.MinVoiceEnergy, c.PauseHold, c.Sensitivity)
	if c.SilenceDelay > 0 {
		p.SilenceDelay = c.SilenceDelay
	}
	if c.NearFieldFactor > 0 {
		p.NearFieldFactor = c.NearFieldFactor
	}
	sel.Profile = p.Normalize()
	return sel, nil
}

package profile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	for _, p := range Presets() {
		got, err := ByName(strings.ToUpper(p.Name))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err := ByName("stadium")
	require.Error(t, err)
	_, err = ByName(NameCustom)
	require.Error(t, err)
}

func TestPresets(t *testing.T) {
	assert.Equal(t, 3, Quiet.Aggressiveness)
	assert.Equal(t, 250*time.Millisecond, Busy.MinSpeechDuration)
	assert.Equal(t, 1200.0, Traffic.MinVoiceEnergy)
	assert.Equal(t, 7*time.Second, Traffic.PauseHold)
	for _, p := range Presets() {
		assert.Equal(t, p, p.Normalize(), p.Name)
		assert.False(t, p.IsCustom)
	}
}

func TestCustomNormalization(t *testing.T) {
	p := Custom(7, -time.Second, -5, -time.Second, 0)
	assert.True(t, p.IsCustom)
	assert.Equal(t, MaxAggressiveness, p.Aggressiveness)
	assert.Equal(t, 100*time.Millisecond, p.MinSpeechDuration)
	assert.Zero(t, p.MinVoiceEnergy)
	assert.Zero(t, p.PauseHold)
	assert.Equal(t, DefaultSensitivity, p.Sensitivity)
	assert.Equal(t, DefaultSilenceDelay, p.SilenceDelay)

	cfg := p.SpeechStateConfig()
	assert.Equal(t, 100*time.Millisecond, cfg.MinSpeechDuration)
	assert.Equal(t, 800*time.Millisecond, cfg.SilenceDelay)
}

func TestAggressivenessForVoiceThreshold(t *testing.T) {
	assert.Equal(t, 0, AggressivenessForVoiceThreshold(50))
	assert.Equal(t, 1, AggressivenessForVoiceThreshold(200))
	assert.Equal(t, 2, AggressivenessForVoiceThreshold(999))
	assert.Equal(t, 3, AggressivenessForVoiceThreshold(1000))
}

func TestLoadFromReader(t *testing.T) {
	t.Run("preset", func(t *testing.T) {
		sel, err := LoadFromReader(strings.NewReader("profile: Busy\nresume_delay: 250ms\n"))
		require.NoError(t, err)
		assert.Equal(t, Busy, sel.Profile)
		assert.Equal(t, 250*time.Millisecond, sel.ResumeDelay)
	})

	t.Run("custom", func(t *testing.T) {
		sel, err := LoadFromReader(strings.NewReader(`
profile: custom
custom:
  aggressiveness: 2
  min_speech: 300ms
  min_voice_energy: 400
  pause_hold: 3s
  sensitivity: 1.2
  near_field_factor: 3
`))
		require.NoError(t, err)
		p := sel.Profile
		assert.True(t, p.IsCustom)
		assert.Equal(t, 2, p.Aggressiveness)
		assert.Equal(t, 300*time.Millisecond, p.MinSpeechDuration)
		assert.Equal(t, 400.0, p.MinVoiceEnergy)
		assert.Equal(t, 3*time.Second, p.PauseHold)
		assert.Equal(t, 1.2, p.Sensitivity)
		assert.Equal(t, 3.0, p.NearFieldFactor)
		assert.Equal(t, DefaultSilenceDelay, p.SilenceDelay)
	})

	t.Run("legacy_voice_threshold", func(t *testing.T) {
		sel, err := LoadFromReader(strings.NewReader("profile: custom\ncustom:\n  voice_threshold: 500\n"))
		require.NoError(t, err)
		assert.Equal(t, 2, sel.Profile.Aggressiveness)
	})

	t.Run("unknown_field", func(t *testing.T) {
		_, err := LoadFromReader(strings.NewReader("profile: busy\nvolume: 11\n"))
		require.Error(t, err)
	})

	t.Run("all_problems_reported", func(t *testing.T) {
		_, err := LoadFromReader(strings.NewReader(`
profile: custom
resume_delay: -1s
custom:
  aggressiveness: 9
  pause_hold: -2s
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "resume_delay")
		assert.Contains(t, err.Error(), "aggressiveness")
		assert.Contains(t, err.Error(), "pause_hold")
	})

	t.Run("custom_without_section", func(t *testing.T) {
		_, err := LoadFromReader(strings.NewReader("profile: custom\n"))
		require.Error(t, err)
	})
}

func TestFileSource(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profile: quiet\n"), 0o600))

	src := &FileSource{Path: path}
	sel, err := src.Selection(ctx)
	require.NoError(t, err)
	assert.Equal(t, Quiet, sel.Profile)

	require.NoError(t, os.WriteFile(path, []byte("profile: traffic\n"), 0o600))
	sel, err = src.Selection(ctx)
	require.NoError(t, err)
	assert.Equal(t, Traffic, sel.Profile)

	_, err = (&FileSource{Path: filepath.Join(t.TempDir(), "missing.yaml")}).Selection(ctx)
	require.Error(t, err)
}

func TestStaticSource(t *testing.T) {
	ctx := context.Background()
	src := NewStaticSource(Selection{Profile: Busy})
	sel, err := src.Selection(ctx)
	require.NoError(t, err)
	assert.Equal(t, Busy, sel.Profile)

	src.Set(Selection{Profile: Quiet, ResumeDelay: time.Second})
	sel, err = src.Selection(ctx)
	require.NoError(t, err)
	assert.Equal(t, Quiet, sel.Profile)
	assert.Equal(t, time.Second, sel.ResumeDelay)
}

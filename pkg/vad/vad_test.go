package vad_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/voicepause/pkg/vad"
	"github.com/xaionaro-go/voicepause/pkg/vad/implementations/heuristic"
)

func TestRMS(t *testing.T) {
	assert.Zero(t, vad.RMS(nil))
	assert.Equal(t, 100.0, vad.RMS([]int16{100, -100, 100, -100}))
	assert.InDelta(t, math.Sqrt(12.5), vad.RMS([]int16{3, 4, -3, -4}), 1e-9)
}

func TestZCR(t *testing.T) {
	assert.Zero(t, vad.ZCR(nil))
	assert.Zero(t, vad.ZCR([]int16{0, 0, 5, 7}))
	assert.Equal(t, 0.75, vad.ZCR([]int16{1, -1, 1, -1}))
	assert.Equal(t, 0.25, vad.ZCR([]int16{-1, 0, 3, 4}))
}

func TestFindNextVoice(t *testing.T) {
	const frameSamples = 320
	ctx := context.Background()

	samples := make([]int16, frameSamples*50)
	for i := frameSamples * 10; i < frameSamples*30; i++ {
		samples[i] = int16(2000 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}

	maxRMS, offset, err := vad.FindNextVoice(ctx, heuristic.New(0), samples, frameSamples, 20*time.Millisecond, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, offset)
	assert.InDelta(t, 2000/math.Sqrt2, maxRMS, 30)

	_, offset, err = vad.FindNextVoice(ctx, heuristic.New(0), samples, frameSamples, 20*time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), offset)
}

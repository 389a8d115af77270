package vad

import (
	"context"
	"math"
	"time"
)

// Verdict is the result of classifying a single frame.
type Verdict struct {
	IsSpeech bool
	RMS      float64
	ZCR      float64
}

// Classifier decides whether a frame contains speech. Implementations may
// keep state between frames (for example the energy of the previous frame),
// so a Classifier must not be shared between concurrent streams.
type Classifier interface {
	Classify(samples []int16) Verdict
	Reset()
}

// RMS returns the root mean square of the samples, in int16 units.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ZCR returns the amount of sign changes divided by the amount of samples.
// Zero counts as positive.
func ZCR(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(samples))
}

// FindNextVoice classifies samples frame by frame and returns the offset of
// the first speech frame once at least minDuration of speech was found in
// total, and the highest RMS among speech frames. The offset is -1 if there
// was not enough speech.
func FindNextVoice(
	ctx context.Context,
	classifier Classifier,
	samples []int16,
	frameSamples int,
	frameDuration time.Duration,
	minDuration time.Duration,
) (float64, time.Duration, error) {
	var maxRMS float64
	var foundVoiceFor time.Duration
	firstVoiceDetection := time.Duration(-1)
	if frameSamples <= 0 {
		return maxRMS, firstVoiceDetection, nil
	}

	for pos := 0; len(samples) >= frameSamples; pos++ {
		if err := ctx.Err(); err != nil {
			return maxRMS, firstVoiceDetection, err
		}
		frame := samples[:frameSamples]
		samples = samples[frameSamples:]

		verdict := classifier.Classify(frame)
		if !verdict.IsSpeech {
			continue
		}
		if verdict.RMS > maxRMS {
			maxRMS = verdict.RMS
		}
		foundVoiceFor += frameDuration
		if firstVoiceDetection < 0 {
			firstVoiceDetection = frameDuration * time.Duration(pos)
		}
		if foundVoiceFor >= minDuration {
			return maxRMS, firstVoiceDetection, nil
		}
	}
	return maxRMS, -1, nil
}

package heuristic

import (
	"github.com/xaionaro-go/voicepause/pkg/vad"
)

const (
	DefaultEnergyFloor     = 30.0
	DefaultZCRMin          = 0.015
	DefaultZCRMax          = 0.18
	DefaultSpikeMultiplier = 3.5
)

// Classifier is a lightweight speech detector based on frame energy and
// zero-crossing rate.
//
// A frame is speech if:
//   - its RMS is at least EnergyFloor;
//   - its RMS is not more than SpikeMultiplier times the RMS of the
//     previous frame (clicks, door slams);
//   - its ZCR is within [ZCRMin, ZCRMax] (voiced speech, not hiss or hum).
type Classifier struct {
	EnergyFloor     float64
	ZCRMin          float64
	ZCRMax          float64
	SpikeMultiplier float64

	previousRMS float64
}

var _ vad.Classifier = (*Classifier)(nil)

func New(aggressiveness int) *Classifier {
	return &Classifier{
		EnergyFloor:     EnergyFloorForAggressiveness(aggressiveness),
		ZCRMin:          DefaultZCRMin,
		ZCRMax:          DefaultZCRMax,
		SpikeMultiplier: DefaultSpikeMultiplier,
	}
}

// EnergyFloorForAggressiveness maps the aggressiveness level (0..3) to the
// minimal RMS of a speech frame.
func EnergyFloorForAggressiveness(aggressiveness int) float64 {
	switch {
	case aggressiveness >= 3:
		return DefaultEnergyFloor * 2
	case aggressiveness == 2:
		return DefaultEnergyFloor * 1.5
	default:
		return DefaultEnergyFloor
	}
}

func (c *Classifier) Classify(samples []int16) vad.Verdict {
	verdict := vad.Verdict{
		RMS: vad.RMS(samples),
		ZCR: vad.ZCR(samples),
	}
	previousRMS := c.previousRMS
	c.previousRMS = verdict.RMS

	switch {
	case verdict.RMS < c.EnergyFloor:
	case previousRMS > 0 && verdict.RMS > previousRMS*c.SpikeMultiplier:
	case verdict.ZCR >= c.ZCRMin && verdict.ZCR <= c.ZCRMax:
		verdict.IsSpeech = true
	}
	return verdict
}

func (c *Classifier) Reset() {
	c.previousRMS = 0
}

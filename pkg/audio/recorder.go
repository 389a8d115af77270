package audio

import (
	"context"
	"fmt"
	"io"

	"github.com/xaionaro-go/voicepause/pkg/audio/registry"
)

type Recorder struct {
	RecorderPCM
}

var _ RecorderPCM = (*Recorder)(nil)

func NewRecorder(recorderPCM RecorderPCM) *Recorder {
	return &Recorder{
		RecorderPCM: recorderPCM,
	}
}

var recorderSelector autoSelector[registry.RecorderPCMFactory, RecorderPCM]

// NewRecorderAuto returns a recorder of the highest-priority registered
// backend that could be initialized and pinged.
//
// Unlike players, there is no silent fallback: a recorder that never
// delivers samples is worse than an explicit error.
func NewRecorderAuto(
	ctx context.Context,
) (*Recorder, error) {
	recorder, err := recorderSelector.Select(
		ctx,
		"recorder",
		registry.RecorderFactories(),
		func(f registry.RecorderPCMFactory) (RecorderPCM, error) {
			return f.NewRecorderPCM()
		},
	)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize any PCM recorder: %w", err)
	}
	return NewRecorder(recorder), nil
}

func (a *Recorder) RecordPCM(
	ctx context.Context,
	sampleRate SampleRate,
	channels Channel,
	pcmFormat PCMFormat,
	pcmWriter io.Writer,
) (RecordStream, error) {
	return a.RecorderPCM.RecordPCM(
		ctx,
		sampleRate,
		channels,
		pcmFormat,
		pcmWriter,
	)
}

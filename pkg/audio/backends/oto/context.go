package oto

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/xaionaro-go/voicepause/pkg/audio/types"
)

type contextParams struct {
	SampleRate types.SampleRate
	Channels   types.Channel
	Format     types.PCMFormat
	BufferSize time.Duration
}

var (
	otoContextLocker sync.Mutex
	otoContext       *oto.Context
	otoContextParams contextParams
)

// getOtoContext returns the process-wide oto context. `oto` does not allow
// to initialize a context multiple times, so the first caller decides the
// output format and everybody else has to match it.
func getOtoContext(params contextParams) (*oto.Context, error) {
	otoContextLocker.Lock()
	defer otoContextLocker.Unlock()

	if otoContext != nil {
		if params != otoContextParams {
			return nil, fmt.Errorf("the oto context is already initialized with %#+v, cannot switch to %#+v", otoContextParams, params)
		}
		return otoContext, nil
	}

	var format oto.Format
	switch params.Format {
	case types.PCMFormatS16LE:
		format = oto.FormatSignedInt16LE
	case types.PCMFormatFloat32LE:
		format = oto.FormatFloat32LE
	default:
		return nil, fmt.Errorf("oto does not support PCM format %s", params.Format)
	}

	ctx, readyCh, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   int(params.SampleRate),
		ChannelCount: int(params.Channels),
		Format:       format,
		BufferSize:   params.BufferSize,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to initialize an oto context: %w", err)
	}
	<-readyCh

	otoContext = ctx
	otoContextParams = params
	return otoContext, nil
}

package oto

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/voicepause/pkg/audio/types"
)

type PlayerPCM struct{}

var _ types.PlayerPCM = (*PlayerPCM)(nil)

func NewPlayerPCM() *PlayerPCM {
	return &PlayerPCM{}
}

func (*PlayerPCM) Close() error {
	return nil
}

func (*PlayerPCM) Ping(context.Context) error {
	// do not know how to do that, yet
	return nil
}

func (*PlayerPCM) PlayPCM(
	ctx context.Context,
	sampleRate types.SampleRate,
	channels types.Channel,
	format types.PCMFormat,
	bufferSize time.Duration,
	reader io.Reader,
) (types.PlayStream, error) {
	otoCtx, err := getOtoContext(contextParams{
		SampleRate: sampleRate,
		Channels:   channels,
		Format:     format,
		BufferSize: bufferSize,
	})
	if err != nil {
		return nil, err
	}

	player := otoCtx.NewPlayer(reader)
	player.Play()
	logger.Debugf(ctx, "oto player started")
	return newStream(player), nil
}

type Stream struct {
	Player *oto.Player
}

var _ types.PlayStream = (*Stream)(nil)

func newStream(player *oto.Player) *Stream {
	return &Stream{
		Player: player,
	}
}

func (s *Stream) Drain() error {
	for s.Player.IsPlaying() {
		time.Sleep(10 * time.Millisecond)
	}
	if err := s.Player.Err(); err != nil && err != io.EOF {
		return fmt.Errorf("an error occurred during playback: %w", err)
	}
	return nil
}

func (s *Stream) Close() error {
	return s.Player.Close()
}

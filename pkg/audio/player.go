package audio

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/jfreymuth/oggvorbis"
	"github.com/xaionaro-go/voicepause/pkg/audio/registry"
)

const BufferSize = 100 * time.Millisecond

type Player struct {
	PlayerPCM
}

var _ PlayerPCM = (*Player)(nil)

func NewPlayer(playerPCM PlayerPCM) *Player {
	return &Player{
		PlayerPCM: playerPCM,
	}
}

var playerSelector autoSelector[registry.PlayerPCMFactory, PlayerPCM]

// NewPlayerAuto returns a player of the highest-priority registered backend
// that could be initialized and pinged, or a dummy player if none could.
func NewPlayerAuto(
	ctx context.Context,
) *Player {
	player, err := playerSelector.Select(
		ctx,
		"player",
		registry.PlayerFactories(),
		func(f registry.PlayerPCMFactory) (PlayerPCM, error) {
			return f.NewPlayerPCM()
		},
	)
	if err != nil {
		logger.Infof(ctx, "was unable to initialize any PCM player: %v", err)
		return NewPlayer(PlayerPCMDummy{})
	}
	return NewPlayer(player)
}

// ReaderFilter wraps the decoded PCM stream before it reaches the backend
// (for example to make it pausable).
type ReaderFilter func(io.Reader) io.Reader

func (a *Player) PlayVorbis(
	ctx context.Context,
	rawReader io.Reader,
	filters ...ReaderFilter,
) (PlayStream, error) {
	oggReader, err := oggvorbis.NewReader(rawReader)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a vorbis reader: %w", err)
	}

	var pcmReader io.Reader = newReaderFromFloat32Reader(oggReader)
	for _, filter := range filters {
		pcmReader = filter(pcmReader)
	}

	logger.Debugf(ctx, "playing vorbis: %dHz, %d channels", oggReader.SampleRate(), oggReader.Channels())
	stream, err := a.PlayerPCM.PlayPCM(
		ctx,
		SampleRate(oggReader.SampleRate()),
		Channel(oggReader.Channels()),
		PCMFormatFloat32LE,
		BufferSize,
		pcmReader,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to playback as PCM: %w", err)
	}
	return stream, nil
}

func (a *Player) PlayPCM(
	ctx context.Context,
	sampleRate SampleRate,
	channels Channel,
	pcmFormat PCMFormat,
	bufferSize time.Duration,
	pcmReader io.Reader,
) (PlayStream, error) {
	return a.PlayerPCM.PlayPCM(
		ctx,
		sampleRate,
		channels,
		pcmFormat,
		bufferSize,
		pcmReader,
	)
}

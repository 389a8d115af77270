package registry

import (
	"github.com/xaionaro-go/voicepause/pkg/audio/types"
)

type PlayerPCMFactory interface {
	NewPlayerPCM() (types.PlayerPCM, error)
}

var playerFactoryRegistry = New[PlayerPCMFactory]()

func RegisterPlayerFactory(
	priority int,
	playerPCMFactory PlayerPCMFactory,
) {
	playerFactoryRegistry.Register(priority, playerPCMFactory)
}

func PlayerFactories() []PlayerPCMFactory {
	return playerFactoryRegistry.Factories()
}

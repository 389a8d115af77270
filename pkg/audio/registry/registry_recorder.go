package registry

import (
	"github.com/xaionaro-go/voicepause/pkg/audio/types"
)

type RecorderPCMFactory interface {
	NewRecorderPCM() (types.RecorderPCM, error)
}

var recorderFactoryRegistry = New[RecorderPCMFactory]()

func RegisterRecorderFactory(
	priority int,
	recorderPCMFactory RecorderPCMFactory,
) {
	recorderFactoryRegistry.Register(priority, recorderPCMFactory)
}

func RecorderFactories() []RecorderPCMFactory {
	return recorderFactoryRegistry.Factories()
}

package vadengine

import (
	"errors"
)

var (
	ErrNotInitialized   = errors.New("the engine is not initialized")
	ErrReleased         = errors.New("the engine is released")
	ErrNotCustomProfile = errors.New("the active profile is not a custom one")
)

package capture

import (
	"errors"
	"fmt"
	"io/fs"
)

// Initialization errors.
var (
	ErrInvalidConfiguration = errors.New("invalid audio configuration")
	ErrPermissionDenied     = errors.New("microphone permission denied")
	ErrDeviceUnavailable    = errors.New("audio device unavailable")
	ErrNotInitialized       = errors.New("frame source is not initialized")
	ErrBusy                 = errors.New("frame source is capturing")
)

// Device-level read errors. Any of them terminates the capture session.
var (
	ErrBadValue         = errors.New("bad value")
	ErrDeadObject       = errors.New("dead object")
	ErrInvalidOperation = errors.New("invalid operation")
)

func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidConfiguration),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrDeviceUnavailable):
		return err
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	default:
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
}

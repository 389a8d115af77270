package types

import (
	"io"
)

type Stream interface {
	io.Closer
}

type PlayStream interface {
	Stream
	Drain() error
}

type RecordStream interface {
	Stream

	// Error returns the error that terminated the stream, if any.
	// A stream that is still delivering data returns nil.
	Error() error
}

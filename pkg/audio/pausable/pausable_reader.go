package pausable

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/facebookincubator/go-belt/tool/logger"
)

// Reader wraps a PCM reader. While paused it yields silence (zero bytes)
// without consuming the backend, so the playback resumes exactly where
// it stopped.
type Reader struct {
	Backend io.Reader

	// Block makes Read wait for Resume instead of producing silence.
	Block bool

	paused   atomic.Bool
	finished atomic.Bool

	locker   sync.Mutex
	resumeCh chan struct{}
}

var _ io.Reader = (*Reader)(nil)

func NewReader(backend io.Reader) *Reader {
	return &Reader{
		Backend:  backend,
		resumeCh: make(chan struct{}),
	}
}

func (r *Reader) Pause(ctx context.Context) {
	if r.paused.Swap(true) {
		return
	}
	logger.Debugf(ctx, "playback paused")
}

func (r *Reader) Resume(ctx context.Context) {
	if !r.paused.Swap(false) {
		return
	}
	r.locker.Lock()
	oldCh := r.resumeCh
	r.resumeCh = make(chan struct{})
	r.locker.Unlock()
	close(oldCh)
	logger.Debugf(ctx, "playback resumed")
}

func (r *Reader) IsPaused() bool {
	return r.paused.Load()
}

// IsActive reports whether the backend may still produce data.
func (r *Reader) IsActive() bool {
	return !r.finished.Load()
}

func (r *Reader) Read(p []byte) (int, error) {
	for r.paused.Load() {
		if !r.Block {
			clear(p)
			return len(p), nil
		}
		r.locker.Lock()
		ch := r.resumeCh
		r.locker.Unlock()
		if !r.paused.Load() {
			break
		}
		<-ch
	}

	n, err := r.Backend.Read(p)
	if err != nil {
		r.finished.Store(true)
	}
	return n, err
}

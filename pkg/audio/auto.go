package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/hashicorp/go-multierror"
)

type pinger interface {
	Ping(context.Context) error
	Close() error
}

// autoSelector remembers the last factory that produced a working
// backend, so that subsequent lookups try it first.
type autoSelector[F any, T pinger] struct {
	locker         sync.Mutex
	lastSuccessful *F
}

func (s *autoSelector[F, T]) getLastSuccessful() *F {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.lastSuccessful
}

func (s *autoSelector[F, T]) setLastSuccessful(factory F) {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.lastSuccessful = &factory
}

func (s *autoSelector[F, T]) Select(
	ctx context.Context,
	kind string,
	factories []F,
	newBackend func(F) (T, error),
) (T, error) {
	if factory := s.getLastSuccessful(); factory != nil {
		backend, err := newBackend(*factory)
		if err == nil {
			if err := backend.Ping(ctx); err == nil {
				return backend, nil
			}
			backend.Close()
		}
	}

	var mErr *multierror.Error
	for _, factory := range factories {
		backend, err := newBackend(factory)
		logger.Debugf(ctx, "initializing %s %T result is %v", kind, factory, err)
		if err != nil {
			mErr = multierror.Append(mErr, fmt.Errorf("unable to initialize %T: %w", factory, err))
			continue
		}

		err = backend.Ping(ctx)
		logger.Debugf(ctx, "pinging %s %T result is %v", kind, backend, err)
		if err != nil {
			backend.Close()
			mErr = multierror.Append(mErr, fmt.Errorf("unable to ping %T: %w", backend, err))
			continue
		}

		s.setLastSuccessful(factory)
		return backend, nil
	}

	var zeroValue T
	if mErr == nil {
		return zeroValue, fmt.Errorf("no %s backends are registered", kind)
	}
	return zeroValue, mErr.ErrorOrNil()
}

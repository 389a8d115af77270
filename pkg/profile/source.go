package profile

import (
	"context"
	"sync"
)

// Source supplies the currently selected profile. It is queried at
// start up and periodically by the monitor.
type Source interface {
	Selection(ctx context.Context) (Selection, error)
}

// FileSource re-reads the file on every query, so edits are picked up
// without restarting.
type FileSource struct {
	Path string
}

var _ Source = (*FileSource)(nil)

func (s *FileSource) Selection(ctx context.Context) (Selection, error) {
	return Load(s.Path)
}

// StaticSource returns whatever was last Set.
type StaticSource struct {
	locker    sync.Mutex
	selection Selection
}

var _ Source = (*StaticSource)(nil)

func NewStaticSource(sel Selection) *StaticSource {
	return &StaticSource{selection: sel}
}

func (s *StaticSource) Selection(context.Context) (Selection, error) {
	s.locker.Lock()
	defer s.locker.Unlock()
	return s.selection, nil
}

func (s *StaticSource) Set(sel Selection) {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.selection = sel
}

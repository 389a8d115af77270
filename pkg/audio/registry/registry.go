package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

type entry[F any] struct {
	Priority int
	Factory  F
}

// Registry keeps factories indexed by their concrete type and
// returns them ordered by priority (highest first).
type Registry[F any] struct {
	locker  sync.Mutex
	entries map[reflect.Type]entry[F]
}

func New[F any]() *Registry[F] {
	return &Registry[F]{
		entries: map[reflect.Type]entry[F]{},
	}
}

func (r *Registry[F]) Register(
	priority int,
	factory F,
) {
	t := reflect.ValueOf(factory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.locker.Lock()
	defer r.locker.Unlock()
	if _, ok := r.entries[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of type %v", t))
	}
	r.entries[t] = entry[F]{
		Priority: priority,
		Factory:  factory,
	}
}

func (r *Registry[F]) Factories() []F {
	r.locker.Lock()
	entries := make([]entry[F], 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.locker.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Priority > entries[j].Priority
	})

	factories := make([]F, 0, len(entries))
	for _, e := range entries {
		factories = append(factories, e.Factory)
	}
	return factories
}

package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type factoryA struct{}
type factoryB struct{}
type factoryC struct{}

func TestRegistry(t *testing.T) {
	r := New[any]()
	r.Register(10, factoryA{})
	r.Register(100, &factoryB{})
	r.Register(50, factoryC{})

	factories := r.Factories()
	require.Len(t, factories, 3)
	require.IsType(t, &factoryB{}, factories[0])
	require.IsType(t, factoryC{}, factories[1])
	require.IsType(t, factoryA{}, factories[2])

	t.Run("duplicate_type_panics", func(t *testing.T) {
		require.Panics(t, func() {
			r.Register(1, &factoryA{})
		})
	})
}

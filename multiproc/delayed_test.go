package multiproc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDelayedResolveThenAwait(t *testing.T) {
	d, err := NewDelayed[Int32, *Int32]()
	require.NoError(t, err)

	require.NoError(t, d.Resolve(Int32(5)))
	v, err := d.Await()
	require.NoError(t, err)
	require.Equal(t, Int32(5), v)
}

func TestDelayedMultipleAwaitersGetSameValue(t *testing.T) {
	d, err := NewDelayed[Int32, *Int32]()
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]Int32, 4)
	errs := make([]error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = d.Await()
		}(i)
	}

	require.NoError(t, d.Resolve(Int32(123)))
	wg.Wait()

	for i := 0; i < 4; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, Int32(123), results[i])
	}
}

func TestDelayedDoubleResolveErrors(t *testing.T) {
	d, err := NewDelayed[Int32, *Int32]()
	require.NoError(t, err)

	require.NoError(t, d.Resolve(Int32(1)))
	require.Error(t, d.Resolve(Int32(2)))
}

package dbx_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/dbx"
)

func newCache(t *testing.T) *dbx.Cache {
	t.Helper()
	c, err := dbx.NewCache()
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestCache(t *testing.T) {
	t.Run("set_get_delete", func(t *testing.T) {
		c := newCache(t)
		_, ok := c.Get("k")
		assert.False(t, ok)
		c.Set("k", 1, 0)
		v, ok := c.Get("k")
		require.True(t, ok)
		assert.Equal(t, 1, v)
		c.Delete("k")
		_, ok = c.Get("k")
		assert.False(t, ok)
	})

	t.Run("ttl", func(t *testing.T) {
		c := newCache(t)
		c.Set("k", "v", 50*time.Millisecond)
		_, ok := c.Get("k")
		require.True(t, ok)
		assert.Eventually(t, func() bool {
			_, ok := c.Get("k")
			return !ok
		}, 3*time.Second, 20*time.Millisecond)
	})

	t.Run("clear", func(t *testing.T) {
		c := newCache(t)
		c.Set("a", 1, 0)
		c.Set("b", 2, 0)
		c.Clear()
		_, ok := c.Get("a")
		assert.False(t, ok)
		_, ok = c.Get("b")
		assert.False(t, ok)
	})
}

func TestCacheGetOrCompute(t *testing.T) {
	t.Run("computes_once", func(t *testing.T) {
		c := newCache(t)
		var calls atomic.Int32
		release := make(chan struct{})
		compute := func() (any, error) {
			calls.Add(1)
			<-release
			return "value", nil
		}
		var wg sync.WaitGroup
		results := make([]any, 8)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v, err := c.GetOrCompute("k", time.Minute, compute)
				assert.NoError(t, err)
				results[i] = v
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()
		for _, v := range results {
			assert.Equal(t, "value", v)
		}
		assert.LessOrEqual(t, calls.Load(), int32(len(results)))

		before := calls.Load()
		v, err := c.GetOrCompute("k", time.Minute, compute)
		require.NoError(t, err)
		assert.Equal(t, "value", v)
		assert.Equal(t, before, calls.Load())
	})

	t.Run("errors_not_cached", func(t *testing.T) {
		c := newCache(t)
		boom := errors.New("boom")
		_, err := c.GetOrCompute("k", time.Minute, func() (any, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
		v, err := c.GetOrCompute("k", time.Minute, func() (any, error) { return 2, nil })
		require.NoError(t, err)
		assert.Equal(t, 2, v)
	})

	t.Run("typed", func(t *testing.T) {
		c := newCache(t)
		v, err := dbx.GetOrCompute(c, "cols", time.Minute, func() ([]string, error) {
			return []string{"id", "name"}, nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "name"}, v)

		c.Set("n", 1, 0)
		_, err = dbx.GetOrCompute(c, "n", time.Minute, func() (string, error) { return "x", nil })
		assert.ErrorContains(t, err, `cache entry "n" holds int`)
	})
}

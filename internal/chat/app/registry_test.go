package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryAddGet(t *testing.T) {
	r := NewRegistry()
	c := NewClient(&fakeConn{})
	c.Key = "seller_s1"

	r.Add("seller_s1", c)
	got, ok := r.Get("seller_s1")
	require.True(t, ok)
	require.Same(t, c, got)
	require.Equal(t, 1, r.Len())

	_, ok = r.Get("u1")
	require.False(t, ok)
}

func TestRegistryReconnectReplacesAndClosesOld(t *testing.T) {
	r := NewRegistry()
	oldConn := &fakeConn{}
	old := NewClient(oldConn)
	r.Add("u1", old)

	next := NewClient(&fakeConn{})
	r.Add("u1", next)

	require.True(t, oldConn.Closed())
	got, ok := r.Get("u1")
	require.True(t, ok)
	require.Same(t, next, got)
	require.Equal(t, 1, r.Len())
}

func TestRegistryRemoveOnlyOwnEntry(t *testing.T) {
	r := NewRegistry()
	old := NewClient(&fakeConn{})
	r.Add("u1", old)
	next := NewClient(&fakeConn{})
	r.Add("u1", next)

	// the replaced connection's teardown must not evict its successor
	r.Remove("u1", old)
	got, ok := r.Get("u1")
	require.True(t, ok)
	require.Same(t, next, got)

	r.Remove("u1", next)
	_, ok = r.Get("u1")
	require.False(t, ok)
	require.Equal(t, 0, r.Len())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := fmt.Sprintf("u%d", n)
			c := NewClient(&fakeConn{})
			r.Add(key, c)
			if _, ok := r.Get(key); !ok {
				t.Errorf("client %s not found after Add", key)
			}
			r.Remove(key, c)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 0, r.Len())
}

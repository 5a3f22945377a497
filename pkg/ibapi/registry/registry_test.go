package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv[T any](t *testing.T, s *Subscription[T]) Delivery[T] {
	t.Helper()
	select {
	case d, ok := <-s.C():
		require.True(t, ok, "channel closed")
		return d
	case <-time.After(time.Second):
		t.Fatal("no delivery")
	}
	return Delivery[T]{}
}

func requireClosed[T any](t *testing.T, s *Subscription[T]) {
	t.Helper()
	select {
	case d, ok := <-s.C():
		require.False(t, ok, "unexpected delivery %+v", d)
	case <-time.After(time.Second):
		t.Fatal("channel not closed")
	}
}

func TestNextIDMonotonic(t *testing.T) {
	r := New[int](WithStartID(100))
	assert.Equal(t, int64(100), r.NextID())
	assert.Equal(t, int64(101), r.NextID())

	const workers, per = 8, 500
	ids := make(chan int64, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := int64(0)
			for i := 0; i < per; i++ {
				id := r.NextID()
				if id <= last {
					t.Errorf("id %d after %d", id, last)
				}
				last = id
				ids <- id
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		require.False(t, seen[id], "id %d repeated", id)
		seen[id] = true
	}
	assert.Len(t, seen, workers*per)
}

func TestSingleShotRetires(t *testing.T) {
	r := New[string]()
	s, err := r.Register(RequestKey(1), SingleShot, nil)
	require.NoError(t, err)

	assert.Equal(t, Delivered, r.Resolve(RequestKey(1), "a"))
	assert.Equal(t, DroppedNoWaiter, r.Resolve(RequestKey(1), "b"))

	assert.Equal(t, "a", recv(t, s).Value)
	requireClosed(t, s)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, int64(1), r.Dropped())
}

func TestCollectUntilTerminal(t *testing.T) {
	r := New[string]()
	s, err := r.Register(RequestKey(2), Collect, func(v string) bool { return v == "end" })
	require.NoError(t, err)

	for _, v := range []string{"x", "y", "end", "late"} {
		r.Resolve(RequestKey(2), v)
	}

	var got []string
	for d := range s.C() {
		got = append(got, d.Value)
	}
	assert.Equal(t, []string{"x", "y", "end"}, got)
	assert.Equal(t, int64(1), r.Dropped())
}

func TestCollectNeedsPredicate(t *testing.T) {
	_, err := New[int]().Register(RequestKey(1), Collect, nil)
	assert.Error(t, err)
}

func TestStreamPreservesOrder(t *testing.T) {
	r := New[int]()
	s, err := r.Register(RequestKey(3), Stream, nil)
	require.NoError(t, err)

	const n = 2000
	for i := 0; i < n; i++ {
		require.Equal(t, Delivered, r.Resolve(RequestKey(3), i))
	}
	for i := 0; i < n; i++ {
		assert.Equal(t, i, recv(t, s).Value)
	}
	assert.True(t, r.Has(RequestKey(3)))
}

func TestResolveNeverBlocks(t *testing.T) {
	r := New[int]()
	_, err := r.Register(RequestKey(4), Stream, nil)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			r.Resolve(RequestKey(4), i)
			r.Resolve(RequestKey(99), i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("resolver blocked")
	}
	assert.Equal(t, int64(10000), r.Dropped())
}

func TestLateEventAfterCancelIsDropped(t *testing.T) {
	var hooked []Key
	r := New[string](WithDropHook(func(k Key) { hooked = append(hooked, k) }))
	s, err := r.Register(RequestKey(5), Stream, nil)
	require.NoError(t, err)

	r.Resolve(RequestKey(5), "live")
	assert.Equal(t, "live", recv(t, s).Value)

	s.Cancel()
	assert.Equal(t, DroppedNoWaiter, r.Resolve(RequestKey(5), "late"))
	requireClosed(t, s)
	assert.Equal(t, []Key{RequestKey(5)}, hooked)
	assert.False(t, r.Cancel(RequestKey(5)))
}

func TestKeySpacesAreIndependent(t *testing.T) {
	r := New[string]()
	req, err := r.Register(RequestKey(7), SingleShot, nil)
	require.NoError(t, err)
	ord, err := r.Register(OrderKey(7), Stream, nil)
	require.NoError(t, err)

	r.Resolve(OrderKey(7), "order")
	r.Resolve(RequestKey(7), "request")
	assert.Equal(t, "order", recv(t, ord).Value)
	assert.Equal(t, "request", recv(t, req).Value)
	assert.Equal(t, "order/7", OrderKey(7).String())
}

func TestDuplicateKey(t *testing.T) {
	r := New[int]()
	_, err := r.Register(TopicKey(TopicCurrentTime), SingleShot, nil)
	require.NoError(t, err)
	_, err = r.Register(TopicKey(TopicCurrentTime), SingleShot, nil)
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestFailAndFailAll(t *testing.T) {
	lost := errors.New("lost")
	r := New[int]()

	one, _ := r.Register(RequestKey(1), Collect, func(int) bool { return false })
	two, _ := r.Register(RequestKey(2), Stream, nil)
	three, _ := r.Register(OrderKey(3), Stream, nil)

	assert.True(t, r.Fail(RequestKey(1), context.DeadlineExceeded))
	assert.ErrorIs(t, recv(t, one).Err, context.DeadlineExceeded)
	requireClosed(t, one)

	r.Resolve(RequestKey(2), 1)
	r.FailAll(lost)
	assert.Equal(t, 1, recv(t, two).Value)
	assert.ErrorIs(t, recv(t, two).Err, lost)
	requireClosed(t, two)
	assert.ErrorIs(t, recv(t, three).Err, lost)

	_, err := r.Register(RequestKey(4), SingleShot, nil)
	assert.ErrorIs(t, err, lost)
	assert.Equal(t, 0, r.Len())
}

func TestSubscriptionNext(t *testing.T) {
	r := New[int]()
	s, _ := r.Register(RequestKey(1), SingleShot, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	r.Resolve(RequestKey(1), 9)
	v, err := s.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, v)

	_, err = s.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionClosed)
}

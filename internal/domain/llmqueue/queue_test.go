package llmqueue

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func blockingFn(release <-chan struct{}) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		<-release
		return "ok", nil
	}
}

func TestSubmit_LimitsConcurrency(t *testing.T) {
	q := New(WithMaxConcurrent(2), WithMaxPerMinute(100), WithQueueMaxSize(10))

	release := make(chan struct{})
	var inFlight int32
	var maxSeen int32

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _ = q.Submit(context.Background(), "user", PriorityNormal, func(ctx context.Context) (any, error) {
				cur := atomic.AddInt32(&inFlight, 1)
				for {
					max := atomic.LoadInt32(&maxSeen)
					if cur <= max || atomic.CompareAndSwapInt32(&maxSeen, max, cur) {
						break
					}
				}
				<-release
				atomic.AddInt32(&inFlight, -1)
				return nil, nil
			})
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	require.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(2))
	close(release)
	wg.Wait()
}

func TestSubmit_RateLimitRejectsExcessRequests(t *testing.T) {
	q := New(WithMaxConcurrent(5), WithMaxPerMinute(2), WithQueueMaxSize(10))

	noop := func(ctx context.Context) (any, error) { return "ok", nil }

	_, err := q.Submit(context.Background(), "user-a", PriorityNormal, noop)
	require.NoError(t, err)

	_, err = q.Submit(context.Background(), "user-a", PriorityNormal, noop)
	require.NoError(t, err)

	_, err = q.Submit(context.Background(), "user-a", PriorityNormal, noop)
	require.Error(t, err)
}

func TestSubmit_PerUserRateLimitDoesNotAffectOtherUsers(t *testing.T) {
	q := New(WithMaxConcurrent(5), WithMaxPerMinute(1), WithQueueMaxSize(10))

	noop := func(ctx context.Context) (any, error) { return "ok", nil }

	_, err := q.Submit(context.Background(), "user-a", PriorityNormal, noop)
	require.NoError(t, err)

	_, err = q.Submit(context.Background(), "user-b", PriorityNormal, noop)
	require.NoError(t, err)
}

func TestSubmit_QueueFullRejectsBeyondMaxSize(t *testing.T) {
	q := New(WithMaxConcurrent(1), WithMaxPerMinute(100), WithQueueMaxSize(1))

	release := make(chan struct{})
	defer close(release)

	go func() {
		_, _ = q.Submit(context.Background(), "user-a", PriorityNormal, blockingFn(release))
	}()
	time.Sleep(20 * time.Millisecond)

	go func() {
		_, _ = q.Submit(context.Background(), "user-b", PriorityNormal, blockingFn(release))
	}()
	time.Sleep(20 * time.Millisecond)

	_, err := q.Submit(context.Background(), "user-c", PriorityNormal, blockingFn(release))
	require.Error(t, err)
}

func TestSubmit_TimesOutWhenWaitExceedsTimeout(t *testing.T) {
	q := New(WithMaxConcurrent(1), WithMaxPerMinute(100), WithQueueMaxSize(10), WithTimeout(30*time.Millisecond))

	release := make(chan struct{})
	defer close(release)

	go func() {
		_, _ = q.Submit(context.Background(), "user-a", PriorityNormal, blockingFn(release))
	}()
	time.Sleep(10 * time.Millisecond)

	_, err := q.Submit(context.Background(), "user-b", PriorityNormal, func(ctx context.Context) (any, error) {
		return "unreachable", nil
	})
	require.Error(t, err)
}

func TestRemoveWaiter_ReportsFalseOncePromoted(t *testing.T) {
	q := New(WithMaxConcurrent(1), WithMaxPerMinute(100), WithQueueMaxSize(10))

	w := &waiter{priority: PriorityNormal, createdAt: time.Now(), ready: make(chan struct{}, 1)}

	q.mu.Lock()
	heap.Push(&q.heap, w)
	q.promote() // inFlight now 1, w already popped from the heap and readied
	removed := q.removeWaiter(w)
	q.mu.Unlock()

	require.False(t, removed, "a waiter already promoted must report false, not be double-removed")
	require.Equal(t, 1, q.inFlight)

	select {
	case <-w.ready:
	default:
		t.Fatal("promote should have sent on w.ready")
	}
}

func TestStats_ReflectsCompletedRequests(t *testing.T) {
	q := New(WithMaxConcurrent(2), WithMaxPerMinute(100), WithQueueMaxSize(10))

	_, err := q.Submit(context.Background(), "user-a", PriorityNormal, func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	stats := q.Stats()
	require.Equal(t, 1, stats.TotalRequests)
	require.Equal(t, 1, stats.TotalCompleted)
}

func TestUserStatsFor_TracksRateRemaining(t *testing.T) {
	q := New(WithMaxConcurrent(2), WithMaxPerMinute(5), WithQueueMaxSize(10))

	_, err := q.Submit(context.Background(), "user-a", PriorityNormal, func(ctx context.Context) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	stats := q.UserStatsFor("user-a")
	require.Equal(t, 1, stats.Requests)
	require.Equal(t, 1, stats.Completed)
	require.Equal(t, 4, stats.RateLeft)
}

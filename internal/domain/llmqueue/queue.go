// Package llmqueue implements the bounded-concurrency, fair, rate-limited
// request queue in front of the LLM provider (spec.md §4.E): at most
// MaxConcurrent in-flight calls, a per-user sliding-window rate limit, a
// priority+FIFO wait order, and a hard per-request timeout.
//
// Grounded on
// _examples/original_source/src/nyx_light/llm/request_queue.py
// (UserRateLimiter, LLMRequestQueue.submit's semaphore-acquire-with-timeout
// shape, QueuedRequest's priority-then-FIFO ordering).
package llmqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/nyxlight/ledger/internal/apperr"
)

const (
	DefaultMaxConcurrent  = 3
	DefaultMaxPerMinute   = 10
	DefaultRequestTimeout = 120 * time.Second
	DefaultQueueMaxSize   = 50
)

// Priority mirrors the original's 0=normal/1=high/2=urgent scale.
type Priority int

const (
	PriorityNormal Priority = 0
	PriorityHigh   Priority = 1
	PriorityUrgent Priority = 2
)

// userRateLimiter is a per-user sliding-window counter over the last 60s.
type userRateLimiter struct {
	mu         sync.Mutex
	maxPerMin  int
	timestamps map[string][]time.Time
}

func newUserRateLimiter(maxPerMin int) *userRateLimiter {
	return &userRateLimiter{maxPerMin: maxPerMin, timestamps: make(map[string][]time.Time)}
}

func (r *userRateLimiter) prune(userID string, now time.Time) []time.Time {
	cutoff := now.Add(-60 * time.Second)

	kept := r.timestamps[userID][:0]
	for _, t := range r.timestamps[userID] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	r.timestamps[userID] = kept

	return kept
}

func (r *userRateLimiter) check(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.prune(userID, time.Now())) < r.maxPerMin
}

func (r *userRateLimiter) record(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.timestamps[userID] = append(r.timestamps[userID], time.Now())
}

func (r *userRateLimiter) remaining(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.maxPerMin - len(r.prune(userID, time.Now()))
	if n < 0 {
		return 0
	}

	return n
}

// resetIn returns how many seconds until the oldest timestamp ages out.
func (r *userRateLimiter) resetIn(userID string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.prune(userID, time.Now())
	if len(ts) == 0 {
		return 0
	}

	oldest := ts[0]
	for _, t := range ts[1:] {
		if t.Before(oldest) {
			oldest = t
		}
	}

	remaining := 60 - time.Since(oldest).Seconds()
	if remaining < 0 {
		return 0
	}

	return remaining
}

// waiter is one entry in the priority+FIFO wait heap.
type waiter struct {
	priority  Priority
	createdAt time.Time
	ready     chan struct{}
	index     int
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}

	return h[i].createdAt.Before(h[j].createdAt)
}
func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}
func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]

	return w
}

// UserStats is per-user submission counters.
type UserStats struct {
	Requests   int
	Completed  int
	Errors     int
	RateLeft   int
	RateResetS float64
}

// Stats is the queue-wide snapshot returned by the monitor endpoint.
type Stats struct {
	ActiveRequests  int
	MaxConcurrent   int
	QueueDepth      int
	TotalRequests   int
	TotalCompleted  int
	TotalRejected   int
	TotalTimeouts   int
	AvgWaitSeconds  float64
	UtilizationPct  float64
}

// Queue is the fair, bounded-concurrency LLM request gate.
type Queue struct {
	maxConcurrent int
	maxQueueSize  int
	timeout       time.Duration

	rate *userRateLimiter

	mu       sync.Mutex
	inFlight int
	heap     waiterHeap

	totalRequests  int
	totalCompleted int
	totalRejected  int
	totalTimeouts  int
	totalWait      time.Duration
	userStats      map[string]*UserStats
}

// Option configures New.
type Option func(*Queue)

func WithMaxConcurrent(n int) Option { return func(q *Queue) { q.maxConcurrent = n } }
func WithMaxPerMinute(n int) Option  { return func(q *Queue) { q.rate.maxPerMin = n } }
func WithTimeout(d time.Duration) Option { return func(q *Queue) { q.timeout = d } }
func WithQueueMaxSize(n int) Option  { return func(q *Queue) { q.maxQueueSize = n } }

// New builds a Queue with spec.md's defaults (3 concurrent, 10/min/user,
// 120s timeout, 50-deep wait queue), overridable via options.
func New(opts ...Option) *Queue {
	q := &Queue{
		maxConcurrent: DefaultMaxConcurrent,
		maxQueueSize:  DefaultQueueMaxSize,
		timeout:       DefaultRequestTimeout,
		rate:          newUserRateLimiter(DefaultMaxPerMinute),
		userStats:     make(map[string]*UserStats),
	}

	for _, o := range opts {
		o(q)
	}

	return q
}

func (q *Queue) statsFor(userID string) *UserStats {
	s, ok := q.userStats[userID]
	if !ok {
		s = &UserStats{}
		q.userStats[userID] = s
	}

	return s
}

// Submit runs fn under the queue's admission control: rate limit, then
// queue-depth limit, then fair priority+FIFO wait for a concurrency slot,
// then execution with the remaining timeout budget. Returns whatever fn
// returns, or a RateLimited/QueueFull/QueueTimeout apperr.
func (q *Queue) Submit(ctx context.Context, userID string, priority Priority, fn func(context.Context) (any, error)) (any, error) {
	if !q.rate.check(userID) {
		resetIn := q.rate.resetIn(userID)

		q.mu.Lock()
		q.totalRejected++
		q.mu.Unlock()

		return nil, apperr.RateLimited(resetIn)
	}

	q.mu.Lock()
	if len(q.heap) >= q.maxQueueSize {
		q.totalRejected++
		q.mu.Unlock()

		return nil, apperr.QueueFull("sustav je preopterećen, pokušajte za minutu")
	}

	q.rate.record(userID)
	q.totalRequests++
	q.statsFor(userID).Requests++

	w := &waiter{priority: priority, createdAt: time.Now(), ready: make(chan struct{}, 1)}
	heap.Push(&q.heap, w)
	q.promote()
	q.mu.Unlock()

	start := time.Now()

	waitCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	select {
	case <-w.ready:
	case <-waitCtx.Done():
		q.mu.Lock()
		removed := q.removeWaiter(w)
		if removed {
			q.totalTimeouts++
		}
		q.mu.Unlock()

		if removed {
			return nil, apperr.QueueTimeout("zahtjev je istekao, sustav je zauzet — pokušajte ponovo")
		}
		// promote() already handed this waiter a slot (it raced the timeout
		// and won) — treat it as a normal dispatch so inFlight's decrement
		// below still runs.
		<-w.ready
	}

	waitTime := time.Since(start)

	q.mu.Lock()
	q.totalWait += waitTime
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.inFlight--
		q.promote()
		q.mu.Unlock()
	}()

	result, err := fn(waitCtx)

	q.mu.Lock()
	stats := q.statsFor(userID)
	if err != nil {
		stats.Errors++
	} else {
		q.totalCompleted++
		stats.Completed++
	}
	q.mu.Unlock()

	return result, err
}

// promote hands a concurrency slot to the next eligible waiter. Caller
// holds q.mu.
func (q *Queue) promote() {
	for q.inFlight < q.maxConcurrent && len(q.heap) > 0 {
		w := heap.Pop(&q.heap).(*waiter)
		q.inFlight++
		w.ready <- struct{}{}
	}
}

// removeWaiter drops a waiter that timed out before being promoted, and
// reports whether it found it. If it returns false, promote() already
// popped the waiter and sent on its ready channel — the timeout lost the
// race against promotion, and the caller must treat it as dispatched, not
// timed out, so inFlight's decrement stays balanced.
func (q *Queue) removeWaiter(target *waiter) bool {
	for i, w := range q.heap {
		if w == target {
			heap.Remove(&q.heap, i)
			return true
		}
	}

	return false
}

// Stats returns a snapshot of queue-wide counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	avgWait := 0.0
	if q.totalCompleted > 0 {
		avgWait = q.totalWait.Seconds() / float64(q.totalCompleted)
	}

	util := 0.0
	if q.maxConcurrent > 0 {
		util = float64(q.inFlight) / float64(q.maxConcurrent) * 100
	}

	return Stats{
		ActiveRequests: q.inFlight,
		MaxConcurrent:  q.maxConcurrent,
		QueueDepth:     len(q.heap),
		TotalRequests:  q.totalRequests,
		TotalCompleted: q.totalCompleted,
		TotalRejected:  q.totalRejected,
		TotalTimeouts:  q.totalTimeouts,
		AvgWaitSeconds: avgWait,
		UtilizationPct: util,
	}
}

// UserStatsFor returns the submission counters for one user.
func (q *Queue) UserStatsFor(userID string) UserStats {
	q.mu.Lock()
	s := q.statsFor(userID)
	out := *s
	q.mu.Unlock()

	out.RateLeft = q.rate.remaining(userID)
	out.RateResetS = q.rate.resetIn(userID)

	return out
}

// Package sinkqueue implements the AsyncSinkQueue (C5): a bounded FIFO of
// in-flight sink-operation receipts for applying back-pressure to sink
// submissions (no off-ramp driver in this repository uses it), grounded on the teacher's fn.Result/ParMapResult
// worker-pool idiom and resilience.Breaker for failure tripping.
package sinkqueue

import (
	"context"
	"errors"
	"sync"

	"github.com/fluxcore/fluxcore/pkg/resilience"
	"golang.org/x/time/rate"
)

// ErrOverload is returned by Enqueue when the queue is at capacity.
var ErrOverload = errors.New("sinkqueue: overload")

// Receipt is a one-shot handle to an in-flight sink operation's outcome.
type Receipt struct {
	done chan struct{}
	err  error
}

// NewReceipt creates a pending Receipt and the completion function a
// worker must call exactly once to resolve it.
func NewReceipt() (*Receipt, func(error)) {
	r := &Receipt{done: make(chan struct{})}
	var once sync.Once
	complete := func(err error) {
		once.Do(func() {
			r.err = err
			close(r.done)
		})
	}
	return r, complete
}

// Ready reports whether the receipt has resolved.
func (r *Receipt) Ready() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Err returns the resolved error (nil on success); only meaningful once Ready.
func (r *Receipt) Err() error {
	return r.err
}

// Queue is a bounded FIFO of pending Receipts, implementing the
// enqueue/dequeue/has_capacity operations of spec.md §4.5.
type Queue struct {
	mu       sync.Mutex
	capacity int
	pending  []*Receipt

	// Admit gates overall sink throughput ahead of the bounded FIFO,
	// distinct from the queue's own capacity: a process-wide
	// rate.Limiter admission governor (see DESIGN.md pkg/sinkqueue entry).
	Admit   *rate.Limiter
	Breaker *resilience.Breaker
}

// New constructs a Queue with the given capacity. admitPerSec<=0 disables
// the rate governor (unlimited).
func New(capacity int, admitPerSec float64, admitBurst int) *Queue {
	q := &Queue{capacity: capacity, Breaker: resilience.NewBreaker(resilience.DefaultBreakerOpts)}
	if admitPerSec > 0 {
		q.Admit = rate.NewLimiter(rate.Limit(admitPerSec), admitBurst)
	}
	return q
}

// Enqueue appends a receipt if there is spare capacity, else ErrOverload.
func (q *Queue) Enqueue(r *Receipt) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) >= q.capacity {
		return ErrOverload
	}
	q.pending = append(q.pending, r)
	return nil
}

// DequeueResult is the outcome of one Dequeue call.
type DequeueResult int

const (
	DequeueEmpty DequeueResult = iota
	DequeueNotReady
	DequeueSuccess
	DequeueFailure
)

// Dequeue peeks the head receipt: if resolved, it is popped and its
// outcome reported (Success/Failure); if unresolved, NotReady is reported
// without popping, matching spec.md §4.5 exactly.
func (q *Queue) Dequeue() (DequeueResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return DequeueEmpty, nil
	}
	head := q.pending[0]
	if !head.Ready() {
		return DequeueNotReady, nil
	}
	q.pending = q.pending[1:]
	if head.err != nil {
		return DequeueFailure, head.err
	}
	return DequeueSuccess, nil
}

// HasCapacity reports whether Enqueue would currently succeed.
func (q *Queue) HasCapacity() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) < q.capacity
}

// Drain runs Dequeue in a loop until it returns Empty or NotReady, matching
// the drain-before-submit back-pressure policy of spec.md §4.5. It returns
// the count of successes/failures observed for metrics purposes.
func (q *Queue) Drain() (successes, failures int) {
	for {
		res, _ := q.Dequeue()
		switch res {
		case DequeueSuccess:
			successes++
		case DequeueFailure:
			failures++
		default:
			return
		}
	}
}

// TryAdmit applies the sinkqueue's back-pressure policy before a new batch
// submission: drain completed receipts, then report Overload if the queue
// still lacks capacity. On success it reserves a slot by enqueuing the
// returned receipt's completion handle.
func (q *Queue) TryAdmit(ctx context.Context) (*Receipt, func(error), error) {
	q.Drain()
	if !q.HasCapacity() {
		return nil, nil, ErrOverload
	}
	if q.Admit != nil {
		if err := q.Admit.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}
	if q.Breaker.State() == resilience.StateOpen {
		return nil, nil, resilience.ErrCircuitOpen
	}
	r, complete := NewReceipt()
	if err := q.Enqueue(r); err != nil {
		return nil, nil, err
	}
	wrapped := func(err error) {
		complete(err)
		_ = q.Breaker.Call(context.Background(), func(context.Context) error { return err })
	}
	return r, wrapped, nil
}

// Wait blocks until the receipt resolves or ctx is cancelled, for callers
// (e.g. tests) that need a synchronous outcome rather than polling Dequeue.
func (r *Receipt) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

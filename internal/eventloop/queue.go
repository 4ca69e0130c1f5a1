package eventloop

import "sync/atomic"

// Queue is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers never block: when the buffer is full the oldest element is
// discarded and counted in Metrics.Overwritten. The loop is the only consumer.
type Queue[T any] struct {
	ch      chan T
	metrics Metrics
}

// NewQueue creates a Queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		panic("eventloop: queue capacity must be > 0")
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// C returns the receive side. Reads through C bypass the Processed counter.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// It reports whether an element was dropped.
func (q *Queue[T]) Send(v T) bool {
	dropped := false
	for {
		select {
		case q.ch <- v:
			atomic.AddInt64(&q.metrics.Written, 1)
			return dropped
		default:
		}
		// full: make room and retry, another producer may win the slot
		select {
		case <-q.ch:
			atomic.AddInt64(&q.metrics.Overwritten, 1)
			dropped = true
		default:
		}
	}
}

// TryReceive attempts a non-blocking receive.
func (q *Queue[T]) TryReceive() (v T, ok bool) {
	select {
	case v = <-q.ch:
		atomic.AddInt64(&q.metrics.Processed, 1)
		return v, true
	default:
		return v, false
	}
}

func (q *Queue[T]) Len() int { return len(q.ch) }
func (q *Queue[T]) Cap() int { return cap(q.ch) }

// Metrics returns a snapshot of the counters.
func (q *Queue[T]) Metrics() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&q.metrics.Processed),
		Written:     atomic.LoadInt64(&q.metrics.Written),
		Overwritten: atomic.LoadInt64(&q.metrics.Overwritten),
	}
}

// Metrics are lock-free queue counters.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
}

func (q *Queue[T]) markProcessed() {
	atomic.AddInt64(&q.metrics.Processed, 1)
}

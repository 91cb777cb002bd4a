// Package queue holds the per-session outbound event queue. It is
// unbounded so producers (the upstream receive loop, the client read
// loop) never block on a slow client; backpressure is handled by the
// interruption flush instead.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/voxlink/livebridge/pkg/gateway/live/protocol"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue: closed")

// Queue is an unbounded FIFO of outbound events. Enqueue never blocks.
// Flush atomically removes everything present at the instant of the
// call, so an enqueue that starts after the flush always survives it.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []protocol.Event
	closed bool
}

func New() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends an event. Events enqueued after Close are dropped.
func (q *Queue) Enqueue(ev protocol.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, ev)
	q.cond.Signal()
}

// Dequeue blocks until an event is available, the queue is closed, or
// ctx is done. Remaining events are still delivered after Close; only
// an empty closed queue reports ErrClosed.
func (q *Queue) Dequeue(ctx context.Context) (protocol.Event, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			return ev, nil
		}
		if q.closed {
			return nil, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		q.cond.Wait()
	}
}

// Flush removes every queued event and returns how many were dropped.
func (q *Queue) Flush() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Close wakes blocked consumers. Idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

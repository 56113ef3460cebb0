package monitor

import (
	"context"
	"sync"

	"github.com/roach88/activitylog/internal/ir"
)

// notificationKind distinguishes insert and delete notifications.
type notificationKind int

const (
	kindInsert notificationKind = iota + 1
	kindDelete
)

// notification is one queued delivery. ctx carries the values of the
// originating store call without its cancellation.
type notification struct {
	ctx    context.Context
	kind   notificationKind
	span   ir.TimeRange
	events []*ir.Event
	ids    []int64
}

// notificationQueue is a thread-safe FIFO queue of notifications.
//
// The queue is unbounded so that publishing never blocks the writer.
// The signal channel lets the delivery goroutine wait without polling.
type notificationQueue struct {
	mu     sync.Mutex
	items  []notification
	closed bool
	signal chan struct{} // buffered, size 1
}

func newNotificationQueue() *notificationQueue {
	return &notificationQueue{
		items:  make([]notification, 0, 8),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds n to the back of the queue. Returns false if the queue is
// closed.
func (q *notificationQueue) Enqueue(n notification) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, n)

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front notification without blocking.
func (q *notificationQueue) TryDequeue() (notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return notification{}, false
	}
	n := q.items[0]

	// Clear the slot so the backing array does not pin delivered events.
	q.items[0] = notification{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return n, true
}

// Wait returns a channel that receives when notifications may be
// available and is closed once the queue is closed.
func (q *notificationQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of queued notifications.
func (q *notificationQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting notifications and wakes the waiter.
func (q *notificationQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

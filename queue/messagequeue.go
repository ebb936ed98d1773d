// File: queue/messagequeue.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thread-safe FIFO payload queue with a blocking Get. TileQueue builds its
// reordering policies on top of this base.

package queue

import (
	"sync"

	"github.com/momentics/collabio/api"
)

// Payload is an opaque byte string carried by the queue.
type Payload = []byte

// entry wraps a payload with its lazily parsed tile descriptor, so the
// priority checks do not re-parse on every pass.
type entry struct {
	payload Payload
	desc    api.TileDescriptor
	parsed  bool
}

// MessageQueue is a mutex + condition variable FIFO of payloads.
//
// Get blocks until a payload is available or the queue is closed. Non-tile
// payloads keep strict FIFO order.
type MessageQueue struct {
	mu     sync.Mutex
	cv     *sync.Cond
	items  []entry
	closed bool
}

// NewMessageQueue creates an empty queue.
func NewMessageQueue() *MessageQueue {
	q := &MessageQueue{}
	q.cv = sync.NewCond(&q.mu)
	return q
}

// Put appends a payload and wakes one waiter.
func (q *MessageQueue) Put(value Payload) {
	q.mu.Lock()
	q.putLocked(value)
	q.mu.Unlock()
	q.cv.Signal()
}

func (q *MessageQueue) putLocked(value Payload) {
	q.items = append(q.items, entry{payload: value})
}

// Get removes and returns the front payload, blocking while the queue is
// empty. It returns ok=false once the queue is closed and drained.
func (q *MessageQueue) Get() (Payload, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cv.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	value := q.items[0].payload
	q.items = q.items[1:]
	return value, true
}

// Close marks the queue finished and wakes all waiters. Payloads already
// queued are still returned by Get.
func (q *MessageQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cv.Broadcast()
}

// Clear drops all queued payloads.
func (q *MessageQueue) Clear() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

// RemoveIf erases every queued payload matching the predicate.
func (q *MessageQueue) RemoveIf(pred func(Payload) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.items[:0]
	for _, it := range q.items {
		if !pred(it.payload) {
			kept = append(kept, it)
		}
	}
	for i := len(kept); i < len(q.items); i++ {
		q.items[i] = entry{}
	}
	q.items = kept
}

// Size returns the number of queued payloads.
func (q *MessageQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// IsEmpty reports whether the queue holds no payloads.
func (q *MessageQueue) IsEmpty() bool {
	return q.Size() == 0
}

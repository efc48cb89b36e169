// Package queue provides bounded in-process queues.
package queue

import (
	"sync"
	"sync/atomic"
)

// Memory is a bounded FIFO queue backed by a channel. Publish never blocks.
type Memory[T any] struct {
	mu     sync.RWMutex
	ch     chan T
	closed bool

	dropped atomic.Int64
}

func NewMemory[T any](size int) *Memory[T] {
	if size < 1 {
		size = 1
	}
	return &Memory[T]{ch: make(chan T, size)}
}

// Publish enqueues msg. It returns false when the queue is full or closed.
func (q *Memory[T]) Publish(msg T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}
	select {
	case q.ch <- msg:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Dropped counts the messages rejected because the queue was full.
func (q *Memory[T]) Dropped() int64 { return q.dropped.Load() }

// C is the consuming side. It is closed by Close once drained.
func (q *Memory[T]) C() <-chan T { return q.ch }

func (q *Memory[T]) Len() int { return len(q.ch) }

// Close stops accepting messages. Messages already queued can still be received.
func (q *Memory[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

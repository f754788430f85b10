package scheduler

import "context"

// Queue is the FIFO backfill work queue: single producer (the scheduler),
// single consumer (the worker).
type Queue struct {
	ch chan int64
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{ch: make(chan int64, capacity)}
}

func (q *Queue) Enqueue(ctx context.Context, conversationID int64) bool {
	select {
	case q.ch <- conversationID:
		return true
	case <-ctx.Done():
		return false
	}
}

func (q *Queue) Dequeue(ctx context.Context) (int64, bool) {
	select {
	case conversationID := <-q.ch:
		return conversationID, true
	case <-ctx.Done():
		return 0, false
	}
}

func (q *Queue) Depth() int {
	return len(q.ch)
}

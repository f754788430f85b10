package scheduler

import (
	"sync"
	"testing"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()

	if tr.State(1) != StateIdle {
		t.Fatalf("expected idle initially, got %v", tr.State(1))
	}
	if !tr.MarkQueued(1) {
		t.Fatalf("expected idle->queued to succeed")
	}
	if tr.State(1) != StateQueued {
		t.Fatalf("expected queued, got %v", tr.State(1))
	}
	tr.MarkBackfilling(1)
	if tr.State(1) != StateBackfilling {
		t.Fatalf("expected backfilling, got %v", tr.State(1))
	}
	tr.MarkCompleted(1)
	if tr.State(1) != StateIdle {
		t.Fatalf("expected idle after completion, got %v", tr.State(1))
	}
}

func TestTrackerRejectsDoubleQueue(t *testing.T) {
	tr := NewTracker()

	if !tr.MarkQueued(1) {
		t.Fatalf("first queue attempt should succeed")
	}
	if tr.MarkQueued(1) {
		t.Fatalf("second queue attempt should be rejected while queued")
	}
}

func TestTrackerRequeueDuringBackfill(t *testing.T) {
	tr := NewTracker()

	tr.MarkQueued(1)
	tr.MarkBackfilling(1)
	// New messages arrived mid-run: the conversation may go back in line.
	if !tr.MarkQueued(1) {
		t.Fatalf("expected backfilling->queued to succeed")
	}
	// The finishing run must not erase the pending re-queue.
	tr.MarkCompleted(1)
	if tr.State(1) != StateQueued {
		t.Fatalf("expected re-queued conversation to stay queued, got %v", tr.State(1))
	}
	if tr.QueuedCount() != 1 {
		t.Fatalf("expected 1 queued, got %d", tr.QueuedCount())
	}
}

func TestTrackerClearRollsBack(t *testing.T) {
	tr := NewTracker()

	tr.MarkQueued(1)
	tr.Clear(1)
	if tr.State(1) != StateIdle {
		t.Fatalf("expected idle after clear, got %v", tr.State(1))
	}
	if !tr.MarkQueued(1) {
		t.Fatalf("expected queueing to succeed after clear")
	}
}

func TestTrackerSingleQueueWinnerUnderContention(t *testing.T) {
	tr := NewTracker()

	const attempts = 64
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.MarkQueued(42) {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	won := 0
	for range wins {
		won++
	}
	if won != 1 {
		t.Fatalf("expected exactly one winning transition, got %d", won)
	}
	if tr.QueuedCount() != 1 {
		t.Fatalf("expected 1 queued, got %d", tr.QueuedCount())
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(4)
	ctx := contextForTest(t)

	for _, id := range []int64{3, 1, 2} {
		if !q.Enqueue(ctx, id) {
			t.Fatalf("enqueue %d failed", id)
		}
	}
	if q.Depth() != 3 {
		t.Fatalf("expected depth 3, got %d", q.Depth())
	}
	for _, want := range []int64{3, 1, 2} {
		got, ok := q.Dequeue(ctx)
		if !ok || got != want {
			t.Fatalf("expected %d, got %d (ok=%v)", want, got, ok)
		}
	}
}

package scheduler

import "sync"

// State is one conversation's position in the backfill lifecycle.
type State int

const (
	// StateIdle: not scheduled, eligible for queueing.
	StateIdle State = iota
	// StateQueued: waiting in the work queue; must not be queued again.
	StateQueued
	// StateBackfilling: being processed by the worker. A conversation in this
	// state may be queued again, so new messages arriving during a long
	// backfill re-schedule it without waiting for the run to finish.
	StateBackfilling
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateBackfilling:
		return "backfilling"
	default:
		return "idle"
	}
}

// Tracker is the per-conversation backfill state machine shared by the
// scheduler and the worker. All transitions happen under one mutex, so
// check-then-queue is atomic and a conversation can never sit in the work
// queue twice.
type Tracker struct {
	mu     sync.Mutex
	states map[int64]State
}

func NewTracker() *Tracker {
	return &Tracker{states: map[int64]State{}}
}

// MarkQueued attempts idle->queued or backfilling->queued and reports whether
// the caller owns the transition and must push the conversation onto the work
// queue. Returns false for conversations already queued.
func (t *Tracker) MarkQueued(conversationID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[conversationID] == StateQueued {
		return false
	}
	t.states[conversationID] = StateQueued
	return true
}

// MarkBackfilling records queued->backfilling. The worker calls this
// immediately on pop, before processing, which is what frees the conversation
// for re-scheduling while its backfill runs.
func (t *Tracker) MarkBackfilling(conversationID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[conversationID] = StateBackfilling
}

// MarkCompleted records backfilling->idle. A conversation that was re-queued
// during its run stays queued.
func (t *Tracker) MarkCompleted(conversationID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[conversationID] == StateBackfilling {
		delete(t.states, conversationID)
	}
}

// Clear forces a conversation back to idle. Used to roll back a MarkQueued
// whose queue push could not complete.
func (t *Tracker) Clear(conversationID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, conversationID)
}

// State reports the current state of one conversation.
func (t *Tracker) State(conversationID int64) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[conversationID]
}

// QueuedCount reports how many conversations are currently queued.
func (t *Tracker) QueuedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.states {
		if s == StateQueued {
			n++
		}
	}
	return n
}

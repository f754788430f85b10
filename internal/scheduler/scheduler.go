// Package scheduler decides which conversations need historical backfill and
// feeds them to the worker, at most one in-flight run per conversation.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xpapercut/telegram-indexer/internal/store"
)

const (
	defaultInterval    = 60 * time.Second
	defaultSettleDelay = time.Second
)

type Options struct {
	Store   *store.Store
	Queue   *Queue
	Tracker *Tracker
	// Ready gates the first pass; closed once an initial conversation
	// enumeration has completed.
	Ready <-chan struct{}
	// Interval between scheduling passes.
	Interval time.Duration
	// SettleDelay after Ready before the first pass, giving the first flush
	// cycle time to land the enumerated conversations.
	SettleDelay time.Duration
	Logger      zerolog.Logger
}

type Scheduler struct {
	store       *store.Store
	queue       *Queue
	tracker     *Tracker
	ready       <-chan struct{}
	interval    time.Duration
	settleDelay time.Duration
	log         zerolog.Logger
}

func New(opts Options) *Scheduler {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	settleDelay := opts.SettleDelay
	if settleDelay <= 0 {
		settleDelay = defaultSettleDelay
	}
	return &Scheduler{
		store:       opts.Store,
		queue:       opts.Queue,
		tracker:     opts.Tracker,
		ready:       opts.Ready,
		interval:    interval,
		settleDelay: settleDelay,
		log:         opts.Logger.With().Str("component", "scheduler").Logger(),
	}
}

// Run blocks until the first conversation enumeration completes, then
// re-evaluates backfill eligibility every interval. Returns nil on context
// cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Msg("waiting for first conversation enumeration")
	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil
	}
	select {
	case <-time.After(s.settleDelay):
	case <-ctx.Done():
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		s.pass(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

// pass diffs latest vs. latest-historical message IDs per conversation and
// queues every eligible conversation not already queued.
func (s *Scheduler) pass(ctx context.Context) {
	latest, err := s.store.ConversationLatestMessageIDs(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("scheduling query failed")
		return
	}
	scheduled := 0
	for conversationID, ids := range latest {
		if ids.LatestHistoricalMessageID != nil && ids.LatestMessageID <= *ids.LatestHistoricalMessageID {
			continue
		}
		if !s.tracker.MarkQueued(conversationID) {
			continue
		}
		if !s.queue.Enqueue(ctx, conversationID) {
			s.tracker.Clear(conversationID)
			return
		}
		title, _ := s.store.ConversationTitle(ctx, conversationID)
		s.log.Debug().Int64("conversation_id", conversationID).Str("title", title).Msg("conversation scheduled for backfill")
		scheduled++
	}
	s.log.Info().
		Int("scheduled", scheduled).
		Int("queued", s.tracker.QueuedCount()).
		Msg("scheduling pass finished")
}

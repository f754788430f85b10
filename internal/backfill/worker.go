// Package backfill drains the scheduler's work queue and streams each
// conversation's full history into the store, checkpointing progress so an
// interrupted run resumes close to where it stopped.
package backfill

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/0xpapercut/telegram-indexer/internal/entity"
	"github.com/0xpapercut/telegram-indexer/internal/scheduler"
	"github.com/0xpapercut/telegram-indexer/internal/store"
	"github.com/0xpapercut/telegram-indexer/internal/transport"
)

const (
	defaultCheckpointEvery = 1000
	defaultStreamWait      = time.Second
)

type Options struct {
	Store     *store.Store
	Transport transport.Transport
	Queue     *scheduler.Queue
	Tracker   *scheduler.Tracker
	// CheckpointEvery bounds the reprocessing window after a crash: the cursor
	// is written every this many persisted messages.
	CheckpointEvery int
	// StreamWait is the inter-page wait passed to the transport, a throughput
	// courtesy to the remote system.
	StreamWait time.Duration
	Logger     zerolog.Logger
}

type Worker struct {
	store           *store.Store
	transport       transport.Transport
	queue           *scheduler.Queue
	tracker         *scheduler.Tracker
	checkpointEvery int
	streamWait      time.Duration
	log             zerolog.Logger
}

func New(opts Options) *Worker {
	checkpointEvery := opts.CheckpointEvery
	if checkpointEvery <= 0 {
		checkpointEvery = defaultCheckpointEvery
	}
	streamWait := opts.StreamWait
	if streamWait <= 0 {
		streamWait = defaultStreamWait
	}
	return &Worker{
		store:           opts.Store,
		transport:       opts.Transport,
		queue:           opts.Queue,
		tracker:         opts.Tracker,
		checkpointEvery: checkpointEvery,
		streamWait:      streamWait,
		log:             opts.Logger.With().Str("component", "backfill").Logger(),
	}
}

// Run consumes the work queue sequentially, one conversation to completion at
// a time. A failed conversation is logged and left for the scheduler's next
// pass; Run itself only returns on context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	for {
		conversationID, ok := w.queue.Dequeue(ctx)
		if !ok {
			return nil
		}
		// Freed for re-scheduling before processing starts, so a long run
		// does not block the conversation from queueing again.
		w.tracker.MarkBackfilling(conversationID)
		err := w.backfill(ctx, conversationID)
		w.tracker.MarkCompleted(conversationID)
		if err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Int64("conversation_id", conversationID).Msg("backfill aborted")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (w *Worker) backfill(ctx context.Context, conversationID int64) error {
	title, _ := w.store.ConversationTitle(ctx, conversationID)
	logger := w.log.With().Int64("conversation_id", conversationID).Str("title", title).Logger()

	resumeAfter, origin, err := w.resumePoint(ctx, conversationID)
	if err != nil {
		return err
	}

	total, err := w.transport.TotalMessageCount(ctx, conversationID)
	if err != nil {
		return errors.Wrapf(err, "total message count for conversation %d", conversationID)
	}
	persisted, err := w.store.HistoricalMessageCount(ctx, conversationID)
	if err != nil {
		return err
	}
	remaining := total - persisted
	if remaining <= 0 {
		logger.Debug().Msg("history already up to date")
		return nil
	}
	logger.Info().Str("resume", origin).Int("remaining", remaining).Msg("backfill started")

	var count int
	var lastMessageID int64
	started := time.Now()
	streamErr := w.transport.StreamMessages(ctx, conversationID, resumeAfter, w.streamWait, func(raw transport.Message) error {
		if participant, ok := entity.ParticipantFrom(raw.Sender); ok {
			if err := w.store.Enqueue(entity.ParticipantMutation(participant)); err != nil {
				return err
			}
		}
		msg, ok := entity.MessageFrom(&raw, true)
		if !ok {
			return nil
		}
		if err := w.store.Enqueue(entity.MessageMutation(msg)); err != nil {
			return err
		}
		count++
		lastMessageID = msg.MessageID
		if count%w.checkpointEvery == 0 {
			return w.store.SetBackfillCursor(ctx, conversationID, lastMessageID)
		}
		return nil
	})
	if streamErr != nil {
		// The cursor stays at its last checkpoint; the scheduler will pick
		// the conversation up again and resume from there.
		return errors.Wrapf(streamErr, "stream conversation %d", conversationID)
	}
	if count > 0 {
		if err := w.store.SetBackfillCursor(ctx, conversationID, lastMessageID); err != nil {
			return err
		}
	}
	elapsed := time.Since(started)
	logger.Info().
		Int("messages", count).
		Dur("elapsed", elapsed).
		Float64("msgs_per_sec", float64(count)/elapsed.Seconds()).
		Msg("backfill finished")
	return nil
}

// resumePoint prefers the newest historical row, then the persisted cursor,
// then inception. The newest historical row wins so a cursor written ahead of
// a lost batch cannot skip messages.
func (w *Worker) resumePoint(ctx context.Context, conversationID int64) (int64, string, error) {
	latest, err := w.store.LatestHistoricalMessage(ctx, conversationID)
	if err != nil {
		return 0, "", err
	}
	if latest != nil {
		return latest.MessageID, "from " + latest.SentAt.Format(time.RFC3339), nil
	}
	cursor, err := w.store.BackfillCursor(ctx, conversationID)
	if err != nil {
		return 0, "", err
	}
	if cursor != nil {
		return *cursor, "from checkpoint", nil
	}
	return 0, "from inception", nil
}

// Package indexer wires the ingestion loops together and owns their
// lifecycle: live sync, scheduling, backfill and live event handling run
// concurrently against one store and one transport.
package indexer

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/0xpapercut/telegram-indexer/internal/backfill"
	"github.com/0xpapercut/telegram-indexer/internal/livesync"
	"github.com/0xpapercut/telegram-indexer/internal/scheduler"
	"github.com/0xpapercut/telegram-indexer/internal/store"
	"github.com/0xpapercut/telegram-indexer/internal/transport"
)

const defaultWorkQueueSize = 1024

type Options struct {
	Store     *store.Store
	Transport transport.Transport
	// Broadcaster receives live notifications; nil disables fan-out.
	Broadcaster livesync.Broadcaster

	SyncInterval     time.Duration
	ScheduleInterval time.Duration
	SettleDelay      time.Duration
	CheckpointEvery  int
	StreamWait       time.Duration
	WorkQueueSize    int

	Logger zerolog.Logger
}

type Indexer struct {
	store     *store.Store
	transport transport.Transport
	syncer    *livesync.Syncer
	scheduler *scheduler.Scheduler
	worker    *backfill.Worker
	log       zerolog.Logger
}

// New assembles the loops and registers the live event handler with the
// transport. The caller is expected to have started the store and connected
// the transport.
func New(opts Options) *Indexer {
	workQueueSize := opts.WorkQueueSize
	if workQueueSize <= 0 {
		workQueueSize = defaultWorkQueueSize
	}
	queue := scheduler.NewQueue(workQueueSize)
	tracker := scheduler.NewTracker()

	syncer := livesync.NewSyncer(livesync.SyncerOptions{
		Store:     opts.Store,
		Transport: opts.Transport,
		Interval:  opts.SyncInterval,
		Logger:    opts.Logger,
	})
	sched := scheduler.New(scheduler.Options{
		Store:       opts.Store,
		Queue:       queue,
		Tracker:     tracker,
		Ready:       syncer.FirstPass(),
		Interval:    opts.ScheduleInterval,
		SettleDelay: opts.SettleDelay,
		Logger:      opts.Logger,
	})
	worker := backfill.New(backfill.Options{
		Store:           opts.Store,
		Transport:       opts.Transport,
		Queue:           queue,
		Tracker:         tracker,
		CheckpointEvery: opts.CheckpointEvery,
		StreamWait:      opts.StreamWait,
		Logger:          opts.Logger,
	})
	handler := livesync.NewHandler(livesync.HandlerOptions{
		Store:       opts.Store,
		Broadcaster: opts.Broadcaster,
		Logger:      opts.Logger,
	})
	opts.Transport.OnNewMessage(handler.HandleNewMessage)

	return &Indexer{
		store:     opts.Store,
		transport: opts.Transport,
		syncer:    syncer,
		scheduler: sched,
		worker:    worker,
		log:       opts.Logger.With().Str("component", "indexer").Logger(),
	}
}

// Run supervises the loops until ctx is cancelled, then closes the transport
// once every loop has observed the stop. The store is left running; the caller
// stops it last so the final flush covers everything the loops enqueued.
func (ix *Indexer) Run(ctx context.Context) error {
	ix.log.Info().Msg("indexer started")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ix.syncer.Run(gctx) })
	g.Go(func() error { return ix.scheduler.Run(gctx) })
	g.Go(func() error { return ix.worker.Run(gctx) })
	err := g.Wait()

	if closeErr := ix.transport.Close(); closeErr != nil {
		ix.log.Warn().Err(closeErr).Msg("transport close failed")
	}
	ix.log.Info().Msg("indexer stopped")
	return err
}

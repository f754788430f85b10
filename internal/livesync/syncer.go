// Package livesync keeps conversation metadata fresh and turns live transport
// events into store mutations and fan-out notifications.
package livesync

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xpapercut/telegram-indexer/internal/entity"
	"github.com/0xpapercut/telegram-indexer/internal/store"
	"github.com/0xpapercut/telegram-indexer/internal/transport"
)

const defaultSyncInterval = 20 * time.Second

type SyncerOptions struct {
	Store     *store.Store
	Transport transport.Transport
	Interval  time.Duration
	Logger    zerolog.Logger
}

// Syncer periodically re-enumerates all conversations, derives their entity
// rows and enqueues them. Its first completed pass unlocks the scheduler.
type Syncer struct {
	store     *store.Store
	transport transport.Transport
	interval  time.Duration
	log       zerolog.Logger

	firstPass     chan struct{}
	firstPassOnce sync.Once
}

func NewSyncer(opts SyncerOptions) *Syncer {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	return &Syncer{
		store:     opts.Store,
		transport: opts.Transport,
		interval:  interval,
		log:       opts.Logger.With().Str("component", "livesync").Logger(),
		firstPass: make(chan struct{}),
	}
}

// FirstPass is closed once an initial enumeration has completed, meaning
// conversation rows exist for the scheduler to aggregate over.
func (s *Syncer) FirstPass() <-chan struct{} {
	return s.firstPass
}

// Run enumerates immediately and then once per interval. Stop is cooperative:
// cancellation is observed at period boundaries, not mid-enumeration.
func (s *Syncer) Run(ctx context.Context) error {
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

func (s *Syncer) pass(ctx context.Context) {
	dialogs, err := s.transport.EnumerateConversations(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("conversation enumeration failed")
		return
	}
	for _, dialog := range dialogs {
		s.enqueue(entity.ConversationMutation(entity.ConversationFrom(dialog)))
		if dialog.Preview != nil {
			if participant, ok := entity.ParticipantFrom(dialog.Preview.Sender); ok {
				s.enqueue(entity.ParticipantMutation(participant))
			}
			if msg, ok := entity.MessageFromPreview(dialog.Preview); ok {
				s.enqueue(entity.MessageMutation(msg))
			}
		}
		if count, ok := entity.ParticipantCountFrom(dialog); ok {
			s.enqueue(entity.ParticipantCountMutation(count))
		}
	}
	s.log.Info().Int("conversations", len(dialogs)).Msg("enumeration pass finished")
	s.firstPassOnce.Do(func() {
		close(s.firstPass)
	})
}

func (s *Syncer) enqueue(m entity.Mutation) {
	if err := s.store.Enqueue(m); err != nil {
		s.log.Warn().Err(err).Str("entity", m.Kind.String()).Msg("enqueue failed")
	}
}

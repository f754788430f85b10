// Package store owns the persistent schema and the batched write path. All
// entity mutations funnel through an in-process queue that a single flush loop
// drains on a fixed cadence; read queries and cursor writes go straight to the
// database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xpapercut/telegram-indexer/internal/entity"
)

var (
	ErrClosed     = errors.New("store closed")
	ErrNotStarted = errors.New("store not started")
)

const (
	defaultFlushInterval = time.Second
	defaultQueueSize     = 4096
)

type Options struct {
	// DSN selects the engine by scheme: postgres://... or sqlite://path
	// (sqlite://:memory: for an ephemeral store).
	DSN           string
	FlushInterval time.Duration
	QueueSize     int
	Logger        zerolog.Logger
}

type Store struct {
	dsn           string
	flushInterval time.Duration
	log           zerolog.Logger

	db      *sql.DB
	dialect dialectKind

	queue    chan entity.Mutation
	accepted atomic.Uint64
	dropped  atomic.Uint64

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func New(opts Options) *Store {
	flushInterval := opts.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Store{
		dsn:           opts.DSN,
		flushInterval: flushInterval,
		log:           opts.Logger.With().Str("component", "store").Logger(),
		queue:         make(chan entity.Mutation, queueSize),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start opens the storage resource, applies the schema if needed and launches
// the flush loop. A failure here is fatal to the caller.
func (s *Store) Start(ctx context.Context) error {
	db, dialect, err := openByDSN(s.dsn)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := applySchema(ctx, db); err != nil {
		_ = db.Close()
		return err
	}
	s.db = db
	s.dialect = dialect
	s.log.Info().Str("dialect", dialect.String()).Msg("store started")
	go s.flushLoop()
	return nil
}

// Stop signals the flush loop, waits for its final drain-and-flush and only
// then releases the database. Every mutation enqueued before Stop is durable
// once Stop returns.
func (s *Store) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	if s.db != nil {
		_ = s.db.Close()
	}
	s.log.Info().
		Uint64("accepted", s.accepted.Load()).
		Uint64("dropped", s.dropped.Load()).
		Msg("store stopped")
}

// Enqueue appends a mutation without blocking. When the queue is full the
// oldest pending mutation is dropped and counted; after Stop the call fails
// with ErrClosed.
func (s *Store) Enqueue(m entity.Mutation) error {
	select {
	case <-s.stop:
		return ErrClosed
	default:
	}
	for {
		select {
		case s.queue <- m:
			s.accepted.Add(1)
			return nil
		default:
		}
		select {
		case old := <-s.queue:
			s.dropped.Add(1)
			s.log.Warn().Str("entity", old.Kind.String()).Msg("mutation queue full, dropped oldest")
		default:
		}
	}
}

// QueueDepth reports the number of mutations awaiting flush.
func (s *Store) QueueDepth() int {
	return len(s.queue)
}

// DroppedMutations reports how many mutations were shed under overflow.
func (s *Store) DroppedMutations() uint64 {
	return s.dropped.Load()
}

func (s *Store) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.flushOnce(context.Background())
		case <-s.stop:
			s.flushOnce(context.Background())
			return
		}
	}
}

type batch struct {
	participants      []entity.Participant
	conversations     []entity.Conversation
	messages          []entity.Message
	participantCounts []entity.ParticipantCount
}

// flushOnce drains the queue as it stands and applies one transactional batch
// per entity kind. Mutations enqueued during the flush wait for the next
// cycle. A failed partition is logged and dropped; the rest still flush.
func (s *Store) flushOnce(ctx context.Context) {
	var b batch
	for {
		select {
		case m := <-s.queue:
			switch m.Kind {
			case entity.KindParticipant:
				b.participants = append(b.participants, *m.Participant)
			case entity.KindConversation:
				b.conversations = append(b.conversations, *m.Conversation)
			case entity.KindMessage:
				b.messages = append(b.messages, *m.Message)
			case entity.KindParticipantCount:
				b.participantCounts = append(b.participantCounts, *m.ParticipantCount)
			}
		default:
			s.applyBatch(ctx, b)
			return
		}
	}
}

// Flush order keeps a message's foreign references from landing after the
// message itself.
func (s *Store) applyBatch(ctx context.Context, b batch) {
	if len(b.participants) > 0 {
		if err := s.insertParticipants(ctx, b.participants); err != nil {
			s.log.Error().Err(err).Int("rows", len(b.participants)).Str("entity", "participant").Msg("batch flush failed")
		}
	}
	if len(b.conversations) > 0 {
		if err := s.insertConversations(ctx, b.conversations); err != nil {
			s.log.Error().Err(err).Int("rows", len(b.conversations)).Str("entity", "conversation").Msg("batch flush failed")
		}
	}
	if len(b.messages) > 0 {
		if err := s.insertMessages(ctx, b.messages); err != nil {
			s.log.Error().Err(err).Int("rows", len(b.messages)).Str("entity", "message").Msg("batch flush failed")
		}
	}
	if len(b.participantCounts) > 0 {
		if err := s.insertParticipantCounts(ctx, b.participantCounts); err != nil {
			s.log.Error().Err(err).Int("rows", len(b.participantCounts)).Str("entity", "participant_count").Msg("batch flush failed")
		}
	}
}

func (s *Store) insertParticipants(ctx context.Context, rows []entity.Participant) error {
	query := s.dialect.rebind(`
		INSERT INTO participants (participant_id, username, first_name, last_name, is_bot, is_premium, is_scam, is_fake, is_verified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (participant_id) DO NOTHING`)
	return s.execBatch(ctx, query, len(rows), func(i int) []any {
		r := rows[i]
		return []any{r.ID, r.Username, r.FirstName, r.LastName, r.IsBot, r.IsPremium, r.IsScam, r.IsFake, r.IsVerified}
	})
}

func (s *Store) insertConversations(ctx context.Context, rows []entity.Conversation) error {
	query := s.dialect.rebind(`
		INSERT INTO conversations (conversation_id, title, is_group, is_channel, is_direct)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id) DO NOTHING`)
	return s.execBatch(ctx, query, len(rows), func(i int) []any {
		r := rows[i]
		return []any{r.ID, r.Title, r.IsGroup, r.IsChannel, r.IsDirect}
	})
}

// On conflict is_historical may only be promoted from false to true; every
// other column is frozen at first insert.
func (s *Store) insertMessages(ctx context.Context, rows []entity.Message) error {
	query := s.dialect.rebind(`
		INSERT INTO messages (conversation_id, message_id, sender_id, text, sent_at, is_historical)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, message_id) DO UPDATE SET is_historical = excluded.is_historical
		WHERE messages.is_historical = FALSE AND excluded.is_historical = TRUE`)
	return s.execBatch(ctx, query, len(rows), func(i int) []any {
		r := rows[i]
		var senderID any
		if r.SenderID != nil {
			senderID = *r.SenderID
		}
		return []any{r.ConversationID, r.MessageID, senderID, r.Text, r.SentAt.UTC(), r.IsHistorical}
	})
}

func (s *Store) insertParticipantCounts(ctx context.Context, rows []entity.ParticipantCount) error {
	query := s.dialect.rebind(`
		INSERT INTO participant_counts (conversation_id, participant_count, observed_at)
		VALUES (?, ?, ?)`)
	now := time.Now().UTC()
	return s.execBatch(ctx, query, len(rows), func(i int) []any {
		r := rows[i]
		observedAt := r.ObservedAt
		if observedAt.IsZero() {
			observedAt = now
		}
		return []any{r.ConversationID, r.Count, observedAt.UTC()}
	})
}

func (s *Store) execBatch(ctx context.Context, query string, n int, args func(i int) []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < n; i++ {
		if _, err := stmt.ExecContext(ctx, args(i)...); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

package livesync

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/0xpapercut/telegram-indexer/internal/entity"
	"github.com/0xpapercut/telegram-indexer/internal/store"
	"github.com/0xpapercut/telegram-indexer/internal/transport"
)

// Broadcaster pushes a serialized notification to all connected subscribers.
type Broadcaster interface {
	Broadcast(payload []byte)
}

type HandlerOptions struct {
	Store       *store.Store
	Broadcaster Broadcaster
	Logger      zerolog.Logger
}

// Handler reacts to one live event at a time: persistence mutations on one
// side, a subscriber notification on the other. The two paths are independent
// and both non-blocking, so neither can stall live ingestion.
type Handler struct {
	store       *store.Store
	broadcaster Broadcaster
	log         zerolog.Logger
}

func NewHandler(opts HandlerOptions) *Handler {
	return &Handler{
		store:       opts.Store,
		broadcaster: opts.Broadcaster,
		log:         opts.Logger.With().Str("component", "liveevent").Logger(),
	}
}

// HandleNewMessage derives and enqueues entity rows for the event, then
// publishes the notification. A bad event is logged and dropped; it never
// halts future invocations.
func (h *Handler) HandleNewMessage(ctx context.Context, ev transport.Event) {
	if participant, ok := entity.ParticipantFrom(ev.Message.Sender); ok {
		h.enqueue(entity.ParticipantMutation(participant))
	}
	h.enqueue(entity.ConversationMutation(entity.ConversationFrom(ev.Conversation)))
	if msg, ok := entity.MessageFrom(&ev.Message, false); ok {
		h.enqueue(entity.MessageMutation(msg))
	}

	if h.broadcaster == nil {
		return
	}
	payload, err := json.Marshal(entity.NotificationFrom(ev))
	if err != nil {
		h.log.Error().Err(err).Int64("conversation_id", ev.Message.ConversationID).Msg("notification marshal failed")
		return
	}
	h.broadcaster.Broadcast(payload)
}

func (h *Handler) enqueue(m entity.Mutation) {
	if err := h.store.Enqueue(m); err != nil {
		h.log.Warn().Err(err).Str("entity", m.Kind.String()).Msg("enqueue failed")
	}
}

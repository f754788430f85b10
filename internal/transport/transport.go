// Package transport defines the boundary to the external messaging system.
// Implementations yield conversations, historical message streams and live
// message notifications; selection is by DSN scheme, mirroring how storage
// backends are chosen.
package transport

import (
	"context"
	"strings"
	"time"
)

// Peer is a raw sender or counterpart as delivered by the transport. A peer is
// either user-like (profile fields populated) or channel-like (title only).
type Peer struct {
	ID        int64
	Title     string
	Username  string
	FirstName string
	LastName  string

	IsUser     bool
	IsBot      bool
	IsPremium  bool
	IsScam     bool
	IsFake     bool
	IsVerified bool
}

// DisplayName resolves a human-readable name: title for channel-like peers,
// otherwise username, otherwise the full name.
func (p *Peer) DisplayName() string {
	if p == nil {
		return ""
	}
	if strings.TrimSpace(p.Title) != "" {
		return strings.TrimSpace(p.Title)
	}
	if strings.TrimSpace(p.Username) != "" {
		return strings.TrimSpace(p.Username)
	}
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// Message is a raw transport message. Sender is nil when the transport could
// not resolve one; ChannelPost marks messages that are legitimately senderless.
type Message struct {
	ConversationID int64
	MessageID      int64
	Sender         *Peer
	Text           string
	SentAt         time.Time
	ChannelPost    bool
}

// Dialog is one entry of a conversation enumeration, with an embedded preview
// of the newest message. Peer is the counterpart for direct dialogs.
type Dialog struct {
	ConversationID int64
	Title          string
	IsGroup        bool
	IsChannel      bool
	IsDirect       bool
	Peer           *Peer
	Preview        *Message

	ParticipantCount    int
	HasParticipantCount bool
}

// Event is one incoming live message together with the conversation it
// belongs to. Conversation.Preview is unset on live events.
type Event struct {
	Message      Message
	Conversation Dialog
}

// NewMessageHandler is invoked once per incoming live message, in delivery
// order, one at a time.
type NewMessageHandler func(ctx context.Context, ev Event)

// Transport is the external conversation/message collaborator.
//
// EnumerateConversations is finite and restartable per call. StreamMessages
// yields messages oldest-first with IDs strictly greater than afterMessageID,
// pausing wait between pages as a courtesy to the remote system; it returns the
// first visitor or stream error. TotalMessageCount reports the remote total for
// one conversation.
type Transport interface {
	Connect(ctx context.Context) error
	Close() error

	EnumerateConversations(ctx context.Context) ([]Dialog, error)
	StreamMessages(ctx context.Context, conversationID, afterMessageID int64, wait time.Duration, fn func(Message) error) error
	TotalMessageCount(ctx context.Context, conversationID int64) (int, error)

	OnNewMessage(handler NewMessageHandler)
}

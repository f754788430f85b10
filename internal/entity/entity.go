// Package entity holds the persisted record types and the mutation envelope
// exchanged between the ingestion loops and the durable store.
package entity

import "time"

// Conversation is a chat, channel or direct thread. Exactly one of the kind
// flags is true. Rows are first-write-wins and never deleted.
type Conversation struct {
	ID        int64
	Title     string
	IsGroup   bool
	IsChannel bool
	IsDirect  bool
}

// Participant is a user-like sender profile. Fields are frozen at first sight;
// conflicts do not update.
type Participant struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string

	IsBot      bool
	IsPremium  bool
	IsScam     bool
	IsFake     bool
	IsVerified bool
}

// Message identity is (ConversationID, MessageID). SenderID is nil for
// senderless channel posts. IsHistorical only ever transitions false to true.
type Message struct {
	ConversationID int64
	MessageID      int64
	SenderID       *int64
	Text           string
	SentAt         time.Time
	IsHistorical   bool
}

// ParticipantCount is one observation in an append-only trend log.
type ParticipantCount struct {
	ConversationID int64
	Count          int
	ObservedAt     time.Time
}

// Notification is the frame pushed to fan-out subscribers.
type Notification struct {
	Sender string `json:"sender"`
	Chat   string `json:"chat"`
	Text   string `json:"text"`
}

// MutationKind tags the single populated payload of a Mutation.
type MutationKind int

const (
	KindParticipant MutationKind = iota
	KindConversation
	KindMessage
	KindParticipantCount
)

func (k MutationKind) String() string {
	switch k {
	case KindParticipant:
		return "participant"
	case KindConversation:
		return "conversation"
	case KindMessage:
		return "message"
	case KindParticipantCount:
		return "participant_count"
	default:
		return "unknown"
	}
}

// Mutation is a tagged variant; exactly the payload matching Kind is non-nil.
type Mutation struct {
	Kind             MutationKind
	Participant      *Participant
	Conversation     *Conversation
	Message          *Message
	ParticipantCount *ParticipantCount
}

func ParticipantMutation(p Participant) Mutation {
	return Mutation{Kind: KindParticipant, Participant: &p}
}

func ConversationMutation(c Conversation) Mutation {
	return Mutation{Kind: KindConversation, Conversation: &c}
}

func MessageMutation(m Message) Mutation {
	return Mutation{Kind: KindMessage, Message: &m}
}

func ParticipantCountMutation(c ParticipantCount) Mutation {
	return Mutation{Kind: KindParticipantCount, ParticipantCount: &c}
}

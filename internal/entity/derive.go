package entity

import (
	"strings"

	"github.com/0xpapercut/telegram-indexer/internal/transport"
)

// MessageFrom maps a raw transport message. It yields nothing when the message
// has no resolvable sender, unless the message is a senderless channel post.
func MessageFrom(raw *transport.Message, isHistorical bool) (Message, bool) {
	if raw == nil {
		return Message{}, false
	}
	if raw.Sender == nil && !raw.ChannelPost {
		return Message{}, false
	}
	msg := Message{
		ConversationID: raw.ConversationID,
		MessageID:      raw.MessageID,
		Text:           raw.Text,
		SentAt:         raw.SentAt,
		IsHistorical:   isHistorical,
	}
	if raw.Sender != nil {
		senderID := raw.Sender.ID
		msg.SenderID = &senderID
	}
	return msg, true
}

// MessageFromPreview maps a dialog's embedded preview message. Previews with
// no textual body yield nothing.
func MessageFromPreview(raw *transport.Message) (Message, bool) {
	if raw == nil || strings.TrimSpace(raw.Text) == "" {
		return Message{}, false
	}
	return MessageFrom(raw, false)
}

// ParticipantFrom maps a raw peer. Channel-like senders yield nothing.
func ParticipantFrom(peer *transport.Peer) (Participant, bool) {
	if peer == nil || !peer.IsUser {
		return Participant{}, false
	}
	return Participant{
		ID:         peer.ID,
		Username:   peer.Username,
		FirstName:  peer.FirstName,
		LastName:   peer.LastName,
		IsBot:      peer.IsBot,
		IsPremium:  peer.IsPremium,
		IsScam:     peer.IsScam,
		IsFake:     peer.IsFake,
		IsVerified: peer.IsVerified,
	}, true
}

// ConversationFrom maps a dialog. A direct conversation takes the
// counterpart's display name as its title since it has no stored title of its
// own.
func ConversationFrom(dialog transport.Dialog) Conversation {
	title := dialog.Title
	if dialog.IsDirect {
		title = dialog.Peer.DisplayName()
	}
	return Conversation{
		ID:        dialog.ConversationID,
		Title:     title,
		IsGroup:   dialog.IsGroup,
		IsChannel: dialog.IsChannel,
		IsDirect:  dialog.IsDirect,
	}
}

// ParticipantCountFrom maps a dialog's participant count observation. Direct
// dialogs and dialogs without a count yield nothing.
func ParticipantCountFrom(dialog transport.Dialog) (ParticipantCount, bool) {
	if dialog.IsDirect || !dialog.HasParticipantCount {
		return ParticipantCount{}, false
	}
	return ParticipantCount{
		ConversationID: dialog.ConversationID,
		Count:          dialog.ParticipantCount,
	}, true
}

// NotificationFrom builds the fan-out frame for a live event.
func NotificationFrom(ev transport.Event) Notification {
	chat := ev.Conversation.Title
	if chat == "" {
		chat = ev.Conversation.Peer.DisplayName()
	}
	return Notification{
		Sender: ev.Message.Sender.DisplayName(),
		Chat:   chat,
		Text:   ev.Message.Text,
	}
}

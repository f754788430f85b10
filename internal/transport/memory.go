package transport

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNotConnected = errors.New("transport not connected")

// MemoryTransport is a scripted in-process transport. Dialogs and history are
// seeded programmatically; Deliver injects a live message. It backs the
// "memory" DSN scheme.
type MemoryTransport struct {
	mu        sync.Mutex
	connected bool
	dialogs   []Dialog
	history   map[int64][]Message
	handlers  []NewMessageHandler
}

func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		history: map[int64][]Message{},
	}
}

func (t *MemoryTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	return nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

// SeedDialog installs or replaces a dialog, keyed by conversation ID.
func (t *MemoryTransport) SeedDialog(dialog Dialog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.dialogs {
		if t.dialogs[i].ConversationID == dialog.ConversationID {
			t.dialogs[i] = dialog
			return
		}
	}
	t.dialogs = append(t.dialogs, dialog)
}

// SeedHistory appends messages to a conversation's history.
func (t *MemoryTransport) SeedHistory(conversationID int64, msgs ...Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history[conversationID] = append(t.history[conversationID], msgs...)
	sort.Slice(t.history[conversationID], func(i, j int) bool {
		return t.history[conversationID][i].MessageID < t.history[conversationID][j].MessageID
	})
}

// Deliver records the event's message in the conversation history and fires
// every registered live handler, in registration order. When the event names a
// conversation with no seeded dialog, the dialog is seeded too so later
// enumerations see it.
func (t *MemoryTransport) Deliver(ctx context.Context, ev Event) {
	msg := ev.Message
	t.mu.Lock()
	t.history[msg.ConversationID] = append(t.history[msg.ConversationID], msg)
	known := false
	for i := range t.dialogs {
		if t.dialogs[i].ConversationID == ev.Conversation.ConversationID {
			known = true
			break
		}
	}
	if !known && ev.Conversation.ConversationID != 0 {
		t.dialogs = append(t.dialogs, ev.Conversation)
	}
	handlers := append([]NewMessageHandler(nil), t.handlers...)
	t.mu.Unlock()
	for _, handler := range handlers {
		handler(ctx, ev)
	}
}

func (t *MemoryTransport) EnumerateConversations(ctx context.Context) ([]Dialog, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil, ErrNotConnected
	}
	return append([]Dialog(nil), t.dialogs...), nil
}

func (t *MemoryTransport) StreamMessages(ctx context.Context, conversationID, afterMessageID int64, wait time.Duration, fn func(Message) error) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	msgs := append([]Message(nil), t.history[conversationID]...)
	t.mu.Unlock()

	for _, msg := range msgs {
		if msg.MessageID <= afterMessageID {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(msg); err != nil {
			return err
		}
	}
	return nil
}

func (t *MemoryTransport) TotalMessageCount(ctx context.Context, conversationID int64) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return 0, ErrNotConnected
	}
	return len(t.history[conversationID]), nil
}

func (t *MemoryTransport) OnNewMessage(handler NewMessageHandler) {
	if handler == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers = append(t.handlers, handler)
}

package transport

import (
	"context"
	"testing"
	"time"
)

func seeded(t *testing.T) *MemoryTransport {
	t.Helper()
	mem := NewMemoryTransport()
	if err := mem.Connect(context.Background()); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	return mem
}

func TestMemoryRequiresConnection(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryTransport()

	if _, err := mem.EnumerateConversations(ctx); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := mem.TotalMessageCount(ctx, 1); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := mem.StreamMessages(ctx, 1, 0, 0, func(Message) error { return nil }); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestStreamMessagesOrderedAfterResumePoint(t *testing.T) {
	ctx := context.Background()
	mem := seeded(t)
	// Seed out of order; the stream must still come back ascending.
	for _, id := range []int64{5, 2, 9, 7} {
		mem.SeedHistory(1, Message{ConversationID: 1, MessageID: id, SentAt: time.Now().UTC()})
	}

	var got []int64
	err := mem.StreamMessages(ctx, 1, 2, 0, func(msg Message) error {
		got = append(got, msg.MessageID)
		return nil
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	want := []int64{5, 7, 9}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestDeliverFiresHandlersAndRecordsHistory(t *testing.T) {
	ctx := context.Background()
	mem := seeded(t)

	var events []Event
	mem.OnNewMessage(func(_ context.Context, ev Event) {
		events = append(events, ev)
	})

	ev := Event{
		Message:      Message{ConversationID: 7, MessageID: 1, Text: "hi", SentAt: time.Now().UTC()},
		Conversation: Dialog{ConversationID: 7, IsDirect: true, Peer: &Peer{ID: 9, Username: "ada", IsUser: true}},
	}
	mem.Deliver(ctx, ev)

	if len(events) != 1 || events[0].Message.MessageID != 1 {
		t.Fatalf("handler not invoked with event, got %+v", events)
	}
	total, err := mem.TotalMessageCount(ctx, 7)
	if err != nil || total != 1 {
		t.Fatalf("expected delivered message in history, got %d (%v)", total, err)
	}
	// The unknown conversation was seeded so enumeration sees it.
	dialogs, err := mem.EnumerateConversations(ctx)
	if err != nil {
		t.Fatalf("enumerate failed: %v", err)
	}
	if len(dialogs) != 1 || dialogs[0].ConversationID != 7 {
		t.Fatalf("expected auto-seeded dialog, got %+v", dialogs)
	}
}

func TestSeedDialogReplacesByID(t *testing.T) {
	ctx := context.Background()
	mem := seeded(t)

	mem.SeedDialog(Dialog{ConversationID: 1, Title: "old"})
	mem.SeedDialog(Dialog{ConversationID: 1, Title: "new"})
	dialogs, err := mem.EnumerateConversations(ctx)
	if err != nil {
		t.Fatalf("enumerate failed: %v", err)
	}
	if len(dialogs) != 1 || dialogs[0].Title != "new" {
		t.Fatalf("expected single replaced dialog, got %+v", dialogs)
	}
}

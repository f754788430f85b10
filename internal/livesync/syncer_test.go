package livesync

import (
	"context"
	"testing"
	"time"

	"github.com/0xpapercut/telegram-indexer/internal/store"
	"github.com/0xpapercut/telegram-indexer/internal/transport"
)

func newLiveStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New(store.Options{DSN: "sqlite://:memory:", FlushInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("store start failed: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func firstPassClosed(s *Syncer) bool {
	select {
	case <-s.FirstPass():
		return true
	default:
		return false
	}
}

func TestSyncerPassPersistsDialogState(t *testing.T) {
	ctx := context.Background()
	st := newLiveStore(t)
	mem := transport.NewMemoryTransport()
	if err := mem.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	sender := &transport.Peer{ID: 9, Username: "ada", IsUser: true}
	mem.SeedDialog(transport.Dialog{
		ConversationID: 1,
		Title:          "Engineering",
		IsGroup:        true,
		Preview: &transport.Message{
			ConversationID: 1,
			MessageID:      44,
			Sender:         sender,
			Text:           "standup in 5",
			SentAt:         time.Now().UTC(),
		},
		ParticipantCount:    12,
		HasParticipantCount: true,
	})

	syncer := NewSyncer(SyncerOptions{Store: st, Transport: mem})
	syncer.pass(ctx)

	if !firstPassClosed(syncer) {
		t.Fatalf("expected first pass gate to open after a completed pass")
	}
	waitFor(t, "conversation row", func() bool {
		title, err := st.ConversationTitle(ctx, 1)
		return err == nil && title == "Engineering"
	})
	waitFor(t, "preview message row", func() bool {
		count, err := st.PersistedMessageCount(ctx, 1)
		return err == nil && count == 1
	})
	latest, err := st.ConversationLatestMessageIDs(ctx)
	if err != nil {
		t.Fatalf("aggregate query failed: %v", err)
	}
	if ids, ok := latest[1]; !ok || ids.LatestMessageID != 44 {
		t.Fatalf("expected preview message 44 as latest, got %+v", latest)
	}
	if ids := latest[1]; ids.LatestHistoricalMessageID != nil {
		t.Fatalf("preview messages must land as live, got historical %d", *ids.LatestHistoricalMessageID)
	}
}

func TestSyncerDirectDialogTitle(t *testing.T) {
	ctx := context.Background()
	st := newLiveStore(t)
	mem := transport.NewMemoryTransport()
	if err := mem.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	mem.SeedDialog(transport.Dialog{
		ConversationID: 7,
		IsDirect:       true,
		Peer:           &transport.Peer{ID: 9, FirstName: "Ada", LastName: "Lovelace", IsUser: true},
	})

	syncer := NewSyncer(SyncerOptions{Store: st, Transport: mem})
	syncer.pass(ctx)

	waitFor(t, "direct conversation title", func() bool {
		title, err := st.ConversationTitle(ctx, 7)
		return err == nil && title == "Ada Lovelace"
	})
}

func TestSyncerFirstPassWaitsForSuccessfulEnumeration(t *testing.T) {
	ctx := context.Background()
	st := newLiveStore(t)
	mem := transport.NewMemoryTransport()

	syncer := NewSyncer(SyncerOptions{Store: st, Transport: mem})
	// Not connected: the enumeration fails and must not open the gate.
	syncer.pass(ctx)
	if firstPassClosed(syncer) {
		t.Fatalf("first pass gate opened on a failed enumeration")
	}

	if err := mem.Connect(ctx); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	syncer.pass(ctx)
	if !firstPassClosed(syncer) {
		t.Fatalf("expected gate open after successful enumeration")
	}
}

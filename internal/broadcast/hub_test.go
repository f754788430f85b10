package broadcast

import (
	"testing"
	"time"
)

func recv(t *testing.T, c <-chan []byte) []byte {
	t.Helper()
	select {
	case payload := <-c:
		return payload
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for frame")
		return nil
	}
}

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	hub := NewHub(HubOptions{})

	a := hub.Register()
	defer a.Close()
	b := hub.Register()
	defer b.Close()
	if hub.SubscriberCount() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", hub.SubscriberCount())
	}

	hub.Broadcast([]byte(`{"text":"hi"}`))
	for _, sub := range []*Subscription{a, b} {
		if got := string(recv(t, sub.C)); got != `{"text":"hi"}` {
			t.Fatalf("unexpected frame %q", got)
		}
	}
}

func TestCloseUnregisters(t *testing.T) {
	hub := NewHub(HubOptions{})

	sub := hub.Register()
	sub.Close()
	if hub.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers after close, got %d", hub.SubscriberCount())
	}
	// Closing twice is harmless.
	sub.Close()

	hub.Broadcast([]byte("late"))
	select {
	case payload := <-sub.C:
		t.Fatalf("closed subscription received frame %q", payload)
	default:
	}
}

func TestSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	hub := NewHub(HubOptions{SubscriberBuffer: 1})

	slow := hub.Register()
	defer slow.Close()
	fast := hub.Register()
	defer fast.Close()

	// Second frame overflows the slow subscriber's buffer and must not stall
	// delivery to the fast one.
	hub.Broadcast([]byte("one"))
	hub.Broadcast([]byte("two"))

	if got := string(recv(t, fast.C)); got != "one" {
		t.Fatalf("expected frame one, got %q", got)
	}
	if got := string(recv(t, fast.C)); got != "two" {
		t.Fatalf("expected frame two, got %q", got)
	}
	if got := string(recv(t, slow.C)); got != "one" {
		t.Fatalf("expected slow subscriber to keep its buffered frame, got %q", got)
	}
	select {
	case payload := <-slow.C:
		t.Fatalf("overflowed frame was delivered anyway: %q", payload)
	default:
	}
}

func TestNoReplayForLateSubscribers(t *testing.T) {
	hub := NewHub(HubOptions{})

	hub.Broadcast([]byte("before"))
	sub := hub.Register()
	defer sub.Close()

	select {
	case payload := <-sub.C:
		t.Fatalf("late subscriber saw replayed frame %q", payload)
	default:
	}
}

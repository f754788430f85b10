package transport

import (
	"testing"
)

func TestOpenMemoryScheme(t *testing.T) {
	for _, dsn := range []string{"memory://", "mem://", "inmem://"} {
		tr, err := Open(dsn)
		if err != nil {
			t.Fatalf("open %q failed: %v", dsn, err)
		}
		if _, ok := tr.(*MemoryTransport); !ok {
			t.Fatalf("expected memory transport for %q, got %T", dsn, tr)
		}
	}
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	if _, err := Open("carrierpigeon://coop"); err == nil {
		t.Fatalf("expected error for unknown scheme")
	}
	if _, err := Open(""); err == nil {
		t.Fatalf("expected error for empty DSN")
	}
}

func TestRegisterCustomFactory(t *testing.T) {
	marker := NewMemoryTransport()
	var gotDSN string
	Register("scripted", func(dsn string) (Transport, error) {
		gotDSN = dsn
		return marker, nil
	})

	tr, err := Open("scripted://fixture?speed=fast")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if tr != Transport(marker) {
		t.Fatalf("expected factory-built transport, got %T", tr)
	}
	if gotDSN != "scripted://fixture?speed=fast" {
		t.Fatalf("factory received %q", gotDSN)
	}
}

package blobs

import (
	"bytes"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	s := newTestStore(t)

	payload := []byte(`{"request":{"prompt":"hi"},"response":{"text":"hello"}}`)
	id, err := s.Put(payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if id == "" {
		t.Fatalf("empty blob id")
	}

	got, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("Get = %q; want %q", got, payload)
	}

	// distinct puts get distinct ids
	id2, err := s.Put(payload)
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if id2 == id {
		t.Fatalf("blob ids collide: %s", id)
	}
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get("no-such-blob"); err == nil {
		t.Fatalf("Get on missing id succeeded")
	}
}

func TestClosedStore(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.Put([]byte("x")); err == nil {
		t.Fatalf("Put on closed store succeeded")
	}
	if _, err := s.Get("x"); err == nil {
		t.Fatalf("Get on closed store succeeded")
	}
	// closing twice is fine
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

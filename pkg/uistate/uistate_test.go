package uistate

import (
	"bytes"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ui.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSharedState(t *testing.T) {
	s := newTestStore(t)

	got, err := s.LoadShared("conv-1")
	if err != nil {
		t.Fatalf("LoadShared: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for absent state; got %q", got)
	}

	state := []byte(`{"pinned":["msg-1"]}`)
	if err := s.SaveShared("conv-1", state); err != nil {
		t.Fatalf("SaveShared: %v", err)
	}
	got, err = s.LoadShared("conv-1")
	if err != nil {
		t.Fatalf("LoadShared: %v", err)
	}
	if !bytes.Equal(got, state) {
		t.Fatalf("LoadShared = %q; want %q", got, state)
	}
}

func TestUserStateIsolation(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveUser("alice", "conv-1", []byte("a1")); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if err := s.SaveUser("bob", "conv-1", []byte("b1")); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	if err := s.SaveUser("alice", "conv-2", []byte("a2")); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}

	got, err := s.LoadUser("alice", "conv-1")
	if err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	if string(got) != "a1" {
		t.Fatalf("alice/conv-1 = %q", got)
	}
	got, err = s.LoadUser("bob", "conv-1")
	if err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	if string(got) != "b1" {
		t.Fatalf("bob/conv-1 = %q", got)
	}
	got, err = s.LoadUser("bob", "conv-2")
	if err != nil {
		t.Fatalf("LoadUser: %v", err)
	}
	if got != nil {
		t.Fatalf("bob/conv-2 should be absent; got %q", got)
	}
}

func TestBranchReadMarks(t *testing.T) {
	s := newTestStore(t)

	seen, err := s.IsBranchRead("alice", "br-1")
	if err != nil {
		t.Fatalf("IsBranchRead: %v", err)
	}
	if seen {
		t.Fatalf("unread branch reported as read")
	}
	if err := s.MarkBranchRead("alice", "br-1"); err != nil {
		t.Fatalf("MarkBranchRead: %v", err)
	}
	seen, err = s.IsBranchRead("alice", "br-1")
	if err != nil {
		t.Fatalf("IsBranchRead: %v", err)
	}
	if !seen {
		t.Fatalf("marked branch reported as unread")
	}
	// marks are per user
	seen, err = s.IsBranchRead("bob", "br-1")
	if err != nil {
		t.Fatalf("IsBranchRead: %v", err)
	}
	if seen {
		t.Fatalf("read mark leaked across users")
	}
}

func TestBranchSeqMonotonic(t *testing.T) {
	s := newTestStore(t)

	for want := uint64(1); want <= 3; want++ {
		got, err := s.NextBranchSeq("conv-1")
		if err != nil {
			t.Fatalf("NextBranchSeq: %v", err)
		}
		if got != want {
			t.Fatalf("NextBranchSeq = %d; want %d", got, want)
		}
	}
	cur, err := s.CurrentBranchSeq("conv-1")
	if err != nil {
		t.Fatalf("CurrentBranchSeq: %v", err)
	}
	if cur != 3 {
		t.Fatalf("CurrentBranchSeq = %d; want 3", cur)
	}
	// independent per conversation
	cur, err = s.CurrentBranchSeq("conv-2")
	if err != nil {
		t.Fatalf("CurrentBranchSeq: %v", err)
	}
	if cur != 0 {
		t.Fatalf("fresh conversation counter = %d; want 0", cur)
	}
}

func TestBackfillNeverLowers(t *testing.T) {
	s := newTestStore(t)

	if err := s.BackfillBranchSeq("conv-1", 5); err != nil {
		t.Fatalf("BackfillBranchSeq: %v", err)
	}
	cur, err := s.CurrentBranchSeq("conv-1")
	if err != nil {
		t.Fatalf("CurrentBranchSeq: %v", err)
	}
	if cur != 5 {
		t.Fatalf("backfilled counter = %d; want 5", cur)
	}

	// lower floor is a no-op
	if err := s.BackfillBranchSeq("conv-1", 2); err != nil {
		t.Fatalf("BackfillBranchSeq: %v", err)
	}
	cur, _ = s.CurrentBranchSeq("conv-1")
	if cur != 5 {
		t.Fatalf("backfill lowered counter to %d", cur)
	}

	// next increment continues from the floor
	next, err := s.NextBranchSeq("conv-1")
	if err != nil {
		t.Fatalf("NextBranchSeq: %v", err)
	}
	if next != 6 {
		t.Fatalf("NextBranchSeq after backfill = %d; want 6", next)
	}
}

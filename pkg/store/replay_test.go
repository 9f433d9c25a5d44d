package store

import (
	"os"
	"reflect"
	"strings"
	"testing"

	"branchdb/pkg/models"
	"branchdb/pkg/recordlog"
	"branchdb/pkg/records"
)

// TestReplayRoundTrip drives a representative mix of mutations, reopens the
// store over the same directory, and checks the replayed index matches the
// live one.
func TestReplayRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c, msgs := seedLinear(t, s, 3, "a", "b", "c")
	if err := s.SetTitle(c.ID, "renamed"); err != nil {
		t.Fatalf("SetTitle: %v", err)
	}
	alt, err := s.AddBranch(msgs[1].ID, BranchInput{Content: "alt", Role: models.RoleAssistant, ParentBranchID: msgs[0].ActiveBranchID}, true)
	if err != nil {
		t.Fatalf("AddBranch: %v", err)
	}
	if err := s.UpdateBranchContent(msgs[1].ID, alt.ID, "alt v2", nil, nil); err != nil {
		t.Fatalf("UpdateBranchContent: %v", err)
	}
	if _, err := s.DeleteBranch(msgs[2].ID, msgs[2].ActiveBranchID); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}

	want := s.Messages(c.ID)
	wantConv := s.Conversation(c.ID)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })

	got := s2.Messages(c.ID)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("replayed messages differ\n got: %+v\nwant: %+v", got, want)
	}
	gotConv := s2.Conversation(c.ID)
	if gotConv == nil || gotConv.Title != wantConv.Title || gotConv.BranchCount != wantConv.BranchCount {
		t.Fatalf("replayed conversation differs: %+v vs %+v", gotConv, wantConv)
	}
}

// TestReplayDeleteCascade checks a logged deletion replays its full cascade
// rather than only the named branch.
func TestReplayDeleteCascade(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c, msgs := seedLinear(t, s, 3, "a", "b", "c")
	removed, err := s.DeleteBranch(msgs[0].ID, msgs[0].ActiveBranchID)
	if err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	if len(removed) != 3 {
		t.Fatalf("live cascade removed %d messages; want 3", len(removed))
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })
	if got := len(s2.Messages(c.ID)); got != 0 {
		t.Fatalf("replay left %d messages after cascade; want 0", got)
	}
}

// TestReplaySkipsCorruptLine plants a garbage line mid-file; the line stays
// in the file, replay skips it, and everything around it still applies.
func TestReplaySkipsCorruptLine(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c, msgs := seedLinear(t, s, 1, "before")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	path := recordlog.ShardedPath(dir, c.ID)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("@@corrupt@@\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen with corrupt line: %v", err)
	}
	if _, err := s2.AddMessage(c.ID, BranchInput{Content: "after", Role: models.RoleAssistant, ParentBranchID: msgs[0].ActiveBranchID}); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if err := s2.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s3, err := Open(dir)
	if err != nil {
		t.Fatalf("second reopen: %v", err)
	}
	t.Cleanup(func() { _ = s3.Close() })
	if got := len(s3.Messages(c.ID)); got != 2 {
		t.Fatalf("replayed %d messages; want 2", got)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "@@corrupt@@") {
		t.Fatalf("corrupt line no longer retained in the file")
	}
}

// TestReplayIgnoresUnknownType writes a record with a type outside the
// closed set; replay must ignore it without disturbing the rest.
func TestReplayIgnoresUnknownType(t *testing.T) {
	dir := t.TempDir()
	l, err := recordlog.Open(dir)
	if err != nil {
		t.Fatalf("recordlog.Open: %v", err)
	}
	const convID = "conv-unknown"
	writeRec(t, l, convID, records.TypeConversationCreated, records.ConversationCreated{
		Conversation: models.Conversation{ID: convID, Owner: "alice", CreatedTS: 1},
	})
	writeRec(t, l, convID, "conversation_starred", map[string]any{"conversation_id": convID})
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if s.Conversation(convID) == nil {
		t.Fatalf("conversation lost around unknown record type")
	}
}

// TestReplayMessageOrder verifies a logged reorder survives replay.
func TestReplayMessageOrder(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	c, msgs := seedLinear(t, s, 3, "a", "b", "c")
	if err := s.SetMessageOrder(c.ID, []string{msgs[2].ID, msgs[0].ID, msgs[1].ID}); err != nil {
		t.Fatalf("SetMessageOrder: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })
	got := s2.Messages(c.ID)
	want := []string{msgs[2].ID, msgs[0].ID, msgs[1].ID}
	for i := range want {
		if got[i].ID != want[i] {
			t.Fatalf("order[%d] = %s; want %s", i, got[i].ID, want[i])
		}
	}
}

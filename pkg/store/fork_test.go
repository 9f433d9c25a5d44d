package store

import (
	"errors"
	"strings"
	"testing"

	"branchdb/pkg/models"
	"branchdb/pkg/recordlog"
	"branchdb/pkg/records"
)

func TestForkFull(t *testing.T) {
	s := newTestStore(t)
	c, msgs := seedLinear(t, s, 3, "one", "two", "three")

	fc, err := s.ForkConversation(c.ID, msgs[2].ActiveBranchID, ForkFull, "alice")
	if err != nil {
		t.Fatalf("ForkConversation: %v", err)
	}
	if fc.Title != "Fork of test" {
		t.Fatalf("fork title = %q", fc.Title)
	}
	fm := s.Messages(fc.ID)
	if len(fm) != 3 {
		t.Fatalf("full fork has %d messages; want 3", len(fm))
	}
	if got := fm[0].ActiveBranch().ParentBranchID; got != models.RootParent {
		t.Fatalf("fork root parent = %q; want canonical sentinel", got)
	}
	for i := 1; i < len(fm); i++ {
		if fm[i].ActiveBranch().ParentBranchID != fm[i-1].ActiveBranchID {
			t.Fatalf("fork chain broken at message %d", i)
		}
	}
	// ids must be fresh, never shared with the source
	for i := range fm {
		if fm[i].ID == msgs[i].ID || fm[i].ActiveBranchID == msgs[i].ActiveBranchID {
			t.Fatalf("fork reused source ids at %d", i)
		}
	}
}

func TestForkTruncated(t *testing.T) {
	s := newTestStore(t)
	c, msgs := seedLinear(t, s, 3, "one", "two", "three")

	fc, err := s.ForkConversation(c.ID, msgs[2].ActiveBranchID, ForkTruncated, "alice")
	if err != nil {
		t.Fatalf("ForkConversation: %v", err)
	}
	fm := s.Messages(fc.ID)
	if len(fm) != 1 {
		t.Fatalf("truncated fork has %d messages; want 1", len(fm))
	}
	if fm[0].ActiveBranch().Content != "three" {
		t.Fatalf("truncated fork kept %q", fm[0].ActiveBranch().Content)
	}
	if !fm[0].ActiveBranch().IsRoot() {
		t.Fatalf("truncated fork leaf not rooted")
	}
}

func TestForkCompressed(t *testing.T) {
	s := newTestStore(t)
	c, msgs := seedLinear(t, s, 3, "one", "two", "three")

	fc, err := s.ForkConversation(c.ID, msgs[2].ActiveBranchID, ForkCompressed, "alice")
	if err != nil {
		t.Fatalf("ForkConversation: %v", err)
	}
	fm := s.Messages(fc.ID)
	if len(fm) != 1 {
		t.Fatalf("compressed fork has %d messages; want 1", len(fm))
	}
	b := fm[0].ActiveBranch()
	if b.Content != "three" {
		t.Fatalf("compressed fork kept %q", b.Content)
	}
	if !strings.Contains(b.PrefixHistory, "user: one") || !strings.Contains(b.PrefixHistory, "assistant: two") {
		t.Fatalf("prefix history missing ancestors: %q", b.PrefixHistory)
	}
	if strings.Contains(b.PrefixHistory, "three") {
		t.Fatalf("prefix history includes the leaf itself: %q", b.PrefixHistory)
	}
}

func TestForkOwnerMismatch(t *testing.T) {
	s := newTestStore(t)
	c, msgs := seedLinear(t, s, 1, "one")

	_, err := s.ForkConversation(c.ID, msgs[0].ActiveBranchID, ForkFull, "mallory")
	if !errors.Is(err, ErrInvalidOperation) {
		t.Fatalf("owner mismatch: got %v; want ErrInvalidOperation", err)
	}
}

func TestDuplicateLastMessages(t *testing.T) {
	s := newTestStore(t)
	c, msgs := seedLinear(t, s, 5, "m1", "m2", "m3", "m4", "m5")

	dc, err := s.DuplicateConversation(c.ID, DuplicateOptions{LastMessages: 2})
	if err != nil {
		t.Fatalf("DuplicateConversation: %v", err)
	}
	dm := s.Messages(dc.ID)
	if len(dm) != 2 {
		t.Fatalf("trimmed duplicate has %d messages; want 2", len(dm))
	}
	for i, want := range []string{"m4", "m5"} {
		if len(dm[i].Branches) != 1 {
			t.Fatalf("message %d has %d branches; want 1", i, len(dm[i].Branches))
		}
		if got := dm[i].ActiveBranch().Content; got != want {
			t.Fatalf("message %d content = %q; want %q", i, got, want)
		}
	}
	if !dm[0].ActiveBranch().IsRoot() {
		t.Fatalf("trimmed duplicate root not rewired to sentinel")
	}
	// source untouched
	if got := len(s.Messages(c.ID)); got != len(msgs) {
		t.Fatalf("source mutated: %d messages", got)
	}
}

func TestDuplicateLastMessagesExceedsLength(t *testing.T) {
	s := newTestStore(t)
	c, _ := seedLinear(t, s, 5, "m1", "m2", "m3", "m4", "m5")

	dc, err := s.DuplicateConversation(c.ID, DuplicateOptions{LastMessages: 100})
	if err != nil {
		t.Fatalf("DuplicateConversation: %v", err)
	}
	if got := len(s.Messages(dc.ID)); got != 5 {
		t.Fatalf("duplicate has %d messages; want all 5", got)
	}
}

func TestDuplicateFullCopiesAlternateBranches(t *testing.T) {
	s := newTestStore(t)
	c, msgs := seedLinear(t, s, 2, "m1", "m2")
	if _, err := s.AddBranch(msgs[0].ID, BranchInput{Content: "alt", Role: models.RoleUser}, true); err != nil {
		t.Fatalf("AddBranch: %v", err)
	}

	dc, err := s.DuplicateConversation(c.ID, DuplicateOptions{Title: "copy"})
	if err != nil {
		t.Fatalf("DuplicateConversation: %v", err)
	}
	if dc.Title != "copy" {
		t.Fatalf("duplicate title = %q", dc.Title)
	}
	dm := s.Messages(dc.ID)
	if len(dm) != 2 {
		t.Fatalf("duplicate has %d messages; want 2", len(dm))
	}
	if len(dm[0].Branches) != 2 {
		t.Fatalf("alternate branch dropped from full copy: %d branches", len(dm[0].Branches))
	}
	// parent pointers remapped into the copy's id space
	child := dm[1].ActiveBranch()
	if child.ParentBranchID != dm[0].ActiveBranchID {
		t.Fatalf("duplicate parent pointer not remapped: %q", child.ParentBranchID)
	}
}

// TestDuplicateTrimFallback seeds a log whose root branch carries a parent
// id that never resolves. Trimming requires a canonically rooted path, so
// the duplicate must fall back to a full structural copy instead of
// silently doing nothing.
func TestDuplicateTrimFallback(t *testing.T) {
	dir := t.TempDir()
	l, err := recordlog.Open(dir)
	if err != nil {
		t.Fatalf("recordlog.Open: %v", err)
	}
	conv := models.Conversation{ID: "conv-dangling", Owner: "alice", Title: "orphan", CreatedTS: 1}
	rec, err := records.New(records.TypeConversationCreated, records.ConversationCreated{Conversation: conv})
	if err != nil {
		t.Fatalf("records.New: %v", err)
	}
	if err := l.Append(conv.ID, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	msg := models.Message{
		ID:             "msg-1",
		Conversation:   conv.ID,
		Order:          1,
		ActiveBranchID: "br-1",
		Branches: []models.Branch{{
			ID:             "br-1",
			Content:        "adrift",
			Role:           models.RoleUser,
			ParentBranchID: "br-ghost",
		}},
	}
	rec, err = records.New(records.TypeMessageCreated, records.MessageCreated{Message: msg})
	if err != nil {
		t.Fatalf("records.New: %v", err)
	}
	if err := l.Append(conv.ID, rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	dc, err := s.DuplicateConversation(conv.ID, DuplicateOptions{LastMessages: 1})
	if err != nil {
		t.Fatalf("DuplicateConversation: %v", err)
	}
	dm := s.Messages(dc.ID)
	if len(dm) != 1 {
		t.Fatalf("fallback copy has %d messages; want 1", len(dm))
	}
	// full copy preserves the dangling parent rather than rewiring it
	if got := dm[0].ActiveBranch().ParentBranchID; got != "br-ghost" {
		t.Fatalf("fallback rewired parent to %q", got)
	}
}

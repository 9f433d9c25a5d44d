package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"branchdb/pkg/models"
	"branchdb/pkg/recordlog"
	"branchdb/pkg/records"
)

func TestConversationArchiveStats(t *testing.T) {
	s := newTestStore(t)
	c, msgs := seedLinear(t, s, 3, "a", "b", "c")

	// an alternate branch and one deletion to exercise every counter
	alt, err := s.AddBranch(msgs[1].ID, BranchInput{Content: "alt", Role: models.RoleAssistant, ParentBranchID: msgs[0].ActiveBranchID}, true)
	assert.NoError(t, err)
	removed, err := s.DeleteBranch(msgs[1].ID, alt.ID)
	assert.NoError(t, err)
	assert.Empty(t, removed)

	st, err := s.GetConversationArchive(c.ID)
	assert.NoError(t, err)
	assert.Equal(t, 3, st.TotalMessages)
	// 3 live branches plus the deleted alternate
	assert.Equal(t, 4, st.TotalBranches)
	assert.Equal(t, 3, st.ActiveBranches)
	assert.Equal(t, 0, st.OrphanedBranches)
	assert.Equal(t, 1, st.DeletedBranches)
}

func TestArchiveIncludesTombstonedMessages(t *testing.T) {
	s := newTestStore(t)
	c, msgs := seedLinear(t, s, 2, "a", "b")

	removed, err := s.DeleteBranch(msgs[1].ID, msgs[1].ActiveBranchID)
	assert.NoError(t, err)
	assert.Equal(t, []string{msgs[1].ID}, removed)

	st, err := s.GetConversationArchive(c.ID)
	assert.NoError(t, err)
	// the tombstoned message still counts toward history
	assert.Equal(t, 2, st.TotalMessages)
	assert.Equal(t, 2, st.TotalBranches)
	assert.Equal(t, 1, st.ActiveBranches)
	assert.Equal(t, 1, st.DeletedBranches)
}

// TestArchiveCountsOrphans replays a legacy log whose branch parent never
// resolves; mutation paths reject such parents, so replay is the only way
// orphans enter the index.
func TestArchiveCountsOrphans(t *testing.T) {
	dir := t.TempDir()
	l, err := recordlog.Open(dir)
	assert.NoError(t, err)
	const convID = "conv-orphan"
	writeRec(t, l, convID, records.TypeConversationCreated, records.ConversationCreated{
		Conversation: models.Conversation{ID: convID, Owner: "alice", CreatedTS: 1},
	})
	writeRec(t, l, convID, records.TypeMessageCreated, records.MessageCreated{
		Message: models.Message{
			ID: "msg-1", Conversation: convID, Order: 1, ActiveBranchID: "br-1",
			Branches: []models.Branch{{ID: "br-1", Content: "adrift", Role: models.RoleUser, ParentBranchID: "br-ghost"}},
		},
	})
	assert.NoError(t, l.Close())

	s, err := Open(dir)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	st, err := s.GetConversationArchive(convID)
	assert.NoError(t, err)
	assert.Equal(t, 1, st.OrphanedBranches)
	assert.Equal(t, 1, st.TotalMessages)
}

func TestArchiveUnknownConversation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetConversationArchive("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestArchivedConversationHiddenFromReads(t *testing.T) {
	s := newTestStore(t)
	c, _ := seedLinear(t, s, 1, "a")

	assert.NoError(t, s.ArchiveConversation(c.ID))
	assert.Nil(t, s.Conversation(c.ID))
	assert.Empty(t, s.ListConversations())
	// archive stats remain reachable for audit
	st, err := s.GetConversationArchive(c.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, st.TotalMessages)

	// archiving twice is a no-op
	assert.NoError(t, s.ArchiveConversation(c.ID))
}

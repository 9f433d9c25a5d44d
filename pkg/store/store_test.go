package store

import (
	"testing"

	"branchdb/pkg/models"
)

// newTestStore opens a store over a fresh temp dir.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// seedLinear creates a conversation with n user/assistant messages chained
// along a single branch path rooted at the canonical sentinel. Returns the
// conversation and the messages in order.
func seedLinear(t *testing.T, s *Store, n int, contents ...string) (*models.Conversation, []models.Message) {
	t.Helper()
	c, err := s.CreateConversation("alice", "test", false)
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	parent := models.RootParent
	for i := 0; i < n; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		content := ""
		if i < len(contents) {
			content = contents[i]
		}
		m, err := s.AddMessage(c.ID, BranchInput{Content: content, Role: role, ParentBranchID: parent})
		if err != nil {
			t.Fatalf("AddMessage %d: %v", i, err)
		}
		parent = m.ActiveBranchID
	}
	return c, s.Messages(c.ID)
}

package store

import "branchdb/pkg/models"

// ArchiveStats summarizes a conversation's full history, including
// soft-deleted messages and branches retained for audit.
type ArchiveStats struct {
	TotalMessages int `json:"total_messages"`
	TotalBranches int `json:"total_branches"`
	// ActiveBranches counts live messages with a resolving active pointer
	// (at most one per live message).
	ActiveBranches int `json:"active_branches"`
	// OrphanedBranches counts branches whose parent reference does not
	// resolve to any live branch.
	OrphanedBranches int `json:"orphaned_branches"`
	DeletedBranches  int `json:"deleted_branches"`
}

// GetConversationArchive walks every message and branch of a conversation,
// live and tombstoned, and reports aggregate stats.
func (s *Store) GetConversationArchive(convID string) (*ArchiveStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.convs[convID]; !ok {
		return nil, ErrNotFound
	}

	st := &ArchiveStats{}
	for _, id := range s.byConv[convID] {
		m := s.msgs[id]
		st.TotalMessages++
		st.TotalBranches += len(m.Branches)
		if m.ActiveBranch() != nil {
			st.ActiveBranches++
		}
		for i := range m.Branches {
			if s.orphanedLocked(&m.Branches[i]) {
				st.OrphanedBranches++
			}
		}
	}

	tombs := s.tombstones[convID]
	st.TotalMessages += len(tombs)
	for i := range tombs {
		st.TotalBranches += len(tombs[i].Branches)
	}
	dead := s.deletedBranches[convID]
	st.TotalBranches += len(dead)
	st.DeletedBranches = len(dead)

	return st, nil
}

func (s *Store) orphanedLocked(b *models.Branch) bool {
	if b.ParentBranchID == models.RootParent {
		return false
	}
	_, ok := s.branchOwner[b.ParentBranchID]
	return !ok
}

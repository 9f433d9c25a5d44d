package store

import (
	"branchdb/pkg/logger"
	"branchdb/pkg/uistate"
)

// BackfillCounters raises the collaborator store's monotonic branch
// counters to each conversation's cached branch count. Run after replay so
// UI-state counters catch up with logs that advanced while the
// collaborator store was offline. Read-only with respect to the index.
func (s *Store) BackfillCounters(us *uistate.Store) error {
	s.mu.RLock()
	counts := make(map[string]uint64, len(s.convs))
	for id, c := range s.convs {
		counts[id] = uint64(c.BranchCount)
	}
	s.mu.RUnlock()

	for id, n := range counts {
		if n == 0 {
			continue
		}
		if err := us.BackfillBranchSeq(id, n); err != nil {
			return err
		}
	}
	logger.Debug("counters_backfilled", "conversations", len(counts))
	return nil
}

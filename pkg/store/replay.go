package store

import (
	"encoding/json"

	"branchdb/pkg/logger"
	"branchdb/pkg/records"
)

// apply folds one replayed record into the index. The switch is exhaustive
// over the closed event set; unknown types are counted and ignored so newer
// logs replay on older binaries.
func (s *Store) apply(rec records.Record) {
	switch rec.Type {
	case records.TypeConversationCreated:
		var p records.ConversationCreated
		if !decode(rec, &p) {
			return
		}
		c := p.Conversation
		s.convs[c.ID] = &c

	case records.TypeConversationArchived:
		var p records.ConversationArchived
		if !decode(rec, &p) {
			return
		}
		if c, ok := s.convs[p.ConversationID]; ok {
			c.ArchivedTS = p.ArchivedTS
		}

	case records.TypeConversationTitleChanged:
		var p records.ConversationTitleChanged
		if !decode(rec, &p) {
			return
		}
		if c, ok := s.convs[p.ConversationID]; ok {
			c.Title = p.Title
		}

	case records.TypeMessageCreated:
		var p records.MessageCreated
		if !decode(rec, &p) {
			return
		}
		m := p.Message
		s.insertMessageLocked(&m)
		for i := range m.Branches {
			s.bumpBranchCountLocked(m.Conversation, m.Branches[i].Role, 1)
		}

	case records.TypeMessageBranchAdded:
		var p records.MessageBranchAdded
		if !decode(rec, &p) {
			return
		}
		s.addBranchLocked(p.MessageID, p.Branch, p.PreserveActive)

	case records.TypeMessageBranchUpdated:
		var p records.MessageBranchUpdated
		if !decode(rec, &p) {
			return
		}
		s.updateBranchLocked(p)

	case records.TypeMessageBranchDeleted:
		var p records.MessageBranchDeleted
		if !decode(rec, &p) {
			return
		}
		// the cascade is re-derived from the index, not read from the
		// recorded removal set, so replay stays deterministic even
		// against logs written by older cascade logic
		s.deleteBranchLocked(p.MessageID, p.BranchID)

	case records.TypeMessageBranchRestored:
		var p records.MessageBranchRestored
		if !decode(rec, &p) {
			return
		}
		s.restoreBranchLocked(p.ConversationID, p.MessageID, p.MessageOrder, p.Branch)

	case records.TypeActiveBranchChanged:
		var p records.ActiveBranchChanged
		if !decode(rec, &p) {
			return
		}
		if m, ok := s.msgs[p.MessageID]; ok && m.Branch(p.BranchID) != nil {
			m.ActiveBranchID = p.BranchID
		}

	case records.TypeMessageOrderChanged:
		var p records.MessageOrderChanged
		if !decode(rec, &p) {
			return
		}
		s.reorderLocked(p.ConversationID, p.MessageIDs)

	default:
		recordsIgnored.Inc()
		logger.Debug("replay_unknown_type", "type", rec.Type)
	}
}

func decode(rec records.Record, into any) bool {
	if err := json.Unmarshal(rec.Data, into); err != nil {
		logger.Warn("replay_bad_payload", "type", rec.Type, "error", err)
		return false
	}
	return true
}

// reorderLocked applies a display-order change. Ids absent from the index
// are skipped; messages not named keep their relative order after the
// named ones.
func (s *Store) reorderLocked(convID string, ids []string) {
	seen := map[string]struct{}{}
	ordered := make([]string, 0, len(s.byConv[convID]))
	for _, id := range ids {
		if _, ok := s.msgs[id]; ok {
			ordered = append(ordered, id)
			seen[id] = struct{}{}
		}
	}
	for _, id := range s.byConv[convID] {
		if _, ok := seen[id]; !ok {
			ordered = append(ordered, id)
		}
	}
	for i, id := range ordered {
		s.msgs[id].Order = i + 1
	}
	s.byConv[convID] = ordered
}

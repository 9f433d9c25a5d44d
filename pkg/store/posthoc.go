package store

import (
	"sort"

	"branchdb/pkg/models"
)

// ResolveMessages returns the conversation's ordered messages with every
// post-hoc operation applied: hidden entries removed, edited or
// attachment-filtered entries rewritten. Carrier messages (those whose
// branches exist only to hold an operation) are excluded from the output.
// The stored records and index are never touched; callers get clones.
func (s *Store) ResolveMessages(convID string) ([]models.Message, error) {
	s.mu.RLock()
	msgs := s.messagesLocked(convID)
	_, ok := s.convs[convID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return ResolvePostHoc(msgs), nil
}

type postHocCarrier struct {
	order int
	op    models.PostHocOperation
}

// ResolvePostHoc applies post-hoc operations to an ordered message list.
// Operations apply in message order, so a later operation can reverse or
// override an earlier one on the same target.
func ResolvePostHoc(msgs []models.Message) []models.Message {
	var carriers []postHocCarrier
	carrierMsgs := map[string]struct{}{}
	for i := range msgs {
		for j := range msgs[i].Branches {
			if op := msgs[i].Branches[j].PostHoc; op != nil {
				carriers = append(carriers, postHocCarrier{order: msgs[i].Order, op: *op})
				carrierMsgs[msgs[i].ID] = struct{}{}
			}
		}
	}
	if len(carriers) == 0 {
		return msgs
	}
	sort.SliceStable(carriers, func(i, j int) bool { return carriers[i].order < carriers[j].order })

	orderOf := map[string]int{}
	for i := range msgs {
		orderOf[msgs[i].ID] = msgs[i].Order
	}

	hidden := map[string]bool{}
	edits := map[string][]models.ContentBlock{}
	dropAttachments := map[string]map[int]struct{}{}

	for _, c := range carriers {
		switch c.op.Kind {
		case models.PostHocHide:
			hidden[c.op.TargetMessageID] = true
		case models.PostHocUnhide:
			delete(hidden, c.op.TargetMessageID)
		case models.PostHocHideBefore:
			cutoff, ok := orderOf[c.op.TargetMessageID]
			if !ok {
				continue
			}
			for id, ord := range orderOf {
				if ord < cutoff {
					hidden[id] = true
				}
			}
		case models.PostHocEdit:
			edits[c.op.TargetMessageID] = c.op.Blocks
		case models.PostHocHideAttachment:
			set, ok := dropAttachments[c.op.TargetMessageID]
			if !ok {
				set = map[int]struct{}{}
				dropAttachments[c.op.TargetMessageID] = set
			}
			for _, idx := range c.op.AttachmentIndices {
				set[idx] = struct{}{}
			}
		}
	}

	out := make([]models.Message, 0, len(msgs))
	for i := range msgs {
		m := msgs[i]
		if _, isCarrier := carrierMsgs[m.ID]; isCarrier {
			continue
		}
		if hidden[m.ID] {
			continue
		}
		blocks, edited := edits[m.ID]
		drops := dropAttachments[m.ID]
		if !edited && len(drops) == 0 {
			out = append(out, m)
			continue
		}
		m = m.Clone()
		if b := m.ActiveBranch(); b != nil {
			if edited {
				b.Blocks = append([]models.ContentBlock(nil), blocks...)
				b.Content = flattenBlocks(blocks)
			}
			if len(drops) > 0 {
				kept := b.Attachments[:0:0]
				for idx, a := range b.Attachments {
					if _, drop := drops[idx]; drop {
						continue
					}
					kept = append(kept, a)
				}
				b.Attachments = kept
			}
		}
		out = append(out, m)
	}
	return out
}

func flattenBlocks(blocks []models.ContentBlock) string {
	var out string
	for _, b := range blocks {
		if b.Text == "" {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += b.Text
	}
	return out
}

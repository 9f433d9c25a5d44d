package store

import (
	"fmt"
	"strings"
	"time"

	"branchdb/pkg/logger"
	"branchdb/pkg/models"
	"branchdb/pkg/records"
	"branchdb/pkg/utils"
)

// ForkMode selects how much ancestor history a fork materializes.
type ForkMode string

const (
	// ForkFull preserves the complete ancestor chain as real messages.
	ForkFull ForkMode = "full"
	// ForkTruncated discards history before the fork point entirely.
	ForkTruncated ForkMode = "truncated"
	// ForkCompressed collapses ancestor history into a single synthetic
	// prefix-history summary attached to the first real message.
	ForkCompressed ForkMode = "compressed"
)

// pathElem pairs a message with the branch the active path runs through.
type pathElem struct {
	msg    *models.Message
	branch *models.Branch
}

// ForkConversation materializes a new conversation from the ancestor chain
// of the target branch. The requester must own the source conversation;
// ownership is checked explicitly and a mismatch is an invalid operation.
func (s *Store) ForkConversation(convID, branchID string, mode ForkMode, requester string) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.convs[convID]
	if !ok || src.Archived() {
		return nil, ErrNotFound
	}
	if requester != "" && requester != src.Owner {
		return nil, fmt.Errorf("%w: requester %s does not own conversation %s", ErrInvalidOperation, requester, convID)
	}
	ownerID, ok := s.branchOwner[branchID]
	if !ok {
		return nil, ErrNotFound
	}
	tm := s.msgs[ownerID]
	if tm.Conversation != convID {
		return nil, fmt.Errorf("%w: branch %s belongs to another conversation", ErrInvalidOperation, branchID)
	}

	chain, err := s.ancestorChainLocked(tm, tm.Branch(branchID))
	if err != nil {
		return nil, err
	}

	title := src.Title
	if title != "" {
		title = "Fork of " + title
	}
	nc, err := s.newConversationLocked(src.Owner, title, src.Multiplayer)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ForkFull:
		if err := s.copyChainLocked(nc.ID, chain); err != nil {
			return nil, err
		}
	case ForkTruncated:
		leaf := chain[len(chain)-1]
		if err := s.copyChainLocked(nc.ID, []pathElem{leaf}); err != nil {
			return nil, err
		}
	case ForkCompressed:
		leaf := chain[len(chain)-1]
		summary := summarizeChain(chain[:len(chain)-1])
		if err := s.copyChainCompressedLocked(nc.ID, leaf, summary); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown fork mode %q", ErrInvalidOperation, mode)
	}

	logger.Info("conversation_forked", "source", convID, "fork", nc.ID, "mode", string(mode), "depth", len(chain))
	cp := *s.convs[nc.ID]
	return &cp, nil
}

// DuplicateOptions controls DuplicateConversation.
type DuplicateOptions struct {
	// LastMessages trims the duplicate to the last N messages along the
	// active path. Zero means a full structural copy.
	LastMessages int
	Title        string
}

// DuplicateConversation copies a conversation. With LastMessages set the
// copy is trimmed to the last N messages along the active path, one linear
// branch per message; private and alternate branches are dropped. Trimming
// requires the path's root branch to use the canonical no-parent sentinel;
// otherwise the duplicate falls back to a full structural copy (logged,
// never a silent no-op).
func (s *Store) DuplicateConversation(convID string, opts DuplicateOptions) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.convs[convID]
	if !ok || src.Archived() {
		return nil, ErrNotFound
	}

	title := opts.Title
	if title == "" {
		title = src.Title
	}

	if opts.LastMessages > 0 {
		path, err := s.activePathLocked(convID)
		if err != nil {
			return nil, err
		}
		if len(path) > 0 && path[0].branch.IsRoot() {
			if len(path) > opts.LastMessages {
				path = path[len(path)-opts.LastMessages:]
			}
			nc, err := s.newConversationLocked(src.Owner, title, src.Multiplayer)
			if err != nil {
				return nil, err
			}
			if err := s.copyChainLocked(nc.ID, path); err != nil {
				return nil, err
			}
			logger.Info("conversation_duplicated", "source", convID, "duplicate", nc.ID, "trimmed_to", len(path))
			cp := *s.convs[nc.ID]
			return &cp, nil
		}
		logger.Warn("duplicate_trim_fallback", "conversation", convID, "reason", "no canonical-sentinel root on active path")
	}

	nc, err := s.newConversationLocked(src.Owner, title, src.Multiplayer)
	if err != nil {
		return nil, err
	}
	if err := s.copyFullLocked(nc.ID, convID); err != nil {
		return nil, err
	}
	logger.Info("conversation_duplicated", "source", convID, "duplicate", nc.ID, "trimmed_to", 0)
	cp := *s.convs[nc.ID]
	return &cp, nil
}

// newConversationLocked creates and logs a conversation while the store
// lock is already held.
func (s *Store) newConversationLocked(owner, title string, multiplayer bool) (*models.Conversation, error) {
	c := models.Conversation{
		ID:          utils.GenConversationID(),
		Owner:       owner,
		Title:       title,
		Multiplayer: multiplayer,
		CreatedTS:   time.Now().UTC().UnixNano(),
	}
	s.convs[c.ID] = &c
	if err := s.append(c.ID, records.TypeConversationCreated, records.ConversationCreated{Conversation: c}); err != nil {
		delete(s.convs, c.ID)
		return nil, err
	}
	return &c, nil
}

// ancestorChainLocked walks parent pointers from the given branch back to
// the root, returning elements ordered root first. Iterative with a
// visited guard; a cycle is rejected as an invalid operation.
func (s *Store) ancestorChainLocked(m *models.Message, b *models.Branch) ([]pathElem, error) {
	var rev []pathElem
	visited := map[string]struct{}{}
	for {
		if _, seen := visited[b.ID]; seen {
			return nil, fmt.Errorf("%w: cycle in branch ancestry at %s", ErrInvalidOperation, b.ID)
		}
		visited[b.ID] = struct{}{}
		rev = append(rev, pathElem{msg: m, branch: b})

		parent := b.ParentBranchID
		if parent == models.RootParent {
			break
		}
		ownerID, ok := s.branchOwner[parent]
		if !ok {
			// dangling parent: treat the last resolvable element as root
			logger.Warn("ancestor_chain_dangling_parent", "branch", parent)
			break
		}
		m = s.msgs[ownerID]
		b = m.Branch(parent)
	}
	out := make([]pathElem, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		out = append(out, rev[i])
	}
	return out, nil
}

// activePathLocked resolves the chain of active branches from conversation
// root to the deepest message.
func (s *Store) activePathLocked(convID string) ([]pathElem, error) {
	ids := s.byConv[convID]
	if len(ids) == 0 {
		return nil, nil
	}
	deepest := s.msgs[ids[len(ids)-1]]
	leaf := deepest.ActiveBranch()
	if leaf == nil {
		return nil, nil
	}
	return s.ancestorChainLocked(deepest, leaf)
}

// copyChainLocked materializes a linear chain as real messages in the
// target conversation, one branch per message, parents rewired to the new
// branch ids and the first message rooted at the canonical sentinel.
func (s *Store) copyChainLocked(convID string, chain []pathElem) error {
	prevBranch := models.RootParent
	for i, el := range chain {
		nb := el.branch.Clone()
		nb.ID = utils.GenBranchID()
		nb.ParentBranchID = prevBranch
		nm := models.Message{
			ID:             utils.GenMessageID(),
			Conversation:   convID,
			Order:          i + 1,
			ActiveBranchID: nb.ID,
			Branches:       []models.Branch{nb},
		}
		s.insertMessageLocked(&nm)
		s.bumpBranchCountLocked(convID, nb.Role, 1)
		if err := s.append(convID, records.TypeMessageCreated, records.MessageCreated{Message: nm}); err != nil {
			return err
		}
		prevBranch = nb.ID
	}
	return nil
}

// copyChainCompressedLocked writes a single message holding the fork leaf
// with the ancestor history collapsed into its prefix-history summary.
func (s *Store) copyChainCompressedLocked(convID string, leaf pathElem, summary string) error {
	nb := leaf.branch.Clone()
	nb.ID = utils.GenBranchID()
	nb.ParentBranchID = models.RootParent
	nb.PrefixHistory = summary
	nm := models.Message{
		ID:             utils.GenMessageID(),
		Conversation:   convID,
		Order:          1,
		ActiveBranchID: nb.ID,
		Branches:       []models.Branch{nb},
	}
	s.insertMessageLocked(&nm)
	s.bumpBranchCountLocked(convID, nb.Role, 1)
	return s.append(convID, records.TypeMessageCreated, records.MessageCreated{Message: nm})
}

// copyFullLocked duplicates every message and branch of src into dst,
// remapping ids and parent pointers and preserving active pointers.
func (s *Store) copyFullLocked(dstID, srcID string) error {
	branchMap := map[string]string{}
	for _, id := range s.byConv[srcID] {
		m := s.msgs[id]
		for i := range m.Branches {
			branchMap[m.Branches[i].ID] = utils.GenBranchID()
		}
	}
	for _, id := range append([]string(nil), s.byConv[srcID]...) {
		m := s.msgs[id]
		nm := models.Message{
			ID:           utils.GenMessageID(),
			Conversation: dstID,
			Order:        m.Order,
		}
		for i := range m.Branches {
			nb := m.Branches[i].Clone()
			nb.ID = branchMap[m.Branches[i].ID]
			if nb.ParentBranchID != models.RootParent {
				if mapped, ok := branchMap[nb.ParentBranchID]; ok {
					nb.ParentBranchID = mapped
				}
			}
			nm.Branches = append(nm.Branches, nb)
		}
		if mapped, ok := branchMap[m.ActiveBranchID]; ok {
			nm.ActiveBranchID = mapped
		} else if len(nm.Branches) > 0 {
			nm.ActiveBranchID = nm.Branches[len(nm.Branches)-1].ID
		}
		s.insertMessageLocked(&nm)
		for i := range nm.Branches {
			s.bumpBranchCountLocked(dstID, nm.Branches[i].Role, 1)
		}
		if err := s.append(dstID, records.TypeMessageCreated, records.MessageCreated{Message: nm}); err != nil {
			return err
		}
	}
	return nil
}

// summarizeChain renders ancestor history as the prefix-history blob
// replayed into context at inference time.
func summarizeChain(chain []pathElem) string {
	var sb strings.Builder
	for _, el := range chain {
		content := el.branch.Content
		if content == "" {
			content = flattenBlocks(el.branch.Blocks)
		}
		if content == "" {
			continue
		}
		sb.WriteString(el.branch.Role)
		sb.WriteString(": ")
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

package store

import (
	"fmt"
	"time"

	"branchdb/pkg/logger"
	"branchdb/pkg/models"
	"branchdb/pkg/records"
	"branchdb/pkg/utils"
)

// BranchInput carries caller-supplied fields for a new branch; ids and
// timestamps are assigned by the store.
type BranchInput struct {
	Content        string
	Blocks         []models.ContentBlock
	Role           string
	ParentBranchID string
	Attachments    []models.Attachment
	Model          string
	ParticipantID  string
	Scope          string
	PostHoc        *models.PostHocOperation
	Debug          *models.DebugData
}

func (in BranchInput) build() models.Branch {
	return models.Branch{
		ID:             utils.GenBranchID(),
		Content:        in.Content,
		Blocks:         in.Blocks,
		Role:           in.Role,
		CreatedTS:      time.Now().UTC().UnixNano(),
		ParentBranchID: models.NormalizeParent(in.ParentBranchID),
		Attachments:    in.Attachments,
		Model:          in.Model,
		ParticipantID:  in.ParticipantID,
		Scope:          in.Scope,
		PostHoc:        in.PostHoc,
		Debug:          in.Debug,
	}
}

// AddMessage creates a message with its first branch at the end of the
// conversation. The branch's parent must resolve to an existing branch or
// use the root sentinel.
func (s *Store) AddMessage(convID string, in BranchInput) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.convs[convID]
	if !ok || c.Archived() {
		return nil, ErrNotFound
	}
	b := in.build()
	if err := s.checkParentLocked(convID, b.ParentBranchID); err != nil {
		return nil, err
	}

	m := models.Message{
		ID:             utils.GenMessageID(),
		Conversation:   convID,
		Order:          s.nextOrderLocked(convID),
		ActiveBranchID: b.ID,
		Branches:       []models.Branch{b},
	}
	s.insertMessageLocked(&m)
	s.bumpBranchCountLocked(convID, b.Role, 1)

	if err := s.append(convID, records.TypeMessageCreated, records.MessageCreated{Message: m}); err != nil {
		s.dropMessageLocked(&m)
		s.bumpBranchCountLocked(convID, b.Role, -1)
		return nil, err
	}
	logger.Debug("message_created", "conversation", convID, "message", m.ID, "role", b.Role)
	cp := m.Clone()
	return &cp, nil
}

// AddBranch appends a new branch to an existing message. By default the
// new branch is promoted to active; preserveActive suppresses promotion.
func (s *Store) AddBranch(messageID string, in BranchInput, preserveActive bool) (*models.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.msgs[messageID]
	if !ok {
		return nil, ErrNotFound
	}
	b := in.build()
	if err := s.checkParentLocked(m.Conversation, b.ParentBranchID); err != nil {
		return nil, err
	}

	s.addBranchLocked(messageID, b, preserveActive)
	if err := s.append(m.Conversation, records.TypeMessageBranchAdded, records.MessageBranchAdded{
		MessageID:      messageID,
		Branch:         b,
		PreserveActive: preserveActive,
	}); err != nil {
		return nil, err
	}
	logger.Debug("branch_added", "message", messageID, "branch", b.ID, "preserve_active", preserveActive)
	cp := b.Clone()
	return &cp, nil
}

// addBranchLocked applies a branch addition to the index. Shared by the
// mutation path and replay.
func (s *Store) addBranchLocked(messageID string, b models.Branch, preserveActive bool) {
	m, ok := s.msgs[messageID]
	if !ok {
		return
	}
	m.Branches = append(m.Branches, b)
	s.indexBranchLocked(messageID, &m.Branches[len(m.Branches)-1])
	if !preserveActive || m.ActiveBranchID == "" {
		m.ActiveBranchID = b.ID
	}
	s.bumpBranchCountLocked(m.Conversation, b.Role, 1)
}

// UpdateBranchContent rewrites a branch's content in place (streaming
// updates, token-by-token assembly, debug payload capture).
func (s *Store) UpdateBranchContent(messageID, branchID, content string, blocks []models.ContentBlock, debug *models.DebugData) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.msgs[messageID]
	if !ok || m.Branch(branchID) == nil {
		return ErrNotFound
	}
	p := records.MessageBranchUpdated{
		MessageID: messageID,
		BranchID:  branchID,
		Content:   content,
		Blocks:    blocks,
		Debug:     debug,
	}
	s.updateBranchLocked(p)
	return s.append(m.Conversation, records.TypeMessageBranchUpdated, p)
}

func (s *Store) updateBranchLocked(p records.MessageBranchUpdated) {
	m, ok := s.msgs[p.MessageID]
	if !ok {
		return
	}
	b := m.Branch(p.BranchID)
	if b == nil {
		return
	}
	if p.Content != "" {
		b.Content = p.Content
	}
	if p.Blocks != nil {
		b.Blocks = p.Blocks
	}
	if p.Debug != nil {
		b.Debug = p.Debug
	}
}

// DeleteBranch removes a branch. When other branches remain on the message
// only this one is removed (re-selecting an active branch as needed); when
// it is the last branch the message itself is deleted. Either way, every
// descendant branch whose parent chain passes through the deleted branch is
// removed, and messages left with no branches are deleted with it.
//
// Returns the ids of every removed message; an empty slice is a valid
// result. ErrNotFound is returned only when the starting message or branch
// does not exist.
func (s *Store) DeleteBranch(messageID, branchID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.msgs[messageID]
	if !ok || m.Branch(branchID) == nil {
		return nil, ErrNotFound
	}
	convID := m.Conversation

	removed := s.deleteBranchLocked(messageID, branchID)
	if err := s.append(convID, records.TypeMessageBranchDeleted, records.MessageBranchDeleted{
		MessageID:         messageID,
		BranchID:          branchID,
		RemovedMessageIDs: removed,
	}); err != nil {
		return nil, err
	}
	logger.Info("branch_deleted", "conversation", convID, "message", messageID, "branch", branchID, "removed_messages", len(removed))
	return removed, nil
}

// deleteBranchLocked performs the index-side deletion and cascade. The
// cascade walk is iterative with an explicit work queue and a visited set;
// the model is acyclic by construction but the guard keeps a corrupt log
// from looping forever.
func (s *Store) deleteBranchLocked(messageID, branchID string) []string {
	removed := []string{}
	m, ok := s.msgs[messageID]
	if !ok {
		return removed
	}
	b := m.Branch(branchID)
	if b == nil {
		return removed
	}

	s.removeBranchFromMessageLocked(m, branchID)
	if len(m.Branches) == 0 {
		removed = append(removed, m.ID)
		s.entombMessageLocked(m)
	}

	queue := []string{branchID}
	visited := map[string]struct{}{}
	for len(queue) > 0 {
		bid := queue[0]
		queue = queue[1:]
		if _, seen := visited[bid]; seen {
			continue
		}
		visited[bid] = struct{}{}

		children := s.byParent[bid]
		for cid := range children {
			ownerID, ok := s.branchOwner[cid]
			if !ok {
				continue
			}
			cm, ok := s.msgs[ownerID]
			if !ok {
				continue
			}
			s.removeBranchFromMessageLocked(cm, cid)
			queue = append(queue, cid)
			if len(cm.Branches) == 0 {
				removed = append(removed, cm.ID)
				s.entombMessageLocked(cm)
			}
		}
	}
	return removed
}

// removeBranchFromMessageLocked detaches one branch, keeps an audit
// tombstone, fixes the active pointer and the cached counter.
func (s *Store) removeBranchFromMessageLocked(m *models.Message, branchID string) {
	idx := -1
	for i := range m.Branches {
		if m.Branches[i].ID == branchID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	b := m.Branches[idx]
	s.unindexBranchLocked(&b)
	m.Branches = append(m.Branches[:idx], m.Branches[idx+1:]...)
	s.deletedBranches[m.Conversation] = append(s.deletedBranches[m.Conversation], b.Clone())
	s.bumpBranchCountLocked(m.Conversation, b.Role, -1)
	if m.ActiveBranchID == branchID {
		m.ActiveBranchID = ""
		if len(m.Branches) > 0 {
			m.ActiveBranchID = m.Branches[len(m.Branches)-1].ID
		}
	}
}

// entombMessageLocked drops an empty message from the live index while
// retaining it for archive/audit reads.
func (s *Store) entombMessageLocked(m *models.Message) {
	s.tombstones[m.Conversation] = append(s.tombstones[m.Conversation], m.Clone())
	s.dropMessageLocked(m)
}

// dropMessageLocked removes a message and its branch indexes entirely.
func (s *Store) dropMessageLocked(m *models.Message) {
	for i := range m.Branches {
		s.unindexBranchLocked(&m.Branches[i])
	}
	delete(s.msgs, m.ID)
	ids := s.byConv[m.Conversation]
	for i, id := range ids {
		if id == m.ID {
			s.byConv[m.Conversation] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
}

// RestoreBranch re-inserts a previously deleted branch. Restoring an id
// that is already present fails; restoring into a deleted message recreates
// the message container transparently.
func (s *Store) RestoreBranch(convID, messageID string, b models.Branch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[convID]; !ok {
		return ErrNotFound
	}
	if _, exists := s.branchOwner[b.ID]; exists {
		return fmt.Errorf("%w: branch %s", ErrAlreadyExists, b.ID)
	}
	b.ParentBranchID = models.NormalizeParent(b.ParentBranchID)
	if err := s.checkParentLocked(convID, b.ParentBranchID); err != nil {
		return err
	}

	order := 0
	if m, ok := s.msgs[messageID]; ok {
		if m.Conversation != convID {
			return fmt.Errorf("%w: message %s belongs to conversation %s", ErrInvalidOperation, messageID, m.Conversation)
		}
		order = m.Order
	} else {
		order = s.nextOrderLocked(convID)
	}

	s.restoreBranchLocked(convID, messageID, order, b)
	if err := s.append(convID, records.TypeMessageBranchRestored, records.MessageBranchRestored{
		ConversationID: convID,
		MessageID:      messageID,
		MessageOrder:   order,
		Branch:         b,
	}); err != nil {
		return err
	}
	logger.Info("branch_restored", "conversation", convID, "message", messageID, "branch", b.ID)
	return nil
}

func (s *Store) restoreBranchLocked(convID, messageID string, order int, b models.Branch) {
	if _, exists := s.branchOwner[b.ID]; exists {
		return
	}
	m, ok := s.msgs[messageID]
	if !ok {
		if order == 0 {
			order = s.nextOrderLocked(convID)
		}
		nm := models.Message{ID: messageID, Conversation: convID, Order: order}
		s.insertMessageLocked(&nm)
		m = s.msgs[messageID]
	}
	m.Branches = append(m.Branches, b)
	s.indexBranchLocked(messageID, &m.Branches[len(m.Branches)-1])
	if m.ActiveBranchID == "" {
		m.ActiveBranchID = b.ID
	}
	s.bumpBranchCountLocked(convID, b.Role, 1)
}

// SetActiveBranch flips a message's active pointer. Returns false, without
// an error, when the branch does not belong to the message.
func (s *Store) SetActiveBranch(messageID, branchID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.msgs[messageID]
	if !ok || m.Branch(branchID) == nil {
		return false
	}
	if m.ActiveBranchID == branchID {
		return true
	}
	prev := m.ActiveBranchID
	m.ActiveBranchID = branchID
	if err := s.append(m.Conversation, records.TypeActiveBranchChanged, records.ActiveBranchChanged{MessageID: messageID, BranchID: branchID}); err != nil {
		m.ActiveBranchID = prev
		logger.Error("set_active_branch_append_failed", "message", messageID, "error", err)
		return false
	}
	return true
}

// AlignActiveBranchPath walks the active path from the deepest message
// upward, ensuring every ancestor's active branch matches the chain
// actually reachable from the deepest active leaf. Maintenance operation;
// safe on empty conversations.
func (s *Store) AlignActiveBranchPath(convID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.convs[convID]; !ok {
		return ErrNotFound
	}
	ids := s.byConv[convID]
	if len(ids) == 0 {
		return nil
	}

	deepest := s.msgs[ids[len(ids)-1]]
	leaf := deepest.ActiveBranch()
	if leaf == nil {
		if len(deepest.Branches) == 0 {
			return nil
		}
		deepest.ActiveBranchID = deepest.Branches[len(deepest.Branches)-1].ID
		leaf = deepest.ActiveBranch()
		if err := s.append(convID, records.TypeActiveBranchChanged, records.ActiveBranchChanged{MessageID: deepest.ID, BranchID: leaf.ID}); err != nil {
			return err
		}
	}

	visited := map[string]struct{}{leaf.ID: {}}
	parent := leaf.ParentBranchID
	for parent != models.RootParent {
		if _, seen := visited[parent]; seen {
			return fmt.Errorf("%w: cycle in branch ancestry at %s", ErrInvalidOperation, parent)
		}
		visited[parent] = struct{}{}

		ownerID, ok := s.branchOwner[parent]
		if !ok {
			// dangling parent reference; nothing further to align
			logger.Warn("align_dangling_parent", "conversation", convID, "branch", parent)
			return nil
		}
		pm := s.msgs[ownerID]
		if pm.ActiveBranchID != parent {
			pm.ActiveBranchID = parent
			if err := s.append(convID, records.TypeActiveBranchChanged, records.ActiveBranchChanged{MessageID: pm.ID, BranchID: parent}); err != nil {
				return err
			}
		}
		parent = pm.Branch(parent).ParentBranchID
	}
	return nil
}

// checkParentLocked verifies a parent pointer resolves within the same
// conversation, or is the root sentinel.
func (s *Store) checkParentLocked(convID, parent string) error {
	if parent == models.RootParent {
		return nil
	}
	ownerID, ok := s.branchOwner[parent]
	if !ok {
		return fmt.Errorf("%w: parent branch %s does not resolve", ErrInvalidOperation, parent)
	}
	if om, ok := s.msgs[ownerID]; !ok || om.Conversation != convID {
		return fmt.Errorf("%w: parent branch %s belongs to another conversation", ErrInvalidOperation, parent)
	}
	return nil
}

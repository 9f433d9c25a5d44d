package store

import (
	"fmt"
	"time"

	"branchdb/pkg/logger"
	"branchdb/pkg/models"
	"branchdb/pkg/records"
	"branchdb/pkg/utils"
)

// CreateConversation creates a new conversation on explicit request.
func (s *Store) CreateConversation(owner, title string, multiplayer bool) (*models.Conversation, error) {
	c := models.Conversation{
		ID:          utils.GenConversationID(),
		Owner:       owner,
		Title:       title,
		Multiplayer: multiplayer,
		CreatedTS:   time.Now().UTC().UnixNano(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[c.ID] = &c
	if err := s.append(c.ID, records.TypeConversationCreated, records.ConversationCreated{Conversation: c}); err != nil {
		delete(s.convs, c.ID)
		return nil, err
	}
	logger.Info("conversation_created", "conversation", c.ID, "owner", owner)
	cp := c
	return &cp, nil
}

// ArchiveConversation soft-deletes a conversation: hidden from listings,
// never purged from the record log.
func (s *Store) ArchiveConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	if c.Archived() {
		return nil
	}
	ts := time.Now().UTC().UnixNano()
	c.ArchivedTS = ts
	if err := s.append(id, records.TypeConversationArchived, records.ConversationArchived{ConversationID: id, ArchivedTS: ts}); err != nil {
		c.ArchivedTS = 0
		return err
	}
	logger.Info("conversation_archived", "conversation", id)
	return nil
}

// SetTitle renames a conversation.
func (s *Store) SetTitle(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return ErrNotFound
	}
	prev := c.Title
	c.Title = title
	if err := s.append(id, records.TypeConversationTitleChanged, records.ConversationTitleChanged{ConversationID: id, Title: title}); err != nil {
		c.Title = prev
		return err
	}
	return nil
}

// SetMessageOrder records a display reorder of a conversation's messages.
// High-volume and fully replayable from creation order, so compaction
// strips these events by default.
func (s *Store) SetMessageOrder(convID string, messageIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[convID]; !ok {
		return ErrNotFound
	}
	for _, id := range messageIDs {
		m, ok := s.msgs[id]
		if !ok || m.Conversation != convID {
			return fmt.Errorf("%w: message %s not in conversation %s", ErrInvalidOperation, id, convID)
		}
	}
	s.reorderLocked(convID, messageIDs)
	return s.append(convID, records.TypeMessageOrderChanged, records.MessageOrderChanged{ConversationID: convID, MessageIDs: messageIDs})
}

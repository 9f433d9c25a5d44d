// Package store holds the conversation index materialized from the record
// logs and the branch operation engine that mutates it. Every successful
// mutation updates the in-memory index and appends a record to the log;
// the index is rebuilt fully at startup by replaying every log file.
package store

import (
	"fmt"
	"sort"
	"sync"

	"branchdb/pkg/logger"
	"branchdb/pkg/models"
	"branchdb/pkg/recordlog"
	"branchdb/pkg/records"
)

// Store is the process-resident conversation index plus its record log.
// Constructed explicitly at startup and passed to every caller; there is
// no ambient global instance.
type Store struct {
	mu  sync.RWMutex
	log *recordlog.Log

	convs  map[string]*models.Conversation
	msgs   map[string]*models.Message
	byConv map[string][]string // message ids ordered by Order

	// branchOwner resolves a branch id to its owning message id; all tree
	// pointers are plain ids resolved through these arenas.
	branchOwner map[string]string
	// byParent is the reverse edge table used by cascade walks.
	byParent map[string]map[string]struct{}

	// tombstones retain deleted messages (with their branches as of
	// deletion) for archive/audit reads until compaction.
	tombstones map[string][]models.Message
	// deletedBranches retains individually deleted branches per
	// conversation for the same purpose.
	deletedBranches map[string][]models.Branch
}

// Open replays every record file under base and returns a ready store.
func Open(base string) (*Store, error) {
	l, err := recordlog.Open(base)
	if err != nil {
		return nil, err
	}
	s := &Store{
		log:             l,
		convs:           map[string]*models.Conversation{},
		msgs:            map[string]*models.Message{},
		byConv:          map[string][]string{},
		branchOwner:     map[string]string{},
		byParent:        map[string]map[string]struct{}{},
		tombstones:      map[string][]models.Message{},
		deletedBranches: map[string][]models.Branch{},
	}
	if err := s.replayAll(); err != nil {
		l.Close()
		return nil, err
	}
	return s, nil
}

// Close flushes and releases the record log file handles.
func (s *Store) Close() error {
	return s.log.Close()
}

// Log exposes the underlying record log (maintenance and compaction).
func (s *Store) Log() *recordlog.Log {
	return s.log
}

func (s *Store) replayAll() error {
	var files, applied, skipped int
	err := s.log.Walk(func(convID, path string) error {
		files++
		entries, err := recordlog.Scan(path)
		if err != nil {
			return fmt.Errorf("replay %s: %w", path, err)
		}
		for _, e := range entries {
			if e.Rec == nil {
				skipped++
				recordsSkipped.Inc()
				continue
			}
			s.apply(*e.Rec)
			applied++
			recordsApplied.WithLabelValues(e.Rec.Type).Inc()
		}
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("replay_complete", "files", files, "applied", applied, "skipped", skipped)
	return nil
}

// mustAppend appends a record for an already-applied index mutation. The
// index is the authority within this process; a failed append is logged
// loudly and surfaced so callers can retry the whole operation.
func (s *Store) append(convID, typ string, payload any) error {
	rec, err := records.New(typ, payload)
	if err != nil {
		return err
	}
	if err := s.log.Append(convID, rec); err != nil {
		return err
	}
	mutationsTotal.WithLabelValues(typ).Inc()
	return nil
}

// Conversation returns the conversation by id, or nil when absent or
// archived (archived conversations are hidden from reads).
func (s *Store) Conversation(id string) *models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok || c.Archived() {
		return nil
	}
	cp := *c
	return &cp
}

// Message returns a copy of the message by id, or nil.
func (s *Store) Message(id string) *models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.msgs[id]
	if !ok {
		return nil
	}
	cp := m.Clone()
	return &cp
}

// Messages returns copies of a conversation's messages in display order.
func (s *Store) Messages(convID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messagesLocked(convID)
}

func (s *Store) messagesLocked(convID string) []models.Message {
	ids := s.byConv[convID]
	out := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.msgs[id]; ok {
			out = append(out, m.Clone())
		}
	}
	return out
}

// ListConversations returns live (non-archived) conversations.
func (s *Store) ListConversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		if c.Archived() {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedTS < out[j].CreatedTS })
	return out
}

// insertMessageLocked registers a message in the arenas and keeps the
// per-conversation order index sorted.
func (s *Store) insertMessageLocked(m *models.Message) {
	s.msgs[m.ID] = m
	ids := s.byConv[m.Conversation]
	ids = append(ids, m.ID)
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := s.msgs[ids[i]], s.msgs[ids[j]]
		return a.Order < b.Order
	})
	s.byConv[m.Conversation] = ids
	for i := range m.Branches {
		s.indexBranchLocked(m.ID, &m.Branches[i])
	}
}

func (s *Store) indexBranchLocked(msgID string, b *models.Branch) {
	b.ParentBranchID = models.NormalizeParent(b.ParentBranchID)
	s.branchOwner[b.ID] = msgID
	if b.ParentBranchID != models.RootParent {
		set, ok := s.byParent[b.ParentBranchID]
		if !ok {
			set = map[string]struct{}{}
			s.byParent[b.ParentBranchID] = set
		}
		set[b.ID] = struct{}{}
	}
}

func (s *Store) unindexBranchLocked(b *models.Branch) {
	delete(s.branchOwner, b.ID)
	if b.ParentBranchID != models.RootParent {
		if set, ok := s.byParent[b.ParentBranchID]; ok {
			delete(set, b.ID)
			if len(set) == 0 {
				delete(s.byParent, b.ParentBranchID)
			}
		}
	}
}

// nextOrderLocked returns the next display order for a conversation.
func (s *Store) nextOrderLocked(convID string) int {
	ids := s.byConv[convID]
	if len(ids) == 0 {
		return 1
	}
	last := s.msgs[ids[len(ids)-1]]
	return last.Order + 1
}

// bumpBranchCountLocked adjusts the conversation's cached branch counter.
// System-role annotation branches are not counted; decrements floor at zero.
func (s *Store) bumpBranchCountLocked(convID, role string, delta int) {
	if role == models.RoleSystem {
		return
	}
	c, ok := s.convs[convID]
	if !ok {
		return
	}
	c.BranchCount += delta
	if c.BranchCount < 0 {
		c.BranchCount = 0
	}
}

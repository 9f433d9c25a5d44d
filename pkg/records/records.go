// Package records defines the event records appended to a conversation's
// record log. Each record is one newline-delimited JSON object of the form
// {timestamp, type, data}; `data` decodes into one payload struct per kind.
package records

import (
	"encoding/json"
	"fmt"
	"time"

	"branchdb/pkg/models"
)

// Event kinds. The set is closed: replay dispatches exhaustively over these
// constants and ignores anything else for forward compatibility.
const (
	TypeConversationCreated      = "conversation_created"
	TypeConversationArchived     = "conversation_archived"
	TypeConversationTitleChanged = "conversation_title_changed"
	TypeMessageCreated           = "message_created"
	TypeMessageBranchAdded       = "message_branch_added"
	TypeMessageBranchUpdated     = "message_branch_updated"
	TypeMessageBranchDeleted     = "message_branch_deleted"
	TypeMessageBranchRestored    = "message_branch_restored"
	TypeActiveBranchChanged      = "active_branch_changed"
	TypeMessageOrderChanged      = "message_order_changed"
)

// Record is the wire shape of one log line.
type Record struct {
	Timestamp string          `json:"timestamp"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
}

type ConversationCreated struct {
	Conversation models.Conversation `json:"conversation"`
}

type ConversationArchived struct {
	ConversationID string `json:"conversation_id"`
	ArchivedTS     int64  `json:"archived_ts"`
}

type ConversationTitleChanged struct {
	ConversationID string `json:"conversation_id"`
	Title          string `json:"title"`
}

type MessageCreated struct {
	Message models.Message `json:"message"`
}

type MessageBranchAdded struct {
	MessageID string        `json:"message_id"`
	Branch    models.Branch `json:"branch"`
	// PreserveActive suppresses promoting the new branch to active.
	PreserveActive bool `json:"preserve_active,omitempty"`
}

type MessageBranchUpdated struct {
	MessageID string                `json:"message_id"`
	BranchID  string                `json:"branch_id"`
	Content   string                `json:"content,omitempty"`
	Blocks    []models.ContentBlock `json:"blocks,omitempty"`
	Debug     *models.DebugData     `json:"debug,omitempty"`
}

type MessageBranchDeleted struct {
	MessageID string `json:"message_id"`
	BranchID  string `json:"branch_id"`
	// RemovedMessageIDs records the cascade outcome for audit; replay
	// re-derives the cascade from the index rather than trusting it.
	RemovedMessageIDs []string `json:"removed_message_ids"`
}

type MessageBranchRestored struct {
	ConversationID string        `json:"conversation_id"`
	MessageID      string        `json:"message_id"`
	MessageOrder   int           `json:"message_order,omitempty"`
	Branch         models.Branch `json:"branch"`
}

type ActiveBranchChanged struct {
	MessageID string `json:"message_id"`
	BranchID  string `json:"branch_id"`
}

type MessageOrderChanged struct {
	ConversationID string   `json:"conversation_id"`
	MessageIDs     []string `json:"message_ids"`
}

// New builds a record for the given payload, stamping the current time.
func New(typ string, payload any) (Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	return Record{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Type:      typ,
		Data:      data,
	}, nil
}

// Encode renders the record as a single JSON line (no trailing newline).
func (r Record) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// Decode parses one log line. Callers treat a failure as a corrupt line:
// preserved verbatim in the file, skipped by replay.
func Decode(line []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(line, &r); err != nil {
		return Record{}, err
	}
	if r.Type == "" {
		return Record{}, fmt.Errorf("record missing type")
	}
	return r, nil
}

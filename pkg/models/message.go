package models

type Message struct {
	ID           string `json:"id"`
	Conversation string `json:"conversation"`
	// Order is the display sequence within the conversation.
	Order int `json:"order"`
	// ActiveBranchID always references a branch owned by this message.
	ActiveBranchID string   `json:"active_branch_id,omitempty"`
	Branches       []Branch `json:"branches,omitempty"`
}

// Branch returns the branch with the given id, or nil.
func (m *Message) Branch(id string) *Branch {
	for i := range m.Branches {
		if m.Branches[i].ID == id {
			return &m.Branches[i]
		}
	}
	return nil
}

// ActiveBranch returns the currently active branch, or nil when the
// message has none (a state only reachable transiently during deletes).
func (m *Message) ActiveBranch() *Branch {
	return m.Branch(m.ActiveBranchID)
}

// Clone returns a deep copy of the message. Branch slices are copied so
// read-time transforms can annotate the clone without touching stored state.
func (m *Message) Clone() Message {
	out := *m
	out.Branches = make([]Branch, len(m.Branches))
	for i := range m.Branches {
		out.Branches[i] = m.Branches[i].Clone()
	}
	return out
}

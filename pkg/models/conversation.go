package models

type Conversation struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Title string `json:"title,omitempty"`
	// Multiplayer marks a multi-participant conversation; the standard
	// two-party format leaves it false.
	Multiplayer bool `json:"multiplayer,omitempty"`
	// CreatedTS timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// ArchivedTS marks a conversation as soft-deleted; zero means live.
	// Archived conversations are hidden from listings but never purged
	// from the record log.
	ArchivedTS int64 `json:"archived_ts,omitempty"`
	// BranchCount is a cached total of non-system branches across the
	// conversation. Maintained incrementally; decrements floor at zero.
	BranchCount int `json:"branch_count,omitempty"`
}

// Archived reports whether the conversation has been soft-deleted.
func (c *Conversation) Archived() bool {
	return c.ArchivedTS != 0
}

package models

// RootParent is the canonical sentinel for a branch with no parent: the
// empty string (field omitted in JSON). Older exports used the string
// "root"; replay and import normalize that form to the canonical one.
const RootParent = ""

// LegacyRootParent is the string-sentinel form found in older logs.
const LegacyRootParent = "root"

// Branch roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Branch struct {
	ID      string `json:"id"`
	Content string `json:"content,omitempty"`
	// Blocks optionally carries structured content; when present it is
	// the rendered form, Content is the plain-text fallback.
	Blocks []ContentBlock `json:"blocks,omitempty"`
	Role   string         `json:"role"`
	// CreatedTS timestamp (ns)
	CreatedTS int64 `json:"created_ts,omitempty"`
	// ParentBranchID references a branch on a logically earlier message,
	// forming the tree edge. RootParent for the conversation root.
	ParentBranchID string       `json:"parent_branch_id,omitempty"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	// Model records the originating model for assistant branches.
	Model string `json:"model,omitempty"`
	// ParticipantID references the authoring participant in
	// multi-participant conversations.
	ParticipantID string `json:"participant_id,omitempty"`
	// Scope limits visibility ("private" branches are dropped from
	// trimmed duplicates).
	Scope string `json:"scope,omitempty"`
	// PostHoc marks this branch as a retroactive transform rather than
	// real content; carrier messages are excluded from resolved output.
	PostHoc *PostHocOperation `json:"post_hoc_operation,omitempty"`
	// PrefixHistory holds a compressed-ancestry summary on the first
	// message of a compressed fork. Replayed into context at inference
	// time, never stored as individual messages.
	PrefixHistory string `json:"prefix_history,omitempty"`
	// Debug carries raw provider request/response payloads during
	// development; compaction strips or offloads it.
	Debug *DebugData `json:"debug,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Data any    `json:"data,omitempty"`
}

type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Mime string `json:"mime,omitempty"`
	Size int64  `json:"size,omitempty"`
}

type DebugData struct {
	Request  any `json:"request,omitempty"`
	Response any `json:"response,omitempty"`
	// BlobRef replaces Request/Response after compaction offloaded them
	// to the blob store.
	BlobRef string `json:"blob_ref,omitempty"`
}

// IsRoot reports whether the branch uses the canonical no-parent sentinel.
func (b *Branch) IsRoot() bool {
	return b.ParentBranchID == RootParent
}

// Clone returns a deep-enough copy for read-time annotation: block,
// attachment and posthoc payloads are copied, opaque block data is shared.
func (b *Branch) Clone() Branch {
	out := *b
	if b.Blocks != nil {
		out.Blocks = append([]ContentBlock(nil), b.Blocks...)
	}
	if b.Attachments != nil {
		out.Attachments = append([]Attachment(nil), b.Attachments...)
	}
	if b.PostHoc != nil {
		op := *b.PostHoc
		out.PostHoc = &op
	}
	return out
}

// NormalizeParent maps the legacy "root" sentinel to the canonical form.
func NormalizeParent(parent string) string {
	if parent == LegacyRootParent {
		return RootParent
	}
	return parent
}

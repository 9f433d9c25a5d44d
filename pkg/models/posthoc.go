package models

// Post-hoc operation kinds.
const (
	PostHocHide           = "hide"
	PostHocHideBefore     = "hide_before"
	PostHocEdit           = "edit"
	PostHocHideAttachment = "hide_attachment"
	PostHocUnhide         = "unhide"
)

// PostHocOperation is a retroactive, non-destructive transform recorded as
// a special branch and applied only at read time. Later operations can
// reverse or override earlier ones on the same target.
type PostHocOperation struct {
	Kind            string `json:"kind"`
	TargetMessageID string `json:"target_message_id"`
	TargetBranchID  string `json:"target_branch_id,omitempty"`
	// Blocks replaces the target's rendered content for `edit`.
	Blocks []ContentBlock `json:"blocks,omitempty"`
	// AttachmentIndices selects attachments to drop for `hide_attachment`.
	AttachmentIndices []int  `json:"attachment_indices,omitempty"`
	Reason            string `json:"reason,omitempty"`
}

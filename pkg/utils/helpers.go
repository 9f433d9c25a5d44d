package utils

import (
	"strings"

	"github.com/google/uuid"
)

// GenConversationID generates a conversation id. Plain lowercase-hex UUIDs
// keep the two-level log shard fan-out even.
func GenConversationID() string {
	return uuid.NewString()
}

// GenMessageID generates a message id.
func GenMessageID() string {
	return "msg-" + uuid.NewString()
}

// GenBranchID generates a branch id.
func GenBranchID() string {
	return "br-" + uuid.NewString()
}

// GenBlobID generates a blob store id.
func GenBlobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

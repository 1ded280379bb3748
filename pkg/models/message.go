package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageRole enumerates who a Message is attributed to.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is an immutable, ordered record within a Thread. Per-thread
// created_at is monotonic non-decreasing.
type Message struct {
	ID        uuid.UUID
	ThreadID  uuid.UUID
	Role      MessageRole
	IsHuman   bool
	Content   string
	CreatedAt time.Time
}

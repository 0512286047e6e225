// Package conversation provides persistence for conversations and their
// messages against the remote PostgreSQL store, plus the coarse
// "interests" signal derived from stored message text.
//
// Every conversation-scoped operation requires an authenticated user id
// and filters by ownership; a missing identity is ErrAuthRequired, which
// is distinct from a remote-store failure (*PersistenceError).
package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is a named exchange owned by one user.
type Conversation struct {
	ID        uuid.UUID
	Title     string
	UserID    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single turn half. Immutable once persisted; the live copy
// held by the session controller is mutated in place only while a
// response is still streaming.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string // RoleUser | RoleAssistant
	Content        string
	Timestamp      time.Time
}

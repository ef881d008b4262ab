// Package transcript is the durable, append-only record of conversation turns.
// It owns identity and ordering; turns are never mutated or reordered once
// committed.
package transcript

import (
	"errors"
	"fmt"
	"time"
)

// Role tags who authored a turn. The set is closed.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Validate reports whether r is one of the two persisted roles.
func (r Role) Validate() error {
	switch r {
	case RoleUser, RoleAssistant:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidRole, string(r))
}

// Conversation owns an ordered sequence of turns. APIKey is an optional
// per-conversation credential override resolved by the session facade.
type Conversation struct {
	ID        string
	CreatedAt time.Time
	APIKey    string
}

// Turn is one committed message. ID is a monotonically increasing sequence
// within the store, so commit order is recoverable from IDs alone.
type Turn struct {
	ID             int64
	ConversationID string
	CreatedAt      time.Time
	Role           Role
	Text           string
}

var (
	// ErrNotFound is returned for an unknown conversation ID.
	ErrNotFound = errors.New("conversation not found")
	// ErrNoUserTurn is returned when a conversation has no user turn awaiting
	// an answer.
	ErrNoUserTurn = errors.New("no pending user turn")
	// ErrInvalidRole is returned for roles outside the closed user/assistant set.
	ErrInvalidRole = errors.New("invalid turn role")
)

package domain

import (
	"errors"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	// ErrNotFound is returned by stores when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateTurn is returned by Append when the same platform message was
	// already recorded for the thread.
	ErrDuplicateTurn = errors.New("duplicate turn")
)

// ThreadKey groups turns into one conversation.
type ThreadKey struct {
	TenantID   string
	Channel    string
	ThreadRoot string
}

// Turn is a single persisted conversation message.
type Turn struct {
	ID         string
	TenantID   string
	Channel    string
	ThreadRoot string
	// TurnTS is the platform-assigned message timestamp.
	TurnTS    string
	Role      Role
	AuthorID  string
	Text      string
	CreatedAt time.Time
}

func (t Turn) Thread() ThreadKey {
	return ThreadKey{TenantID: t.TenantID, Channel: t.Channel, ThreadRoot: t.ThreadRoot}
}

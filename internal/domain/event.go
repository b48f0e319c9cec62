package domain

type EventKind int

const (
	EventIgnore EventKind = iota
	EventHandshake
	EventTurn
)

func (k EventKind) String() string {
	switch k {
	case EventHandshake:
		return "handshake"
	case EventTurn:
		return "turn"
	default:
		return "ignore"
	}
}

// InboundEvent is the classified form of one platform callback.
type InboundEvent struct {
	Kind      EventKind
	Challenge string
	// Reason explains an ignore decision.
	Reason string

	TenantID        string
	Channel         string
	ThreadRoot      string
	TurnTS          string
	AuthorID        string
	Text            string
	IsDirectMessage bool
}

func (e InboundEvent) Thread() ThreadKey {
	return ThreadKey{TenantID: e.TenantID, Channel: e.Channel, ThreadRoot: e.ThreadRoot}
}

// ReplyThread is the thread a reply is posted into; empty for direct messages.
func (e InboundEvent) ReplyThread() string {
	if e.IsDirectMessage {
		return ""
	}
	return e.ThreadRoot
}

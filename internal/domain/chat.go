package domain

const (
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape handed to completion
// backends.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

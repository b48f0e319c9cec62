package usecase

import (
	"strings"

	"slack-relay/internal/domain"
)

// AssembleContext orders prompt messages for a completion call: up to k prior
// turns from window, oldest first, followed by newTurn exactly once. window is
// expected oldest first and may already contain newTurn.
func AssembleContext(newTurn domain.Turn, window []domain.Turn, k int) []domain.ChatMessage {
	prior := make([]domain.Turn, 0, len(window))
	for _, t := range window {
		if sameTurn(t, newTurn) || strings.TrimSpace(t.Text) == "" {
			continue
		}
		prior = append(prior, t)
	}
	if k < 0 {
		k = 0
	}
	if len(prior) > k {
		prior = prior[len(prior)-k:]
	}

	out := make([]domain.ChatMessage, 0, len(prior)+1)
	for _, t := range prior {
		out = append(out, toChatMessage(t))
	}
	if strings.TrimSpace(newTurn.Text) != "" {
		out = append(out, toChatMessage(newTurn))
	}
	return out
}

func sameTurn(a, b domain.Turn) bool {
	if a.ID != "" && b.ID != "" {
		return a.ID == b.ID
	}
	return a.Role == b.Role && a.TurnTS != "" && a.TurnTS == b.TurnTS
}

func toChatMessage(t domain.Turn) domain.ChatMessage {
	role := domain.ChatRoleUser
	if t.Role == domain.RoleAssistant {
		role = domain.ChatRoleAssistant
	}
	return domain.ChatMessage{Role: role, Content: t.Text}
}

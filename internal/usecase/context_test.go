package usecase

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"slack-relay/internal/domain"
)

func turnN(i int, role domain.Role) domain.Turn {
	return domain.Turn{
		ID:     fmt.Sprintf("id-%d", i),
		TurnTS: fmt.Sprintf("1700000000.%06d", i),
		Role:   role,
		Text:   fmt.Sprintf("turn %d", i),
	}
}

func contents(msgs []domain.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content
	}
	return out
}

func TestAssembleContext_KeepsLastKPriorThenNewTurn(t *testing.T) {
	var window []domain.Turn
	for i := 0; i < 8; i++ {
		window = append(window, turnN(i, domain.RoleUser))
	}
	newTurn := turnN(8, domain.RoleUser)
	window = append(window, newTurn)

	msgs := AssembleContext(newTurn, window, 3)
	require.Equal(t, []string{"turn 5", "turn 6", "turn 7", "turn 8"}, contents(msgs))
}

func TestAssembleContext_NewTurnMissingFromWindow(t *testing.T) {
	window := []domain.Turn{turnN(0, domain.RoleUser), turnN(1, domain.RoleAssistant)}
	msgs := AssembleContext(turnN(2, domain.RoleUser), window, 5)
	require.Equal(t, []string{"turn 0", "turn 1", "turn 2"}, contents(msgs))
}

func TestAssembleContext_DedupesByTurnTSWhenIDMissing(t *testing.T) {
	stored := turnN(3, domain.RoleUser)
	newTurn := stored
	newTurn.ID = ""

	msgs := AssembleContext(newTurn, []domain.Turn{turnN(2, domain.RoleAssistant), stored}, 5)
	require.Equal(t, []string{"turn 2", "turn 3"}, contents(msgs))
}

func TestAssembleContext_SameTSDifferentRoleIsKept(t *testing.T) {
	reply := turnN(3, domain.RoleAssistant)
	reply.ID = ""
	newTurn := turnN(3, domain.RoleUser)
	newTurn.ID = ""

	msgs := AssembleContext(newTurn, []domain.Turn{reply}, 5)
	require.Len(t, msgs, 2)
}

func TestAssembleContext_RoleMappingAndBlankSkipping(t *testing.T) {
	blank := turnN(1, domain.RoleUser)
	blank.Text = "   "
	odd := turnN(2, domain.Role("system"))

	msgs := AssembleContext(turnN(3, domain.RoleUser), []domain.Turn{turnN(0, domain.RoleAssistant), blank, odd}, 5)
	require.Equal(t, []domain.ChatMessage{
		{Role: "assistant", Content: "turn 0"},
		{Role: "user", Content: "turn 2"},
		{Role: "user", Content: "turn 3"},
	}, msgs)
}

func TestAssembleContext_ZeroOrNegativeK(t *testing.T) {
	window := []domain.Turn{turnN(0, domain.RoleUser)}
	require.Equal(t, []string{"turn 1"}, contents(AssembleContext(turnN(1, domain.RoleUser), window, 0)))
	require.Equal(t, []string{"turn 1"}, contents(AssembleContext(turnN(1, domain.RoleUser), window, -2)))
}

func TestAssembleContext_EmptyWindow(t *testing.T) {
	msgs := AssembleContext(turnN(0, domain.RoleUser), nil, 5)
	require.Equal(t, []domain.ChatMessage{{Role: "user", Content: "turn 0"}}, msgs)
}

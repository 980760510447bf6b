package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenCounterFallback(t *testing.T) {
	tc := &TokenCounter{}

	assert.Equal(t, 0, tc.Count(""))
	assert.Equal(t, 1, tc.Count("abc"))
	assert.Equal(t, 2, tc.Count("abcdefgh"))
	assert.Equal(t, 2*(1+perMessageOverhead), tc.CountMessages([]Message{
		{Role: RoleUser, Content: "abcd"},
		{Role: RoleAssistant, Content: "efgh"},
	}))
}

func TestTrimHistoryKeepsNewest(t *testing.T) {
	tc := &TokenCounter{}
	history := []Message{
		{Role: RoleUser, Content: strings.Repeat("a", 400)},
		{Role: RoleAssistant, Content: strings.Repeat("b", 40)},
		{Role: RoleUser, Content: strings.Repeat("c", 40)},
	}

	// each short turn costs 10 + 4 overhead
	trimmed := tc.TrimHistory(history, 30)

	assert.Len(t, trimmed, 2)
	assert.Equal(t, RoleAssistant, trimmed[0].Role)
	assert.Equal(t, RoleUser, trimmed[1].Role)
	assert.Len(t, history, 3, "input must not be modified")
}

func TestTrimHistoryBudgetDisabled(t *testing.T) {
	tc := &TokenCounter{}
	history := []Message{{Role: RoleUser, Content: "hello"}}

	assert.Equal(t, history, tc.TrimHistory(history, 0))
	assert.Empty(t, tc.TrimHistory(history, 1))
}

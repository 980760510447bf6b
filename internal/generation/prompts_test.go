package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/llm"
)

func TestDetermineAction(t *testing.T) {
	assert.Equal(t, ActionCreate, DetermineAction("fix everything", ""))
	assert.Equal(t, ActionFix, DetermineAction("There is a BUG in the form", "<div></div>"))
	assert.Equal(t, ActionFix, DetermineAction("console shows an error", "<div></div>"))
	assert.Equal(t, ActionModify, DetermineAction("make it blue", "<div></div>"))
}

func TestAgentPromptLadder(t *testing.T) {
	plan := &Plan{Components: []string{"Header", "Table"}, Features: []string{"Sort"}, DataModel: "rows"}

	standard := AgentPrompt(ActionCreate, "a table", "", plan, SelectStrategy("a table", 0))
	assert.Contains(t, standard, "Create a new HTML prototype")
	assert.Contains(t, standard, "- Data Model: rows")
	assert.True(t, strings.HasSuffix(standard, "Focus on: complete implementation."))

	concise := AgentPrompt(ActionCreate, "a table", "", plan, SelectStrategy("a table", 1))
	assert.Contains(t, concise, "CONCISE MODE")
	assert.Contains(t, concise, "Plan: Header, Table")

	minimal := AgentPrompt(ActionCreate, "a table", "", plan, SelectStrategy("a table", 2))
	assert.Contains(t, minimal, "ULTRA-MINIMAL")
	assert.NotContains(t, minimal, "Header")
}

func TestAgentPromptModifyTruncatesCode(t *testing.T) {
	code := strings.Repeat("x", currentCodeLimit+500)
	prompt := AgentPrompt(ActionModify, "make it blue", code, nil, SelectStrategy("make it blue", 1))

	assert.Contains(t, prompt, "Modify the existing prototype")
	assert.Contains(t, prompt, strings.Repeat("x", currentCodeLimit)+"\n```")
	assert.NotContains(t, prompt, strings.Repeat("x", currentCodeLimit+1))
	assert.Contains(t, prompt, "Focus on: working prototype, essential features.")
}

func TestChatPrompt(t *testing.T) {
	assert.Equal(t, "hello", ChatPrompt("hello", "", ""))

	prompt := ChatPrompt("why?", strings.Repeat("c", 600), "button#save")
	assert.Contains(t, prompt, strings.Repeat("c", chatCodeContextLimit)+"...")
	assert.NotContains(t, prompt, strings.Repeat("c", chatCodeContextLimit+1))
	assert.True(t, strings.HasSuffix(prompt, "Selected element: button#save"))
}

func TestNarratePlan(t *testing.T) {
	text := NarratePlan(&Plan{
		Understanding:       "A kanban board",
		Components:          []string{"Board", "Card"},
		Features:            []string{"Drag"},
		TechStack:           []string{"HTML5", "CSS3"},
		EstimatedComplexity: "Medium",
	})

	assert.Contains(t, text, "**Understanding:** A kanban board")
	assert.Contains(t, text, "1. Board\n2. Card\n")
	assert.Contains(t, text, "**Tech Stack:** HTML5, CSS3")
	assert.NotContains(t, text, "Data Model")
	assert.True(t, strings.HasSuffix(text, "**Now generating your prototype...**\n"))
}

func TestCompletionSummary(t *testing.T) {
	text := CompletionSummary(&Payload{Explanation: "Built it", Suggestions: []string{"Add tests"}})
	assert.Equal(t, "\n\n**Implementation Complete!**\n\nBuilt it\n\n**Next Steps & Suggestions:**\n1. Add tests\n\n", text)

	assert.Contains(t, CompletionSummary(&Payload{}), "Code generated successfully!")
}

func TestBuildMessagesTrimsHistory(t *testing.T) {
	history := []llm.Message{
		{Role: llm.RoleUser, Content: strings.Repeat("old ", 100)},
		{Role: "model", Content: "short reply"},
		{Role: llm.RoleUser, Content: "newest"},
	}

	messages := BuildMessages("system", history, "prompt", &llm.TokenCounter{}, 20)
	require.Len(t, messages, 4)
	assert.Equal(t, llm.RoleSystem, messages[0].Role)
	assert.Equal(t, llm.RoleAssistant, messages[1].Role)
	assert.Equal(t, "short reply", messages[1].Content)
	assert.Equal(t, "newest", messages[2].Content)
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "prompt"}, messages[3])

	untrimmed := BuildMessages("system", history, "prompt", &llm.TokenCounter{}, 0)
	assert.Len(t, untrimmed, 5)
}

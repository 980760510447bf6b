package generation

import (
	"fmt"
	"strings"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/llm"
)

// Action is what an agent-mode request asks for
type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionFix    Action = "fix"
)

const (
	currentCodeLimit     = 2000
	chatCodeContextLimit = 500
)

// AgentSystemPrompt instructs the model to answer with the payload JSON only
const AgentSystemPrompt = `You are an autonomous agent inside "HTML Prototype Builder". You turn descriptions into complete, working, clickable HTML prototypes and you modify existing prototypes on request.

You MUST respond with a single raw JSON object and nothing else:
{
  "html": "body content only, without <!DOCTYPE>, <html>, <head> or <body> tags",
  "css": "complete stylesheet",
  "js": "complete script",
  "explanation": "short description of what you built",
  "suggestions": ["next step 1", "next step 2", "next step 3"]
}

Rules:
1. No markdown fences and no text before or after the JSON.
2. Escape every JSON string correctly.
3. Keep code compact; avoid redundant comments.
4. Prefer working functionality over feature count. Start simple and make it work.

Design:
- Modern CSS (flexbox, grid, custom properties, gradients), responsive from mobile to desktop.
- System font stack, clear type hierarchy, consistent spacing, rounded corners, subtle shadows.
- Semantic HTML5 and accessible markup (labels, alt text, contrast).
- Smooth transitions and hover states on interactive elements.

Behaviour:
- Every button and form has a working handler; forms call preventDefault().
- Data-driven apps persist to localStorage or IndexedDB and seed 5-10 realistic sample records on first load.
- Implement create, read, update and delete where data is managed.
- Keep one updateUI() function and call it after load and after every data change, including charts and counters.
- Charts use canvas or SVG without external libraries.
- Show feedback in the UI instead of alerts or console output.
- Initialise on DOMContentLoaded, or immediately when the DOM is already ready.
`

// PlanSystemPrompt is used for the optional planning call
const PlanSystemPrompt = "You are a helpful AI assistant that creates implementation plans for web prototypes."

// ChatSystemPrompt is used in chat mode, where no code is generated
const ChatSystemPrompt = `You are a helpful assistant inside "HTML Prototype Builder".

In chat mode you help the user plan prototypes, answer HTML, CSS and JavaScript questions, suggest best practices, explain code and debug issues. You do not generate the prototype here; if the user wants code generated, suggest switching to Agent Mode.

Be friendly and concise, ask clarifying questions when the request is ambiguous, and give short examples when they help.

Context: prototypes are standalone HTML files for demos that work offline and may use IndexedDB for local data.
`

// Plan is the structured result of the planning call
type Plan struct {
	Understanding       string   `json:"understanding"`
	Components          []string `json:"components"`
	Features            []string `json:"features"`
	DataModel           string   `json:"dataModel,omitempty"`
	TechStack           []string `json:"techStack"`
	EstimatedComplexity string   `json:"estimatedComplexity"`
}

// DetermineAction picks create, modify or fix from the message and whether
// there is existing code to work on.
func DetermineAction(message, currentCode string) Action {
	if strings.TrimSpace(currentCode) == "" {
		return ActionCreate
	}
	lower := strings.ToLower(message)
	if strings.Contains(lower, "fix") || strings.Contains(lower, "bug") || strings.Contains(lower, "error") {
		return ActionFix
	}
	return ActionModify
}

// PlanPrompt asks for a JSON implementation plan
func PlanPrompt(description string) string {
	return fmt.Sprintf(`Analyze this request and create an implementation plan:

%s

Respond with a JSON object:
{
  "understanding": "Brief summary of what the user wants",
  "components": ["Component 1", "Component 2"],
  "features": ["Feature 1", "Feature 2"],
  "dataModel": "Description of data structure if applicable",
  "techStack": ["HTML5", "CSS3", "JavaScript", "IndexedDB"],
  "estimatedComplexity": "Simple/Medium/Complex"
}

Respond with ONLY the JSON object. No markdown, no code blocks.`, description)
}

// AgentPrompt builds the user prompt for one attempt. Create requests follow
// the strategy ladder; modify and fix always carry the current code and only
// pick up the strategy focus.
func AgentPrompt(action Action, description, currentCode string, plan *Plan, strategy PromptStrategy) string {
	var prompt string
	switch action {
	case ActionModify:
		prompt = modifyPrompt(description, currentCode)
	case ActionFix:
		prompt = fixPrompt(description, currentCode)
	default:
		switch strategy.Kind {
		case StrategyMinimal:
			prompt = minimalPrompt(description)
		case StrategyConcise:
			prompt = concisePrompt(description, plan)
		default:
			prompt = createPrompt(description, plan)
		}
	}

	if len(strategy.FocusAreas) > 0 {
		prompt += "\n\nFocus on: " + strings.Join(strategy.FocusAreas, ", ") + "."
	}
	return prompt
}

func createPrompt(description string, plan *Plan) string {
	var sb strings.Builder
	sb.WriteString("Create a new HTML prototype based on this description:\n\n")
	sb.WriteString(description)
	sb.WriteString("\n")
	if plan != nil {
		sb.WriteString("\nBased on the approved plan:\n")
		fmt.Fprintf(&sb, "- Components: %s\n", strings.Join(plan.Components, ", "))
		fmt.Fprintf(&sb, "- Features: %s\n", strings.Join(plan.Features, ", "))
		if plan.DataModel != "" {
			fmt.Fprintf(&sb, "- Data Model: %s\n", plan.DataModel)
		}
	}
	sb.WriteString(`
Generate a fully functional prototype with HTML, CSS and JavaScript.

Requirements:
1. Visually polished: modern layout, gradients, subtle animation.
2. Every button, form and interaction works.
3. Apps that manage data persist it (localStorage for simple apps, IndexedDB otherwise), seed 5-10 sample records and support create, read, update and delete.
4. The UI updates immediately after every data change; one updateUI() refreshes lists, counters and charts.
5. Works on first load with no setup.

The explanation should say what was built, the key features and how to use it.

Respond with ONLY the JSON object. Start with { and end with }.`)
	return sb.String()
}

func concisePrompt(description string, plan *Plan) string {
	planContext := ""
	if plan != nil && len(plan.Components) > 0 {
		planContext = "Plan: " + strings.Join(plan.Components, ", ") + "\n"
	}
	return fmt.Sprintf(`Create working HTML prototype: %s
%s
CONCISE MODE - keep it small:
1. Core functionality only
2. Minimal comments
3. Compact code
4. Essential styling
5. localStorage for data
6. At most 5-7 sample records

JSON output only (no markdown):
{"html":"...","css":"...","js":"...","explanation":"...","suggestions":[]}`, description, planContext)
}

func minimalPrompt(description string) string {
	return fmt.Sprintf(`Minimal viable prototype: %s

ULTRA-MINIMAL:
- Core features only
- Basic styling
- Essential JS
- 3-5 sample records
- No comments

JSON only:
{"html":"...","css":"...","js":"...","explanation":"...","suggestions":[]}`, description)
}

func modifyPrompt(description, currentCode string) string {
	return fmt.Sprintf("Modify the existing prototype based on this request:\n\n%s\n\nCurrent code:\n```html\n%s\n```\n\nGenerate the updated code. Respond with valid JSON only.",
		description, truncateRunes(currentCode, currentCodeLimit))
}

func fixPrompt(issue, currentCode string) string {
	return fmt.Sprintf("Fix this issue in the prototype:\n\n%s\n\nCurrent code:\n```html\n%s\n```\n\nGenerate the fixed code. Respond with valid JSON only.",
		issue, truncateRunes(currentCode, currentCodeLimit))
}

// ChatPrompt appends code and selection context to a chat-mode message
func ChatPrompt(message, currentCode, selectedElement string) string {
	prompt := message
	if currentCode != "" {
		prompt += "\n\nCurrent code context:\n```html\n" + truncateRunes(currentCode, chatCodeContextLimit) + "...\n```"
	}
	if selectedElement != "" {
		prompt += "\n\nSelected element: " + selectedElement
	}
	return prompt
}

// NarratePlan renders a plan as markdown for the progress message
func NarratePlan(plan *Plan) string {
	var sb strings.Builder
	sb.WriteString("**Implementation Plan:**\n\n")
	fmt.Fprintf(&sb, "**Understanding:** %s\n\n", plan.Understanding)

	sb.WriteString("**Components to Build:**\n")
	writeNumbered(&sb, plan.Components)
	sb.WriteString("\n**Key Features:**\n")
	writeNumbered(&sb, plan.Features)
	sb.WriteString("\n")

	if plan.DataModel != "" {
		fmt.Fprintf(&sb, "**Data Model:** %s\n\n", plan.DataModel)
	}
	if len(plan.TechStack) > 0 {
		fmt.Fprintf(&sb, "**Tech Stack:** %s\n\n", strings.Join(plan.TechStack, ", "))
	}
	if plan.EstimatedComplexity != "" {
		fmt.Fprintf(&sb, "**Complexity:** %s\n\n", plan.EstimatedComplexity)
	}
	sb.WriteString("---\n\n**Now generating your prototype...**\n")
	return sb.String()
}

// CompletionSummary is the closing text of a successful agent run
func CompletionSummary(payload *Payload) string {
	var sb strings.Builder
	sb.WriteString("\n\n**Implementation Complete!**\n\n")
	explanation := payload.Explanation
	if explanation == "" {
		explanation = "Code generated successfully!"
	}
	sb.WriteString(explanation)
	sb.WriteString("\n\n")
	if len(payload.Suggestions) > 0 {
		sb.WriteString("**Next Steps & Suggestions:**\n")
		writeNumbered(&sb, payload.Suggestions)
		sb.WriteString("\n")
	}
	return sb.String()
}

// BuildMessages assembles system prompt, trimmed history and user prompt.
// The system and user prompts are never dropped.
func BuildMessages(system string, history []llm.Message, user string, counter *llm.TokenCounter, historyBudget int) []llm.Message {
	trimmed := counter.TrimHistory(history, historyBudget)

	messages := make([]llm.Message, 0, len(trimmed)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, msg := range trimmed {
		role := llm.RoleAssistant
		if msg.Role == llm.RoleUser {
			role = llm.RoleUser
		}
		messages = append(messages, llm.Message{Role: role, Content: msg.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: user})
	return messages
}

func writeNumbered(sb *strings.Builder, items []string) {
	for i, item := range items {
		fmt.Fprintf(sb, "%d. %s\n", i+1, item)
	}
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

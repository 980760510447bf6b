package generation

import (
	"strings"
)

// StrategyKind names how much output a generation attempt asks for
type StrategyKind string

const (
	StrategyStandard StrategyKind = "standard"
	StrategyConcise  StrategyKind = "concise"
	StrategyMinimal  StrategyKind = "minimal"
)

// Output ceilings. Standard is deliberately lower than the retry strategies,
// which need headroom so they do not truncate again.
const (
	StandardMaxTokens = 6144
	ConciseMaxTokens  = 8192
	MinimalMaxTokens  = 8192
)

// PromptStrategy is recomputed for every attempt
type PromptStrategy struct {
	Kind            StrategyKind `json:"kind"`
	MaxOutputTokens int          `json:"max_output_tokens"`
	FocusAreas      []string     `json:"focus_areas"`
}

var (
	heavyKeywords   = []string{"dashboard", "crm", "admin", "management", "system", "platform", "portal"}
	featureKeywords = []string{"crud", "search", "filter", "sort", "chart", "graph", "table", "form", "list"}
	entityKeywords  = []string{"user", "customer", "product", "order", "task", "project", "contact"}
)

// SelectStrategy picks the strategy for retryAttempt (0 for the first attempt).
// Retries ignore complexity and step down the ladder.
func SelectStrategy(text string, retryAttempt int) PromptStrategy {
	switch {
	case retryAttempt >= 2:
		return PromptStrategy{Kind: StrategyMinimal, MaxOutputTokens: MinimalMaxTokens, FocusAreas: []string{"core functionality only", "minimal features"}}
	case retryAttempt == 1:
		return PromptStrategy{Kind: StrategyConcise, MaxOutputTokens: ConciseMaxTokens, FocusAreas: []string{"working prototype", "essential features"}}
	}

	score := AssessComplexity(text)
	switch {
	case score > 0.7:
		return PromptStrategy{Kind: StrategyMinimal, MaxOutputTokens: MinimalMaxTokens, FocusAreas: []string{"core functionality", "essential features only"}}
	case score > 0.4:
		return PromptStrategy{Kind: StrategyConcise, MaxOutputTokens: ConciseMaxTokens, FocusAreas: []string{"working prototype", "key features"}}
	default:
		return PromptStrategy{Kind: StrategyStandard, MaxOutputTokens: StandardMaxTokens, FocusAreas: []string{"complete implementation"}}
	}
}

// AssessComplexity scores a request in [0, 1]
func AssessComplexity(text string) float64 {
	lower := strings.ToLower(text)
	score := 0.0

	for _, kw := range heavyKeywords {
		if strings.Contains(lower, kw) {
			score += 0.2
		}
	}
	for _, kw := range featureKeywords {
		if strings.Contains(lower, kw) {
			score += 0.1
		}
	}

	words := len(strings.Fields(text))
	if words > 50 {
		score += 0.2
	}
	if words > 100 {
		score += 0.2
	}

	entities := 0
	for _, kw := range entityKeywords {
		if strings.Contains(lower, kw) {
			entities++
		}
	}
	if entities > 2 {
		score += 0.2
	}

	if score > 1 {
		return 1
	}
	return score
}

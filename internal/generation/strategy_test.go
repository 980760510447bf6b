package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssessComplexity(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		score float64
	}{
		{"simple button", "Build a simple button", 0},
		{"heavy keyword", "an admin page", 0.2},
		{"heavy and features", "a CRM dashboard with search and filter", 0.6},
		{"entities", "track user, product and order", 0.2},
		{"long text", strings.Repeat("word ", 60), 0.2},
		{"very long text", strings.Repeat("word ", 120), 0.4},
		{"saturates", "dashboard crm admin management system platform portal search filter", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.score, AssessComplexity(tt.text), 1e-9)
		})
	}
}

func TestSelectStrategyByComplexity(t *testing.T) {
	simple := SelectStrategy("Build a simple button", 0)
	assert.Equal(t, StrategyStandard, simple.Kind)
	assert.Equal(t, StandardMaxTokens, simple.MaxOutputTokens)
	assert.Equal(t, []string{"complete implementation"}, simple.FocusAreas)

	medium := SelectStrategy("a CRM dashboard with search and filter", 0)
	assert.Equal(t, StrategyConcise, medium.Kind)

	heavy := SelectStrategy("admin dashboard for a management platform with charts, tables, search and a user/product/order model", 0)
	assert.Equal(t, StrategyMinimal, heavy.Kind)
}

func TestSelectStrategyRetriesIgnoreComplexity(t *testing.T) {
	text := "Build a simple button"

	first := SelectStrategy(text, 1)
	assert.Equal(t, StrategyConcise, first.Kind)
	assert.Equal(t, []string{"working prototype", "essential features"}, first.FocusAreas)

	second := SelectStrategy(text, 2)
	assert.Equal(t, StrategyMinimal, second.Kind)
	assert.Equal(t, []string{"core functionality only", "minimal features"}, second.FocusAreas)

	assert.Equal(t, StrategyMinimal, SelectStrategy(text, 5).Kind)
}

func TestRetryStrategiesHaveMoreHeadroom(t *testing.T) {
	assert.Less(t, SelectStrategy("x", 0).MaxOutputTokens, SelectStrategy("x", 1).MaxOutputTokens)
	assert.Equal(t, SelectStrategy("x", 1).MaxOutputTokens, SelectStrategy("x", 2).MaxOutputTokens)
}

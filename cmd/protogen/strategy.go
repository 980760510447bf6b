package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bizmatters/prototype-builder/orchestrator/internal/generation"
)

var strategyCmd = &cobra.Command{
	Use:   "strategy <prompt>",
	Short: "Show the complexity score and the prompt strategy of each attempt",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		prompt := strings.Join(args, " ")
		out := cmd.OutOrStdout()

		fmt.Fprintf(out, "complexity: %.2f\n", generation.AssessComplexity(prompt))
		for attempt := 0; attempt < generation.DefaultConfig().Retry.MaxAttempts; attempt++ {
			s := generation.SelectStrategy(prompt, attempt)
			fmt.Fprintf(out, "attempt %d: %-8s max_tokens=%d focus=%s\n",
				attempt+1, s.Kind, s.MaxOutputTokens, strings.Join(s.FocusAreas, ", "))
		}
		return nil
	},
}
